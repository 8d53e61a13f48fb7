package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// smtpTransport delivers a fully built message. Replaced in tests.
type smtpTransport func(ctx context.Context, cfg smtpConfig, from string, to []string, msg []byte) error

type smtpConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

func smtpConfigFrom(creds Credentials, settings Settings) (smtpConfig, error) {
	cfg := smtpConfig{
		Host:     creds["host"],
		Username: creds["username"],
		Password: creds["password"],
		Port:     587,
	}
	if cfg.Host == "" {
		cfg.Host = settings.String("host", "")
	}
	if cfg.Host == "" {
		return cfg, apperrors.NewConfigurationError(apperrors.CodeProviderNotConfigured, "smtp provider has no host", nil)
	}

	port := creds["port"]
	if port == "" {
		port = settings.String("port", "")
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return cfg, apperrors.NewConfigurationError(apperrors.CodeProviderNotConfigured, "smtp port is not a number", err)
		}
		cfg.Port = p
	}
	return cfg, nil
}

type smtpSender struct {
	transport smtpTransport
}

func (s *smtpSender) send(ctx context.Context, cfg smtpConfig, from string, msg EmailMessage) (*SendResult, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), cfg.Host)
	body := buildMIMEMessage(from, messageID, msg)

	if err := s.transport(ctx, cfg, envelopeAddress(from), []string{msg.To}, body); err != nil {
		return nil, apperrors.NewDeliveryError("smtp send failed", err)
	}

	return &SendResult{MessageID: messageID, Provider: ProviderSMTP}, nil
}

// buildMIMEMessage renders the message, as multipart/alternative when both
// text and HTML bodies are present
func buildMIMEMessage(from, messageID string, msg EmailMessage) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Message-ID: " + messageID + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.Text != "" && msg.HTML != "":
		boundary := "esign-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text + "\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
		b.WriteString("--" + boundary + "--\r\n")
	case msg.HTML != "":
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML)
	default:
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text)
	}

	return []byte(b.String())
}

// envelopeAddress strips a display name: "Acme <no-reply@acme.test>" -> "no-reply@acme.test"
func envelopeAddress(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			return from[start+1 : end]
		}
	}
	return from
}

// dialSMTP sends through a real server: implicit TLS on 465, STARTTLS otherwise
func dialSMTP(ctx context.Context, cfg smtpConfig, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if cfg.Port != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}
