// Package delivery sends a single notification through a tenant's configured
// provider and records the outcome in the tenant's audit log.
package delivery

import (
	"context"
	"fmt"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/crypto"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/metrics"
	"github.com/vhvplatform/go-esign-delivery-service/internal/provider"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// ActorName is the system actor recorded on notification audit events
const ActorName = "notification-worker"

// Unit delivers notification jobs
type Unit struct {
	directory  tenant.Directory
	resolver   tenant.Resolver
	decrypter  crypto.Decrypter
	dispatcher provider.Dispatcher
	audit      *audit.Logger
	limiter    *TenantRateLimiter
	log        *logger.Logger
}

// NewUnit creates a delivery unit. limiter may be nil.
func NewUnit(
	directory tenant.Directory,
	resolver tenant.Resolver,
	decrypter crypto.Decrypter,
	dispatcher provider.Dispatcher,
	auditLog *audit.Logger,
	limiter *TenantRateLimiter,
	log *logger.Logger,
) *Unit {
	return &Unit{
		directory:  directory,
		resolver:   resolver,
		decrypter:  decrypter,
		dispatcher: dispatcher,
		audit:      auditLog,
		limiter:    limiter,
		log:        log,
	}
}

// Deliver processes one notification job. On failure a failed audit event is
// written before the error is returned; retry decisions belong to the caller.
func (u *Unit) Deliver(ctx context.Context, job *domain.NotificationJob) (*provider.SendResult, error) {
	if job.Recipient == "" {
		return nil, apperrors.NewValidationError("notification job has no recipient", nil)
	}

	handle, err := u.resolver.Resolve(ctx, job.CompanyDBName)
	if err != nil {
		u.recordFailure(job, err)
		return nil, fmt.Errorf("failed to resolve tenant database %s: %w", job.CompanyDBName, err)
	}

	actx := audit.Context{Actor: domain.SystemActor(ActorName), Models: handle}

	result, err := u.deliver(ctx, handle, &actx, job)
	if err != nil {
		u.recordFailure(job, err)
		u.audit.Record(ctx, actx, domain.AuditEvent{
			EventType: domain.NotificationFailedEvent(job.NotificationType),
			Resource:  documentResource(job),
			Action:    "send",
			CompanyID: job.CompanyID,
			Metadata: map[string]any{
				"recipient":  job.Recipient,
				"channel":    job.Channel,
				"attempts":   job.Attempts,
				"error":      err.Error(),
				"error_code": apperrors.CodeOf(err),
			},
		})
		return nil, err
	}

	metrics.NotificationsSent.WithLabelValues(job.NotificationType, string(job.Channel)).Inc()
	u.audit.Record(ctx, actx, domain.AuditEvent{
		EventType: domain.NotificationSentEvent(job.NotificationType),
		Resource:  documentResource(job),
		Action:    "send",
		Metadata: map[string]any{
			"recipient":  job.Recipient,
			"channel":    job.Channel,
			"provider":   result.Provider,
			"message_id": result.MessageID,
			"attempts":   job.Attempts,
		},
	})

	u.log.Info("Notification sent",
		"type", job.NotificationType,
		"channel", job.Channel,
		"company_id", job.CompanyID,
		"message_id", result.MessageID,
	)
	return result, nil
}

func (u *Unit) deliver(ctx context.Context, handle tenant.Handle, actx *audit.Context, job *domain.NotificationJob) (*provider.SendResult, error) {
	company, err := u.directory.FindByID(ctx, job.CompanyID)
	if err != nil {
		return nil, err
	}
	actx.Company = company

	sender, err := u.SenderFor(ctx, &tenant.Tenant{Company: company, DB: handle}, job.Channel)
	if err != nil {
		return nil, err
	}

	return sender.Send(ctx, Message{
		To:      job.Recipient,
		Subject: job.Subject,
		Text:    job.Message,
		HTML:    job.HTMLMessage,
	})
}

func (u *Unit) recordFailure(job *domain.NotificationJob, err error) {
	metrics.NotificationsFailed.WithLabelValues(job.NotificationType, apperrors.CodeOf(err)).Inc()
	u.log.Warn("Notification delivery failed",
		"type", job.NotificationType,
		"channel", job.Channel,
		"company_id", job.CompanyID,
		"attempts", job.Attempts,
		"error", err,
	)
}

func documentResource(job *domain.NotificationJob) domain.Resource {
	return domain.Resource{Type: "esign_document", ID: job.DocumentID}
}

// Message is a channel-neutral outbound message
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender sends through one tenant's active provider for a channel. The
// decrypted credentials live only as long as the Sender.
type Sender struct {
	unit     *Unit
	tenantID string
	channel  domain.Channel
	provider string
	creds    provider.Credentials
	settings provider.Settings
}

// SenderFor loads the tenant's active provider for channel and decrypts its
// credentials once.
func (u *Unit) SenderFor(ctx context.Context, t *tenant.Tenant, channel domain.Channel) (*Sender, error) {
	if channel != domain.ChannelEmail && channel != domain.ChannelSMS {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported channel %q", channel), nil)
	}

	cfg, err := t.DB.ProviderConfigs().FindActive(ctx, channel.ProviderType())
	if err != nil {
		return nil, err
	}

	creds, err := u.decrypter.Decrypt(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	return &Sender{
		unit:     u,
		tenantID: t.ID(),
		channel:  channel,
		provider: cfg.Provider,
		creds:    creds,
		settings: provider.Settings(cfg.Settings),
	}, nil
}

// Provider returns the provider name the sender dispatches through
func (s *Sender) Provider() string {
	return s.provider
}

// Send dispatches msg, waiting on the tenant rate limiter first
func (s *Sender) Send(ctx context.Context, msg Message) (*provider.SendResult, error) {
	if err := s.unit.limiter.Wait(ctx, s.tenantID, s.channel); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	switch s.channel {
	case domain.ChannelSMS:
		return s.unit.dispatcher.SendSMS(ctx, s.provider, s.creds, s.settings, provider.SMSMessage{
			To:      msg.To,
			Message: msg.Text,
		})
	default:
		return s.unit.dispatcher.SendEmail(ctx, s.provider, s.creds, s.settings, provider.EmailMessage{
			To:      msg.To,
			Subject: msg.Subject,
			Text:    msg.Text,
			HTML:    msg.HTML,
		})
	}
}
