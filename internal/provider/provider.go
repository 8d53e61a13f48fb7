package provider

import (
	"context"
	"fmt"
)

// Credentials are decrypted provider credentials
type Credentials map[string]string

// Settings are the non-secret provider settings stored alongside credentials
type Settings map[string]any

// String returns a string setting or def when missing
func (s Settings) String(key, def string) string {
	if v, ok := s[key]; ok && v != nil {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
		if str := fmt.Sprint(v); str != "" {
			return str
		}
	}
	return def
}

// EmailMessage is an outbound email
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
	From    string
}

// SMSMessage is an outbound text message
type SMSMessage struct {
	To      string
	Message string
}

// SendResult identifies a message accepted by a provider
type SendResult struct {
	MessageID string `json:"message_id"`
	Provider  string `json:"provider"`
}

// Dispatcher sends notifications through a named provider
type Dispatcher interface {
	SendEmail(ctx context.Context, providerName string, creds Credentials, settings Settings, msg EmailMessage) (*SendResult, error)
	SendSMS(ctx context.Context, providerName string, creds Credentials, settings Settings, msg SMSMessage) (*SendResult, error)
}

// StorageAdapter removes stored artifacts
type StorageAdapter interface {
	Delete(ctx context.Context, url string) error
}

// StorageFactory builds a storage adapter for a named provider
type StorageFactory interface {
	CreateAdapter(ctx context.Context, providerName string, creds Credentials, settings Settings) (StorageAdapter, error)
}
