package domain

import "time"

// Channel is the outbound medium of a notification
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ProviderType maps the channel to the provider configuration it needs
func (c Channel) ProviderType() ProviderType {
	if c == ChannelSMS {
		return ProviderTypeSMS
	}
	return ProviderTypeEmail
}

// NotificationJob is a pending outbound notification. Its JSON form is the
// durable queue message body.
type NotificationJob struct {
	NotificationType string    `json:"notificationType"`
	Recipient        string    `json:"recipient"`
	Channel          Channel   `json:"channel"`
	Subject          string    `json:"subject,omitempty"`
	Message          string    `json:"message"`
	HTMLMessage      string    `json:"htmlMessage,omitempty"`
	CompanyID        string    `json:"companyId"`
	CompanyDBName    string    `json:"companyDbName"`
	DocumentID       string    `json:"documentId,omitempty"`
	Attempts         int       `json:"attempts"`
	EnqueuedAt       time.Time `json:"enqueuedAt"`
}

// AttemptCount returns the number of failed attempts so far
func (j *NotificationJob) AttemptCount() int { return j.Attempts }

// SetAttempts overwrites the attempt counter
func (j *NotificationJob) SetAttempts(n int) { j.Attempts = n }

// MarkEnqueued stamps the enqueue time
func (j *NotificationJob) MarkEnqueued(at time.Time) { j.EnqueuedAt = at }

// PDFJob asks for the signed PDF of one document to be rendered
type PDFJob struct {
	CompanyID     string    `json:"companyId"`
	CompanyDBName string    `json:"companyDbName"`
	DocumentID    string    `json:"documentId"`
	Attempts      int       `json:"attempts"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

func (j *PDFJob) AttemptCount() int         { return j.Attempts }
func (j *PDFJob) SetAttempts(n int)         { j.Attempts = n }
func (j *PDFJob) MarkEnqueued(at time.Time) { j.EnqueuedAt = at }
