package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultRetentionDays applies when a company has no esign_retention_days set
const DefaultRetentionDays = 365

// DocumentStatus represents the lifecycle status of an e-sign document
type DocumentStatus string

const (
	DocumentStatusDraft           DocumentStatus = "draft"
	DocumentStatusDistributed     DocumentStatus = "distributed"
	DocumentStatusOpened          DocumentStatus = "opened"
	DocumentStatusPartiallySigned DocumentStatus = "partially_signed"
	DocumentStatusSigned          DocumentStatus = "signed"
	DocumentStatusCompleted       DocumentStatus = "completed"
	DocumentStatusExpired         DocumentStatus = "expired"
	DocumentStatusCancelled       DocumentStatus = "cancelled"
)

// InFlightStatuses are the statuses of documents still waiting on recipients
var InFlightStatuses = []DocumentStatus{
	DocumentStatusDistributed,
	DocumentStatusOpened,
	DocumentStatusPartiallySigned,
}

// RecipientStatus represents the signing status of a single recipient
type RecipientStatus string

const (
	RecipientStatusPending  RecipientStatus = "pending"
	RecipientStatusSent     RecipientStatus = "sent"
	RecipientStatusOpened   RecipientStatus = "opened"
	RecipientStatusSigned   RecipientStatus = "signed"
	RecipientStatusRejected RecipientStatus = "rejected"
)

// Company is a tenant organization with its own database
type Company struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name               string             `json:"name" bson:"name"`
	DBName             string             `json:"db_name" bson:"db_name"`
	IsActive           bool               `json:"is_active" bson:"is_active"`
	EsignRetentionDays *int               `json:"esign_retention_days,omitempty" bson:"esign_retention_days,omitempty"`
	Timezone           string             `json:"timezone,omitempty" bson:"timezone,omitempty"`
}

// RetentionDays returns the configured retention period, falling back to DefaultRetentionDays
func (c *Company) RetentionDays() int {
	if c.EsignRetentionDays == nil {
		return DefaultRetentionDays
	}
	return *c.EsignRetentionDays
}

// Location returns the company's time zone, UTC when unset or unknown
func (c *Company) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Recipient is a party asked to sign a document
type Recipient struct {
	Name   string          `json:"name" bson:"name"`
	Email  string          `json:"email" bson:"email"`
	Phone  string          `json:"phone,omitempty" bson:"phone,omitempty"`
	Status RecipientStatus `json:"status" bson:"status"`
}

// IsPending reports whether the recipient still has to act on the document
func (r Recipient) IsPending() bool {
	return r.Status != RecipientStatusSigned && r.Status != RecipientStatusRejected
}

// ReminderEntry records a reminder that has already been sent for an interval
type ReminderEntry struct {
	HoursBeforeExpiry float64   `json:"hours_before_expiry" bson:"hours_before_expiry"`
	SentAt            time.Time `json:"sent_at" bson:"sent_at"`
}

// ReminderInterval configures a reminder relative to document expiry
type ReminderInterval struct {
	HoursBeforeExpiry float64 `json:"hours_before_expiry" bson:"hours_before_expiry"`
}

// NotificationConfig is the notification section of a template snapshot
type NotificationConfig struct {
	ReminderIntervals []ReminderInterval `json:"reminder_intervals,omitempty" bson:"reminder_intervals,omitempty"`
}

// TemplateSnapshot is the copy of the template taken when the document was created
type TemplateSnapshot struct {
	Name               string             `json:"name,omitempty" bson:"name,omitempty"`
	NotificationConfig NotificationConfig `json:"notification_config" bson:"notification_config"`
}

// Document is an e-sign document as seen by the background jobs
type Document struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title            string             `json:"title" bson:"title"`
	Status           DocumentStatus     `json:"status" bson:"status"`
	PDFURL           *string            `json:"pdf_url,omitempty" bson:"pdf_url,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	IsArchived       bool               `json:"is_archived" bson:"is_archived"`
	ArchivedAt       *time.Time         `json:"archived_at,omitempty" bson:"archived_at,omitempty"`
	Recipients       []Recipient        `json:"recipients" bson:"recipients"`
	RemindersSent    []ReminderEntry    `json:"reminders_sent,omitempty" bson:"reminders_sent,omitempty"`
	TemplateSnapshot TemplateSnapshot   `json:"template_snapshot" bson:"template_snapshot"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// ReminderIntervals returns the reminder intervals configured on the template snapshot
func (d *Document) ReminderIntervals() []ReminderInterval {
	return d.TemplateSnapshot.NotificationConfig.ReminderIntervals
}

// HasReminder reports whether the ledger already holds an entry for hoursBeforeExpiry
func (d *Document) HasReminder(hoursBeforeExpiry float64) bool {
	for _, entry := range d.RemindersSent {
		if entry.HoursBeforeExpiry == hoursBeforeExpiry {
			return true
		}
	}
	return false
}

// PendingRecipients returns recipients that have neither signed nor rejected
func (d *Document) PendingRecipients() []Recipient {
	pending := make([]Recipient, 0, len(d.Recipients))
	for _, r := range d.Recipients {
		if r.IsPending() {
			pending = append(pending, r)
		}
	}
	return pending
}

// HasPDF reports whether a stored PDF is referenced by the document
func (d *Document) HasPDF() bool {
	return d.PDFURL != nil && *d.PDFURL != ""
}

// ProviderType scopes a provider configuration to a delivery concern
type ProviderType string

const (
	ProviderTypeEmail   ProviderType = "email"
	ProviderTypeSMS     ProviderType = "sms"
	ProviderTypeStorage ProviderType = "storage"
)

// ProviderConfig holds a tenant's integration with an email, SMS or storage vendor
type ProviderConfig struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProviderType ProviderType       `json:"provider_type" bson:"provider_type"`
	Provider     string             `json:"provider" bson:"provider"`
	Credentials  string             `json:"-" bson:"credentials"`
	Settings     map[string]any     `json:"settings,omitempty" bson:"settings,omitempty"`
	IsActive     bool               `json:"is_active" bson:"is_active"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}
