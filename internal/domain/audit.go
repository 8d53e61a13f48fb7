package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit event types written by the background jobs
const (
	AuditReminderSent             = "document.reminder_sent"
	AuditReminderFailed           = "document.reminder_failed"
	AuditPDFGenerationFailed      = "document.pdf_generation_failed"
	AuditDocumentExpired          = "document.expired"
	AuditRetentionCleanupStarted  = "retention.cleanup_started"
	AuditRetentionDocArchived     = "retention.document_archived"
	AuditRetentionCleanupComplete = "retention.cleanup_completed"
)

// NotificationSentEvent returns the audit event type for a delivered notification
func NotificationSentEvent(notificationType string) string {
	return "notification." + notificationType + ".sent"
}

// NotificationFailedEvent returns the audit event type for a failed notification
func NotificationFailedEvent(notificationType string) string {
	return "notification." + notificationType + ".failed"
}

// Actor identifies who performed an audited action
type Actor struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id" bson:"id"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// SystemActor is the actor for work done by a background job
func SystemActor(job string) Actor {
	return Actor{Type: "system", ID: job, Name: "esign-" + job}
}

// Resource identifies what an audited action touched
type Resource struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id,omitempty" bson:"id,omitempty"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// AuditEvent is an append-only audit log record
type AuditEvent struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EventType string             `json:"event_type" bson:"event_type"`
	Actor     Actor              `json:"actor" bson:"actor"`
	Resource  Resource           `json:"resource" bson:"resource"`
	Action    string             `json:"action" bson:"action"`
	Metadata  map[string]any     `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CompanyID string             `json:"company_id" bson:"company_id"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
