package domain

import "time"

// EventType represents the type of an inbound e-sign event
type EventType string

const (
	EventNotificationRequested EventType = "esign.notification.requested"
	EventDocumentSigned        EventType = "esign.document.signed"
)

// Event is an e-sign event received from RabbitMQ
type Event struct {
	Type          EventType          `json:"type"`
	CompanyID     string             `json:"company_id"`
	CompanyDBName string             `json:"company_db_name"`
	DocumentID    string             `json:"document_id,omitempty"`
	Notifications []NotificationSpec `json:"notifications,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// NotificationSpec describes one notification requested by an event
type NotificationSpec struct {
	NotificationType string  `json:"notification_type"`
	Recipient        string  `json:"recipient"`
	Channel          Channel `json:"channel"`
	Subject          string  `json:"subject,omitempty"`
	Message          string  `json:"message"`
	HTMLMessage      string  `json:"html_message,omitempty"`
}
