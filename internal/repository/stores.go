package repository

import (
	"context"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentStore is the per-tenant document access used by the background jobs
type DocumentStore interface {
	FindAwaitingPDF(ctx context.Context, limit int) ([]*domain.Document, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Document, error)
	SetPDFURL(ctx context.Context, id primitive.ObjectID, url string) error
	FindReminderCandidates(ctx context.Context, now time.Time) ([]*domain.Document, error)
	AppendReminder(ctx context.Context, id primitive.ObjectID, entry domain.ReminderEntry) (bool, error)
	FindRetentionCandidates(ctx context.Context, cutoff time.Time) ([]*domain.Document, error)
	Archive(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Document, error)
	MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)
}

// ProviderConfigStore looks up a tenant's active provider integration
type ProviderConfigStore interface {
	FindActive(ctx context.Context, providerType domain.ProviderType) (*domain.ProviderConfig, error)
}

// AuditLogStore appends audit events to a tenant's audit log
type AuditLogStore interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}
