package repository

import (
	"context"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const auditLogsCollection = "audit_logs"

// AuditLogRepository appends audit events to a tenant database
type AuditLogRepository struct {
	db *mongo.Database
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *mongo.Database) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert writes a new audit event
func (r *AuditLogRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	event.ID = primitive.NewObjectID()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := r.db.Collection(auditLogsCollection).InsertOne(ctx, event)
	return err
}
