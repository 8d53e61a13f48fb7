package tenant

import (
	"context"

	"github.com/vhvplatform/go-esign-delivery-service/internal/repository"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoResolver resolves tenant databases on a shared MongoDB client
type MongoResolver struct {
	client *mongodb.MongoClient
}

// NewMongoResolver creates a resolver backed by client
func NewMongoResolver(client *mongodb.MongoClient) *MongoResolver {
	return &MongoResolver{client: client}
}

// Resolve returns a handle on the named tenant database
func (r *MongoResolver) Resolve(ctx context.Context, dbName string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db, err := r.client.TenantDatabase(dbName)
	if err != nil {
		return nil, apperrors.NewConfigurationError(apperrors.CodeTenantConnectionFailed, "invalid tenant database", err)
	}

	return &mongoHandle{
		db:        db,
		documents: repository.NewDocumentRepository(db),
		providers: repository.NewProviderConfigRepository(db),
		auditLogs: repository.NewAuditLogRepository(db),
	}, nil
}

type mongoHandle struct {
	db        *mongo.Database
	documents *repository.DocumentRepository
	providers *repository.ProviderConfigRepository
	auditLogs *repository.AuditLogRepository
}

func (h *mongoHandle) DBName() string { return h.db.Name() }

func (h *mongoHandle) Documents() repository.DocumentStore { return h.documents }

func (h *mongoHandle) ProviderConfigs() repository.ProviderConfigStore { return h.providers }

func (h *mongoHandle) AuditLogs() repository.AuditLogStore { return h.auditLogs }
