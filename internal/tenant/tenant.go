package tenant

import (
	"context"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/repository"
)

// Handle gives access to one tenant database
type Handle interface {
	DBName() string
	Documents() repository.DocumentStore
	ProviderConfigs() repository.ProviderConfigStore
	AuditLogs() repository.AuditLogStore
}

// Directory lists tenants
type Directory interface {
	FindActive(ctx context.Context) ([]*domain.Company, error)
	FindByID(ctx context.Context, id string) (*domain.Company, error)
}

// Resolver opens a handle on a tenant database by name
type Resolver interface {
	Resolve(ctx context.Context, dbName string) (Handle, error)
}

// Tenant is the execution context a job receives for one company
type Tenant struct {
	Company *domain.Company
	DB      Handle
}

// ID returns the company id as hex
func (t *Tenant) ID() string {
	return t.Company.ID.Hex()
}
