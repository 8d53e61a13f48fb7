package tenant

import (
	"context"
	"fmt"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"golang.org/x/sync/errgroup"
)

// Iterator walks the active tenants, handing each job a resolved Tenant.
// With maxConcurrent == 1 tenants are visited strictly in directory order.
type Iterator struct {
	directory     Directory
	resolver      Resolver
	maxConcurrent int
	log           *logger.Logger
}

// NewIterator creates a tenant iterator. maxConcurrent below 1 is treated as 1.
func NewIterator(directory Directory, resolver Resolver, maxConcurrent int, log *logger.Logger) *Iterator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Iterator{
		directory:     directory,
		resolver:      resolver,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

// Outcome is the per-tenant result of one job run
type Outcome[R any] struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Result      R      `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the tenant-level run failed
func (o Outcome[R]) Failed() bool {
	return o.Error != ""
}

// Each runs fn for every active tenant. A failing tenant is recorded in its
// Outcome and does not stop the others. Only a directory failure is returned.
func Each[R any](ctx context.Context, it *Iterator, fn func(ctx context.Context, t *Tenant) (R, error)) ([]Outcome[R], error) {
	companies, err := it.directory.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active companies: %w", err)
	}

	outcomes := make([]Outcome[R], len(companies))

	var g errgroup.Group
	g.SetLimit(it.maxConcurrent)
	for i, company := range companies {
		g.Go(func() error {
			outcomes[i] = visit(ctx, it, company, fn)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

func visit[R any](ctx context.Context, it *Iterator, company *domain.Company, fn func(ctx context.Context, t *Tenant) (R, error)) (out Outcome[R]) {
	out.CompanyID = company.ID.Hex()
	out.CompanyName = company.Name

	defer func() {
		if r := recover(); r != nil {
			it.log.Error("Tenant job panicked", "company_id", out.CompanyID, "panic", r)
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Error = err.Error()
		return out
	}

	handle, err := it.resolver.Resolve(ctx, company.DBName)
	if err != nil {
		it.log.Error("Failed to resolve tenant database", "company_id", out.CompanyID, "db_name", company.DBName, "error", err)
		out.Error = err.Error()
		return out
	}

	result, err := fn(ctx, &Tenant{Company: company, DB: handle})
	out.Result = result
	if err != nil {
		it.log.Error("Tenant job failed", "company_id", out.CompanyID, "error", err)
		out.Error = err.Error()
	}
	return out
}

// Lookup resolves a single tenant the way a queued job addresses it: the
// database first, then the company record.
func Lookup(ctx context.Context, directory Directory, resolver Resolver, companyID, dbName string) (*Tenant, error) {
	handle, err := resolver.Resolve(ctx, dbName)
	if err != nil {
		return nil, err
	}

	company, err := directory.FindByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	return &Tenant{Company: company, DB: handle}, nil
}
