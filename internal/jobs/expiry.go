package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// DefaultExpiryBatchSize caps how many documents one tenant expires per tick
const DefaultExpiryBatchSize = 50

// ExpiryResult is the per-tenant outcome of an expiry pass
type ExpiryResult struct {
	Found   int       `json:"found"`
	Expired int       `json:"expired"`
	Errors  ErrorList `json:"errors"`
}

// ExpiryJob moves in-flight documents past their expiry date to expired
type ExpiryJob struct {
	audit     *audit.Logger
	iterator  *tenant.Iterator
	batchSize int
	now       func() time.Time
	log       *logger.Logger
}

// NewExpiryJob creates the expiry job
func NewExpiryJob(auditLog *audit.Logger, iterator *tenant.Iterator, batchSize int, log *logger.Logger) *ExpiryJob {
	if batchSize <= 0 {
		batchSize = DefaultExpiryBatchSize
	}
	return &ExpiryJob{
		audit:     auditLog,
		iterator:  iterator,
		batchSize: batchSize,
		now:       time.Now,
		log:       log.With("job", NameExpiry),
	}
}

// Run processes every active tenant
func (j *ExpiryJob) Run(ctx context.Context) (*RunSummary[ExpiryResult], error) {
	summary, err := runAcrossTenants(ctx, j.iterator, NameExpiry, j.ProcessCompany, func(r ExpiryResult, totals map[string]int) {
		totals["expired"] += r.Expired
		totals["failed"] += r.Errors.Total
	})
	if err != nil {
		return summary, err
	}

	j.log.Info("Expiry run complete", "run_id", summary.RunID, "tenants", summary.Tenants, "expired", summary.Totals["expired"])
	return summary, nil
}

// ProcessCompany expires one tenant's overdue documents
func (j *ExpiryJob) ProcessCompany(ctx context.Context, t *tenant.Tenant) (ExpiryResult, error) {
	var result ExpiryResult
	now := j.now()

	docs, err := t.DB.Documents().FindExpired(ctx, now, j.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to find expired documents: %w", err)
	}
	result.Found = len(docs)

	actx := audit.SystemContext(t, NameExpiry)
	for _, doc := range docs {
		changed, err := t.DB.Documents().MarkExpired(ctx, doc.ID, now)
		if err != nil {
			result.Errors.Add(ItemError{
				DocumentID: doc.ID.Hex(),
				Error:      "expire_failed",
				Message:    err.Error(),
			})
			continue
		}
		if !changed {
			continue
		}
		result.Expired++

		j.audit.Record(ctx, actx, domain.AuditEvent{
			EventType: domain.AuditDocumentExpired,
			Resource:  domain.Resource{Type: "esign_document", ID: doc.ID.Hex(), Name: doc.Title},
			Action:    "expire",
			Metadata: map[string]any{
				"previous_status": doc.Status,
				"expires_at":      doc.ExpiresAt,
			},
		})
	}

	return result, nil
}
