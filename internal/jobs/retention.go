package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/crypto"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/provider"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// ReasonIndefiniteRetention marks tenants whose retention period is disabled
const ReasonIndefiniteRetention = "indefinite_retention"

// RetentionResult is the per-tenant outcome of a retention pass
type RetentionResult struct {
	Skipped       bool      `json:"skipped,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RetentionDays int       `json:"retention_days"`
	Candidates    int       `json:"candidates"`
	Archived      int       `json:"archived"`
	PDFsDeleted   int       `json:"pdfs_deleted"`
	Errors        ErrorList `json:"errors"`
}

// RetentionJob archives completed documents past the tenant's retention period
type RetentionJob struct {
	storage   provider.StorageFactory
	decrypter crypto.Decrypter
	audit     *audit.Logger
	iterator  *tenant.Iterator
	now       func() time.Time
	log       *logger.Logger
}

// NewRetentionJob creates the retention job
func NewRetentionJob(storage provider.StorageFactory, decrypter crypto.Decrypter, auditLog *audit.Logger, iterator *tenant.Iterator, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		storage:   storage,
		decrypter: decrypter,
		audit:     auditLog,
		iterator:  iterator,
		now:       time.Now,
		log:       log.With("job", NameRetention),
	}
}

// Run processes every active tenant
func (j *RetentionJob) Run(ctx context.Context) (*RunSummary[RetentionResult], error) {
	summary, err := runAcrossTenants(ctx, j.iterator, NameRetention, j.ProcessCompany, func(r RetentionResult, totals map[string]int) {
		if r.Skipped {
			totals["skipped"]++
		}
		totals["archived"] += r.Archived
		totals["pdfs_deleted"] += r.PDFsDeleted
		totals["failed"] += r.Errors.Total
	})
	if err != nil {
		return summary, err
	}

	j.log.Info("Retention run complete",
		"run_id", summary.RunID,
		"tenants", summary.Tenants,
		"archived", summary.Totals["archived"],
		"skipped", summary.Totals["skipped"],
	)
	return summary, nil
}

// ProcessCompany archives one tenant's expired completed documents
func (j *RetentionJob) ProcessCompany(ctx context.Context, t *tenant.Tenant) (RetentionResult, error) {
	days := t.Company.RetentionDays()
	result := RetentionResult{RetentionDays: days}
	if days <= 0 {
		result.Skipped = true
		result.Reason = ReasonIndefiniteRetention
		return result, nil
	}

	now := j.now()
	cutoff := now.AddDate(0, 0, -days)

	docs, err := t.DB.Documents().FindRetentionCandidates(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to find retention candidates: %w", err)
	}
	result.Candidates = len(docs)
	if len(docs) == 0 {
		return result, nil
	}

	actx := audit.SystemContext(t, NameRetention)
	j.audit.Record(ctx, actx, domain.AuditEvent{
		EventType: domain.AuditRetentionCleanupStarted,
		Resource:  domain.Resource{Type: "company", ID: t.ID(), Name: t.Company.Name},
		Action:    "cleanup",
		Metadata: map[string]any{
			"retention_days": days,
			"cutoff":         cutoff,
			"candidates":     len(docs),
		},
	})

	store := &lazyStorage{job: j, tenant: t}
	for _, doc := range docs {
		pdfDeleted := false
		if doc.HasPDF() {
			if err := store.delete(ctx, *doc.PDFURL); err != nil {
				j.log.Warn("Failed to delete stored PDF", "company_id", t.ID(), "document_id", doc.ID.Hex(), "error", err)
				result.Errors.Add(ItemError{
					DocumentID: doc.ID.Hex(),
					Error:      "pdf_delete_failed",
					Message:    err.Error(),
				})
			} else {
				pdfDeleted = true
				result.PDFsDeleted++
			}
		}

		archived, err := t.DB.Documents().Archive(ctx, doc.ID, now)
		if err != nil {
			result.Errors.Add(ItemError{
				DocumentID: doc.ID.Hex(),
				Error:      "archive_failed",
				Message:    err.Error(),
			})
			continue
		}
		if !archived {
			continue
		}
		result.Archived++

		j.audit.Record(ctx, actx, domain.AuditEvent{
			EventType: domain.AuditRetentionDocArchived,
			Resource:  domain.Resource{Type: "esign_document", ID: doc.ID.Hex(), Name: doc.Title},
			Action:    "archive",
			Metadata: map[string]any{
				"completed_at": doc.CompletedAt,
				"pdf_deleted":  pdfDeleted,
			},
		})
	}

	j.audit.Record(ctx, actx, domain.AuditEvent{
		EventType: domain.AuditRetentionCleanupComplete,
		Resource:  domain.Resource{Type: "company", ID: t.ID(), Name: t.Company.Name},
		Action:    "cleanup",
		Metadata: map[string]any{
			"retention_days": days,
			"candidates":     result.Candidates,
			"archived":       result.Archived,
			"pdfs_deleted":   result.PDFsDeleted,
			"error_count":    result.Errors.Total,
			"errors":         result.Errors.Items,
		},
	})

	return result, nil
}

// lazyStorage builds the tenant's storage adapter on first use. A failure to
// build it is remembered and reported for every later document.
type lazyStorage struct {
	job     *RetentionJob
	tenant  *tenant.Tenant
	adapter provider.StorageAdapter
	err     error
	loaded  bool
}

func (s *lazyStorage) delete(ctx context.Context, url string) error {
	if !s.loaded {
		s.loaded = true
		s.adapter, s.err = s.load(ctx)
	}
	if s.err != nil {
		return s.err
	}
	return s.adapter.Delete(ctx, url)
}

func (s *lazyStorage) load(ctx context.Context) (provider.StorageAdapter, error) {
	cfg, err := s.tenant.DB.ProviderConfigs().FindActive(ctx, domain.ProviderTypeStorage)
	if err != nil {
		return nil, err
	}
	creds, err := s.job.decrypter.Decrypt(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return s.job.storage.CreateAdapter(ctx, cfg.Provider, creds, provider.Settings(cfg.Settings))
}
