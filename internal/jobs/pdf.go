package jobs

import (
	"context"
	"fmt"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/pdf"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultPDFBatchSize caps how many documents one tenant renders per tick
const DefaultPDFBatchSize = 5

// PDFResult is the per-tenant outcome of a PDF pass
type PDFResult struct {
	Found     int       `json:"found"`
	Processed int       `json:"processed"`
	Errors    ErrorList `json:"errors"`
}

// PDFGenerator renders signed documents that have no stored PDF yet
type PDFGenerator struct {
	renderer  pdf.Renderer
	audit     *audit.Logger
	iterator  *tenant.Iterator
	directory tenant.Directory
	resolver  tenant.Resolver
	batchSize int
	log       *logger.Logger
}

// NewPDFGenerator creates the PDF job
func NewPDFGenerator(renderer pdf.Renderer, auditLog *audit.Logger, iterator *tenant.Iterator, directory tenant.Directory, resolver tenant.Resolver, batchSize int, log *logger.Logger) *PDFGenerator {
	if batchSize <= 0 {
		batchSize = DefaultPDFBatchSize
	}
	return &PDFGenerator{
		renderer:  renderer,
		audit:     auditLog,
		iterator:  iterator,
		directory: directory,
		resolver:  resolver,
		batchSize: batchSize,
		log:       log.With("job", NamePDF),
	}
}

// Run processes every active tenant
func (g *PDFGenerator) Run(ctx context.Context) (*RunSummary[PDFResult], error) {
	summary, err := runAcrossTenants(ctx, g.iterator, NamePDF, g.ProcessCompany, func(r PDFResult, totals map[string]int) {
		totals["processed"] += r.Processed
		totals["failed"] += r.Errors.Total
	})
	if err != nil {
		return summary, err
	}

	g.log.Info("PDF generation run complete",
		"run_id", summary.RunID,
		"tenants", summary.Tenants,
		"processed", summary.Totals["processed"],
		"failed", summary.Totals["failed"],
	)
	return summary, nil
}

// ProcessCompany renders up to the batch size of one tenant's signed
// documents. Later documents wait for the next tick.
func (g *PDFGenerator) ProcessCompany(ctx context.Context, t *tenant.Tenant) (PDFResult, error) {
	var result PDFResult

	docs, err := t.DB.Documents().FindAwaitingPDF(ctx, g.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to find documents awaiting PDF: %w", err)
	}
	result.Found = len(docs)

	actx := audit.SystemContext(t, NamePDF)
	for _, doc := range docs {
		if err := g.render(ctx, t, actx, doc.ID); err != nil {
			g.log.Error("PDF generation failed", "company_id", t.ID(), "document_id", doc.ID.Hex(), "error", err)
			result.Errors.Add(ItemError{
				DocumentID: doc.ID.Hex(),
				Error:      "pdf_generation_failed",
				Message:    err.Error(),
			})
			g.audit.Record(ctx, actx, domain.AuditEvent{
				EventType: domain.AuditPDFGenerationFailed,
				Resource:  domain.Resource{Type: "esign_document", ID: doc.ID.Hex(), Name: doc.Title},
				Action:    "generate_pdf",
				Metadata:  map[string]any{"error": err.Error()},
			})
			continue
		}
		result.Processed++
	}

	return result, nil
}

func (g *PDFGenerator) render(ctx context.Context, t *tenant.Tenant, actx audit.Context, id primitive.ObjectID) error {
	ref, err := g.renderer.GenerateSignedPDF(ctx, id.Hex(), actx)
	if err != nil {
		return err
	}
	if ref == "" {
		return nil
	}
	return t.DB.Documents().SetPDFURL(ctx, id, ref)
}

// HandleQueued renders the document named by a durable PDF job. Documents
// that already have a PDF or are no longer signed are skipped.
func (g *PDFGenerator) HandleQueued(ctx context.Context, job *domain.PDFJob) error {
	t, err := tenant.Lookup(ctx, g.directory, g.resolver, job.CompanyID, job.CompanyDBName)
	if err != nil {
		return err
	}

	id, err := primitive.ObjectIDFromHex(job.DocumentID)
	if err != nil {
		return apperrors.NewValidationError("invalid document id "+job.DocumentID, err)
	}

	doc, err := t.DB.Documents().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != domain.DocumentStatusSigned || doc.HasPDF() {
		g.log.Debug("Skipping queued PDF job", "document_id", job.DocumentID, "status", doc.Status)
		return nil
	}

	return g.render(ctx, t, audit.SystemContext(t, NamePDF), id)
}
