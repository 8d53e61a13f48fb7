package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/delivery"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// ReminderWindowHours is the tolerance around each reminder interval: half
// of the 15 minute reminder tick.
const ReminderWindowHours = 0.125

const expiryLayout = "Mon, 02 Jan 2006 15:04 MST"

var errMissingEmail = errors.New("recipient has no email address")

// ReminderResult is the per-tenant outcome of a reminder pass
type ReminderResult struct {
	DocumentsScanned int       `json:"documents_scanned"`
	RemindersSent    int       `json:"reminders_sent"`
	EmailsSent       int       `json:"emails_sent"`
	Errors           ErrorList `json:"errors"`
}

// ReminderJob emails pending recipients as documents approach expiry
type ReminderJob struct {
	unit     *delivery.Unit
	audit    *audit.Logger
	iterator *tenant.Iterator
	appURL   string
	now      func() time.Time
	log      *logger.Logger
}

// NewReminderJob creates the reminder job. appURL is the base of the signing
// links placed in the reminder emails.
func NewReminderJob(unit *delivery.Unit, auditLog *audit.Logger, iterator *tenant.Iterator, appURL string, log *logger.Logger) *ReminderJob {
	return &ReminderJob{
		unit:     unit,
		audit:    auditLog,
		iterator: iterator,
		appURL:   strings.TrimRight(appURL, "/"),
		now:      time.Now,
		log:      log.With("job", NameReminder),
	}
}

// Run processes every active tenant
func (j *ReminderJob) Run(ctx context.Context) (*RunSummary[ReminderResult], error) {
	summary, err := runAcrossTenants(ctx, j.iterator, NameReminder, j.ProcessCompany, func(r ReminderResult, totals map[string]int) {
		totals["documents_scanned"] += r.DocumentsScanned
		totals["reminders_sent"] += r.RemindersSent
		totals["emails_sent"] += r.EmailsSent
		totals["failed"] += r.Errors.Total
	})
	if err != nil {
		return summary, err
	}

	j.log.Info("Reminder run complete",
		"run_id", summary.RunID,
		"tenants", summary.Tenants,
		"reminders_sent", summary.Totals["reminders_sent"],
		"emails_sent", summary.Totals["emails_sent"],
	)
	return summary, nil
}

// ProcessCompany sends the reminders that are due for one tenant
func (j *ReminderJob) ProcessCompany(ctx context.Context, t *tenant.Tenant) (ReminderResult, error) {
	var result ReminderResult
	now := j.now()

	docs, err := t.DB.Documents().FindReminderCandidates(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to find reminder candidates: %w", err)
	}
	result.DocumentsScanned = len(docs)

	actx := audit.SystemContext(t, NameReminder)
	for _, doc := range docs {
		if err := j.processDocument(ctx, t, actx, doc, now, &result); err != nil {
			j.log.Error("Reminder processing failed", "company_id", t.ID(), "document_id", doc.ID.Hex(), "error", err)
			result.Errors.Add(ItemError{
				DocumentID: doc.ID.Hex(),
				Error:      "reminder_failed",
				Message:    err.Error(),
			})
		}
	}

	return result, nil
}

// dueIntervals returns the configured intervals whose window contains
// hoursUntilExpiry and that have no ledger entry yet.
func dueIntervals(doc *domain.Document, hoursUntilExpiry float64) []float64 {
	var due []float64
	for _, interval := range doc.ReminderIntervals() {
		h := interval.HoursBeforeExpiry
		if hoursUntilExpiry < h-ReminderWindowHours || hoursUntilExpiry > h+ReminderWindowHours {
			continue
		}
		if doc.HasReminder(h) {
			continue
		}
		due = append(due, h)
	}
	return due
}

func (j *ReminderJob) processDocument(ctx context.Context, t *tenant.Tenant, actx audit.Context, doc *domain.Document, now time.Time, result *ReminderResult) error {
	if len(doc.ReminderIntervals()) == 0 || doc.ExpiresAt == nil {
		return nil
	}

	hoursUntilExpiry := doc.ExpiresAt.Sub(now).Hours()

	for _, h := range dueIntervals(doc, hoursUntilExpiry) {
		// a template may list the same interval twice
		if doc.HasReminder(h) {
			continue
		}

		pending := doc.PendingRecipients()
		if len(pending) == 0 {
			return nil
		}

		sender, err := j.unit.SenderFor(ctx, t, domain.ChannelEmail)
		if err != nil {
			j.recordFailure(ctx, actx, doc, h, emails(pending), err)
			return fmt.Errorf("interval %vh: %w", h, err)
		}

		variables := map[string]string{
			"document_title":  doc.Title,
			"company_name":    t.Company.Name,
			"hours_remaining": strconv.Itoa(int(math.Floor(hoursUntilExpiry))),
			"expires_at":      doc.ExpiresAt.In(t.Company.Location()).Format(expiryLayout),
			"sign_url":        fmt.Sprintf("%s/esign/documents/%s", j.appURL, doc.ID.Hex()),
		}

		var notified, failed []string
		var firstErr error
		for _, recipient := range pending {
			if recipient.Email == "" {
				failed = append(failed, recipient.Name)
				if firstErr == nil {
					firstErr = errMissingEmail
				}
				result.Errors.Add(ItemError{
					DocumentID: doc.ID.Hex(),
					Recipient:  recipient.Name,
					Error:      "reminder_send_failed",
					Message:    errMissingEmail.Error(),
				})
				continue
			}

			variables["recipient_name"] = recipient.Name
			_, err := sender.Send(ctx, delivery.Message{
				To:      recipient.Email,
				Subject: applyVariables(reminderSubjectTemplate, variables),
				Text:    applyVariables(reminderTextTemplate, variables),
				HTML:    applyHTMLVariables(reminderHTMLTemplate, variables),
			})
			if err != nil {
				failed = append(failed, recipient.Email)
				if firstErr == nil {
					firstErr = err
				}
				j.log.Warn("Reminder email failed", "document_id", doc.ID.Hex(), "recipient", recipient.Email, "error", err)
				result.Errors.Add(ItemError{
					DocumentID: doc.ID.Hex(),
					Recipient:  recipient.Email,
					Error:      "reminder_send_failed",
					Message:    err.Error(),
				})
				continue
			}
			notified = append(notified, recipient.Email)
		}

		if len(failed) > 0 {
			j.recordFailure(ctx, actx, doc, h, failed, firstErr)
		}
		if len(notified) == 0 {
			continue
		}
		result.EmailsSent += len(notified)

		entry := domain.ReminderEntry{HoursBeforeExpiry: h, SentAt: now}
		appended, err := t.DB.Documents().AppendReminder(ctx, doc.ID, entry)
		if err != nil {
			j.recordFailure(ctx, actx, doc, h, nil, err)
			return fmt.Errorf("failed to record reminder for interval %vh: %w", h, err)
		}
		if !appended {
			j.log.Warn("Reminder ledger already had interval", "document_id", doc.ID.Hex(), "hours_before_expiry", h)
		}
		doc.RemindersSent = append(doc.RemindersSent, entry)
		result.RemindersSent++

		j.audit.Record(ctx, actx, domain.AuditEvent{
			EventType: domain.AuditReminderSent,
			Resource:  domain.Resource{Type: "esign_document", ID: doc.ID.Hex(), Name: doc.Title},
			Action:    "remind",
			Metadata: map[string]any{
				"hours_before_expiry": h,
				"hours_remaining":     math.Floor(hoursUntilExpiry),
				"recipients":          notified,
				"recipient_count":     len(notified),
				"provider":            sender.Provider(),
			},
		})
	}

	return nil
}

// recordFailure audits a reminder interval that did not fully go out.
// failed lists the recipients that were not reached.
func (j *ReminderJob) recordFailure(ctx context.Context, actx audit.Context, doc *domain.Document, h float64, failed []string, err error) {
	metadata := map[string]any{
		"hours_before_expiry": h,
		"error":               err.Error(),
	}
	if len(failed) > 0 {
		metadata["failed_recipients"] = failed
	}
	j.audit.Record(ctx, actx, domain.AuditEvent{
		EventType: domain.AuditReminderFailed,
		Resource:  domain.Resource{Type: "esign_document", ID: doc.ID.Hex(), Name: doc.Title},
		Action:    "remind",
		Metadata:  metadata,
	})
}

func emails(recipients []domain.Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Email != "" {
			out = append(out, r.Email)
		}
	}
	return out
}
