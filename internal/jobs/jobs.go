// Package jobs holds the scheduled per-tenant document jobs.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// Job names, also used as audit actor ids and scheduler keys
const (
	NamePDF       = "pdf-generation"
	NameReminder  = "reminder"
	NameRetention = "retention"
	NameExpiry    = "expiry"
)

// maxItemErrors bounds every per-run error list
const maxItemErrors = 10

// ItemError records the failure of one document or recipient
type ItemError struct {
	DocumentID string `json:"document_id"`
	Recipient  string `json:"recipient,omitempty"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// ErrorList keeps the first maxItemErrors failures and counts the rest
type ErrorList struct {
	Items []ItemError `json:"items,omitempty"`
	Total int         `json:"total"`
}

// Add records a failure
func (l *ErrorList) Add(e ItemError) {
	l.Total++
	if len(l.Items) < maxItemErrors {
		l.Items = append(l.Items, e)
	}
}

// RunSummary aggregates one run of a job across all tenants
type RunSummary[R any] struct {
	Job          string              `json:"job"`
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Tenants      int                 `json:"tenants"`
	TenantErrors int                 `json:"tenant_errors"`
	Totals       map[string]int      `json:"totals"`
	Results      []tenant.Outcome[R] `json:"results"`
}

type tallyFunc[R any] func(result R, totals map[string]int)

func runAcrossTenants[R any](
	ctx context.Context,
	it *tenant.Iterator,
	job string,
	process func(ctx context.Context, t *tenant.Tenant) (R, error),
	tally tallyFunc[R],
) (*RunSummary[R], error) {
	summary := &RunSummary[R]{
		Job:       job,
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Totals:    make(map[string]int),
	}

	outcomes, err := tenant.Each(ctx, it, process)
	summary.FinishedAt = time.Now()
	if err != nil {
		return summary, err
	}

	summary.Results = outcomes
	summary.Tenants = len(outcomes)
	for _, o := range outcomes {
		if o.Failed() {
			summary.TenantErrors++
		}
		tally(o.Result, summary.Totals)
	}
	return summary, nil
}
