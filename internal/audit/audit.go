package audit

import (
	"context"
	"errors"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
)

// Context carries who is acting, for which company, and where audit records go
type Context struct {
	Company *domain.Company
	Actor   domain.Actor
	Models  tenant.Handle
}

// SystemContext builds the context for work performed by a background job
func SystemContext(t *tenant.Tenant, job string) Context {
	return Context{
		Company: t.Company,
		Actor:   domain.SystemActor(job),
		Models:  t.DB,
	}
}

// CompanyID returns the hex id of the company, or "" when unknown
func (c Context) CompanyID() string {
	if c.Company == nil {
		return ""
	}
	return c.Company.ID.Hex()
}

// Writer persists audit events
type Writer interface {
	LogEvent(ctx context.Context, actx Context, event domain.AuditEvent) error
}

// StoreWriter writes events into the tenant's audit log collection
type StoreWriter struct{}

// LogEvent implements Writer
func (StoreWriter) LogEvent(ctx context.Context, actx Context, event domain.AuditEvent) error {
	if actx.Models == nil {
		return errors.New("audit context has no tenant database")
	}
	if event.Actor.Type == "" {
		event.Actor = actx.Actor
	}
	if event.CompanyID == "" {
		event.CompanyID = actx.CompanyID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return actx.Models.AuditLogs().Insert(ctx, &event)
}

// Logger records audit events on behalf of the jobs. Write failures are
// logged and dropped so they never abort the caller.
type Logger struct {
	writer Writer
	log    *logger.Logger
}

// NewLogger wraps writer
func NewLogger(writer Writer, log *logger.Logger) *Logger {
	return &Logger{writer: writer, log: log}
}

// Record writes event, swallowing any failure
func (l *Logger) Record(ctx context.Context, actx Context, event domain.AuditEvent) {
	if err := l.writer.LogEvent(ctx, actx, event); err != nil {
		l.log.Warn("Failed to write audit event",
			"event_type", event.EventType,
			"company_id", actx.CompanyID(),
			"error", err,
		)
	}
}
