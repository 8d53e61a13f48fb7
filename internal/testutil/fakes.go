// Package testutil provides in-memory stand-ins for the tenant databases and
// outbound providers used by the jobs.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/provider"
	"github.com/vhvplatform/go-esign-delivery-service/internal/repository"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewCompany returns an active company
func NewCompany(name, dbName string) *domain.Company {
	return &domain.Company{
		ID:       primitive.NewObjectID(),
		Name:     name,
		DBName:   dbName,
		IsActive: true,
	}
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int { return &n }

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time { return &t }

// DocumentStore is an in-memory repository.DocumentStore
type DocumentStore struct {
	mu   sync.Mutex
	docs []*domain.Document

	FindErr     error
	ArchiveErr  error
	AppendErr   error
	AppendCalls int
}

// NewDocumentStore seeds a store with docs
func NewDocumentStore(docs ...*domain.Document) *DocumentStore {
	s := &DocumentStore{}
	for _, d := range docs {
		s.Add(d)
	}
	return s
}

// Add stores a copy of doc, assigning an id when missing
func (s *DocumentStore) Add(doc *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	s.docs = append(s.docs, clone(doc))
}

// Get returns a copy of the stored document
func (s *DocumentStore) Get(id primitive.ObjectID) *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.lookup(id); d != nil {
		return clone(d)
	}
	return nil
}

func (s *DocumentStore) lookup(id primitive.ObjectID) *domain.Document {
	for _, d := range s.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *DocumentStore) filter(limit int, keep func(*domain.Document) bool) ([]*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	var out []*domain.Document
	for _, d := range s.docs {
		if keep(d) {
			out = append(out, clone(d))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func inFlight(d *domain.Document) bool {
	return slices.Contains(domain.InFlightStatuses, d.Status)
}

func (s *DocumentStore) FindAwaitingPDF(_ context.Context, limit int) ([]*domain.Document, error) {
	return s.filter(limit, func(d *domain.Document) bool {
		return d.Status == domain.DocumentStatusSigned && d.PDFURL == nil
	})
}

func (s *DocumentStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Document, error) {
	if d := s.Get(id); d != nil {
		return d, nil
	}
	return nil, apperrors.NewNotFoundError("document "+id.Hex()+" not found", nil)
}

func (s *DocumentStore) SetPDFURL(_ context.Context, id primitive.ObjectID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.lookup(id); d != nil {
		d.PDFURL = &url
	}
	return nil
}

func (s *DocumentStore) FindReminderCandidates(_ context.Context, now time.Time) ([]*domain.Document, error) {
	return s.filter(0, func(d *domain.Document) bool {
		return inFlight(d) && d.ExpiresAt != nil && d.ExpiresAt.After(now)
	})
}

func (s *DocumentStore) AppendReminder(_ context.Context, id primitive.ObjectID, entry domain.ReminderEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls++
	if s.AppendErr != nil {
		return false, s.AppendErr
	}
	d := s.lookup(id)
	if d == nil || d.HasReminder(entry.HoursBeforeExpiry) {
		return false, nil
	}
	d.RemindersSent = append(d.RemindersSent, entry)
	return true, nil
}

func (s *DocumentStore) FindRetentionCandidates(_ context.Context, cutoff time.Time) ([]*domain.Document, error) {
	return s.filter(0, func(d *domain.Document) bool {
		return d.Status == domain.DocumentStatusCompleted &&
			d.CompletedAt != nil && d.CompletedAt.Before(cutoff) &&
			!d.IsArchived
	})
}

func (s *DocumentStore) Archive(_ context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ArchiveErr != nil {
		return false, s.ArchiveErr
	}
	d := s.lookup(id)
	if d == nil || d.IsArchived {
		return false, nil
	}
	d.IsArchived = true
	d.ArchivedAt = &at
	d.PDFURL = nil
	return true, nil
}

func (s *DocumentStore) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Document, error) {
	return s.filter(limit, func(d *domain.Document) bool {
		return inFlight(d) && d.ExpiresAt != nil && !d.ExpiresAt.After(now)
	})
}

func (s *DocumentStore) MarkExpired(_ context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.lookup(id)
	if d == nil || !inFlight(d) {
		return false, nil
	}
	d.Status = domain.DocumentStatusExpired
	d.UpdatedAt = at
	return true, nil
}

func clone(d *domain.Document) *domain.Document {
	c := *d
	c.Recipients = slices.Clone(d.Recipients)
	c.RemindersSent = slices.Clone(d.RemindersSent)
	c.TemplateSnapshot.NotificationConfig.ReminderIntervals = slices.Clone(d.TemplateSnapshot.NotificationConfig.ReminderIntervals)
	return &c
}

// ProviderStore is an in-memory repository.ProviderConfigStore
type ProviderStore struct {
	mu      sync.Mutex
	configs map[domain.ProviderType]*domain.ProviderConfig
	Err     error
	Calls   int
}

// NewProviderStore creates an empty provider store
func NewProviderStore() *ProviderStore {
	return &ProviderStore{configs: make(map[domain.ProviderType]*domain.ProviderConfig)}
}

// Set registers the active config for its provider type
func (s *ProviderStore) Set(cfg *domain.ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.IsActive = true
	s.configs[cfg.ProviderType] = cfg
}

func (s *ProviderStore) FindActive(_ context.Context, providerType domain.ProviderType) (*domain.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	cfg, ok := s.configs[providerType]
	if !ok {
		return nil, apperrors.NewConfigurationError(apperrors.CodeProviderNotConfigured,
			"no active "+string(providerType)+" provider configured", nil)
	}
	copied := *cfg
	return &copied, nil
}

// AuditStore is an in-memory repository.AuditLogStore
type AuditStore struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	Err    error
}

func (s *AuditStore) Insert(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, *event)
	return nil
}

// Events returns every recorded event
func (s *AuditStore) Events() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// EventsOfType returns recorded events with the given type
func (s *AuditStore) EventsOfType(eventType string) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Handle is an in-memory tenant.Handle
type Handle struct {
	Name      string
	Docs      *DocumentStore
	Providers *ProviderStore
	Audit     *AuditStore
}

// NewHandle creates an empty tenant database
func NewHandle(name string) *Handle {
	return &Handle{
		Name:      name,
		Docs:      NewDocumentStore(),
		Providers: NewProviderStore(),
		Audit:     &AuditStore{},
	}
}

func (h *Handle) DBName() string                                  { return h.Name }
func (h *Handle) Documents() repository.DocumentStore             { return h.Docs }
func (h *Handle) ProviderConfigs() repository.ProviderConfigStore { return h.Providers }
func (h *Handle) AuditLogs() repository.AuditLogStore             { return h.Audit }

// Directory is an in-memory tenant.Directory
type Directory struct {
	Companies []*domain.Company
	Err       error
}

func (d *Directory) FindActive(context.Context) ([]*domain.Company, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	var out []*domain.Company
	for _, c := range d.Companies {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *Directory) FindByID(_ context.Context, id string) (*domain.Company, error) {
	for _, c := range d.Companies {
		if c.ID.Hex() == id {
			return c, nil
		}
	}
	return nil, apperrors.NewConfigurationError(apperrors.CodeCompanyNotFound, "company "+id+" not found", nil)
}

// Resolver is an in-memory tenant.Resolver
type Resolver struct {
	mu      sync.Mutex
	handles map[string]*Handle
	Errs    map[string]error
	Calls   []string
}

// NewResolver registers handles by database name
func NewResolver(handles ...*Handle) *Resolver {
	r := &Resolver{handles: make(map[string]*Handle), Errs: make(map[string]error)}
	for _, h := range handles {
		r.handles[h.Name] = h
	}
	return r
}

func (r *Resolver) Resolve(_ context.Context, dbName string) (tenant.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, dbName)
	if err := r.Errs[dbName]; err != nil {
		return nil, err
	}
	h, ok := r.handles[dbName]
	if !ok {
		return nil, apperrors.NewConnectionError("unknown tenant database "+dbName, nil)
	}
	return h, nil
}

// Decrypter returns fixed credentials and counts calls
type Decrypter struct {
	mu    sync.Mutex
	Creds map[string]string
	Err   error
	Calls int
}

func (d *Decrypter) Decrypt(string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return nil, d.Err
	}
	out := make(map[string]string, len(d.Creds))
	for k, v := range d.Creds {
		out[k] = v
	}
	return out, nil
}

// SentEmail is an email captured by Dispatcher
type SentEmail struct {
	Provider string
	Creds    provider.Credentials
	Msg      provider.EmailMessage
}

// SentSMS is a text message captured by Dispatcher
type SentSMS struct {
	Provider string
	Msg      provider.SMSMessage
}

// Dispatcher records outbound messages. Fail decides per recipient whether a send errors.
type Dispatcher struct {
	mu     sync.Mutex
	emails []SentEmail
	sms    []SentSMS
	seq    int
	Fail   func(recipient string) error
}

func (d *Dispatcher) SendEmail(_ context.Context, providerName string, creds provider.Credentials, _ provider.Settings, msg provider.EmailMessage) (*provider.SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		if err := d.Fail(msg.To); err != nil {
			return nil, err
		}
	}
	d.seq++
	d.emails = append(d.emails, SentEmail{Provider: providerName, Creds: creds, Msg: msg})
	return &provider.SendResult{MessageID: fmt.Sprintf("msg-%d", d.seq), Provider: providerName}, nil
}

func (d *Dispatcher) SendSMS(_ context.Context, providerName string, _ provider.Credentials, _ provider.Settings, msg provider.SMSMessage) (*provider.SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		if err := d.Fail(msg.To); err != nil {
			return nil, err
		}
	}
	d.seq++
	d.sms = append(d.sms, SentSMS{Provider: providerName, Msg: msg})
	return &provider.SendResult{MessageID: fmt.Sprintf("sms-%d", d.seq), Provider: providerName}, nil
}

// Emails returns every captured email
func (d *Dispatcher) Emails() []SentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.emails)
}

// SMS returns every captured text message
func (d *Dispatcher) SMS() []SentSMS {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.sms)
}

// Storage is a provider.StorageFactory whose adapters record deletions
type Storage struct {
	mu        sync.Mutex
	deleted   []string
	FailURLs  map[string]error
	CreateErr error
	Creates   int
}

func (s *Storage) CreateAdapter(context.Context, string, provider.Credentials, provider.Settings) (provider.StorageAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Creates++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	return storageAdapter{s}, nil
}

// Deleted returns every deleted location
func (s *Storage) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deleted)
}

type storageAdapter struct{ s *Storage }

func (a storageAdapter) Delete(_ context.Context, url string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.FailURLs[url]; err != nil {
		return err
	}
	a.s.deleted = append(a.s.deleted, url)
	return nil
}

// Renderer records PDF render requests. Fail maps document ids to errors.
type Renderer struct {
	mu       sync.Mutex
	rendered []string
	Fail     map[string]error
	URLFor   func(documentID string) string
}

func (r *Renderer) GenerateSignedPDF(_ context.Context, documentID string, _ audit.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[documentID]; err != nil {
		return "", err
	}
	r.rendered = append(r.rendered, documentID)
	if r.URLFor != nil {
		return r.URLFor(documentID), nil
	}
	return "", nil
}

// Rendered returns the rendered document ids in order
func (r *Renderer) Rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rendered)
}
