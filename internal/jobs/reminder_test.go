package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

func reminderDoc(expiresIn time.Duration, intervals []float64, recipients ...domain.Recipient) *domain.Document {
	doc := &domain.Document{
		Title:      "Lease Agreement",
		Status:     domain.DocumentStatusDistributed,
		ExpiresAt:  testutil.TimePtr(fixedNow.Add(expiresIn)),
		Recipients: recipients,
	}
	for _, h := range intervals {
		doc.TemplateSnapshot.NotificationConfig.ReminderIntervals = append(
			doc.TemplateSnapshot.NotificationConfig.ReminderIntervals,
			domain.ReminderInterval{HoursBeforeExpiry: h},
		)
	}
	return doc
}

func pending(name, email string) domain.Recipient {
	return domain.Recipient{Name: name, Email: email, Status: domain.RecipientStatusSent}
}

func newReminderJob(e *env) *ReminderJob {
	j := NewReminderJob(e.unit(), e.audit, e.iterator, "https://app.acme.test/", e.log)
	j.now = func() time.Time { return fixedNow }
	return j
}

func TestReminderJob_FiresOnceWithinWindow(t *testing.T) {
	e := newEnv(t)
	doc := reminderDoc(24*time.Hour+2*time.Minute, []float64{24}, pending("Ana", "a@x.com"))
	e.handle.Docs.Add(doc)
	j := newReminderJob(e)

	result, err := j.ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 1, result.RemindersSent)
	assert.Equal(t, 1, result.EmailsSent)

	emails := e.dispatcher.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "a@x.com", emails[0].Msg.To)
	assert.Equal(t, "Reminder: Lease Agreement expires in 24 hours", emails[0].Msg.Subject)
	assert.Contains(t, emails[0].Msg.Text, "Hello Ana")
	assert.Contains(t, emails[0].Msg.Text, "https://app.acme.test/esign/documents/"+doc.ID.Hex())

	stored := e.handle.Docs.Get(doc.ID)
	require.Len(t, stored.RemindersSent, 1)
	assert.Equal(t, 24.0, stored.RemindersSent[0].HoursBeforeExpiry)
	assert.Equal(t, fixedNow, stored.RemindersSent[0].SentAt)

	events := e.handle.Audit.EventsOfType(domain.AuditReminderSent)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"a@x.com"}, events[0].Metadata["recipients"])
	assert.Equal(t, "reminder", events[0].Actor.ID)
}

func TestReminderJob_SecondRunIsNoop(t *testing.T) {
	e := newEnv(t)
	doc := reminderDoc(24*time.Hour+2*time.Minute, []float64{24}, pending("Ana", "a@x.com"))
	e.handle.Docs.Add(doc)
	j := newReminderJob(e)

	_, err := j.ProcessCompany(context.Background(), e.tenant())
	require.NoError(t, err)
	result, err := j.ProcessCompany(context.Background(), e.tenant())
	require.NoError(t, err)

	assert.Zero(t, result.RemindersSent)
	assert.Len(t, e.dispatcher.Emails(), 1)
	assert.Len(t, e.handle.Docs.Get(doc.ID).RemindersSent, 1)
	assert.Len(t, e.handle.Audit.EventsOfType(domain.AuditReminderSent), 1)
}

func TestReminderJob_WindowBoundaries(t *testing.T) {
	window := 7*time.Minute + 30*time.Second
	tests := []struct {
		name      string
		expiresIn time.Duration
		fires     bool
	}{
		{name: "upper edge", expiresIn: 24*time.Hour + window, fires: true},
		{name: "lower edge", expiresIn: 24*time.Hour - window, fires: true},
		{name: "just above", expiresIn: 24*time.Hour + window + time.Second, fires: false},
		{name: "just below", expiresIn: 24*time.Hour - window - time.Second, fires: false},
		{name: "exact", expiresIn: 24 * time.Hour, fires: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.handle.Docs.Add(reminderDoc(tt.expiresIn, []float64{24}, pending("Ana", "a@x.com")))

			result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

			require.NoError(t, err)
			assert.Equal(t, tt.fires, result.RemindersSent == 1)
		})
	}
}

func TestReminderJob_HoursRemainingIsFloored(t *testing.T) {
	e := newEnv(t)
	e.handle.Docs.Add(reminderDoc(2*time.Hour+5*time.Minute, []float64{2}, pending("Ana", "a@x.com")))

	_, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	require.Len(t, e.dispatcher.Emails(), 1)
	assert.Equal(t, "Reminder: Lease Agreement expires in 2 hours", e.dispatcher.Emails()[0].Msg.Subject)
}

func TestReminderJob_SkipsSignedAndRejectedRecipients(t *testing.T) {
	e := newEnv(t)
	e.handle.Docs.Add(reminderDoc(48*time.Hour, []float64{48},
		domain.Recipient{Name: "Signed", Email: "s@x.com", Status: domain.RecipientStatusSigned},
		domain.Recipient{Name: "Rejected", Email: "r@x.com", Status: domain.RecipientStatusRejected},
		pending("Open", "o@x.com"),
		domain.Recipient{Name: "New", Email: "n@x.com", Status: domain.RecipientStatusPending},
	))

	_, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	var to []string
	for _, m := range e.dispatcher.Emails() {
		to = append(to, m.Msg.To)
	}
	assert.Equal(t, []string{"o@x.com", "n@x.com"}, to)
	assert.Equal(t, 1, e.decrypter.Calls, "credentials decrypted once per interval match")
}

func TestReminderJob_NoPendingRecipients(t *testing.T) {
	e := newEnv(t)
	doc := reminderDoc(24*time.Hour, []float64{24},
		domain.Recipient{Name: "Signed", Email: "s@x.com", Status: domain.RecipientStatusSigned})
	e.handle.Docs.Add(doc)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Zero(t, result.RemindersSent)
	assert.Zero(t, e.decrypter.Calls)
	assert.Empty(t, e.handle.Docs.Get(doc.ID).RemindersSent)
}

func TestReminderJob_RecipientFailureIsolated(t *testing.T) {
	e := newEnv(t)
	e.dispatcher.Fail = func(to string) error {
		if to == "b@x.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}
	doc := reminderDoc(24*time.Hour, []float64{24},
		pending("A", "a@x.com"), pending("B", "b@x.com"), pending("C", "c@x.com"))
	e.handle.Docs.Add(doc)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 2, result.EmailsSent)
	require.Len(t, result.Errors.Items, 1)
	assert.Equal(t, "b@x.com", result.Errors.Items[0].Recipient)
	assert.Len(t, e.handle.Docs.Get(doc.ID).RemindersSent, 1)

	events := e.handle.Audit.EventsOfType(domain.AuditReminderSent)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"a@x.com", "c@x.com"}, events[0].Metadata["recipients"])

	failures := e.handle.Audit.EventsOfType(domain.AuditReminderFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, []string{"b@x.com"}, failures[0].Metadata["failed_recipients"])
	assert.Equal(t, "mailbox unavailable", failures[0].Metadata["error"])
}

func TestReminderJob_AllSendsFailedLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t)
	e.dispatcher.Fail = func(string) error { return errors.New("provider down") }
	doc := reminderDoc(24*time.Hour, []float64{24}, pending("A", "a@x.com"))
	e.handle.Docs.Add(doc)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Zero(t, result.RemindersSent)
	assert.Empty(t, e.handle.Docs.Get(doc.ID).RemindersSent)
	assert.Empty(t, e.handle.Audit.EventsOfType(domain.AuditReminderSent))

	failures := e.handle.Audit.EventsOfType(domain.AuditReminderFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, doc.ID.Hex(), failures[0].Resource.ID)
	assert.Equal(t, 24.0, failures[0].Metadata["hours_before_expiry"])
	assert.Equal(t, []string{"a@x.com"}, failures[0].Metadata["failed_recipients"])
	assert.Equal(t, "provider down", failures[0].Metadata["error"])
}

func TestReminderJob_MissingProviderIsDocumentError(t *testing.T) {
	e := newEnv(t)
	e.handle.Providers = testutil.NewProviderStore()
	first := reminderDoc(24*time.Hour, []float64{24}, pending("A", "a@x.com"))
	second := reminderDoc(24*time.Hour, []float64{24}, pending("B", "b@x.com"))
	e.handle.Docs.Add(first)
	e.handle.Docs.Add(second)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Errors.Total, "each document reports its own failure")
	assert.Equal(t, "reminder_failed", result.Errors.Items[0].Error)

	failures := e.handle.Audit.EventsOfType(domain.AuditReminderFailed)
	require.Len(t, failures, 2)
	assert.Equal(t, first.ID.Hex(), failures[0].Resource.ID)
	assert.Equal(t, second.ID.Hex(), failures[1].Resource.ID)
	assert.NotEmpty(t, failures[0].Metadata["error"])
	assert.Empty(t, e.dispatcher.Emails())
}

func TestReminderJob_LedgerFailureIsAudited(t *testing.T) {
	e := newEnv(t)
	e.handle.Docs.AppendErr = errors.New("write conflict")
	doc := reminderDoc(24*time.Hour, []float64{24}, pending("A", "a@x.com"))
	e.handle.Docs.Add(doc)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 1, result.EmailsSent)
	assert.Zero(t, result.RemindersSent)
	require.Len(t, result.Errors.Items, 1)
	assert.Equal(t, "reminder_failed", result.Errors.Items[0].Error)

	assert.Empty(t, e.handle.Audit.EventsOfType(domain.AuditReminderSent))
	failures := e.handle.Audit.EventsOfType(domain.AuditReminderFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, 24.0, failures[0].Metadata["hours_before_expiry"])
	assert.Contains(t, failures[0].Metadata["error"], "write conflict")
}

func TestReminderJob_MultipleIntervalsAndExistingLedger(t *testing.T) {
	e := newEnv(t)
	doc := reminderDoc(24*time.Hour, []float64{72, 24, 24.05, 1}, pending("A", "a@x.com"))
	e.handle.Docs.Add(doc)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 2, result.RemindersSent, "24 and 24.05 both fall inside the window")
	assert.Len(t, e.handle.Docs.Get(doc.ID).RemindersSent, 2)
}

func TestReminderJob_LocalizedExpiry(t *testing.T) {
	e := newEnv(t)
	e.company.Timezone = "Asia/Ho_Chi_Minh"
	e.handle.Docs.Add(reminderDoc(24*time.Hour, []float64{24}, pending("A", "a@x.com")))

	_, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	require.Len(t, e.dispatcher.Emails(), 1)
	assert.Contains(t, e.dispatcher.Emails()[0].Msg.Text, "Wed, 11 Mar 2026 16:00 +07")
}

func TestReminderJob_EscapesHTML(t *testing.T) {
	e := newEnv(t)
	doc := reminderDoc(24*time.Hour, []float64{24}, pending("<b>Eve</b>", "e@x.com"))
	doc.Title = `Sales & "Service"`
	e.handle.Docs.Add(doc)

	_, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	msg := e.dispatcher.Emails()[0].Msg
	assert.Contains(t, msg.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "Sales &amp; &#34;Service&#34;")
	assert.Contains(t, msg.Text, `Sales & "Service"`)
}

func TestReminderJob_IgnoresExpiredAndNonInFlightDocuments(t *testing.T) {
	e := newEnv(t)
	expired := reminderDoc(-time.Hour, []float64{0}, pending("A", "a@x.com"))
	completed := reminderDoc(24*time.Hour, []float64{24}, pending("B", "b@x.com"))
	completed.Status = domain.DocumentStatusCompleted
	e.handle.Docs.Add(expired)
	e.handle.Docs.Add(completed)

	result, err := newReminderJob(e).ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Zero(t, result.DocumentsScanned)
	assert.Empty(t, e.dispatcher.Emails())
}
