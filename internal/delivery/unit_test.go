package delivery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/delivery"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

type fixture struct {
	company    *domain.Company
	handle     *testutil.Handle
	decrypter  *testutil.Decrypter
	dispatcher *testutil.Dispatcher
	unit       *delivery.Unit
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		company:    testutil.NewCompany("Acme Motors", "acme"),
		handle:     testutil.NewHandle("acme"),
		decrypter:  &testutil.Decrypter{Creds: map[string]string{"access_key_id": "AKIA"}},
		dispatcher: &testutil.Dispatcher{},
	}
	f.handle.Providers.Set(&domain.ProviderConfig{
		ProviderType: domain.ProviderTypeEmail,
		Provider:     "ses",
		Credentials:  "v1:blob",
		Settings:     map[string]any{"from_email": "no-reply@acme.test"},
	})
	f.handle.Providers.Set(&domain.ProviderConfig{
		ProviderType: domain.ProviderTypeSMS,
		Provider:     "sns",
		Credentials:  "v1:blob",
	})

	log := testutil.NewLogger(t)
	f.unit = delivery.NewUnit(
		&testutil.Directory{Companies: []*domain.Company{f.company}},
		testutil.NewResolver(f.handle),
		f.decrypter,
		f.dispatcher,
		audit.NewLogger(audit.StoreWriter{}, log),
		delivery.NewTenantRateLimiter(0, 1),
		log,
	)
	return f
}

func (f *fixture) job(channel domain.Channel, recipient string) *domain.NotificationJob {
	return &domain.NotificationJob{
		NotificationType: "signing_request",
		Recipient:        recipient,
		Channel:          channel,
		Subject:          "Please sign",
		Message:          "A document is waiting",
		HTMLMessage:      "<p>A document is waiting</p>",
		CompanyID:        f.company.ID.Hex(),
		CompanyDBName:    "acme",
		DocumentID:       "doc-1",
	}
}

func TestDeliver_EmailSuccess(t *testing.T) {
	f := newFixture(t)

	result, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelEmail, "a@x.com"))

	require.NoError(t, err)
	assert.Equal(t, "msg-1", result.MessageID)

	emails := f.dispatcher.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "ses", emails[0].Provider)
	assert.Equal(t, "AKIA", emails[0].Creds["access_key_id"])
	assert.Equal(t, "a@x.com", emails[0].Msg.To)
	assert.Equal(t, "Please sign", emails[0].Msg.Subject)
	assert.Equal(t, "<p>A document is waiting</p>", emails[0].Msg.HTML)

	events := f.handle.Audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "notification.signing_request.sent", events[0].EventType)
	assert.Equal(t, "msg-1", events[0].Metadata["message_id"])
	assert.Equal(t, f.company.ID.Hex(), events[0].CompanyID)
	assert.Equal(t, "system", events[0].Actor.Type)
	assert.Equal(t, "doc-1", events[0].Resource.ID)
}

func TestDeliver_SMSUsesSMSProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelSMS, "+15550001111"))

	require.NoError(t, err)
	sms := f.dispatcher.SMS()
	require.Len(t, sms, 1)
	assert.Equal(t, "sns", sms[0].Provider)
	assert.Equal(t, "A document is waiting", sms[0].Msg.Message)
	assert.Empty(t, f.dispatcher.Emails())
}

func TestDeliver_ProviderFailureAudited(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.Fail = func(string) error {
		return apperrors.NewDeliveryError("ses send failed", errors.New("Throttling"))
	}

	_, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelEmail, "a@x.com"))

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	events := f.handle.Audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "notification.signing_request.failed", events[0].EventType)
	assert.Equal(t, apperrors.CodeDeliveryFailed, events[0].Metadata["error_code"])
}

func TestDeliver_MissingProviderIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.handle.Providers = testutil.NewProviderStore()

	_, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelEmail, "a@x.com"))

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeProviderNotConfigured))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, 0, f.decrypter.Calls)
	require.Len(t, f.handle.Audit.Events(), 1)
}

func TestDeliver_UnknownCompanyAuditedWithJobCompanyID(t *testing.T) {
	f := newFixture(t)
	job := f.job(domain.ChannelEmail, "a@x.com")
	job.CompanyID = "000000000000000000000000"

	_, err := f.unit.Deliver(context.Background(), job)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCompanyNotFound))
	events := f.handle.Audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "000000000000000000000000", events[0].CompanyID)
}

func TestDeliver_AuditFailureDoesNotMaskSuccess(t *testing.T) {
	f := newFixture(t)
	f.handle.Audit.Err = errors.New("audit store down")

	result, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelEmail, "a@x.com"))

	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestDeliver_UnresolvableTenant(t *testing.T) {
	f := newFixture(t)
	job := f.job(domain.ChannelEmail, "a@x.com")
	job.CompanyDBName = "gone"

	_, err := f.unit.Deliver(context.Background(), job)

	require.Error(t, err)
	assert.Empty(t, f.dispatcher.Emails())
}

func TestDeliver_RequiresRecipient(t *testing.T) {
	f := newFixture(t)

	_, err := f.unit.Deliver(context.Background(), f.job(domain.ChannelEmail, ""))

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSenderFor_DecryptsOnce(t *testing.T) {
	f := newFixture(t)
	tn := &tenant.Tenant{Company: f.company, DB: f.handle}

	sender, err := f.unit.SenderFor(context.Background(), tn, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "ses", sender.Provider())

	for _, to := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		_, err := sender.Send(context.Background(), delivery.Message{To: to, Subject: "s", Text: "t"})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.decrypter.Calls)
	assert.Len(t, f.dispatcher.Emails(), 3)
}

func TestSenderFor_RejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.unit.SenderFor(context.Background(), &tenant.Tenant{Company: f.company, DB: f.handle}, "fax")

	assert.Error(t, err)
}

func TestTenantRateLimiter_PerTenant(t *testing.T) {
	rl := delivery.NewTenantRateLimiter(1, 2)

	a := rl.GetLimiter("tenant-a")
	assert.Same(t, a, rl.GetLimiter("tenant-a"))
	assert.NotSame(t, a, rl.GetLimiter("tenant-b"))

	assert.True(t, a.Allow())
	assert.True(t, a.Allow())
	assert.False(t, a.Allow())
	assert.True(t, rl.GetLimiter("tenant-b").Allow())
}

func TestTenantRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := delivery.NewTenantRateLimiter(0.001, 1)
	require.NoError(t, rl.Wait(context.Background(), "t", domain.ChannelEmail))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx, "t", domain.ChannelEmail))
}
