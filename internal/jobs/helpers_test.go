package jobs

import (
	"testing"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/delivery"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type env struct {
	log        *logger.Logger
	company    *domain.Company
	handle     *testutil.Handle
	directory  *testutil.Directory
	resolver   *testutil.Resolver
	iterator   *tenant.Iterator
	decrypter  *testutil.Decrypter
	dispatcher *testutil.Dispatcher
	audit      *audit.Logger
}

func newEnv(t *testing.T) *env {
	e := &env{
		log:        testutil.NewLogger(t),
		company:    testutil.NewCompany("Acme Motors", "acme"),
		handle:     testutil.NewHandle("acme"),
		decrypter:  &testutil.Decrypter{Creds: map[string]string{"api_key": "k"}},
		dispatcher: &testutil.Dispatcher{},
	}
	e.directory = &testutil.Directory{Companies: []*domain.Company{e.company}}
	e.resolver = testutil.NewResolver(e.handle)
	e.iterator = tenant.NewIterator(e.directory, e.resolver, 1, e.log)
	e.audit = audit.NewLogger(audit.StoreWriter{}, e.log)
	e.handle.Providers.Set(&domain.ProviderConfig{
		ProviderType: domain.ProviderTypeEmail,
		Provider:     "ses",
		Credentials:  "v1:blob",
	})
	return e
}

func (e *env) tenant() *tenant.Tenant {
	return &tenant.Tenant{Company: e.company, DB: e.handle}
}

// addTenant registers a second company with its own database
func (e *env) addTenant(name string) (*domain.Company, *testutil.Handle) {
	company := testutil.NewCompany(name, name)
	handle := testutil.NewHandle(name)
	e.directory.Companies = append(e.directory.Companies, company)
	e.resolver = testutil.NewResolver(append([]*testutil.Handle{e.handle}, handle)...)
	e.iterator = tenant.NewIterator(e.directory, e.resolver, 1, e.log)
	return company, handle
}

func (e *env) unit() *delivery.Unit {
	return delivery.NewUnit(e.directory, e.resolver, e.decrypter, e.dispatcher, e.audit, nil, e.log)
}
