package tenant_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

func newFixture(names ...string) (*testutil.Directory, *testutil.Resolver) {
	dir := &testutil.Directory{}
	var handles []*testutil.Handle
	for _, name := range names {
		dir.Companies = append(dir.Companies, testutil.NewCompany(name, name+"_db"))
		handles = append(handles, testutil.NewHandle(name+"_db"))
	}
	return dir, testutil.NewResolver(handles...)
}

func TestEach_SequentialOrder(t *testing.T) {
	dir, resolver := newFixture("alpha", "beta", "gamma")
	it := tenant.NewIterator(dir, resolver, 1, testutil.NewLogger(t))

	var visited []string
	outcomes, err := tenant.Each(context.Background(), it, func(ctx context.Context, tn *tenant.Tenant) (int, error) {
		visited = append(visited, tn.Company.Name)
		return len(visited), nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, visited)
	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.False(t, o.Failed())
		assert.Equal(t, i+1, o.Result)
		assert.Equal(t, dir.Companies[i].ID.Hex(), o.CompanyID)
	}
}

func TestEach_SkipsInactiveCompanies(t *testing.T) {
	dir, resolver := newFixture("alpha", "beta")
	dir.Companies[1].IsActive = false
	it := tenant.NewIterator(dir, resolver, 1, testutil.NewLogger(t))

	outcomes, err := tenant.Each(context.Background(), it, func(ctx context.Context, tn *tenant.Tenant) (string, error) {
		return tn.DB.DBName(), nil
	})

	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "alpha_db", outcomes[0].Result)
}

func TestEach_TenantFailuresAreIsolated(t *testing.T) {
	dir, resolver := newFixture("alpha", "beta", "gamma", "delta")
	resolver.Errs["beta_db"] = errors.New("connection refused")
	it := tenant.NewIterator(dir, resolver, 1, testutil.NewLogger(t))

	outcomes, err := tenant.Each(context.Background(), it, func(ctx context.Context, tn *tenant.Tenant) (int, error) {
		switch tn.Company.Name {
		case "gamma":
			return 0, errors.New("query failed")
		case "delta":
			panic("boom")
		}
		return 1, nil
	})

	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.False(t, outcomes[0].Failed())
	assert.Contains(t, outcomes[1].Error, "connection refused")
	assert.Equal(t, "query failed", outcomes[2].Error)
	assert.Contains(t, outcomes[3].Error, "panic: boom")
}

func TestEach_DirectoryFailure(t *testing.T) {
	dir := &testutil.Directory{Err: errors.New("companies collection unavailable")}
	it := tenant.NewIterator(dir, testutil.NewResolver(), 1, testutil.NewLogger(t))

	outcomes, err := tenant.Each(context.Background(), it, func(ctx context.Context, tn *tenant.Tenant) (int, error) {
		return 0, nil
	})

	assert.Error(t, err)
	assert.Nil(t, outcomes)
}

func TestEach_CancelledContext(t *testing.T) {
	dir, resolver := newFixture("alpha")
	it := tenant.NewIterator(dir, resolver, 1, testutil.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	outcomes, err := tenant.Each(ctx, it, func(ctx context.Context, tn *tenant.Tenant) (int, error) {
		called = true
		return 0, nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed())
}

func TestEach_BoundedConcurrency(t *testing.T) {
	dir, resolver := newFixture("a", "b", "c", "d", "e", "f")
	it := tenant.NewIterator(dir, resolver, 2, testutil.NewLogger(t))

	var running, peak atomic.Int32
	outcomes, err := tenant.Each(context.Background(), it, func(ctx context.Context, tn *tenant.Tenant) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})

	require.NoError(t, err)
	assert.Len(t, outcomes, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLookup(t *testing.T) {
	dir, resolver := newFixture("alpha")
	company := dir.Companies[0]

	tn, err := tenant.Lookup(context.Background(), dir, resolver, company.ID.Hex(), "alpha_db")
	require.NoError(t, err)
	assert.Equal(t, company, tn.Company)
	assert.Equal(t, "alpha_db", tn.DB.DBName())

	_, err = tenant.Lookup(context.Background(), dir, resolver, company.ID.Hex(), "missing_db")
	assert.Error(t, err)

	_, err = tenant.Lookup(context.Background(), dir, resolver, "000000000000000000000000", "alpha_db")
	assert.Error(t, err)
}
