package testing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/portfolio"
	"github.com/aristath/autoinvest/internal/sold"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/rs/zerolog"
)

// StaticStrategy is a tenant.StrategySource with a fixed provider.
type StaticStrategy struct {
	Provider domain.StrategyProvider
}

// Current returns the provider, if set.
func (s StaticStrategy) Current() (domain.StrategyProvider, bool) {
	return s.Provider, s.Provider != nil
}

// TenantFixture is a fully wired tenant backed by fakes.
type TenantFixture struct {
	Tenant *tenant.Remote
	Client *FakeRemoteClient
	Sink   *RecordingSink
	Store  *state.Store
}

// NewTenant wires a tenant for username against a fake client with a YAML
// state store in a temporary directory. strategy may be nil.
func NewTenant(t *testing.T, username string, strategy domain.StrategyProvider) *TenantFixture {
	t.Helper()

	log := zerolog.Nop()
	client := NewFakeRemoteClient()
	sink := &RecordingSink{}

	store, err := state.Open(filepath.Join(t.TempDir(), "state.yaml"), state.YAMLCodec{}, log)
	if err != nil {
		t.Fatalf("Failed to open state store: %v", err)
	}

	deps := tenant.Deps{
		Client:       client,
		Store:        store,
		Portfolio:    portfolio.New(client, log),
		Loans:        cache.NewLoanCache(username, time.Hour, nil, log),
		Restrictions: cache.NewRestrictionsCache(username, time.Hour, nil, log),
		Sold:         sold.New(client, time.Minute, sold.KeepStale, log),
		Strategy:     StaticStrategy{Provider: strategy},
		Sink:         sink,
	}
	session := domain.SessionInfo{Username: username, Name: username}
	return &TenantFixture{
		Tenant: tenant.New(session, 5*time.Second, deps, log),
		Client: client,
		Sink:   sink,
		Store:  store,
	}
}
