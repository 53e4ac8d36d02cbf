package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/ledger"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/tenant"
	testingpkg "github.com/aristath/autoinvest/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTasks []scheduler.Status

func (f fakeTasks) Submitted() []scheduler.Status {
	return f
}

type fakeLedger struct {
	entries   []ledger.Entry
	err       error
	lastLimit int
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]ledger.Entry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

func (f *fakeLedger) CountByAccount(context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, e := range f.entries {
		counts[e.Account]++
	}
	return counts, f.err
}

func newTestServer(t *testing.T, lg *fakeLedger) (*Server, *testingpkg.TenantFixture) {
	t.Helper()
	fx := testingpkg.NewTenant(t, "alice", nil)
	fx.Client.SetBalance(domain.NewMoney(1500))
	require.NoError(t, fx.Tenant.Portfolio().Refresh(context.Background()))

	s := New(Config{
		Log:     zerolog.Nop(),
		DevMode: true,
		Tenants: []tenant.Tenant{fx.Tenant},
		Scheduler: fakeTasks{
			{Name: "marketplace:poll:alice", Schedule: "every 1m0s", Runs: 3},
		},
		Ledger: lg,
	})
	return s, fx
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, &fakeLedger{})

	rec := get(t, s, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["tenants"])
}

func TestServer_Tenants(t *testing.T) {
	lg := &fakeLedger{entries: []ledger.Entry{
		{ID: "a", Account: "alice"},
		{ID: "b", Account: "alice"},
	}}
	s, _ := newTestServer(t, lg)

	rec := get(t, s, "/api/tenants")

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "1500", body[0]["balance"])
	assert.EqualValues(t, 2, body[0]["operations"])
	assert.NotContains(t, body[0], "strategy")
}

func TestServer_Overview(t *testing.T) {
	s, _ := newTestServer(t, &fakeLedger{})

	rec := get(t, s, "/api/tenants/alice/overview")
	require.Equal(t, http.StatusOK, rec.Code)
	var overview domain.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.True(t, overview.Balance.Equal(domain.NewMoney(1500)))

	rec = get(t, s, "/api/tenants/bob/overview")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Tasks(t *testing.T) {
	s, _ := newTestServer(t, &fakeLedger{})

	rec := get(t, s, "/api/scheduler/tasks")

	require.Equal(t, http.StatusOK, rec.Code)
	var body []scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "marketplace:poll:alice", body[0].Name)
	assert.EqualValues(t, 3, body[0].Runs)
}

func TestServer_Ledger(t *testing.T) {
	lg := &fakeLedger{entries: []ledger.Entry{
		{ID: "a", Account: "alice", Kind: domain.OperationInvest, Amount: domain.NewMoney(200), RecordedAt: time.Now()},
	}}
	s, _ := newTestServer(t, lg)

	rec := get(t, s, "/api/ledger")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLedgerLimit, lg.lastLimit)

	rec = get(t, s, "/api/ledger?limit=10000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLedgerLimit, lg.lastLimit)

	rec = get(t, s, "/api/ledger?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	lg.err = errors.New("disk I/O error")
	rec = get(t, s, "/api/ledger")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_System(t *testing.T) {
	s, _ := newTestServer(t, &fakeLedger{})

	rec := get(t, s, "/api/system")

	require.Equal(t, http.StatusOK, rec.Code)
	var body SystemStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Positive(t, body.Goroutines)
}

func TestServer_EventsRouteOnlyWhenConfigured(t *testing.T) {
	s, _ := newTestServer(t, &fakeLedger{})

	rec := get(t, s, "/api/events/ws")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
