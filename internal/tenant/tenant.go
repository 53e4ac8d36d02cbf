// Package tenant binds remote access, persistent state and notifications to
// one account.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/portfolio"
	"github.com/aristath/autoinvest/internal/sold"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/rs/zerolog"
)

// Tenant is the execution context of one remote account.
type Tenant interface {
	SessionInfo() domain.SessionInfo
	// Run executes fn against the remote service, bounded by the read timeout.
	Run(ctx context.Context, fn func(ctx context.Context, client domain.RemoteClient) error) error
	State(namespace string) state.State
	Portfolio() *portfolio.Portfolio
	Restrictions(ctx context.Context) (domain.Restrictions, error)
	Strategy() (domain.StrategyProvider, bool)
	Loan(ctx context.Context, id int64) (domain.Loan, error)
	SoldTracker() *sold.Tracker
	Fire(event events.Event)
	Close() error
}

// Call runs fn through t and returns its result.
func Call[T any](ctx context.Context, t Tenant, fn func(ctx context.Context, client domain.RemoteClient) (T, error)) (T, error) {
	var result T
	err := t.Run(ctx, func(ctx context.Context, client domain.RemoteClient) error {
		var err error
		result, err = fn(ctx, client)
		return err
	})
	return result, err
}

// StrategySource provides the currently loaded strategy, if any.
type StrategySource interface {
	Current() (domain.StrategyProvider, bool)
}

// Deps are the per-account collaborators of a tenant.
type Deps struct {
	Client       domain.RemoteClient
	Store        *state.Store
	Portfolio    *portfolio.Portfolio
	Loans        *cache.Remote[int64, domain.Loan]
	Restrictions *cache.Remote[string, domain.Restrictions]
	Sold         *sold.Tracker
	Strategy     StrategySource
	Sink         events.Sink
}

// Remote is the direct, non-transactional tenant.
type Remote struct {
	session domain.SessionInfo
	timeout time.Duration
	deps    Deps
	log     zerolog.Logger
}

const restrictionsKey = "current"

// New creates a tenant. timeout bounds every Run.
func New(session domain.SessionInfo, timeout time.Duration, deps Deps, log zerolog.Logger) *Remote {
	return &Remote{
		session: session,
		timeout: timeout,
		deps:    deps,
		log:     log.With().Str("tenant", session.Username).Logger(),
	}
}

func (t *Remote) SessionInfo() domain.SessionInfo {
	return t.session
}

func (t *Remote) Run(ctx context.Context, fn func(ctx context.Context, client domain.RemoteClient) error) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx, t.deps.Client)
	if err != nil {
		t.log.Debug().Err(err).Dur("duration", time.Since(start)).Msg("Remote call failed")
		return err
	}
	return nil
}

// State returns the namespace view scoped to this account.
func (t *Remote) State(namespace string) state.State {
	return t.deps.Store.Instance(t.session.Username + ":" + namespace)
}

func (t *Remote) Portfolio() *portfolio.Portfolio {
	return t.deps.Portfolio
}

func (t *Remote) Restrictions(ctx context.Context) (domain.Restrictions, error) {
	return t.deps.Restrictions.Load(ctx, restrictionsKey, func(ctx context.Context, _ string) (domain.Restrictions, error) {
		return Call(ctx, t, func(ctx context.Context, c domain.RemoteClient) (domain.Restrictions, error) {
			return c.FetchRestrictions(ctx)
		})
	})
}

func (t *Remote) Strategy() (domain.StrategyProvider, bool) {
	if t.deps.Strategy == nil {
		return nil, false
	}
	return t.deps.Strategy.Current()
}

func (t *Remote) Loan(ctx context.Context, id int64) (domain.Loan, error) {
	loan, err := t.deps.Loans.Load(ctx, id, func(ctx context.Context, id int64) (domain.Loan, error) {
		return Call(ctx, t, func(ctx context.Context, c domain.RemoteClient) (domain.Loan, error) {
			return c.FetchLoan(ctx, id)
		})
	})
	if err != nil {
		return domain.Loan{}, fmt.Errorf("failed to load loan %d: %w", id, err)
	}
	return loan, nil
}

func (t *Remote) SoldTracker() *sold.Tracker {
	return t.deps.Sold
}

// Fire hands the event to the sink immediately.
func (t *Remote) Fire(event events.Event) {
	if event.Session == "" {
		event.Session = t.session.Username
	}
	t.deps.Sink.Fire(event)
}

// Close releases nothing; collaborators are owned by the wiring.
func (t *Remote) Close() error {
	return nil
}

// Caches exposes the tenant's caches for sweeping.
func (t *Remote) Caches() []cache.Sweeper {
	return []cache.Sweeper{t.deps.Loans, t.deps.Restrictions, t.deps.Sold}
}
