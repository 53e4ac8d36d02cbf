package work

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/strategy"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/rs/zerolog"
)

// MarketplaceTask fetches the marketplace and runs the executor inside a
// transaction, so state writes and notifications only happen on success.
type MarketplaceTask struct {
	name      string
	tenant    tenant.Tenant
	executor  *strategy.Executor
	dependsOn scheduler.Task
	log       zerolog.Logger
}

// NewMarketplaceTask creates the decision loop task of t. dependsOn may be nil.
func NewMarketplaceTask(t tenant.Tenant, executor *strategy.Executor, dependsOn scheduler.Task, log zerolog.Logger) *MarketplaceTask {
	name := "marketplace:poll:" + t.SessionInfo().Username
	return &MarketplaceTask{
		name:      name,
		tenant:    t,
		executor:  executor,
		dependsOn: dependsOn,
		log:       log.With().Str("job", name).Logger(),
	}
}

func (m *MarketplaceTask) Name() string {
	return m.name
}

// DependsOn implements scheduler.Dependent.
func (m *MarketplaceTask) DependsOn() scheduler.Task {
	return m.dependsOn
}

func (m *MarketplaceTask) Run(ctx context.Context) error {
	start := time.Now()
	tx := tenant.NewTransactional(m.tenant, m.log)

	items, err := tenant.Call(ctx, tx, func(ctx context.Context, c domain.RemoteClient) ([]domain.MarketplaceItem, error) {
		return c.FetchMarketplace(ctx)
	})
	if err != nil {
		return m.fail(tx, events.RemoteFailure, fmt.Errorf("failed to fetch marketplace: %w", err))
	}

	ops, err := m.executor.Apply(ctx, tx, items)
	if err != nil {
		return m.fail(tx, events.ExecutionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return m.fail(tx, events.ExecutionFailed, err)
	}
	if err := tx.Close(); err != nil {
		return err
	}

	if len(ops) > 0 {
		m.log.Info().
			Int("items", len(items)).
			Int("operations", len(ops)).
			Dur("duration", time.Since(start)).
			Msg("Marketplace processed")
	}
	return nil
}

// fail drops the transaction and reports the failure outside of it.
func (m *MarketplaceTask) fail(tx *tenant.Transactional, eventType events.EventType, err error) error {
	tx.Abort()
	_ = tx.Close()

	m.log.Error().Err(err).Bool("transient", domain.IsTransient(err)).Msg("Marketplace tick failed")
	m.tenant.Fire(events.New(eventType, m.tenant.SessionInfo().Username, &events.FailureData{
		Task:  m.name,
		Error: err.Error(),
	}))
	return err
}
