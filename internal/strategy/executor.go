// Package strategy decides when the loaded strategy is consulted and applies
// the operations it returns.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/rs/zerolog"
)

// State of the decision loop.
type State int32

const (
	// Asleep means nothing changed since the last successful evaluation.
	Asleep State = iota
	// Active means the strategy is being evaluated or its operations submitted.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "asleep"
}

const (
	keyBalance     = "balance"
	keyMarketplace = "marketplace"
)

// Executor runs the strategy of a tenant only when the marketplace changed or
// the balance grew by at least minIncrement (an increase equal to it counts)
// since the last successful run.
// The last-seen markers live in tenant state, so under a transactional tenant
// they are only persisted on commit.
type Executor struct {
	name         string
	minIncrement domain.Money
	log          zerolog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// NewExecutor creates an executor whose markers are kept in the
// "executor:<name>" namespace.
func NewExecutor(name string, minIncrement domain.Money, log zerolog.Logger) *Executor {
	return &Executor{
		name:         name,
		minIncrement: minIncrement,
		log:          log.With().Str("component", "strategy_executor").Str("executor", name).Logger(),
	}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return e.name
}

// State reports whether an evaluation is in progress.
func (e *Executor) State() State {
	return State(e.state.Load())
}

func (e *Executor) namespace() string {
	return "executor:" + e.name
}

// Reset forgets the last-seen markers of t, forcing the next Apply to evaluate.
func (e *Executor) Reset(t tenant.Tenant) error {
	return t.State(e.namespace()).Reset()
}

// Apply evaluates the strategy of t against marketplace if re-evaluation is
// required and submits every resulting operation. It returns the submitted
// operations. On error the markers are left untouched so the next call
// retries against the same inputs.
func (e *Executor) Apply(ctx context.Context, t tenant.Tenant, marketplace []domain.MarketplaceItem) ([]domain.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	provider, ok := t.Strategy()
	if !ok {
		e.log.Debug().Str("tenant", t.SessionInfo().Username).Msg("No strategy loaded")
		return nil, nil
	}

	balance := t.Portfolio().Balance()
	fingerprint := marketplaceFingerprint(marketplace)
	markers := t.State(e.namespace())
	if !e.needsEvaluation(markers, balance, fingerprint) {
		return nil, nil
	}

	e.state.Store(int32(Active))
	defer e.state.Store(int32(Asleep))

	ops, err := e.execute(ctx, t, provider, marketplace)
	if err != nil {
		return nil, err
	}
	// Record what is left after the simulated charges.
	balance = t.Portfolio().Balance()

	err = markers.Update(func(b *state.Batch) {
		b.Set(keyBalance, balance.Decimal().String())
		b.Set(keyMarketplace, fingerprint)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store executor markers: %w", err)
	}

	t.Fire(events.New(events.ExecutionCompleted, t.SessionInfo().Username, &events.ExecutionData{
		Strategy:   provider.Name(),
		Items:      len(marketplace),
		Operations: len(ops),
		Balance:    balance.String(),
	}))
	return ops, nil
}

func (e *Executor) needsEvaluation(markers state.State, balance domain.Money, fingerprint string) bool {
	lastMarketplace, ok := markers.Get(keyMarketplace)
	if !ok {
		return true
	}
	if lastMarketplace != fingerprint {
		return true
	}
	raw, ok := markers.Get(keyBalance)
	if !ok {
		return true
	}
	lastBalance, err := domain.ParseMoney(raw)
	if err != nil {
		e.log.Warn().Err(err).Str("value", raw).Msg("Unreadable balance marker")
		return true
	}
	return balance.Sub(lastBalance).GreaterOrEqual(e.minIncrement)
}

func (e *Executor) execute(ctx context.Context, t tenant.Tenant, provider domain.StrategyProvider, marketplace []domain.MarketplaceItem) ([]domain.Operation, error) {
	session := t.SessionInfo()
	log := e.log.With().Str("tenant", session.Username).Str("strategy", provider.Name()).Logger()

	items := make([]domain.MarketplaceItem, 0, len(marketplace))
	for _, item := range marketplace {
		if item.Kind == domain.ItemParticipation && t.SoldTracker().WasSold(ctx, item.LoanID) {
			continue
		}
		items = append(items, item)
	}

	restrictions, err := t.Restrictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load restrictions: %w", err)
	}

	ops, err := provider.Evaluate(ctx, t.Portfolio().Overview(), restrictions, items)
	if err != nil {
		return nil, fmt.Errorf("strategy %s failed: %w", provider.Name(), err)
	}
	log.Debug().Int("items", len(items)).Int("operations", len(ops)).Msg("Strategy evaluated")

	for i, op := range ops {
		err := t.Run(ctx, func(ctx context.Context, c domain.RemoteClient) error {
			return c.SubmitOperation(ctx, op)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to submit %s of item %d (%d of %d): %w", op.Kind, op.ItemID, i+1, len(ops), err)
		}

		if op.Charges() {
			t.Portfolio().SimulateCharge(op.ChargeKey(), op.Rating, op.Amount)
		} else if op.Kind == domain.OperationSell {
			t.SoldTracker().MarkSold(op.LoanID)
		}

		data := events.NewOperationData(op, session.DryRun)
		t.Fire(events.New(data.EventType(), session.Username, data))
		log.Info().
			Str("kind", string(op.Kind)).
			Int64("item_id", op.ItemID).
			Str("amount", op.Amount.String()).
			Msg("Operation submitted")
	}
	return ops, nil
}

// marketplaceFingerprint is the sorted set of item keys.
func marketplaceFingerprint(items []domain.MarketplaceItem) string {
	keys := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := item.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strconv.Itoa(len(keys)) + "|" + strings.Join(keys, ",")
}
