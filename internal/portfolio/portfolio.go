// Package portfolio tracks the account balance and exposure as the remote
// service reports them, adjusted for operations it has not reflected yet.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

// BalanceSource is the part of the remote client the portfolio needs.
type BalanceSource interface {
	FetchAccountBalance(ctx context.Context) (domain.Money, error)
	FetchExposure(ctx context.Context) (map[domain.Rating]domain.Amounts, error)
}

// Charge is a locally simulated debit not yet confirmed by the remote service.
type Charge struct {
	Key    string        `json:"key"`
	Rating domain.Rating `json:"rating"`
	Amount domain.Money  `json:"amount"`
	At     time.Time     `json:"at"`
}

// snapshot is replaced wholesale, never mutated.
type snapshot struct {
	balance  domain.Money
	exposure domain.Exposure
	asOf     time.Time
}

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Portfolio) {
		p.now = now
	}
}

// Portfolio is the remote account view plus pending simulated charges.
// Remote calls never happen under the lock.
type Portfolio struct {
	source BalanceSource
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *snapshot
	charges []Charge
}

// New creates a portfolio with an empty snapshot. Call Refresh to load it.
func New(source BalanceSource, log zerolog.Logger, opts ...Option) *Portfolio {
	p := &Portfolio{
		source:  source,
		log:     log.With().Str("component", "portfolio").Logger(),
		now:     time.Now,
		current: &snapshot{exposure: domain.EmptyExposure()},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SimulateCharge records a pending debit against the balance and the rating's exposure.
func (p *Portfolio) SimulateCharge(key string, rating domain.Rating, amount domain.Money) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, Charge{Key: key, Rating: rating, Amount: amount, At: p.now()})
}

// Acknowledge drops the pending charges with key, for when the caller knows
// the remote service already reflects them. Reports whether any was dropped.
func (p *Portfolio) Acknowledge(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]Charge, 0, len(p.charges))
	for _, c := range p.charges {
		if c.Key != key {
			kept = append(kept, c)
		}
	}
	dropped := len(kept) != len(p.charges)
	p.charges = kept
	return dropped
}

// Pending returns a copy of the unconfirmed charges, oldest first.
func (p *Portfolio) Pending() []Charge {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Charge, len(p.charges))
	copy(out, p.charges)
	return out
}

// Balance is the remote balance minus every unconfirmed charge.
func (p *Portfolio) Balance() domain.Money {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectiveBalance()
}

// Exposure is the remote exposure plus every unconfirmed charge.
func (p *Portfolio) Exposure() domain.Exposure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectiveExposure()
}

// AsOf is the instant the current snapshot's refresh began. Zero before the first refresh.
func (p *Portfolio) AsOf() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.asOf
}

func (p *Portfolio) effectiveBalance() domain.Money {
	balance := p.current.balance
	for _, c := range p.charges {
		balance = balance.Sub(c.Amount)
	}
	return balance
}

func (p *Portfolio) effectiveExposure() domain.Exposure {
	exposure := p.current.exposure
	for _, c := range p.charges {
		exposure = exposure.With(c.Rating, domain.Amounts{Invested: c.Amount, AtRisk: c.Amount})
	}
	return exposure
}

// Refresh fetches balance and exposure and swaps them in together.
// Charges simulated before the refresh began are now part of the remote
// numbers and are dropped; later ones are kept. On any failure nothing changes.
func (p *Portfolio) Refresh(ctx context.Context) error {
	asOf := p.now()

	balance, err := p.source.FetchAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	amounts, err := p.source.FetchExposure(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch exposure: %w", err)
	}
	exposure, err := domain.NewExposure(amounts)
	if err != nil {
		return err
	}

	next := &snapshot{balance: balance, exposure: exposure, asOf: asOf}

	p.mu.Lock()
	if asOf.Before(p.current.asOf) {
		// a refresh that started later already landed
		p.mu.Unlock()
		return nil
	}
	kept := p.charges[:0:0]
	for _, c := range p.charges {
		if !c.At.Before(asOf) {
			kept = append(kept, c)
		}
	}
	confirmed := len(p.charges) - len(kept)
	p.current = next
	p.charges = kept
	p.mu.Unlock()

	p.log.Debug().
		Str("balance", balance.String()).
		Int("confirmed", confirmed).
		Int("pending", len(kept)).
		Msg("Portfolio refreshed")
	return nil
}
