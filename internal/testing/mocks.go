package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
)

// FakeRemoteClient is an in-memory domain.RemoteClient. Values are returned
// as set; an error set for a method name replaces its result.
type FakeRemoteClient struct {
	mu           sync.Mutex
	balance      domain.Money
	exposure     map[domain.Rating]domain.Amounts
	sold         []int64
	marketplace  []domain.MarketplaceItem
	restrictions domain.Restrictions
	loans        map[int64]domain.Loan
	errs         map[string]error
	submitted    []domain.Operation
	calls        map[string]int
}

// NewFakeRemoteClient creates a client with the fixture restrictions and loans.
func NewFakeRemoteClient() *FakeRemoteClient {
	c := &FakeRemoteClient{
		exposure:     map[domain.Rating]domain.Amounts{},
		restrictions: NewRestrictionsFixture(),
		loans:        make(map[int64]domain.Loan),
		errs:         make(map[string]error),
		calls:        make(map[string]int),
	}
	for _, l := range NewLoanFixtures() {
		c.loans[l.ID] = l
	}
	return c
}

// SetBalance sets the reported balance.
func (c *FakeRemoteClient) SetBalance(m domain.Money) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = m
}

// SetExposure sets the reported exposure.
func (c *FakeRemoteClient) SetExposure(e map[domain.Rating]domain.Amounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposure = e
}

// SetSold sets the reported sold participation IDs.
func (c *FakeRemoteClient) SetSold(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sold = ids
}

// SetMarketplace sets the reported marketplace.
func (c *FakeRemoteClient) SetMarketplace(items []domain.MarketplaceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marketplace = items
}

// SetRestrictions sets the reported restrictions.
func (c *FakeRemoteClient) SetRestrictions(r domain.Restrictions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restrictions = r
}

// SetError makes method fail with err. A nil err clears it.
func (c *FakeRemoteClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, method)
		return
	}
	c.errs[method] = err
}

// Submitted returns every operation accepted so far.
func (c *FakeRemoteClient) Submitted() []domain.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Operation, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// Calls returns how often method was invoked.
func (c *FakeRemoteClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// enter records a call and returns the configured error. Callers hold no lock.
func (c *FakeRemoteClient) enter(ctx context.Context, method string) error {
	c.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.errs[method]
}

func (c *FakeRemoteClient) FetchLoan(ctx context.Context, id int64) (domain.Loan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchLoan"); err != nil {
		return domain.Loan{}, err
	}
	l, ok := c.loans[id]
	if !ok {
		return domain.Loan{}, fmt.Errorf("loan %d not found", id)
	}
	return l, nil
}

func (c *FakeRemoteClient) FetchAccountBalance(ctx context.Context) (domain.Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchAccountBalance"); err != nil {
		return domain.Money{}, err
	}
	return c.balance, nil
}

func (c *FakeRemoteClient) FetchExposure(ctx context.Context) (map[domain.Rating]domain.Amounts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchExposure"); err != nil {
		return nil, err
	}
	out := make(map[domain.Rating]domain.Amounts, len(c.exposure))
	for r, a := range c.exposure {
		out[r] = a
	}
	return out, nil
}

func (c *FakeRemoteClient) FetchSoldPositions(ctx context.Context, _ domain.SoldFilter) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchSoldPositions"); err != nil {
		return nil, err
	}
	return append([]int64(nil), c.sold...), nil
}

func (c *FakeRemoteClient) FetchMarketplace(ctx context.Context) ([]domain.MarketplaceItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchMarketplace"); err != nil {
		return nil, err
	}
	return append([]domain.MarketplaceItem(nil), c.marketplace...), nil
}

func (c *FakeRemoteClient) FetchRestrictions(ctx context.Context) (domain.Restrictions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "FetchRestrictions"); err != nil {
		return domain.Restrictions{}, err
	}
	return c.restrictions, nil
}

func (c *FakeRemoteClient) SubmitOperation(ctx context.Context, op domain.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, "SubmitOperation"); err != nil {
		return err
	}
	c.submitted = append(c.submitted, op)
	return nil
}

// RecordingSink is an events.Sink that keeps every event.
type RecordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

// Fire records the event.
func (s *RecordingSink) Fire(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns the recorded events in firing order.
func (s *RecordingSink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the recorded event types in firing order.
func (s *RecordingSink) Types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
