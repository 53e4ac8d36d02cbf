package ledger

import (
	"context"
	"time"

	"github.com/aristath/autoinvest/internal/events"
	"github.com/rs/zerolog"
)

const recordTimeout = 5 * time.Second

// Subscriber records operation events as they are fired.
type Subscriber struct {
	repo *Repository
	log  zerolog.Logger
}

// NewSubscriber creates a subscriber writing to repo.
func NewSubscriber(repo *Repository, log zerolog.Logger) *Subscriber {
	return &Subscriber{repo: repo, log: log.With().Str("component", "ledger_subscriber").Logger()}
}

// Subscribe attaches the subscriber to bus.
func (s *Subscriber) Subscribe(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(s.Handle)
}

// Handle ignores every event that is not an operation.
func (s *Subscriber) Handle(e events.Event) error {
	if !e.Type.IsOperation() {
		return nil
	}

	var data events.OperationData
	if err := e.Decode(&data); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	return s.repo.Record(ctx, Entry{
		ID:         e.ID,
		Account:    e.Session,
		Kind:       data.Kind,
		ItemID:     data.ItemID,
		LoanID:     data.LoanID,
		Rating:     data.Rating,
		Amount:     data.Amount,
		DryRun:     data.DryRun,
		RecordedAt: e.Timestamp,
	})
}
