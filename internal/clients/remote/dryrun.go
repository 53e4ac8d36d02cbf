package remote

import (
	"context"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

// DryRun reads through to the wrapped client but only logs submissions.
type DryRun struct {
	domain.RemoteClient
	log zerolog.Logger
}

// NewDryRun wraps client.
func NewDryRun(client domain.RemoteClient, log zerolog.Logger) *DryRun {
	return &DryRun{
		RemoteClient: client,
		log:          log.With().Str("component", "dry-run").Logger(),
	}
}

func (d *DryRun) SubmitOperation(_ context.Context, op domain.Operation) error {
	d.log.Info().
		Str("kind", string(op.Kind)).
		Int64("item_id", op.ItemID).
		Int64("loan_id", op.LoanID).
		Str("amount", op.Amount.String()).
		Msg("Dry run, operation not submitted")
	return nil
}
