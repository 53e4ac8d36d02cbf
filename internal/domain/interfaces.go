package domain

import "context"

// RemoteClient is the capability to talk to the remote marketplace.
// Every method may fail with a transport, auth or remote error.
// No method is assumed idempotent.
type RemoteClient interface {
	FetchLoan(ctx context.Context, id int64) (Loan, error)
	FetchAccountBalance(ctx context.Context) (Money, error)
	FetchExposure(ctx context.Context) (map[Rating]Amounts, error)
	FetchSoldPositions(ctx context.Context, filter SoldFilter) ([]int64, error)
	FetchMarketplace(ctx context.Context) ([]MarketplaceItem, error)
	FetchRestrictions(ctx context.Context) (Restrictions, error)
	SubmitOperation(ctx context.Context, op Operation) error
}

// SoldFilter narrows the sold positions query.
type SoldFilter struct {
	// Since limits the query to positions exited after this instant. Zero means all.
	SinceUnix int64 `json:"since,omitempty"`
}

// StrategyProvider decides which operations to perform. Evaluate must be a pure function of its inputs.
type StrategyProvider interface {
	Name() string
	Evaluate(ctx context.Context, overview Overview, restrictions Restrictions, items []MarketplaceItem) ([]Operation, error)
}
