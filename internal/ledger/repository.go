// Package ledger journals the operations submitted for every account.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

// Entry is one recorded operation.
type Entry struct {
	ID         string               `json:"id"`
	Account    string               `json:"account"`
	Kind       domain.OperationKind `json:"kind"`
	ItemID     int64                `json:"item_id"`
	LoanID     int64                `json:"loan_id"`
	Rating     domain.Rating        `json:"rating"`
	Amount     domain.Money         `json:"amount"`
	DryRun     bool                 `json:"dry_run"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// operationsColumns must match scanEntry.
const operationsColumns = `id, account, kind, item_id, loan_id, rating, amount, dry_run, recorded_at`

// Repository handles ledger.db operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Record inserts an entry. An entry whose ID is already recorded is skipped.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.ID == "" || e.Account == "" {
		return fmt.Errorf("ledger entry needs an id and an account")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	dryRun := 0
	if e.DryRun {
		dryRun = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO operations (`+operationsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Account, string(e.Kind), e.ItemID, e.LoanID, string(e.Rating), e.Amount.Decimal().String(), dryRun, e.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.log.Debug().Str("id", e.ID).Msg("Operation already recorded, skipping duplicate")
	}
	return nil
}

// Recent returns the newest entries first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+operationsColumns+`
		FROM operations
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return entries, nil
}

// CountByAccount returns the number of recorded operations per account.
func (r *Repository) CountByAccount(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT account, COUNT(*) FROM operations GROUP BY account`)
	if err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var account string
		var n int
		if err := rows.Scan(&account, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[account] = n
	}
	return counts, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var kind, rating, amount string
	var dryRun int
	var recordedAt int64
	if err := rows.Scan(&e.ID, &e.Account, &kind, &e.ItemID, &e.LoanID, &rating, &amount, &dryRun, &recordedAt); err != nil {
		return Entry{}, fmt.Errorf("failed to scan operation: %w", err)
	}

	m, err := domain.ParseMoney(amount)
	if err != nil {
		return Entry{}, err
	}
	e.Kind = domain.OperationKind(kind)
	e.Rating = domain.Rating(rating)
	e.Amount = m
	e.DryRun = dryRun != 0
	e.RecordedAt = time.Unix(recordedAt, 0)
	return e, nil
}
