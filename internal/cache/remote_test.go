package cache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/clientdata"
	"github.com/aristath/autoinvest/internal/database"
	"github.com/aristath/autoinvest/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClientData(t *testing.T, clock *testClock) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema(database.NameClientData)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return clientdata.NewRepository(db).WithClock(clock.Now)
}

func loan(id int64) domain.Loan {
	return domain.Loan{ID: id, Rating: domain.RatingA, Amount: domain.NewMoney(100000), Name: "loan"}
}

func TestLoanCache_MemoryOnly(t *testing.T) {
	clock := newTestClock()
	c := NewLoanCache("alice", time.Hour, nil, zerolog.Nop(), WithClock(clock.Now))
	ctx := context.Background()

	_, ok := c.Get(1)
	assert.False(t, ok)

	calls := 0
	fetch := func(_ context.Context, id int64) (domain.Loan, error) {
		calls++
		return loan(id), nil
	}

	l, err := c.Load(ctx, 1, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.ID)

	cached, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, l, cached)

	_, err = c.Load(ctx, 1, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLoanCache_FreshPersistedCopySkipsRemote(t *testing.T) {
	clock := newTestClock()
	repo := setupClientData(t, clock)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, clientdata.TableLoans, "alice", "5", loan(5), time.Hour))

	c := NewLoanCache("alice", time.Hour, repo, zerolog.Nop(), WithClock(clock.Now))
	l, err := c.Load(ctx, 5, func(context.Context, int64) (domain.Loan, error) {
		t.Fatal("remote must not be called")
		return domain.Loan{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), l.ID)
	assert.True(t, l.Amount.Equal(domain.NewMoney(100000)))
}

func TestLoanCache_PersistsFetchedValue(t *testing.T) {
	clock := newTestClock()
	repo := setupClientData(t, clock)
	ctx := context.Background()

	c := NewLoanCache("alice", time.Hour, repo, zerolog.Nop(), WithClock(clock.Now))
	_, err := c.Load(ctx, 9, func(_ context.Context, id int64) (domain.Loan, error) {
		return loan(id), nil
	})
	require.NoError(t, err)

	raw, err := repo.GetIfFresh(ctx, clientdata.TableLoans, "alice", "9")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestLoanCache_StaleFallbackOnRemoteFailure(t *testing.T) {
	clock := newTestClock()
	repo := setupClientData(t, clock)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, clientdata.TableLoans, "alice", "3", loan(3), time.Minute))
	clock.Advance(time.Hour)

	c := NewLoanCache("alice", time.Hour, repo, zerolog.Nop(), WithClock(clock.Now))
	l, err := c.Load(ctx, 3, func(context.Context, int64) (domain.Loan, error) {
		return domain.Loan{}, errors.New("remote down")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), l.ID)

	_, ok := c.Get(3)
	assert.False(t, ok, "stale copies are not promoted to memory")
}

func TestLoanCache_FailureWithoutFallback(t *testing.T) {
	c := NewLoanCache("alice", time.Hour, nil, zerolog.Nop())
	_, err := c.Load(context.Background(), 3, func(context.Context, int64) (domain.Loan, error) {
		return domain.Loan{}, errors.New("remote down")
	})
	assert.Error(t, err)
}

func TestRestrictionsCache(t *testing.T) {
	clock := newTestClock()
	c := NewRestrictionsCache("alice", time.Hour, nil, zerolog.Nop(), WithClock(clock.Now))

	r, err := c.Load(context.Background(), "current", func(context.Context, string) (domain.Restrictions, error) {
		return domain.Restrictions{MinimumInvestment: domain.NewMoney(200)}, nil
	})
	require.NoError(t, err)
	assert.True(t, r.MinimumInvestment.Equal(domain.NewMoney(200)))
	assert.Equal(t, 1, c.Len())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, c.Sweep())
}
