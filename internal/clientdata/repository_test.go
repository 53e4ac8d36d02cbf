package clientdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema, err := database.Schema(database.NameClientData)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := NewRepository(db).WithClock(clock.Now)
	ctx := context.Background()

	data := map[string]interface{}{"id": 42, "rating": "A"}
	require.NoError(t, repo.Store(ctx, TableLoans, "alice", "42", data, time.Hour))

	raw, err := repo.GetIfFresh(ctx, TableLoans, "alice", "42")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "A", parsed["rating"])

	// scoped per account
	raw, err = repo.GetIfFresh(ctx, TableLoans, "bob", "42")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestGetIfFresh_ExpiredButGetReturnsStale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := NewRepository(db).WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableLoans, "alice", "1", map[string]int{"id": 1}, time.Minute))
	clock.now = clock.now.Add(2 * time.Minute)

	fresh, err := repo.GetIfFresh(ctx, TableLoans, "alice", "1")
	require.NoError(t, err)
	assert.Nil(t, fresh)

	stale, err := repo.Get(ctx, TableLoans, "alice", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(stale))
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableRestrictions, "alice", "current", map[string]string{"v": "1"}, time.Hour))
	require.NoError(t, repo.Store(ctx, TableRestrictions, "alice", "current", map[string]string{"v": "2"}, time.Hour))

	raw, err := repo.Get(ctx, TableRestrictions, "alice", "current")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"2"}`, string(raw))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM restrictions").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableLoans, "alice", "1", 1, time.Hour))
	require.NoError(t, repo.Delete(ctx, TableLoans, "alice", "1"))
	require.NoError(t, repo.Delete(ctx, TableLoans, "alice", "missing"))

	raw, err := repo.Get(ctx, TableLoans, "alice", "1")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestInvalidTableName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	assert.Error(t, repo.Store(ctx, "users; DROP TABLE loans", "a", "k", 1, time.Hour))
	_, err := repo.Get(ctx, "nope", "a", "k")
	assert.Error(t, err)
	_, err = repo.GetIfFresh(ctx, "nope", "a", "k")
	assert.Error(t, err)
	_, err = repo.DeleteExpired(ctx, "nope")
	assert.Error(t, err)
}

func TestCleanupTask(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := NewRepository(db).WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableLoans, "alice", "old", 1, time.Minute))
	require.NoError(t, repo.Store(ctx, TableLoans, "alice", "new", 2, 2*time.Hour))
	require.NoError(t, repo.Store(ctx, TableRestrictions, "alice", "current", 3, time.Minute))
	clock.now = clock.now.Add(time.Hour)

	task := NewCleanupTask(repo, zerolog.Nop())
	assert.Equal(t, "clientdata:cleanup", task.Name())
	require.NoError(t, task.Run(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT (SELECT COUNT(*) FROM loans) + (SELECT COUNT(*) FROM restrictions)").Scan(&count))
	assert.Equal(t, 1, count)

	// empty tables are fine
	require.NoError(t, task.Run(ctx))
}
