package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/clientdata"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

// Persistence is the second level behind a Remote cache.
// clientdata.Repository satisfies it.
type Persistence interface {
	Store(ctx context.Context, table, account, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(ctx context.Context, table, account, key string) (json.RawMessage, error)
	Get(ctx context.Context, table, account, key string) (json.RawMessage, error)
}

// Remote fronts a remote lookup with a TimeBounded cache and an optional
// persistent second level. It is scoped to one account.
type Remote[K comparable, V any] struct {
	account string
	table   string
	ttl     time.Duration
	mem     *TimeBounded[K, V]
	store   Persistence
	log     zerolog.Logger
}

// NewRemote creates a remote-backed cache. store may be nil.
func NewRemote[K comparable, V any](account, table string, ttl time.Duration, store Persistence, log zerolog.Logger, opts ...Option) *Remote[K, V] {
	name := table + ":" + account
	return &Remote[K, V]{
		account: account,
		table:   table,
		ttl:     ttl,
		mem:     New[K, V](name, ttl, log, opts...),
		store:   store,
		log:     log.With().Str("component", "remote_cache").Str("table", table).Str("tenant", account).Logger(),
	}
}

// NewLoanCache caches loans by ID.
func NewLoanCache(account string, ttl time.Duration, store Persistence, log zerolog.Logger, opts ...Option) *Remote[int64, domain.Loan] {
	return NewRemote[int64, domain.Loan](account, clientdata.TableLoans, ttl, store, log, opts...)
}

// NewRestrictionsCache caches the account's investment restrictions under a single key.
func NewRestrictionsCache(account string, ttl time.Duration, store Persistence, log zerolog.Logger, opts ...Option) *Remote[string, domain.Restrictions] {
	return NewRemote[string, domain.Restrictions](account, clientdata.TableRestrictions, ttl, store, log, opts...)
}

// Get returns a cached value without any I/O.
func (c *Remote[K, V]) Get(key K) (V, bool) {
	return c.mem.Get(key)
}

// Load returns the cached value or fetches it.
// Order: memory, fresh persisted copy, remote. If the remote fails and a stale
// persisted copy exists, the stale copy is returned and not cached in memory.
func (c *Remote[K, V]) Load(ctx context.Context, key K, fetch func(context.Context, K) (V, error)) (V, error) {
	v, err := c.mem.GetOrLoad(ctx, key, func(ctx context.Context, key K) (V, error) {
		if v, ok := c.persisted(ctx, key, true); ok {
			return v, nil
		}
		v, err := fetch(ctx, key)
		if err != nil {
			return v, err
		}
		c.persist(ctx, key, v)
		return v, nil
	})
	if err == nil {
		return v, nil
	}

	if stale, ok := c.persisted(ctx, key, false); ok {
		c.log.Warn().Err(err).Interface("key", key).Msg("Remote lookup failed, using stale persisted copy")
		return stale, nil
	}
	var zero V
	return zero, err
}

// Sweep drops expired in-memory entries.
func (c *Remote[K, V]) Sweep() int {
	return c.mem.Sweep()
}

// Len counts in-memory entries.
func (c *Remote[K, V]) Len() int {
	return c.mem.Len()
}

// Name identifies the cache for logging.
func (c *Remote[K, V]) Name() string {
	return c.mem.Name()
}

func (c *Remote[K, V]) persisted(ctx context.Context, key K, freshOnly bool) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}

	var raw json.RawMessage
	var err error
	if freshOnly {
		raw, err = c.store.GetIfFresh(ctx, c.table, c.account, fmt.Sprint(key))
	} else {
		raw, err = c.store.Get(ctx, c.table, c.account, fmt.Sprint(key))
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read persisted cache entry")
		return zero, false
	}
	if raw == nil {
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn().Err(err).Msg("Discarding undecodable persisted cache entry")
		return zero, false
	}
	return v, true
}

func (c *Remote[K, V]) persist(ctx context.Context, key K, v V) {
	if c.store == nil {
		return
	}
	if err := c.store.Store(ctx, c.table, c.account, fmt.Sprint(key), v, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist cache entry")
	}
}
