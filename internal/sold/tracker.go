// Package sold tracks which participations have left the portfolio.
package sold

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

// SoldSource is the part of the remote client the tracker needs.
type SoldSource interface {
	FetchSoldPositions(ctx context.Context, filter domain.SoldFilter) ([]int64, error)
}

// FailurePolicy decides what WasSold assumes when the remote snapshot cannot be fetched.
type FailurePolicy int

const (
	// KeepStale reuses the last successfully fetched snapshot.
	KeepStale FailurePolicy = iota
	// AssumeNotSold ignores the remote source until it recovers.
	AssumeNotSold
)

// ParseFailurePolicy reads the configured policy name.
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch name {
	case "keep-stale", "":
		return KeepStale, nil
	case "assume-not-sold":
		return AssumeNotSold, nil
	}
	return KeepStale, fmt.Errorf("unknown sold fetch failure policy %q", name)
}

func (p FailurePolicy) String() string {
	if p == AssumeNotSold {
		return "assume-not-sold"
	}
	return "keep-stale"
}

type idSet map[int64]struct{}

const snapshotKey = "sold"

// Tracker combines a local set, written when this process sells, with a
// periodically fetched remote snapshot. An ID is sold if either source has it.
type Tracker struct {
	source SoldSource
	policy FailurePolicy
	log    zerolog.Logger

	mu       sync.RWMutex
	local    idSet
	lastGood idSet

	remote *cache.TimeBounded[string, idSet]
}

// New creates a tracker whose remote snapshot lives for ttl.
func New(source SoldSource, ttl time.Duration, policy FailurePolicy, log zerolog.Logger, opts ...cache.Option) *Tracker {
	return &Tracker{
		source: source,
		policy: policy,
		log:    log.With().Str("component", "sold_tracker").Str("policy", policy.String()).Logger(),
		local:  make(idSet),
		remote: cache.New[string, idSet]("sold", ttl, log, opts...),
	}
}

// MarkSold records a sale made by this process. No I/O.
func (t *Tracker) MarkSold(id int64) {
	t.mu.Lock()
	t.local[id] = struct{}{}
	t.mu.Unlock()
}

// WasSold reports whether id is known to be sold. The local set is checked
// first; the remote snapshot is consulted, and fetched if expired, only on a miss.
func (t *Tracker) WasSold(ctx context.Context, id int64) bool {
	t.mu.RLock()
	_, local := t.local[id]
	t.mu.RUnlock()
	if local {
		return true
	}

	_, remote := t.snapshot(ctx)[id]
	return remote
}

// Refresh forces a fetch of the remote snapshot.
func (t *Tracker) Refresh(ctx context.Context) error {
	ids, err := t.fetch(ctx, snapshotKey)
	if err != nil {
		return err
	}
	t.remote.Put(snapshotKey, ids)
	return nil
}

// Sweep drops the remote snapshot once expired.
func (t *Tracker) Sweep() int {
	return t.remote.Sweep()
}

// LocalCount is the number of locally recorded sales.
func (t *Tracker) LocalCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.local)
}

func (t *Tracker) snapshot(ctx context.Context) idSet {
	ids, err := t.remote.GetOrLoad(ctx, snapshotKey, t.fetch)
	if err == nil {
		return ids
	}

	if t.policy == AssumeNotSold {
		t.log.Warn().Err(err).Msg("Sold positions unavailable, assuming not sold")
		return nil
	}

	t.mu.RLock()
	stale := t.lastGood
	t.mu.RUnlock()
	t.log.Warn().Err(err).Bool("have_stale", stale != nil).Msg("Sold positions unavailable, using last known snapshot")
	return stale
}

func (t *Tracker) fetch(ctx context.Context, _ string) (idSet, error) {
	list, err := t.source.FetchSoldPositions(ctx, domain.SoldFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sold positions: %w", err)
	}
	ids := make(idSet, len(list))
	for _, id := range list {
		ids[id] = struct{}{}
	}

	t.mu.Lock()
	t.lastGood = ids
	t.mu.Unlock()
	return ids, nil
}
