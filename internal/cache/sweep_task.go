package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// Sweeper is anything that can drop its expired entries.
type Sweeper interface {
	Sweep() int
}

// SweepTask runs periodic eviction over one or more caches.
type SweepTask struct {
	name     string
	sweepers []Sweeper
	log      zerolog.Logger
}

// NewSweepTask creates a sweep task named name.
func NewSweepTask(name string, log zerolog.Logger, sweepers ...Sweeper) *SweepTask {
	return &SweepTask{
		name:     name,
		sweepers: sweepers,
		log:      log.With().Str("job", name).Logger(),
	}
}

func (t *SweepTask) Name() string {
	return t.name
}

// Run sweeps every cache. It never fails.
func (t *SweepTask) Run(ctx context.Context) error {
	removed := 0
	for _, s := range t.sweepers {
		if ctx.Err() != nil {
			break
		}
		removed += s.Sweep()
	}
	if removed > 0 {
		t.log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
	return nil
}
