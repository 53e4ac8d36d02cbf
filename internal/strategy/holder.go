package strategy

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

type loaded struct {
	provider domain.StrategyProvider
}

// Holder keeps the current strategy. Readers never block a reload.
type Holder struct {
	current atomic.Pointer[loaded]
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the loaded strategy, if any.
func (h *Holder) Current() (domain.StrategyProvider, bool) {
	l := h.current.Load()
	if l == nil || l.provider == nil {
		return nil, false
	}
	return l.provider, true
}

// Set replaces the strategy. A nil provider unloads it.
func (h *Holder) Set(p domain.StrategyProvider) {
	if p == nil {
		h.current.Store(nil)
		return
	}
	h.current.Store(&loaded{provider: p})
}

// LoadTask reloads a strategy file into a Holder when the file changes.
// A file that fails to load leaves the previous strategy in place.
type LoadTask struct {
	path   string
	holder *Holder
	log    zerolog.Logger

	modTime time.Time
}

// NewLoadTask creates the task. An empty path means no strategy is ever loaded.
func NewLoadTask(path string, holder *Holder, log zerolog.Logger) *LoadTask {
	return &LoadTask{
		path:   path,
		holder: holder,
		log:    log.With().Str("job", "strategy_load").Logger(),
	}
}

func (t *LoadTask) Name() string {
	return "strategy:load"
}

func (t *LoadTask) Run(ctx context.Context) error {
	if t.path == "" {
		return nil
	}

	info, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	if info.ModTime().Equal(t.modTime) {
		return nil
	}

	s, err := LoadStatic(t.path)
	if err != nil {
		return err
	}
	t.holder.Set(s)
	t.modTime = info.ModTime()

	t.log.Info().Str("strategy", s.Name()).Str("path", t.path).Msg("Strategy loaded")
	return nil
}
