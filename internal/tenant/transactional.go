package tenant

import (
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transactional buffers state writes and notifications of the wrapped tenant
// until Commit. Reads and remote calls pass straight through.
// Commit, Abort and Close must not be called concurrently.
type Transactional struct {
	Tenant
	id    string
	queue Queue
	log   zerolog.Logger
}

// NewTransactional starts a transaction on t.
func NewTransactional(t Tenant, log zerolog.Logger) *Transactional {
	id := uuid.NewString()
	return &Transactional{
		Tenant: t,
		id:     id,
		log: log.With().
			Str("tenant", t.SessionInfo().Username).
			Str("transaction", id).
			Logger(),
	}
}

// ID identifies the transaction in logs.
func (t *Transactional) ID() string {
	return t.id
}

// State returns a view whose writes are deferred.
func (t *Transactional) State(namespace string) state.State {
	return &deferredState{parent: t.Tenant.State(namespace), namespace: namespace, queue: &t.queue}
}

// Fire defers the event until commit.
func (t *Transactional) Fire(event events.Event) {
	if event.Session == "" {
		event.Session = t.SessionInfo().Username
	}
	t.queue.Append(FireEvent(event))
}

// Pending returns a copy of the buffered commands.
func (t *Transactional) Pending() []Command {
	return t.queue.Snapshot()
}

// Commit executes every buffered command in append order. Consecutive state
// commands for one namespace are written as a single batch; an event is fired
// only after the state commands before it are written.
func (t *Transactional) Commit() error {
	cmds := t.queue.Drain()
	if len(cmds) == 0 {
		return nil
	}
	start := time.Now()

	var batchNS string
	var batch []state.Op
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := t.Tenant.State(batchNS).Apply(batch)
		batch = nil
		if err != nil {
			return fmt.Errorf("failed to apply state for %s: %w", batchNS, err)
		}
		return nil
	}

	for i, cmd := range cmds {
		if cmd.IsState() {
			if len(batch) > 0 && cmd.Namespace != batchNS {
				if err := flush(); err != nil {
					t.log.Error().Err(err).Int("skipped", len(cmds)-i).Msg("Commit failed")
					return err
				}
			}
			batchNS = cmd.Namespace
			batch = append(batch, cmd.op())
			continue
		}
		if err := flush(); err != nil {
			t.log.Error().Err(err).Int("skipped", len(cmds)-i).Msg("Commit failed")
			return err
		}
		t.Tenant.Fire(cmd.Event)
	}
	if err := flush(); err != nil {
		t.log.Error().Err(err).Msg("Commit failed")
		return err
	}

	t.log.Debug().Int("commands", len(cmds)).Dur("duration", time.Since(start)).Msg("Transaction committed")
	return nil
}

// Abort drops every buffered command without executing it.
func (t *Transactional) Abort() {
	if n := t.queue.Discard(); n > 0 {
		t.log.Debug().Int("commands", n).Msg("Transaction aborted")
	}
}

// Close fails if commands are still buffered; the caller must Commit or
// Abort first. The buffered commands are dropped, never executed.
func (t *Transactional) Close() error {
	if n := t.queue.Discard(); n > 0 {
		err := fmt.Errorf("transaction %s closed with %d uncommitted commands: %w", t.id, n, domain.ErrInvariant)
		t.log.Error().Err(err).Msg("Transaction not committed or aborted")
		return err
	}
	return nil
}

// deferredState reads through to the parent and queues writes.
type deferredState struct {
	parent    state.State
	namespace string
	queue     *Queue
}

func (s *deferredState) Get(key string) (string, bool) {
	return s.parent.Get(key)
}

func (s *deferredState) Keys() []string {
	return s.parent.Keys()
}

func (s *deferredState) LastUpdated() (time.Time, bool) {
	return s.parent.LastUpdated()
}

func (s *deferredState) Update(fn func(*state.Batch)) error {
	var b state.Batch
	fn(&b)
	return s.Apply(b.Ops())
}

func (s *deferredState) Reset() error {
	s.queue.Append(ResetState(s.namespace))
	return nil
}

// Apply validates immediately and queues the ops.
func (s *deferredState) Apply(ops []state.Op) error {
	var b state.Batch
	for _, op := range ops {
		switch op.Kind {
		case state.OpSet:
			b.Set(op.Key, op.Value)
		case state.OpUnset:
			b.Unset(op.Key)
		}
	}
	if err := b.Validate(); err != nil {
		return err
	}

	cmds := make([]Command, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case state.OpSet:
			cmds = append(cmds, SetState(s.namespace, op.Key, op.Value))
		case state.OpUnset:
			cmds = append(cmds, UnsetState(s.namespace, op.Key))
		case state.OpClear:
			cmds = append(cmds, ResetState(s.namespace))
		}
	}
	s.queue.Append(cmds...)
	return nil
}
