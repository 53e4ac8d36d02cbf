package state

import (
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
)

// LastUpdatedKey is maintained by the store on every applied batch.
const LastUpdatedKey = "last_updated"

// State is the namespaced view components use to persist their own data.
type State interface {
	Get(key string) (string, bool)
	Keys() []string
	LastUpdated() (time.Time, bool)
	Update(fn func(*Batch)) error
	Reset() error
	Apply(ops []Op) error
}

// Batch collects mutations that are applied all at once.
type Batch struct {
	ops []Op
}

// Set records a key write.
func (b *Batch) Set(key, value string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Key: key, Value: value})
	return b
}

// Unset records a key removal.
func (b *Batch) Unset(key string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUnset, Key: key})
	return b
}

// Ops returns a copy of the recorded mutations.
func (b *Batch) Ops() []Op {
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

// Validate rejects writes to keys the store manages itself.
func (b *Batch) Validate() error {
	for _, op := range b.ops {
		if op.Key == LastUpdatedKey {
			return fmt.Errorf("key %q is reserved: %w", LastUpdatedKey, domain.ErrInvariant)
		}
	}
	return nil
}

// Instance is a State bound to one namespace of a Store.
type Instance struct {
	store     *Store
	namespace string
	now       func() time.Time
}

// Instance returns the view for namespace.
func (s *Store) Instance(namespace string) *Instance {
	return &Instance{store: s, namespace: namespace, now: time.Now}
}

// Namespace returns the section this view writes to.
func (i *Instance) Namespace() string {
	return i.namespace
}

func (i *Instance) Get(key string) (string, bool) {
	return i.store.Get(i.namespace, key)
}

// Keys lists user keys, without the reserved timestamp.
func (i *Instance) Keys() []string {
	all := i.store.Keys(i.namespace)
	keys := all[:0]
	for _, k := range all {
		if k != LastUpdatedKey {
			keys = append(keys, k)
		}
	}
	return keys
}

// LastUpdated returns when a batch was last applied to this namespace.
func (i *Instance) LastUpdated() (time.Time, bool) {
	raw, ok := i.store.Get(i.namespace, LastUpdatedKey)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Update builds a batch with fn and applies it.
func (i *Instance) Update(fn func(*Batch)) error {
	var b Batch
	fn(&b)
	return i.Apply(b.Ops())
}

// Reset removes every key of the namespace.
func (i *Instance) Reset() error {
	return i.Apply([]Op{{Kind: OpClear}})
}

// Apply validates ops, stamps the namespace and persists everything in one write.
func (i *Instance) Apply(ops []Op) error {
	b := Batch{ops: ops}
	if err := b.Validate(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	stamped := append(b.Ops(), Op{Kind: OpSet, Key: LastUpdatedKey, Value: i.now().UTC().Format(time.RFC3339Nano)})
	return i.store.Apply(i.namespace, stamped)
}
