package cache

import (
	"container/list"
	"sync"
)

// Registry keeps one value per identity and retains at most limit of them,
// dropping the least recently used. It is owned by the process wiring, not global.
type Registry[K comparable, V any] struct {
	limit   int
	onEvict func(K, V)

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[K]*list.Element
}

type registryItem[K comparable, V any] struct {
	key   K
	value V
}

// NewRegistry creates a registry. limit <= 0 means unbounded.
func NewRegistry[K comparable, V any](limit int, onEvict func(K, V)) *Registry[K, V] {
	return &Registry[K, V]{
		limit:   limit,
		onEvict: onEvict,
		order:   list.New(),
		items:   make(map[K]*list.Element),
	}
}

// GetOrCreate returns the value for key, constructing it once if absent.
// ctor runs under the registry lock and must not call back into the registry.
func (r *Registry[K, V]) GetOrCreate(key K, ctor func(K) V) V {
	r.mu.Lock()
	if el, ok := r.items[key]; ok {
		r.order.MoveToFront(el)
		v := el.Value.(*registryItem[K, V]).value
		r.mu.Unlock()
		return v
	}

	v := ctor(key)
	r.items[key] = r.order.PushFront(&registryItem[K, V]{key: key, value: v})

	var evicted []*registryItem[K, V]
	for r.limit > 0 && r.order.Len() > r.limit {
		oldest := r.order.Back()
		item := oldest.Value.(*registryItem[K, V])
		r.order.Remove(oldest)
		delete(r.items, item.key)
		evicted = append(evicted, item)
	}
	r.mu.Unlock()

	if r.onEvict != nil {
		for _, item := range evicted {
			r.onEvict(item.key, item.value)
		}
	}
	return v
}

// Peek returns the value without touching its recency.
func (r *Registry[K, V]) Peek(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.items[key]; ok {
		return el.Value.(*registryItem[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Len returns the number of retained values.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Keys lists identities, most recently used first.
func (r *Registry[K, V]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]K, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*registryItem[K, V]).key)
	}
	return keys
}
