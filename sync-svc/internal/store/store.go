// Package store is the in-memory entity cache the UI layers read from. Writes are
// serialised per store; reads work on immutable snapshots and never take the lock.
package store

import (
	"sort"
	"sync"
	"sync/atomic"
)

type Entity[T any] interface {
	Key() string
	Equal(T) bool
}

type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeRemove ChangeOp = "remove"
)

// Change describes one logical mutation. For removals Value holds the last
// cached value.
type Change[T any] struct {
	Op    ChangeOp
	ID    string
	Value T
}

type Subscriber[T any] func(Change[T])

type Store[T Entity[T]] struct {
	mu   sync.Mutex
	data atomic.Pointer[map[string]T]
	less func(a, b T) bool

	subMu   sync.RWMutex
	subs    map[uint64]Subscriber[T]
	nextSub uint64
}

// New creates an empty store. less orders List results; nil keeps key order.
func New[T Entity[T]](less func(a, b T) bool) *Store[T] {
	s := &Store[T]{
		less: less,
		subs: make(map[uint64]Subscriber[T]),
	}
	empty := make(map[string]T)
	s.data.Store(&empty)
	return s
}

// Upsert stores v under its key. It reports false, and notifies nobody, when the
// cached value already equals v.
func (s *Store[T]) Upsert(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.data.Load()
	if old, ok := cur[v.Key()]; ok && old.Equal(v) {
		return false
	}
	next := clone(cur, 1)
	next[v.Key()] = v
	s.data.Store(&next)

	s.notify(Change[T]{Op: ChangeUpsert, ID: v.Key(), Value: v})
	return true
}

// Remove deletes id. Removing an absent id is a no-op.
func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.data.Load()
	old, ok := cur[id]
	if !ok {
		return false
	}
	next := clone(cur, 0)
	delete(next, id)
	s.data.Store(&next)

	s.notify(Change[T]{Op: ChangeRemove, ID: id, Value: old})
	return true
}

// Replace makes the store hold exactly items, notifying once per entity that
// was added, changed or dropped.
func (s *Store[T]) Replace(items []T) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.data.Load()
	next := make(map[string]T, len(items))
	for _, v := range items {
		next[v.Key()] = v
	}
	s.data.Store(&next)

	changed := 0
	for id, old := range cur {
		if _, ok := next[id]; !ok {
			s.notify(Change[T]{Op: ChangeRemove, ID: id, Value: old})
			changed++
		}
	}
	for id, v := range next {
		if old, ok := cur[id]; ok && old.Equal(v) {
			continue
		}
		s.notify(Change[T]{Op: ChangeUpsert, ID: id, Value: v})
		changed++
	}
	return changed
}

// Prune removes every entity for which keep returns false.
func (s *Store[T]) Prune(keep func(T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.data.Load()
	var dropped []T
	for _, v := range cur {
		if !keep(v) {
			dropped = append(dropped, v)
		}
	}
	if len(dropped) == 0 {
		return 0
	}
	next := clone(cur, 0)
	for _, v := range dropped {
		delete(next, v.Key())
	}
	s.data.Store(&next)

	for _, v := range dropped {
		s.notify(Change[T]{Op: ChangeRemove, ID: v.Key(), Value: v})
	}
	return len(dropped)
}

func (s *Store[T]) Clear() int {
	return s.Prune(func(T) bool { return false })
}

func (s *Store[T]) Get(id string) (T, bool) {
	v, ok := (*s.data.Load())[id]
	return v, ok
}

func (s *Store[T]) Len() int {
	return len(*s.data.Load())
}

// List returns the entities accepted by every filter, ordered by the store's
// less function.
func (s *Store[T]) List(filters ...func(T) bool) []T {
	cur := *s.data.Load()
	out := make([]T, 0, len(cur))
next:
	for _, v := range cur {
		for _, f := range filters {
			if f != nil && !f(v) {
				continue next
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.less != nil {
			if s.less(out[i], out[j]) {
				return true
			}
			if s.less(out[j], out[i]) {
				return false
			}
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Subscribe registers fn for every subsequent change. Callbacks run on the
// writer's goroutine after the change is visible to Get and List; they must not
// write to the same store.
func (s *Store[T]) Subscribe(fn Subscriber[T]) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store[T]) notify(c Change[T]) {
	s.subMu.RLock()
	subs := make([]Subscriber[T], 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(c)
	}
}

func clone[T any](m map[string]T, extra int) map[string]T {
	out := make(map[string]T, len(m)+extra)
	for k, v := range m {
		out[k] = v
	}
	return out
}
