// Package shardedmap provides a fixed-shard-count concurrent map building
// block. Each shard is an independently RWMutex-guarded Go map; the shard
// for a key is chosen by hashing the key with FNV-1a. Distinct shards never
// contend; operations against the same key always serialize against each
// other, matching the "writers per key serialize, distinct keys never
// block each other" discipline the registry and known-entity caches need.
package shardedmap

import (
	"sync"
)

// shardCount is rounded up to a power of two so the shard-selection mask is
// a single AND. 64 shards comfortably spreads contention across the
// GOMAXPROCS range typical of a tracker host without wasting memory on
// mostly-empty shards for small caches.
const shardCount = 64

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// Map is a sharded concurrent map from K to V.
type Map[K comparable, V any] struct {
	shards [shardCount]*shard[K, V]
	hash   func(K) uint64
}

// New builds a Map whose shard for a key is chosen via hash(key).
func New[K comparable, V any](hash func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{hash: hash}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{m: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hash(key)&(shardCount-1)]
}

// Get returns the value stored for key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores value under key, overwriting any existing entry.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// Delete removes key, reporting whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	_, existed := s.m[key]
	delete(s.m, key)
	s.mu.Unlock()
	return existed
}

// Upsert runs fn against the current value for key (zero value and false if
// absent) while holding the shard's write lock, and stores whatever fn
// returns when ok is true; when ok is false the key is left untouched (or
// deleted if it existed and del is true). This is the primitive every
// check-then-write operation in the registry and caches is built from, so
// the whole transition is atomic with respect to other writers of the same
// key without serializing writers of unrelated keys.
func (m *Map[K, V]) Upsert(key K, fn func(old V, existed bool) (newValue V, store bool, del bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.m[key]
	newValue, store, del := fn(old, existed)

	switch {
	case del:
		delete(s.m, key)
	case store:
		s.m[key] = newValue
	}
}

// Len returns the total number of entries across all shards. It is not a
// point-in-time consistent snapshot under concurrent writers, but each
// shard is read under its own lock.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}

// Clear empties every shard.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.m = make(map[K]V)
		s.mu.Unlock()
	}
}

// Range calls fn for every key/value pair, shard by shard, holding only
// that shard's read lock at a time. fn MUST NOT call back into the Map for
// the same shard. Iteration order is unspecified. If fn returns false,
// Range stops early.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		cont := true
		for k, v := range s.m {
			if !fn(k, v) {
				cont = false
				break
			}
		}
		s.mu.RUnlock()
		if !cont {
			return
		}
	}
}

// Snapshot returns a copy of every key currently stored, shard by shard
// under read locks. Used by operations (blacklist listing, rate-limiter
// cleanup) that must iterate
// without holding any lock across the callback that follows.
func (m *Map[K, V]) Snapshot() []K {
	keys := make([]K, 0, shardCount)
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
