package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process KeyedCounterStore used for single-instance
// deployments. A single mutex guards the map, giving every Mutate call the
// per-key linearizability the lockout policy depends on.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]Entry),
	}
}

func (s *MemoryStore) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) Mutate(key Key, fn MutateFunc) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	next, keep := fn(cur, ok)
	if !keep {
		delete(s.entries, key)
		return Entry{}, false
	}
	s.entries[key] = next
	return next, true
}

func (s *MemoryStore) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *MemoryStore) Sweep(expired func(key Key, e Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if expired(k, e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Evict(n int, stamp func(key Key, e Entry) time.Time) int {
	if n <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type aged struct {
		key Key
		at  time.Time
	}
	candidates := make([]aged, 0, len(s.entries))
	for k, e := range s.entries {
		at := stamp(k, e)
		if at.IsZero() {
			continue
		}
		candidates = append(candidates, aged{key: k, at: at})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].at.Before(candidates[j].at)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		delete(s.entries, candidates[i].key)
	}
	return n
}
