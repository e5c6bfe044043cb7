package settlement

import (
	"sort"
	"sync"
)

// entityLocks serializes settlement per entity. A trade holds the locks for
// its account and its instrument for the whole read-modify-write, so two
// trades sharing either entity never interleave while disjoint pairs proceed
// concurrently.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*sync.Mutex)}
}

func (e *entityLocks) get(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	e.locks[key] = m
	return m
}

// lockPair acquires both entity locks in sorted key order, so two trades on
// overlapping pairs cannot deadlock. It returns the unlock function.
func (e *entityLocks) lockPair(a, b string) func() {
	keys := []string{a, b}
	sort.Strings(keys)
	first, second := e.get(keys[0]), e.get(keys[1])
	first.Lock()
	if second != first {
		second.Lock()
	}
	return func() {
		if second != first {
			second.Unlock()
		}
		first.Unlock()
	}
}
