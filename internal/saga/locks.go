package saga

import (
	"sort"
	"sync"
)

// ConceptLocks is the advisory per-concept lock table. Plans touching the
// same concept serialize; plans touching disjoint concepts run freely.
// Acquisition is in sorted id order so two plans over an overlapping id set
// cannot deadlock.
type ConceptLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewConceptLocks creates an empty lock table.
func NewConceptLocks() *ConceptLocks {
	return &ConceptLocks{entries: make(map[string]*lockEntry)}
}

// Acquire locks every id and returns the release function. Duplicate ids
// are collapsed; release order is the reverse of acquisition.
func (l *ConceptLocks) Acquire(ids []string) (release func()) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	held := make([]*lockEntry, 0, len(unique))
	for _, id := range unique {
		entry := l.retain(id)
		entry.mu.Lock()
		held = append(held, entry)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.releaseEntry(unique[i])
			}
		})
	}
}

func (l *ConceptLocks) retain(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	return entry
}

func (l *ConceptLocks) releaseEntry(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, id)
	}
}
