package memory

import (
	"context"
	"sync"

	"noesis-backend/internal/repository"
)

// SagaLogStore is the in-memory append-only saga log.
type SagaLogStore struct {
	mu      sync.RWMutex
	entries map[string][]*repository.SagaLogEntry
	order   []string
}

// NewSagaLogStore creates an empty saga log.
func NewSagaLogStore() *SagaLogStore {
	return &SagaLogStore{entries: make(map[string][]*repository.SagaLogEntry)}
}

// Append writes one entry.
func (s *SagaLogStore) Append(ctx context.Context, entry *repository.SagaLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.entries[entry.PlanID]; !seen {
		s.order = append(s.order, entry.PlanID)
	}
	stored := *entry
	stored.ConceptIDs = append([]string(nil), entry.ConceptIDs...)
	s.entries[entry.PlanID] = append(s.entries[entry.PlanID], &stored)
	return nil
}

// Entries returns all entries for a plan in append order.
func (s *SagaLogStore) Entries(ctx context.Context, planID string) ([]*repository.SagaLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[planID]
	out := make([]*repository.SagaLogEntry, len(stored))
	for i, e := range stored {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

// PendingPlanIDs returns plans whose latest marker entry is still pending,
// i.e. plans that never reached a terminal marker.
func (s *SagaLogStore) PendingPlanIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []string
	for _, planID := range s.order {
		status := repository.SagaLogStatus("")
		for _, e := range s.entries[planID] {
			if e.StepIndex == repository.PlanMarkerIndex {
				status = e.Status
			}
		}
		if status == repository.SagaLogPending {
			pending = append(pending, planID)
		}
	}
	return pending, nil
}
