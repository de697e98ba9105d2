package memory

import (
	"context"
	"sync"
	"time"

	"noesis-backend/internal/repository"
	apperrors "noesis-backend/pkg/errors"
)

// PlanStatusStore tracks async plan submissions in memory. Terminal records
// expire after a TTL so the map does not grow without bound.
type PlanStatusStore struct {
	mu      sync.RWMutex
	records map[string]*statusRecord
	ttl     time.Duration
}

type statusRecord struct {
	record    repository.PlanStatusRecord
	expiresAt time.Time
}

// NewPlanStatusStore creates a status store whose terminal records live for
// ttl. A zero ttl keeps records for an hour.
func NewPlanStatusStore(ttl time.Duration) *PlanStatusStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PlanStatusStore{
		records: make(map[string]*statusRecord),
		ttl:     ttl,
	}
}

// Put stores or replaces a record. Terminal records start their expiry
// clock here.
func (s *PlanStatusStore) Put(ctx context.Context, record *repository.PlanStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := &statusRecord{record: *record}
	stored.record.ConceptIDs = append([]string(nil), record.ConceptIDs...)
	if record.Terminal() {
		stored.expiresAt = time.Now().Add(s.ttl)
	}
	s.records[record.PlanID] = stored
	return nil
}

// Get returns the record for a plan id.
func (s *PlanStatusStore) Get(ctx context.Context, planID string) (*repository.PlanStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.records[planID]
	if !ok {
		return nil, apperrors.NewNotFound("plan " + planID + " not found")
	}
	if !stored.expiresAt.IsZero() && time.Now().After(stored.expiresAt) {
		return nil, apperrors.NewNotFound("plan " + planID + " not found")
	}
	copied := stored.record
	return &copied, nil
}

// StartCleanup launches a background sweep of expired records and returns a
// stop function.
func (s *PlanStatusStore) StartCleanup(interval time.Duration) func() {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	return func() { close(done) }
}

func (s *PlanStatusStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stored := range s.records {
		if !stored.expiresAt.IsZero() && now.After(stored.expiresAt) {
			delete(s.records, id)
		}
	}
}
