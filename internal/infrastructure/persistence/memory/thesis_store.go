package memory

import (
	"context"
	"sort"
	"sync"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

// ThesisStore is the in-memory document adapter for theses and synthesis
// provenance.
type ThesisStore struct {
	mu         sync.RWMutex
	theses     map[string]map[string]*domain.Thesis              // conceptID -> thesisID
	provenance map[string]map[string]*domain.SynthesisProvenance // conceptID -> recordID

	failNext []error
}

// NewThesisStore creates an empty thesis store.
func NewThesisStore() *ThesisStore {
	return &ThesisStore{
		theses:     make(map[string]map[string]*domain.Thesis),
		provenance: make(map[string]map[string]*domain.SynthesisProvenance),
	}
}

// FailNext queues errs to be returned, in order, by the next mutating calls.
func (s *ThesisStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, errs...)
}

func (s *ThesisStore) takeInjected() error {
	if len(s.failNext) == 0 {
		return nil
	}
	err := s.failNext[0]
	s.failNext = s.failNext[1:]
	return err
}

// CreateThesis stores a new thesis, rejecting duplicate ids.
func (s *ThesisStore) CreateThesis(ctx context.Context, thesis *domain.Thesis) (*domain.Thesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	byID, ok := s.theses[thesis.ConceptID]
	if !ok {
		byID = make(map[string]*domain.Thesis)
		s.theses[thesis.ConceptID] = byID
	}
	if _, exists := byID[thesis.ID]; exists {
		return nil, apperrors.NewConflict("thesis " + thesis.ID + " already exists")
	}
	stored := *thesis
	byID[thesis.ID] = &stored
	copied := stored
	return &copied, nil
}

// GetThesis returns a copy of the thesis.
func (s *ThesisStore) GetThesis(ctx context.Context, conceptID, thesisID string) (*domain.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thesis, ok := s.theses[conceptID][thesisID]
	if !ok {
		return nil, apperrors.NewNotFound("thesis " + thesisID + " not found")
	}
	copied := *thesis
	return &copied, nil
}

// DeleteThesis removes one thesis.
func (s *ThesisStore) DeleteThesis(ctx context.Context, conceptID, thesisID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	if _, ok := s.theses[conceptID][thesisID]; !ok {
		return apperrors.NewNotFound("thesis " + thesisID + " not found")
	}
	delete(s.theses[conceptID], thesisID)
	return nil
}

// GetThesesByConcept returns the concept's theses ordered by creation time.
func (s *ThesisStore) GetThesesByConcept(ctx context.Context, conceptID string) ([]*domain.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Thesis, 0, len(s.theses[conceptID]))
	for _, thesis := range s.theses[conceptID] {
		copied := *thesis
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteThesesByConcept removes every thesis of a concept.
func (s *ThesisStore) DeleteThesesByConcept(ctx context.Context, conceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	delete(s.theses, conceptID)
	return nil
}

// SaveProvenance stores a batch of provenance records.
func (s *ThesisStore) SaveProvenance(ctx context.Context, records []*domain.SynthesisProvenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	for _, record := range records {
		byID, ok := s.provenance[record.ConceptID]
		if !ok {
			byID = make(map[string]*domain.SynthesisProvenance)
			s.provenance[record.ConceptID] = byID
		}
		stored := *record
		byID[record.ID] = &stored
	}
	return nil
}

// GetProvenanceByConcept returns the concept's provenance records.
func (s *ThesisStore) GetProvenanceByConcept(ctx context.Context, conceptID string) ([]*domain.SynthesisProvenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.SynthesisProvenance, 0, len(s.provenance[conceptID]))
	for _, record := range s.provenance[conceptID] {
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteProvenanceByConcept removes every provenance record of a concept.
func (s *ThesisStore) DeleteProvenanceByConcept(ctx context.Context, conceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	delete(s.provenance, conceptID)
	return nil
}

// CountByConcept reports stored theses and provenance records for a
// concept, for atomicity assertions.
func (s *ThesisStore) CountByConcept(conceptID string) (theses, provenance int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.theses[conceptID]), len(s.provenance[conceptID])
}
