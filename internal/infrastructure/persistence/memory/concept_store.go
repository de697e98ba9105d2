// Package memory provides in-memory store adapters. They back development
// mode and tests; their error semantics mirror the real adapters exactly so
// saga behavior is identical against either.
package memory

import (
	"context"
	"sync"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

// ConceptStore is the in-memory relational adapter.
type ConceptStore struct {
	mu       sync.RWMutex
	concepts map[string]*domain.Concept

	// failNext queues injected errors, used by tests to simulate transient
	// and permanent store failures.
	failNext []error
}

// NewConceptStore creates an empty concept store.
func NewConceptStore() *ConceptStore {
	return &ConceptStore{concepts: make(map[string]*domain.Concept)}
}

// FailNext queues errs to be returned, in order, by the next mutating calls.
func (s *ConceptStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, errs...)
}

func (s *ConceptStore) takeInjected() error {
	if len(s.failNext) == 0 {
		return nil
	}
	err := s.failNext[0]
	s.failNext = s.failNext[1:]
	return err
}

// CreateConcept stores a new concept, rejecting duplicate ids.
func (s *ConceptStore) CreateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	if _, exists := s.concepts[concept.ID]; exists {
		return nil, apperrors.NewConflict("concept " + concept.ID + " already exists")
	}
	stored := *concept
	s.concepts[concept.ID] = &stored
	copied := stored
	return &copied, nil
}

// GetConcept returns a copy of the concept.
func (s *ConceptStore) GetConcept(ctx context.Context, id string) (*domain.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	concept, ok := s.concepts[id]
	if !ok {
		return nil, apperrors.NewNotFound("concept " + id + " not found")
	}
	copied := *concept
	return &copied, nil
}

// UpdateConcept replaces an existing concept.
func (s *ConceptStore) UpdateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	if _, ok := s.concepts[concept.ID]; !ok {
		return nil, apperrors.NewNotFound("concept " + concept.ID + " not found")
	}
	stored := *concept
	stored.Touch()
	s.concepts[concept.ID] = &stored
	copied := stored
	return &copied, nil
}

// ArchiveConcept soft-deletes a concept.
func (s *ConceptStore) ArchiveConcept(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	concept, ok := s.concepts[id]
	if !ok {
		return apperrors.NewNotFound("concept " + id + " not found")
	}
	concept.Archive()
	return nil
}

// DeleteConcept removes a concept outright. Compensation-only.
func (s *ConceptStore) DeleteConcept(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	delete(s.concepts, id)
	return nil
}

// Snapshot returns a copy of the current state, for atomicity assertions.
func (s *ConceptStore) Snapshot() map[string]domain.Concept {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Concept, len(s.concepts))
	for id, c := range s.concepts {
		out[id] = *c
	}
	return out
}
