package memory

import (
	"context"
	"sync"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

// GraphStore is the in-memory graph adapter. Categories and relationships
// are keyed per concept, mirroring the partition layout of the real graph
// store.
type GraphStore struct {
	mu            sync.RWMutex
	categories    map[string]map[string]*domain.Category     // conceptID -> categoryID
	relationships map[string]map[string]*domain.Relationship // conceptID -> relationshipID

	failNext []error
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		categories:    make(map[string]map[string]*domain.Category),
		relationships: make(map[string]map[string]*domain.Relationship),
	}
}

// FailNext queues errs to be returned, in order, by the next mutating calls.
func (s *GraphStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, errs...)
}

func (s *GraphStore) takeInjected() error {
	if len(s.failNext) == 0 {
		return nil
	}
	err := s.failNext[0]
	s.failNext = s.failNext[1:]
	return err
}

// CreateCategory stores a new category, rejecting duplicate ids.
func (s *GraphStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	byID, ok := s.categories[category.ConceptID]
	if !ok {
		byID = make(map[string]*domain.Category)
		s.categories[category.ConceptID] = byID
	}
	if _, exists := byID[category.ID]; exists {
		return nil, apperrors.NewConflict("category " + category.ID + " already exists")
	}
	stored := *category
	byID[category.ID] = &stored
	copied := stored
	return &copied, nil
}

// GetCategory returns a copy of the category.
func (s *GraphStore) GetCategory(ctx context.Context, conceptID, categoryID string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.categories[conceptID][categoryID]
	if !ok {
		return nil, apperrors.NewNotFound("category " + categoryID + " not found")
	}
	copied := *category
	return &copied, nil
}

// UpdateCategory replaces an existing category.
func (s *GraphStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	if _, ok := s.categories[category.ConceptID][category.ID]; !ok {
		return nil, apperrors.NewNotFound("category " + category.ID + " not found")
	}
	stored := *category
	s.categories[category.ConceptID][category.ID] = &stored
	copied := stored
	return &copied, nil
}

// DeleteCategory removes a category and every relationship touching it.
func (s *GraphStore) DeleteCategory(ctx context.Context, conceptID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	if _, ok := s.categories[conceptID][categoryID]; !ok {
		return apperrors.NewNotFound("category " + categoryID + " not found")
	}
	delete(s.categories[conceptID], categoryID)
	for id, rel := range s.relationships[conceptID] {
		if rel.SourceCategoryID == categoryID || rel.TargetCategoryID == categoryID {
			delete(s.relationships[conceptID], id)
		}
	}
	return nil
}

// CreateRelationship stores a new relationship after checking both endpoint
// categories exist under the same concept.
func (s *GraphStore) CreateRelationship(ctx context.Context, rel *domain.Relationship) (*domain.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return nil, err
	}
	byID := s.categories[rel.ConceptID]
	if _, ok := byID[rel.SourceCategoryID]; !ok {
		return nil, apperrors.NewValidationFailed("relationship source category does not belong to concept " + rel.ConceptID)
	}
	if _, ok := byID[rel.TargetCategoryID]; !ok {
		return nil, apperrors.NewValidationFailed("relationship target category does not belong to concept " + rel.ConceptID)
	}
	rels, ok := s.relationships[rel.ConceptID]
	if !ok {
		rels = make(map[string]*domain.Relationship)
		s.relationships[rel.ConceptID] = rels
	}
	if _, exists := rels[rel.ID]; exists {
		return nil, apperrors.NewConflict("relationship " + rel.ID + " already exists")
	}
	stored := *rel
	rels[rel.ID] = &stored
	copied := stored
	return &copied, nil
}

// DeleteRelationship removes a relationship.
func (s *GraphStore) DeleteRelationship(ctx context.Context, conceptID, relationshipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	if _, ok := s.relationships[conceptID][relationshipID]; !ok {
		return apperrors.NewNotFound("relationship " + relationshipID + " not found")
	}
	delete(s.relationships[conceptID], relationshipID)
	return nil
}

// GetGraphByConcept assembles the concept's full graph projection.
func (s *GraphStore) GetGraphByConcept(ctx context.Context, conceptID string) (*domain.ConceptGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	graph := domain.NewConceptGraph(conceptID)
	for _, category := range s.categories[conceptID] {
		copied := *category
		if err := graph.AddCategory(&copied); err != nil {
			return nil, err
		}
	}
	for _, rel := range s.relationships[conceptID] {
		copied := *rel
		if err := graph.AddRelationship(&copied); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

// DeleteGraphByConcept removes everything stored for a concept.
func (s *GraphStore) DeleteGraphByConcept(ctx context.Context, conceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	delete(s.categories, conceptID)
	delete(s.relationships, conceptID)
	return nil
}

// CountByConcept reports how many categories and relationships a concept
// has, for atomicity assertions.
func (s *GraphStore) CountByConcept(conceptID string) (categories, relationships int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories[conceptID]), len(s.relationships[conceptID])
}
