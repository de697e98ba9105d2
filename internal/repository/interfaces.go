// Package repository defines the narrow store adapter interfaces the saga
// coordinator depends on. Each adapter owns one entity family and performs
// no cross-store validation; relational, graph and document stores are
// interchangeable implementations behind these interfaces.
package repository

import (
	"context"

	"noesis-backend/domain"
)

// ConceptRepository is the relational store adapter. Concepts are
// soft-deleted via Archive; Delete exists solely so compensation can remove
// a concept that was created inside a failed plan and never became visible.
type ConceptRepository interface {
	CreateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error)
	GetConcept(ctx context.Context, id string) (*domain.Concept, error)
	UpdateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error)
	ArchiveConcept(ctx context.Context, id string) error
	DeleteConcept(ctx context.Context, id string) error
}

// GraphRepository is the graph store adapter for categories and
// relationships. It enforces the single store-local invariant it can see:
// a relationship's endpoints must belong to the same concept.
type GraphRepository interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, conceptID, categoryID string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, conceptID, categoryID string) error

	CreateRelationship(ctx context.Context, rel *domain.Relationship) (*domain.Relationship, error)
	DeleteRelationship(ctx context.Context, conceptID, relationshipID string) error

	GetGraphByConcept(ctx context.Context, conceptID string) (*domain.ConceptGraph, error)
	DeleteGraphByConcept(ctx context.Context, conceptID string) error
}

// ThesisRepository is the document store adapter. Synthesis provenance is
// document-shaped audit data and lives alongside theses.
type ThesisRepository interface {
	CreateThesis(ctx context.Context, thesis *domain.Thesis) (*domain.Thesis, error)
	GetThesis(ctx context.Context, conceptID, thesisID string) (*domain.Thesis, error)
	DeleteThesis(ctx context.Context, conceptID, thesisID string) error
	GetThesesByConcept(ctx context.Context, conceptID string) ([]*domain.Thesis, error)
	DeleteThesesByConcept(ctx context.Context, conceptID string) error

	SaveProvenance(ctx context.Context, records []*domain.SynthesisProvenance) error
	GetProvenanceByConcept(ctx context.Context, conceptID string) ([]*domain.SynthesisProvenance, error)
	DeleteProvenanceByConcept(ctx context.Context, conceptID string) error
}
