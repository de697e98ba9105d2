package domain

import (
	"fmt"

	apperrors "noesis-backend/pkg/errors"
)

// ConceptGraph is the category/relationship structure representing a
// concept's internal logical structure. It is a projection assembled from
// the graph store, not an aggregate the store persists as one item.
type ConceptGraph struct {
	ConceptID     string          `json:"concept_id"`
	Categories    []*Category     `json:"categories"`
	Relationships []*Relationship `json:"relationships"`
}

// NewConceptGraph creates an empty graph for a concept.
func NewConceptGraph(conceptID string) *ConceptGraph {
	return &ConceptGraph{ConceptID: conceptID}
}

// AddCategory appends a category, rejecting cross-concept entries.
func (g *ConceptGraph) AddCategory(c *Category) error {
	if c.ConceptID != g.ConceptID {
		return apperrors.NewValidationFailed(
			fmt.Sprintf("category %s belongs to concept %s, not %s", c.ID, c.ConceptID, g.ConceptID))
	}
	g.Categories = append(g.Categories, c)
	return nil
}

// AddRelationship appends a relationship after checking both endpoints are
// categories of this graph.
func (g *ConceptGraph) AddRelationship(r *Relationship) error {
	if r.ConceptID != g.ConceptID {
		return apperrors.NewValidationFailed(
			fmt.Sprintf("relationship %s belongs to concept %s, not %s", r.ID, r.ConceptID, g.ConceptID))
	}
	if g.CategoryByID(r.SourceCategoryID) == nil || g.CategoryByID(r.TargetCategoryID) == nil {
		return apperrors.NewValidationFailed(
			fmt.Sprintf("relationship %s references categories outside the graph", r.ID))
	}
	g.Relationships = append(g.Relationships, r)
	return nil
}

// CategoryByID returns the category with the given id, or nil.
func (g *ConceptGraph) CategoryByID(id string) *Category {
	for _, c := range g.Categories {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// CategoryByName returns the first category with the given name, or nil.
// The reasoning service identifies input elements by name in synthesis
// responses, so name lookup is part of provenance matching.
func (g *ConceptGraph) CategoryByName(name string) *Category {
	for _, c := range g.Categories {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// IsEmpty reports whether the graph has no categories.
func (g *ConceptGraph) IsEmpty() bool {
	return len(g.Categories) == 0
}

// Validate checks graph-level invariants: unique category ids and
// relationships whose endpoints are present.
func (g *ConceptGraph) Validate() error {
	seen := make(map[string]struct{}, len(g.Categories))
	for _, c := range g.Categories {
		if c.ConceptID != g.ConceptID {
			return apperrors.NewValidationFailed(fmt.Sprintf("category %s has foreign concept id", c.ID))
		}
		if _, dup := seen[c.ID]; dup {
			return apperrors.NewValidationFailed(fmt.Sprintf("duplicate category id %s", c.ID))
		}
		seen[c.ID] = struct{}{}
	}
	for _, r := range g.Relationships {
		if _, ok := seen[r.SourceCategoryID]; !ok {
			return apperrors.NewValidationFailed(fmt.Sprintf("relationship %s has unknown source", r.ID))
		}
		if _, ok := seen[r.TargetCategoryID]; !ok {
			return apperrors.NewValidationFailed(fmt.Sprintf("relationship %s has unknown target", r.ID))
		}
	}
	return nil
}
