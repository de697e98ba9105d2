// Package domain contains the core entities shared by the store adapters,
// the transform engine and the saga coordinator: concepts, their category
// graphs, theses and synthesis provenance.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// ConceptStatus is the lifecycle state of a concept.
type ConceptStatus string

const (
	ConceptStatusDraft     ConceptStatus = "draft"
	ConceptStatusPublished ConceptStatus = "published"
	// ConceptStatusArchived is the soft-delete state. Concepts are never
	// hard-deleted once published so provenance links stay resolvable.
	ConceptStatusArchived ConceptStatus = "archived"
)

// MaxParentConcepts bounds how many parents a synthesis can have.
const MaxParentConcepts = 2

// Concept is an identified unit of philosophical content. The relational
// store owns it; LastModified is bumped on every successful mutation.
type Concept struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Status           ConceptStatus `json:"status"`
	IsSynthesis      bool          `json:"is_synthesis"`
	ParentConceptIDs []string      `json:"parent_concept_ids,omitempty"`
	SynthesisMethod  string        `json:"synthesis_method,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	LastModified     time.Time     `json:"last_modified"`
}

// NewConcept creates a draft concept with a generated id.
func NewConcept(name, description string) (*Concept, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationFailed("concept name is required")
	}

	now := time.Now().UTC()
	return &Concept{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Status:       ConceptStatusDraft,
		CreatedAt:    now,
		LastModified: now,
	}, nil
}

// NewSynthesisConcept creates a draft concept that records its parents and
// the synthesis method that produced it.
func NewSynthesisConcept(name, description, method string, parentIDs []string) (*Concept, error) {
	c, err := NewConcept(name, description)
	if err != nil {
		return nil, err
	}
	if len(parentIDs) == 0 || len(parentIDs) > MaxParentConcepts {
		return nil, apperrors.NewValidationFailed("a synthesis requires between 1 and 2 parent concepts")
	}
	if strings.TrimSpace(method) == "" {
		return nil, apperrors.NewValidationFailed("synthesis method is required")
	}

	c.IsSynthesis = true
	c.ParentConceptIDs = append([]string(nil), parentIDs...)
	c.SynthesisMethod = method
	return c, nil
}

// Publish transitions the concept from draft to published.
func (c *Concept) Publish() error {
	if c.Status == ConceptStatusArchived {
		return apperrors.NewConflict("cannot publish an archived concept")
	}
	c.Status = ConceptStatusPublished
	c.Touch()
	return nil
}

// Archive soft-deletes the concept, preserving provenance links.
func (c *Concept) Archive() {
	c.Status = ConceptStatusArchived
	c.Touch()
}

// IsArchived reports whether the concept has been soft-deleted.
func (c *Concept) IsArchived() bool {
	return c.Status == ConceptStatusArchived
}

// Touch updates the last-modified timestamp.
func (c *Concept) Touch() {
	c.LastModified = time.Now().UTC()
}
