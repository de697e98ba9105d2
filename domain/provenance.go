package domain

import (
	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// ElementKind identifies what kind of synthesized element a provenance
// record describes.
type ElementKind string

const (
	ElementKindCategory     ElementKind = "category"
	ElementKindRelationship ElementKind = "relationship"
	ElementKindThesis       ElementKind = "thesis"
)

// TransformationKind describes how a synthesized element relates to its origin.
type TransformationKind string

const (
	TransformationUnchanged TransformationKind = "unchanged"
	TransformationModified  TransformationKind = "modified"
	TransformationNew       TransformationKind = "new"
)

// SynthesisProvenance records the origin of a single element produced by a
// synthesis plan. Every synthesized category, relationship and thesis has
// exactly one record, which is what lets a synthesized concept be audited
// back to its parents.
type SynthesisProvenance struct {
	ID              string             `json:"id"`
	ConceptID       string             `json:"concept_id"` // the synthesized concept
	ElementID       string             `json:"element_id"`
	ElementKind     ElementKind        `json:"element_kind"`
	OriginConceptID string             `json:"origin_concept_id,omitempty"` // empty when new
	Transformation  TransformationKind `json:"transformation"`
	Justification   string             `json:"justification,omitempty"`
}

// NewProvenance creates a provenance record for a synthesized element.
func NewProvenance(conceptID, elementID string, kind ElementKind, originConceptID string, transformation TransformationKind, justification string) (*SynthesisProvenance, error) {
	if conceptID == "" || elementID == "" {
		return nil, apperrors.NewValidationFailed("provenance requires concept and element ids")
	}
	if transformation == TransformationNew && originConceptID != "" {
		return nil, apperrors.NewValidationFailed("a new element cannot have an origin concept")
	}
	if transformation != TransformationNew && originConceptID == "" {
		return nil, apperrors.NewValidationFailed("an unchanged or modified element requires an origin concept")
	}

	return &SynthesisProvenance{
		ID:              uuid.New().String(),
		ConceptID:       conceptID,
		ElementID:       elementID,
		ElementKind:     kind,
		OriginConceptID: originConceptID,
		Transformation:  transformation,
		Justification:   justification,
	}, nil
}
