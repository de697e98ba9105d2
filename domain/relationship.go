package domain

import (
	"strings"

	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// RelationshipDirection distinguishes directed edges from bidirectional ones.
type RelationshipDirection string

const (
	DirectionDirected      RelationshipDirection = "directed"
	DirectionBidirectional RelationshipDirection = "bidirectional"
)

// Relationship is an edge between two categories of the same concept.
type Relationship struct {
	ID               string                `json:"id"`
	ConceptID        string                `json:"concept_id"`
	SourceCategoryID string                `json:"source_category_id"`
	TargetCategoryID string                `json:"target_category_id"`
	Type             string                `json:"type"`
	Direction        RelationshipDirection `json:"direction"`
	Strength         float64               `json:"strength"`
	Certainty        float64               `json:"certainty"`
}

// NewRelationship creates a relationship after validating endpoints and weights.
// The invariant that source and target categories share the same concept is
// enforced by the graph adapter, which is the only component that can see
// both endpoint records.
func NewRelationship(conceptID, sourceCategoryID, targetCategoryID, relType string, direction RelationshipDirection, strength, certainty float64) (*Relationship, error) {
	if strings.TrimSpace(conceptID) == "" {
		return nil, apperrors.NewValidationFailed("relationship concept id is required")
	}
	if sourceCategoryID == "" || targetCategoryID == "" {
		return nil, apperrors.NewValidationFailed("relationship endpoints are required")
	}
	if sourceCategoryID == targetCategoryID {
		return nil, apperrors.NewValidationFailed("relationship endpoints must differ")
	}
	if direction != DirectionDirected && direction != DirectionBidirectional {
		return nil, apperrors.NewValidationFailed("relationship direction must be directed or bidirectional")
	}
	if strength < 0 || strength > 1 || certainty < 0 || certainty > 1 {
		return nil, apperrors.NewValidationFailed("relationship weights must be within [0,1]")
	}

	return &Relationship{
		ID:               uuid.New().String(),
		ConceptID:        conceptID,
		SourceCategoryID: sourceCategoryID,
		TargetCategoryID: targetCategoryID,
		Type:             relType,
		Direction:        direction,
		Strength:         strength,
		Certainty:        certainty,
	}, nil
}
