package domain

import (
	"strings"

	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// DefaultWeight is used when the reasoning service omits a centrality,
// certainty or strength value. It is a documented fallback, not an inference.
const DefaultWeight = 0.5

// Category is a node in a concept's graph, owned by the graph store.
// ConceptID is a back-reference, not ownership: the referenced concept must
// exist and not be archived.
type Category struct {
	ID                     string  `json:"id"`
	ConceptID              string  `json:"concept_id"`
	Name                   string  `json:"name"`
	Definition             string  `json:"definition"`
	Centrality             float64 `json:"centrality"`
	Certainty              float64 `json:"certainty"`
	HistoricalSignificance float64 `json:"historical_significance"`
}

// NewCategory creates a category after validating its weights.
func NewCategory(conceptID, name, definition string, centrality, certainty, historicalSignificance float64) (*Category, error) {
	if strings.TrimSpace(conceptID) == "" {
		return nil, apperrors.NewValidationFailed("category concept id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationFailed("category name is required")
	}
	for _, w := range []float64{centrality, certainty, historicalSignificance} {
		if w < 0 || w > 1 {
			return nil, apperrors.NewValidationFailed("category weights must be within [0,1]")
		}
	}

	return &Category{
		ID:                     uuid.New().String(),
		ConceptID:              conceptID,
		Name:                   name,
		Definition:             definition,
		Centrality:             centrality,
		Certainty:              certainty,
		HistoricalSignificance: historicalSignificance,
	}, nil
}
