package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// ThesisType is a taxonomy label for a thesis.
type ThesisType string

const (
	ThesisTypeOntological     ThesisType = "ontological"
	ThesisTypeEpistemological ThesisType = "epistemological"
	ThesisTypeEthical         ThesisType = "ethical"
	ThesisTypeGeneral         ThesisType = "general"
)

// Thesis is a natural-language proposition derived from (or feeding into)
// a concept's graph. The document store owns it.
type Thesis struct {
	ID                 string     `json:"id"`
	ConceptID          string     `json:"concept_id"`
	Type               ThesisType `json:"type"`
	Content            string     `json:"content"`
	RelatedCategoryIDs []string   `json:"related_category_ids,omitempty"`
	Style              string     `json:"style,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ParentThesisIDs    []string   `json:"parent_thesis_ids,omitempty"`
}

// NewThesis creates a thesis with a generated id.
func NewThesis(conceptID string, thesisType ThesisType, content, style string, relatedCategoryIDs []string) (*Thesis, error) {
	if strings.TrimSpace(conceptID) == "" {
		return nil, apperrors.NewValidationFailed("thesis concept id is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationFailed("thesis content is required")
	}
	if thesisType == "" {
		thesisType = ThesisTypeGeneral
	}

	return &Thesis{
		ID:                 uuid.New().String(),
		ConceptID:          conceptID,
		Type:               thesisType,
		Content:            content,
		Style:              style,
		RelatedCategoryIDs: append([]string(nil), relatedCategoryIDs...),
		CreatedAt:          time.Now().UTC(),
	}, nil
}
