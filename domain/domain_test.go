package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

func TestNewConcept_RequiresName(t *testing.T) {
	_, err := domain.NewConcept("  ", "description without a name")

	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestConcept_Lifecycle(t *testing.T) {
	concept, err := domain.NewConcept("Substance", "that which underlies change")
	require.NoError(t, err)
	assert.Equal(t, domain.ConceptStatusDraft, concept.Status)

	require.NoError(t, concept.Publish())
	assert.Equal(t, domain.ConceptStatusPublished, concept.Status)

	concept.Archive()
	assert.True(t, concept.IsArchived())
	assert.True(t, apperrors.IsConflict(concept.Publish()), "archived concepts cannot be republished")
}

func TestNewSynthesisConcept_ParentBounds(t *testing.T) {
	_, err := domain.NewSynthesisConcept("Becoming", "", "dialectical", nil)
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = domain.NewSynthesisConcept("Becoming", "", "dialectical", []string{"a", "b", "c"})
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = domain.NewSynthesisConcept("Becoming", "", "", []string{"a", "b"})
	assert.True(t, apperrors.IsValidationFailed(err), "method is required")

	concept, err := domain.NewSynthesisConcept("Becoming", "", "dialectical", []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, concept.IsSynthesis)
	assert.Equal(t, []string{"a", "b"}, concept.ParentConceptIDs)
}

func TestNewCategory_WeightBounds(t *testing.T) {
	_, err := domain.NewCategory("c-1", "Essence", "", 1.2, 0.5, 0.5)
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = domain.NewCategory("c-1", "Essence", "", 0.5, -0.1, 0.5)
	assert.True(t, apperrors.IsValidationFailed(err))

	category, err := domain.NewCategory("c-1", "Essence", "what a thing is", 1, 0, 0.5)
	require.NoError(t, err)
	assert.NotEmpty(t, category.ID)
}

func TestNewRelationship_Validation(t *testing.T) {
	_, err := domain.NewRelationship("c-1", "a", "a", "entails", domain.DirectionDirected, 0.5, 0.5)
	assert.True(t, apperrors.IsValidationFailed(err), "endpoints must differ")

	_, err = domain.NewRelationship("c-1", "a", "b", "entails", "sideways", 0.5, 0.5)
	assert.True(t, apperrors.IsValidationFailed(err), "direction is constrained")

	rel, err := domain.NewRelationship("c-1", "a", "b", "entails", domain.DirectionBidirectional, 0.9, 0.8)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBidirectional, rel.Direction)
}

func TestConceptGraph_Validate(t *testing.T) {
	graph := domain.NewConceptGraph("c-1")
	assert.True(t, graph.IsEmpty())

	being, err := domain.NewCategory("c-1", "Being", "", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	nothing, err := domain.NewCategory("c-1", "Nothing", "", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	require.NoError(t, graph.AddCategory(being))
	require.NoError(t, graph.AddCategory(nothing))

	foreign, err := domain.NewCategory("c-2", "Alien", "", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	assert.True(t, apperrors.IsValidationFailed(graph.AddCategory(foreign)))

	rel, err := domain.NewRelationship("c-1", being.ID, nothing.ID, "opposes", domain.DirectionBidirectional, 0.5, 0.5)
	require.NoError(t, err)
	require.NoError(t, graph.AddRelationship(rel))

	dangling, err := domain.NewRelationship("c-1", being.ID, "missing", "entails", domain.DirectionDirected, 0.5, 0.5)
	require.NoError(t, err)
	assert.True(t, apperrors.IsValidationFailed(graph.AddRelationship(dangling)))

	require.NoError(t, graph.Validate())

	// A dangling edge smuggled past AddRelationship is still caught.
	graph.Relationships = append(graph.Relationships, dangling)
	assert.True(t, apperrors.IsValidationFailed(graph.Validate()))
}

func TestConceptGraph_NameLookup(t *testing.T) {
	graph := domain.NewConceptGraph("c-1")
	being, err := domain.NewCategory("c-1", "Being", "", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	require.NoError(t, graph.AddCategory(being))

	assert.Equal(t, being, graph.CategoryByName("Being"))
	assert.Nil(t, graph.CategoryByName("Nothing"))
	assert.Equal(t, being, graph.CategoryByID(being.ID))
}
