package transform_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"noesis-backend/domain"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/transform"
	apperrors "noesis-backend/pkg/errors"
)

// stubClient returns scripted responses keyed by request kind, bypassing the
// breaker and cache so parsing is tested in isolation.
type stubClient struct {
	responses map[gateway.RequestKind]gateway.Response
	err       error
	requests  []gateway.Request
}

func (s *stubClient) Send(ctx context.Context, req gateway.Request, opts ...gateway.SendOption) (gateway.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	resp, ok := s.responses[req.Kind]
	if !ok {
		return nil, apperrors.NewUnavailable("no scripted response", nil)
	}
	return resp, nil
}

func buildGraph(t *testing.T, conceptID string, definitions map[string]string) *domain.ConceptGraph {
	t.Helper()
	graph := domain.NewConceptGraph(conceptID)
	for name, definition := range definitions {
		category, err := domain.NewCategory(conceptID, name, definition, 0.6, 0.6, 0.6)
		require.NoError(t, err)
		require.NoError(t, graph.AddCategory(category))
	}
	return graph
}

func TestGraphToTheses_ResolvesRelatedCategoriesAndDropsUnknowns(t *testing.T) {
	// Arrange
	graph := buildGraph(t, "c-1", map[string]string{"Being": "what is", "Nothing": "what is not"})
	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindGenerateTheses: {
			"theses": []any{
				map[string]any{
					"content":            "Being grounds all determination.",
					"type":               "ontological",
					"related_categories": []any{"Being", "Unheard-Of"},
				},
				map[string]any{
					"content": "Nothing is the absence of determination.",
					"type":    "ontological",
				},
			},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	// Act
	theses, err := engine.GraphToTheses(context.Background(), graph, gateway.ThesisParams{
		Quantity: 2,
		Type:     domain.ThesisTypeOntological,
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, theses, 2)
	assert.Equal(t, "c-1", theses[0].ConceptID)
	assert.Equal(t, domain.ThesisTypeOntological, theses[0].Type)

	being := graph.CategoryByName("Being")
	require.Len(t, theses[0].RelatedCategoryIDs, 1, "unknown category names are dropped")
	assert.Equal(t, being.ID, theses[0].RelatedCategoryIDs[0])
	assert.Empty(t, theses[1].RelatedCategoryIDs)
}

func TestGraphToTheses_EmptyResponseIsUnavailable(t *testing.T) {
	graph := buildGraph(t, "c-1", map[string]string{"Being": "what is"})
	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindGenerateTheses: {"theses": []any{}},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	_, err := engine.GraphToTheses(context.Background(), graph, gateway.ThesisParams{
		Quantity: 3,
		Type:     domain.ThesisTypeGeneral,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestThesesToGraph_OmittedWeightsFallBackToDefault(t *testing.T) {
	// Arrange
	thesis, err := domain.NewThesis("c-1", domain.ThesisTypeGeneral, "Everything flows.", "", nil)
	require.NoError(t, err)

	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindThesisToGraph: {
			"categories": []any{
				map[string]any{"name": "Flux", "definition": "constant change", "weight": 0.9},
				map[string]any{"name": "Permanence", "definition": "what persists"},
				map[string]any{"name": "Excess", "definition": "bad weight", "weight": 7.0},
			},
			"relationships": []any{
				map[string]any{"from": "Flux", "to": "Permanence", "type": "opposes", "direction": "bidirectional", "weight": 0.8},
				map[string]any{"from": "Flux", "to": "Ghost", "type": "haunts"},
			},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	// Act
	graph, err := engine.ThesesToGraph(context.Background(), "c-1", []*domain.Thesis{thesis})

	// Assert
	require.NoError(t, err)
	require.Len(t, graph.Categories, 3)

	flux := graph.CategoryByName("Flux")
	assert.InDelta(t, 0.9, flux.Centrality, 1e-9)

	permanence := graph.CategoryByName("Permanence")
	assert.InDelta(t, domain.DefaultWeight, permanence.Centrality, 1e-9, "missing weight falls back to default")

	excess := graph.CategoryByName("Excess")
	assert.InDelta(t, domain.DefaultWeight, excess.Centrality, 1e-9, "out-of-range weight falls back to default")

	require.Len(t, graph.Relationships, 1, "edges to unknown endpoints are dropped")
	rel := graph.Relationships[0]
	assert.Equal(t, flux.ID, rel.SourceCategoryID)
	assert.Equal(t, permanence.ID, rel.TargetCategoryID)
	assert.Equal(t, domain.DirectionBidirectional, rel.Direction)
}

func TestValidateGraph_InvalidVerdictFails(t *testing.T) {
	graph := buildGraph(t, "c-1", map[string]string{"Being": "what is"})
	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindValidateGraph: {
			"valid":  false,
			"issues": []any{"circular definition between Being and Nothing"},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	issues, err := engine.ValidateGraph(context.Background(), graph)

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationFailed(err))
	assert.Equal(t, []string{"circular definition between Being and Nothing"}, issues)
}

func TestValidateGraph_IssuesAloneAreAdvisory(t *testing.T) {
	graph := buildGraph(t, "c-1", map[string]string{"Being": "what is"})
	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindValidateGraph: {
			"valid":  true,
			"issues": []any{"definition of Being is terse"},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	issues, err := engine.ValidateGraph(context.Background(), graph)

	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestEnrichCategory_ReturnsACopy(t *testing.T) {
	graph := buildGraph(t, "c-1", map[string]string{"Being": "what is"})
	original := graph.CategoryByName("Being")
	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindEnrichCategory: {
			"category": map[string]any{"name": "Being", "definition": "what is, considered absolutely"},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	enriched, err := engine.EnrichCategory(context.Background(), original, graph)

	require.NoError(t, err)
	assert.Equal(t, "what is, considered absolutely", enriched.Definition)
	assert.Equal(t, "what is", original.Definition, "input category must not be mutated")
	assert.Equal(t, original.ID, enriched.ID)
}

func TestSynthesize_ProvenanceClassification(t *testing.T) {
	// Arrange: graph A's category survives verbatim, graph B's is reworded,
	// and the response adds one brand new category.
	graphA := buildGraph(t, "parent-a", map[string]string{"Being": "what is"})
	graphB := buildGraph(t, "parent-b", map[string]string{"Nothing": "what is not"})

	client := &stubClient{responses: map[gateway.RequestKind]gateway.Response{
		gateway.KindConceptSynthesis: {
			"categories": []any{
				map[string]any{"name": "Being", "definition": "what is", "weight": 0.5},
				map[string]any{"name": "Nothing", "definition": "absence reconsidered", "weight": 0.5},
				map[string]any{"name": "Becoming", "definition": "the unity of both", "weight": 0.7},
			},
			"relationships": []any{
				map[string]any{"from": "Being", "to": "Becoming", "type": "passes-into", "direction": "directed", "weight": 0.6},
			},
			"theses": []any{
				map[string]any{
					"content":            "Becoming is the truth of Being and Nothing.",
					"type":               "ontological",
					"related_categories": []any{"Becoming"},
				},
			},
		},
	}}
	engine := transform.NewEngine(client, zap.NewNop())

	// Act
	result, err := engine.Synthesize(context.Background(), "child", graphA, graphB, gateway.SynthesisParams{
		Method: "dialectical",
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Graph.Categories, 3)
	require.Len(t, result.Graph.Relationships, 1)
	require.Len(t, result.Theses, 1)

	// One provenance record per produced element.
	require.Len(t, result.Provenance, 5)
	byElement := make(map[string]*domain.SynthesisProvenance)
	for _, record := range result.Provenance {
		assert.Equal(t, "child", record.ConceptID)
		byElement[record.ElementID] = record
	}

	being := result.Graph.CategoryByName("Being")
	assert.Equal(t, domain.TransformationUnchanged, byElement[being.ID].Transformation)
	assert.Equal(t, "parent-a", byElement[being.ID].OriginConceptID)

	nothing := result.Graph.CategoryByName("Nothing")
	assert.Equal(t, domain.TransformationModified, byElement[nothing.ID].Transformation)
	assert.Equal(t, "parent-b", byElement[nothing.ID].OriginConceptID)

	becoming := result.Graph.CategoryByName("Becoming")
	assert.Equal(t, domain.TransformationNew, byElement[becoming.ID].Transformation)
	assert.Empty(t, byElement[becoming.ID].OriginConceptID)

	rel := result.Graph.Relationships[0]
	assert.Equal(t, domain.TransformationNew, byElement[rel.ID].Transformation,
		"edge across parent origins is new")

	thesis := result.Theses[0]
	assert.Equal(t, domain.TransformationNew, byElement[thesis.ID].Transformation)
	assert.Equal(t, domain.ElementKindThesis, byElement[thesis.ID].ElementKind)
}

func TestCompatibilityReport_HasIncompatible(t *testing.T) {
	report := &transform.CompatibilityReport{Incompatible: []string{"Substance"}}
	assert.True(t, report.HasIncompatible())

	clean := &transform.CompatibilityReport{FullyCompatible: []string{"Being"}}
	assert.False(t, clean.HasIncompatible())
}
