// Package transform converts between the two representations of a concept:
// the category graph and the thesis set. It drives the reasoning gateway and
// turns its loosely structured responses into validated domain objects,
// including provenance records for synthesized elements.
package transform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"noesis-backend/domain"
	"noesis-backend/internal/gateway"
	apperrors "noesis-backend/pkg/errors"
)

// ReasoningClient is the slice of the gateway the engine needs.
type ReasoningClient interface {
	Send(ctx context.Context, req gateway.Request, opts ...gateway.SendOption) (gateway.Response, error)
}

// Engine performs the bidirectional graph/thesis transformations.
type Engine struct {
	reasoning ReasoningClient
	logger    *zap.Logger
}

// NewEngine creates a transform engine over a reasoning client.
func NewEngine(reasoning ReasoningClient, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{reasoning: reasoning, logger: logger}
}

// SynthesisResult is everything a synthesis produces: the new concept's
// graph, its theses, and one provenance record per element.
type SynthesisResult struct {
	Graph      *domain.ConceptGraph
	Theses     []*domain.Thesis
	Provenance []*domain.SynthesisProvenance
}

// CompatibilityReport classifies the elements of two parent graphs ahead of
// a synthesis.
type CompatibilityReport struct {
	FullyCompatible []string `json:"fully_compatible"`
	Reinterpretable []string `json:"reinterpretable"`
	Incompatible    []string `json:"incompatible"`
}

// HasIncompatible reports whether any element was classified incompatible.
func (r *CompatibilityReport) HasIncompatible() bool {
	return len(r.Incompatible) > 0
}

// GraphToTheses derives theses from a concept's graph. Related category
// names in the response are resolved to category ids against the input
// graph; unknown names are dropped rather than failing the whole batch.
func (e *Engine) GraphToTheses(ctx context.Context, graph *domain.ConceptGraph, params gateway.ThesisParams) ([]*domain.Thesis, error) {
	req, err := gateway.NewGenerateThesesRequest(graph, params)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	rawTheses, ok := resp["theses"].([]any)
	if !ok || len(rawTheses) == 0 {
		return nil, apperrors.NewUnavailable("reasoning response carried no theses", nil)
	}

	theses := make([]*domain.Thesis, 0, len(rawTheses))
	for i, raw := range rawTheses {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, apperrors.NewUnavailable(fmt.Sprintf("thesis %d is not an object", i), nil)
		}
		content, _ := fields["content"].(string)
		if content == "" {
			return nil, apperrors.NewUnavailable(fmt.Sprintf("thesis %d has no content", i), nil)
		}

		thesisType := domain.ThesisType(stringField(fields, "type"))
		style := stringField(fields, "style")
		if style == "" {
			style = params.Style
		}

		var relatedIDs []string
		for _, name := range stringSlice(fields["related_categories"]) {
			if c := graph.CategoryByName(name); c != nil {
				relatedIDs = append(relatedIDs, c.ID)
			} else {
				e.logger.Debug("dropping unknown related category",
					zap.String("concept_id", graph.ConceptID),
					zap.String("category", name),
				)
			}
		}

		thesis, err := domain.NewThesis(graph.ConceptID, thesisType, content, style, relatedIDs)
		if err != nil {
			return nil, err
		}
		theses = append(theses, thesis)
	}

	return theses, nil
}

// ThesesToGraph derives a category graph from a set of theses. Weights the
// response omits fall back to the documented default rather than being
// guessed.
func (e *Engine) ThesesToGraph(ctx context.Context, conceptID string, theses []*domain.Thesis) (*domain.ConceptGraph, error) {
	req, err := gateway.NewThesisToGraphRequest(conceptID, theses)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	graph, _, err := e.parseGraph(conceptID, resp)
	if err != nil {
		return nil, err
	}
	if graph.IsEmpty() {
		return nil, apperrors.NewUnavailable("reasoning response carried no categories", nil)
	}
	return graph, nil
}

// ValidateGraph asks the reasoning service whether a graph is logically
// consistent. Issues are advisory; only an explicit invalid verdict fails.
func (e *Engine) ValidateGraph(ctx context.Context, graph *domain.ConceptGraph) ([]string, error) {
	req, err := gateway.NewValidateGraphRequest(graph)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	issues := stringSlice(resp["issues"])
	if valid, ok := resp["valid"].(bool); ok && !valid {
		return issues, apperrors.NewValidationFailed(
			fmt.Sprintf("graph for concept %s failed logical validation", graph.ConceptID))
	}
	return issues, nil
}

// EnrichCategory expands one category's definition in the context of its
// graph. The returned category is a copy; the caller decides whether to
// persist it.
func (e *Engine) EnrichCategory(ctx context.Context, category *domain.Category, graph *domain.ConceptGraph) (*domain.Category, error) {
	req, err := gateway.NewEnrichCategoryRequest(category, graph)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	fields, ok := resp["category"].(map[string]any)
	if !ok {
		return nil, apperrors.NewUnavailable("reasoning response carried no category", nil)
	}
	definition := stringField(fields, "definition")
	if definition == "" {
		return nil, apperrors.NewUnavailable("enriched category has no definition", nil)
	}

	enriched := *category
	enriched.Definition = definition
	return &enriched, nil
}

// CheckCompatibility classifies the elements of two parent graphs ahead of
// a synthesis.
func (e *Engine) CheckCompatibility(ctx context.Context, graphA, graphB *domain.ConceptGraph, method string) (*CompatibilityReport, error) {
	req, err := gateway.NewCompatibilityCheckRequest(graphA, graphB, method)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	return &CompatibilityReport{
		FullyCompatible: stringSlice(resp["fully_compatible"]),
		Reinterpretable: stringSlice(resp["reinterpretable"]),
		Incompatible:    stringSlice(resp["incompatible"]),
	}, nil
}

// Synthesize produces the graph and theses of a new concept from two parent
// graphs, with a provenance record for every produced element. Provenance is
// decided by matching response elements back to the parents by category
// name: a name found in a parent is unchanged when its definition survived
// verbatim and modified otherwise; unmatched elements are new.
func (e *Engine) Synthesize(ctx context.Context, conceptID string, graphA, graphB *domain.ConceptGraph, params gateway.SynthesisParams) (*SynthesisResult, error) {
	req, err := gateway.NewConceptSynthesisRequest(graphA, graphB, params)
	if err != nil {
		return nil, err
	}

	resp, err := e.reasoning.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	graph, categoryNames, err := e.parseGraph(conceptID, resp)
	if err != nil {
		return nil, err
	}
	if graph.IsEmpty() {
		return nil, apperrors.NewUnavailable("synthesis response carried no categories", nil)
	}

	var provenance []*domain.SynthesisProvenance

	for _, category := range graph.Categories {
		origin, transformation := matchCategoryOrigin(category, graphA, graphB)
		record, err := domain.NewProvenance(
			conceptID, category.ID, domain.ElementKindCategory,
			origin, transformation,
			fmt.Sprintf("category %q via %s synthesis", category.Name, params.Method),
		)
		if err != nil {
			return nil, err
		}
		provenance = append(provenance, record)
	}

	for _, rel := range graph.Relationships {
		origin, transformation := matchRelationshipOrigin(rel, graph, provenance)
		record, err := domain.NewProvenance(
			conceptID, rel.ID, domain.ElementKindRelationship,
			origin, transformation,
			fmt.Sprintf("relationship %q via %s synthesis", rel.Type, params.Method),
		)
		if err != nil {
			return nil, err
		}
		provenance = append(provenance, record)
	}

	theses, err := e.parseTheses(conceptID, graph, categoryNames, resp)
	if err != nil {
		return nil, err
	}
	for _, thesis := range theses {
		record, err := domain.NewProvenance(
			conceptID, thesis.ID, domain.ElementKindThesis,
			"", domain.TransformationNew,
			fmt.Sprintf("thesis derived by %s synthesis", params.Method),
		)
		if err != nil {
			return nil, err
		}
		provenance = append(provenance, record)
	}

	e.logger.Info("synthesis transform completed",
		zap.String("concept_id", conceptID),
		zap.Int("categories", len(graph.Categories)),
		zap.Int("relationships", len(graph.Relationships)),
		zap.Int("theses", len(theses)),
	)

	return &SynthesisResult{Graph: graph, Theses: theses, Provenance: provenance}, nil
}

// parseGraph decodes the categories and relationships of a response into a
// new graph for conceptID. It also returns the id→name index needed to
// resolve name references elsewhere in the same response.
func (e *Engine) parseGraph(conceptID string, resp gateway.Response) (*domain.ConceptGraph, map[string]string, error) {
	graph := domain.NewConceptGraph(conceptID)
	byName := make(map[string]*domain.Category)
	names := make(map[string]string)

	rawCategories, _ := resp["categories"].([]any)
	for i, raw := range rawCategories {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, apperrors.NewUnavailable(fmt.Sprintf("category %d is not an object", i), nil)
		}
		name := stringField(fields, "name")
		if name == "" {
			return nil, nil, apperrors.NewUnavailable(fmt.Sprintf("category %d has no name", i), nil)
		}
		if _, dup := byName[name]; dup {
			continue
		}

		weight := floatField(fields, "weight", domain.DefaultWeight)
		category, err := domain.NewCategory(
			conceptID,
			name,
			stringField(fields, "definition"),
			floatField(fields, "centrality", weight),
			floatField(fields, "certainty", weight),
			floatField(fields, "historical_significance", weight),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := graph.AddCategory(category); err != nil {
			return nil, nil, err
		}
		byName[name] = category
		names[category.ID] = name
	}

	rawRelationships, _ := resp["relationships"].([]any)
	for i, raw := range rawRelationships {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, apperrors.NewUnavailable(fmt.Sprintf("relationship %d is not an object", i), nil)
		}
		source, okA := byName[stringField(fields, "from")]
		target, okB := byName[stringField(fields, "to")]
		if !okA || !okB {
			// The service occasionally references a category it never
			// emitted. Skip the edge instead of failing the transform.
			e.logger.Debug("dropping relationship with unknown endpoint",
				zap.String("concept_id", conceptID),
				zap.String("from", stringField(fields, "from")),
				zap.String("to", stringField(fields, "to")),
			)
			continue
		}
		if source.ID == target.ID {
			continue
		}

		direction := domain.RelationshipDirection(stringField(fields, "direction"))
		if direction == "" {
			direction = domain.DirectionDirected
		}
		weight := floatField(fields, "weight", domain.DefaultWeight)
		rel, err := domain.NewRelationship(
			conceptID,
			source.ID,
			target.ID,
			stringField(fields, "type"),
			direction,
			floatField(fields, "strength", weight),
			floatField(fields, "certainty", weight),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := graph.AddRelationship(rel); err != nil {
			return nil, nil, err
		}
	}

	return graph, names, nil
}

// parseTheses decodes the theses of a synthesis response against the
// synthesized graph.
func (e *Engine) parseTheses(conceptID string, graph *domain.ConceptGraph, names map[string]string, resp gateway.Response) ([]*domain.Thesis, error) {
	rawTheses, _ := resp["theses"].([]any)
	theses := make([]*domain.Thesis, 0, len(rawTheses))
	for i, raw := range rawTheses {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, apperrors.NewUnavailable(fmt.Sprintf("thesis %d is not an object", i), nil)
		}
		content := stringField(fields, "content")
		if content == "" {
			continue
		}

		var relatedIDs []string
		for _, name := range stringSlice(fields["related_categories"]) {
			if c := graph.CategoryByName(name); c != nil {
				relatedIDs = append(relatedIDs, c.ID)
			}
		}

		thesis, err := domain.NewThesis(
			conceptID,
			domain.ThesisType(stringField(fields, "type")),
			content,
			stringField(fields, "style"),
			relatedIDs,
		)
		if err != nil {
			return nil, err
		}
		theses = append(theses, thesis)
	}
	return theses, nil
}

// matchCategoryOrigin resolves a synthesized category to a parent category
// by name. GraphA wins ties; parents rarely share names and when they do
// the first parent is the canonical origin.
func matchCategoryOrigin(category *domain.Category, graphA, graphB *domain.ConceptGraph) (string, domain.TransformationKind) {
	for _, parent := range []*domain.ConceptGraph{graphA, graphB} {
		if origin := parent.CategoryByName(category.Name); origin != nil {
			if origin.Definition == category.Definition {
				return parent.ConceptID, domain.TransformationUnchanged
			}
			return parent.ConceptID, domain.TransformationModified
		}
	}
	return "", domain.TransformationNew
}

// matchRelationshipOrigin classifies a synthesized relationship. An edge
// whose endpoints both originate in the same parent is treated as carried
// over (modified, since ids were reminted); anything else is new.
func matchRelationshipOrigin(rel *domain.Relationship, graph *domain.ConceptGraph, provenance []*domain.SynthesisProvenance) (string, domain.TransformationKind) {
	origins := make(map[string]string, 2)
	for _, record := range provenance {
		if record.ElementKind != domain.ElementKindCategory {
			continue
		}
		if record.ElementID == rel.SourceCategoryID || record.ElementID == rel.TargetCategoryID {
			origins[record.ElementID] = record.OriginConceptID
		}
	}
	sourceOrigin := origins[rel.SourceCategoryID]
	targetOrigin := origins[rel.TargetCategoryID]
	if sourceOrigin != "" && sourceOrigin == targetOrigin {
		return sourceOrigin, domain.TransformationModified
	}
	return "", domain.TransformationNew
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func floatField(fields map[string]any, key string, fallback float64) float64 {
	if v, ok := fields[key].(float64); ok && v >= 0 && v <= 1 {
		return v
	}
	return fallback
}

func stringSlice(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
