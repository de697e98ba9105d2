package plans

import (
	"context"
	"fmt"

	"noesis-backend/domain"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
)

// CategoryInput describes one category to create.
type CategoryInput struct {
	Name                   string
	Definition             string
	Centrality             float64
	Certainty              float64
	HistoricalSignificance float64
}

// RelationshipInput describes one relationship to create, referencing its
// endpoints by category name.
type RelationshipInput struct {
	SourceName string
	TargetName string
	Type       string
	Direction  domain.RelationshipDirection
	Strength   float64
	Certainty  float64
}

// CreateConceptInput is the request for a create-concept plan.
type CreateConceptInput struct {
	Name          string
	Description   string
	Categories    []CategoryInput
	Relationships []RelationshipInput
	// Enrich adds a reasoning step that expands each category's definition
	// in the context of the assembled graph. Enrichment is an enhancement:
	// when the reasoning circuit is open it is skipped, not failed.
	Enrich bool
	// Validate adds a reasoning step that checks the assembled graph for
	// logical consistency after the stores committed.
	Validate bool
}

// CreateConceptResult is populated as the plan executes.
type CreateConceptResult struct {
	Concept         *domain.Concept
	CategoryIDs     map[string]string
	RelationshipIDs []string
	// EnrichedDefinitions maps category name to its expanded definition,
	// empty when enrichment was not requested or was skipped.
	EnrichedDefinitions map[string]string
	Issues              []string
}

// createConceptData is the state shared by the plan's steps.
type createConceptData struct {
	registry *Registry
	input    CreateConceptInput
	concept  *domain.Concept
	result   *CreateConceptResult
}

// CreateConcept assembles a plan that creates a concept, its categories and
// its relationships across the relational and graph stores.
func (r *Registry) CreateConcept(input CreateConceptInput) (*saga.Plan, *CreateConceptResult, error) {
	concept, err := domain.NewConcept(input.Name, input.Description)
	if err != nil {
		return nil, nil, err
	}
	if len(input.Categories) == 0 {
		return nil, nil, apperrors.NewValidationFailed("create-concept requires at least one category")
	}

	names := make(map[string]struct{}, len(input.Categories))
	for _, c := range input.Categories {
		if c.Name == "" {
			return nil, nil, apperrors.NewValidationFailed("category name is required")
		}
		if _, dup := names[c.Name]; dup {
			return nil, nil, apperrors.NewValidationFailed(fmt.Sprintf("duplicate category name %q", c.Name))
		}
		names[c.Name] = struct{}{}
	}
	for _, rel := range input.Relationships {
		if _, ok := names[rel.SourceName]; !ok {
			return nil, nil, apperrors.NewValidationFailed(fmt.Sprintf("relationship references unknown category %q", rel.SourceName))
		}
		if _, ok := names[rel.TargetName]; !ok {
			return nil, nil, apperrors.NewValidationFailed(fmt.Sprintf("relationship references unknown category %q", rel.TargetName))
		}
	}

	data := &createConceptData{
		registry: r,
		input:    input,
		concept:  concept,
		result: &CreateConceptResult{
			CategoryIDs:         make(map[string]string),
			EnrichedDefinitions: make(map[string]string),
		},
	}

	builder := saga.NewPlanBuilder(PlanKindCreateConcept).
		ForConcepts(concept.ID).
		WithStep(saga.Step{
			Name:       StepCreateConcept,
			Kind:       saga.StepKindStore,
			Data:       input.Name,
			Execute:    data.createConcept,
			Compensate: data.deleteConcept,
		}).
		WithStep(saga.Step{
			Name:       StepCreateCategories,
			Kind:       saga.StepKindStore,
			Data:       input.Categories,
			Execute:    data.createCategories,
			Compensate: data.deleteGraph,
		})

	if len(input.Relationships) > 0 {
		builder = builder.WithStep(saga.Step{
			Name:       StepCreateRelationships,
			Kind:       saga.StepKindStore,
			Data:       input.Relationships,
			Execute:    data.createRelationships,
			Compensate: data.deleteRelationships,
		})
	}
	if input.Enrich {
		builder = builder.WithStep(saga.Step{
			Name:    StepEnrichCategories,
			Kind:    saga.StepKindReasoning,
			Execute: data.enrichCategories,
			// No Compensate: an unwind deletes the whole graph anyway, the
			// enriched definitions with it.
		})
	}
	if input.Validate {
		builder = builder.WithStep(saga.Step{
			Name:    StepValidateGraph,
			Kind:    saga.StepKindReasoning,
			Execute: data.validateGraph,
		})
	}

	plan, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}
	return plan, data.result, nil
}

func (d *createConceptData) createConcept(ctx context.Context) error {
	created, err := d.registry.stores.Concepts.CreateConcept(ctx, d.concept)
	if err != nil {
		return err
	}
	d.result.Concept = created
	return nil
}

func (d *createConceptData) deleteConcept(ctx context.Context) error {
	return d.registry.stores.Concepts.DeleteConcept(ctx, d.concept.ID)
}

func (d *createConceptData) createCategories(ctx context.Context) error {
	for _, input := range d.input.Categories {
		if _, done := d.result.CategoryIDs[input.Name]; done {
			// A retried attempt may have created some categories already.
			continue
		}
		category, err := domain.NewCategory(
			d.concept.ID, input.Name, input.Definition,
			input.Centrality, input.Certainty, input.HistoricalSignificance,
		)
		if err != nil {
			return err
		}
		if _, err := d.registry.stores.Graph.CreateCategory(ctx, category); err != nil {
			return err
		}
		d.result.CategoryIDs[input.Name] = category.ID
	}
	return nil
}

func (d *createConceptData) deleteGraph(ctx context.Context) error {
	return d.registry.stores.Graph.DeleteGraphByConcept(ctx, d.concept.ID)
}

func (d *createConceptData) createRelationships(ctx context.Context) error {
	for i, input := range d.input.Relationships {
		if i < len(d.result.RelationshipIDs) {
			continue
		}
		rel, err := domain.NewRelationship(
			d.concept.ID,
			d.result.CategoryIDs[input.SourceName],
			d.result.CategoryIDs[input.TargetName],
			input.Type, input.Direction,
			input.Strength, input.Certainty,
		)
		if err != nil {
			return err
		}
		if _, err := d.registry.stores.Graph.CreateRelationship(ctx, rel); err != nil {
			return err
		}
		d.result.RelationshipIDs = append(d.result.RelationshipIDs, rel.ID)
	}
	return nil
}

func (d *createConceptData) deleteRelationships(ctx context.Context) error {
	for _, id := range d.result.RelationshipIDs {
		if err := d.registry.stores.Graph.DeleteRelationship(ctx, d.concept.ID, id); err != nil && !apperrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// enrichCategories expands each category's definition through the reasoning
// service and persists the result. An open circuit skips the remaining
// categories; the plan proceeds with the original definitions.
func (d *createConceptData) enrichCategories(ctx context.Context) error {
	graph, err := d.registry.stores.Graph.GetGraphByConcept(ctx, d.concept.ID)
	if err != nil {
		return err
	}
	for _, category := range graph.Categories {
		if _, done := d.result.EnrichedDefinitions[category.Name]; done {
			continue
		}
		enriched, err := d.registry.engine.EnrichCategory(ctx, category, graph)
		if apperrors.IsCircuitOpen(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := d.registry.stores.Graph.UpdateCategory(ctx, enriched); err != nil {
			return err
		}
		d.registry.cacheEnriched(ctx, enriched)
		d.result.EnrichedDefinitions[category.Name] = enriched.Definition
	}
	return nil
}

func (d *createConceptData) validateGraph(ctx context.Context) error {
	graph, err := d.registry.stores.Graph.GetGraphByConcept(ctx, d.concept.ID)
	if err != nil {
		return err
	}
	issues, err := d.registry.engine.ValidateGraph(ctx, graph)
	d.result.Issues = issues
	return err
}
