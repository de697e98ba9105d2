package plans

import (
	"context"

	"noesis-backend/domain"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
)

// GenerateThesesInput is the request for a generate-theses plan.
type GenerateThesesInput struct {
	ConceptID string
	Params    gateway.ThesisParams
}

// GenerateThesesResult is populated as the plan executes.
type GenerateThesesResult struct {
	Theses []*domain.Thesis
}

type generateThesesData struct {
	registry *Registry
	input    GenerateThesesInput
	graph    *domain.ConceptGraph
	result   *GenerateThesesResult

	created []*domain.Thesis
}

// GenerateTheses assembles a plan that derives theses from a concept's
// graph and persists them in the document store.
func (r *Registry) GenerateTheses(input GenerateThesesInput) (*saga.Plan, *GenerateThesesResult, error) {
	if input.ConceptID == "" {
		return nil, nil, apperrors.NewValidationFailed("generate-theses requires a concept id")
	}

	data := &generateThesesData{
		registry: r,
		input:    input,
		result:   &GenerateThesesResult{},
	}

	plan, err := saga.NewPlanBuilder(PlanKindGenerateTheses).
		ForConcepts(input.ConceptID).
		WithStep(saga.Step{
			Name:    StepLoadGraph,
			Kind:    saga.StepKindStore,
			Execute: data.loadGraph,
		}).
		WithStep(saga.Step{
			Name:    StepGenerateTheses,
			Kind:    saga.StepKindReasoning,
			Data:    input.Params,
			Execute: data.generateTheses,
		}).
		WithStep(saga.Step{
			Name:       StepCreateTheses,
			Kind:       saga.StepKindStore,
			Execute:    data.createTheses,
			Compensate: data.deleteCreatedTheses,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return plan, data.result, nil
}

func (d *generateThesesData) loadGraph(ctx context.Context) error {
	concept, err := d.registry.stores.Concepts.GetConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	if concept.IsArchived() {
		return apperrors.NewConflict("concept " + concept.ID + " is archived")
	}

	graph, err := d.registry.stores.Graph.GetGraphByConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	if graph.IsEmpty() {
		return apperrors.NewValidationFailed("concept " + concept.ID + " has no graph to derive theses from")
	}
	d.graph = graph
	return nil
}

func (d *generateThesesData) generateTheses(ctx context.Context) error {
	theses, err := d.registry.engine.GraphToTheses(ctx, d.graph, d.input.Params)
	if err != nil {
		return err
	}
	d.result.Theses = theses
	return nil
}

func (d *generateThesesData) createTheses(ctx context.Context) error {
	for _, thesis := range d.result.Theses {
		if containsThesis(d.created, thesis.ID) {
			continue
		}
		if _, err := d.registry.stores.Theses.CreateThesis(ctx, thesis); err != nil {
			return err
		}
		d.created = append(d.created, thesis)
	}
	return nil
}

// deleteCreatedTheses removes only the theses this plan created; theses the
// concept had before the plan are untouched.
func (d *generateThesesData) deleteCreatedTheses(ctx context.Context) error {
	for _, thesis := range d.created {
		if err := d.registry.stores.Theses.DeleteThesis(ctx, d.input.ConceptID, thesis.ID); err != nil && !apperrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func containsThesis(theses []*domain.Thesis, id string) bool {
	for _, t := range theses {
		if t.ID == id {
			return true
		}
	}
	return false
}
