package plans

import (
	"context"

	"noesis-backend/domain"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
)

// ThesisToGraphInput is the request for a thesis-to-graph plan, which
// rebuilds a concept's graph from its stored theses.
type ThesisToGraphInput struct {
	ConceptID string
}

// ThesisToGraphResult is populated as the plan executes.
type ThesisToGraphResult struct {
	Graph *domain.ConceptGraph
}

type thesisToGraphData struct {
	registry *Registry
	input    ThesisToGraphInput
	theses   []*domain.Thesis
	// snapshot is the graph as it stood before replacement, kept for
	// compensation.
	snapshot *domain.ConceptGraph
	result   *ThesisToGraphResult
}

// ThesisToGraph assembles a plan that derives a fresh graph from a
// concept's theses and swaps it in for the existing one.
func (r *Registry) ThesisToGraph(input ThesisToGraphInput) (*saga.Plan, *ThesisToGraphResult, error) {
	if input.ConceptID == "" {
		return nil, nil, apperrors.NewValidationFailed("thesis-to-graph requires a concept id")
	}

	data := &thesisToGraphData{
		registry: r,
		input:    input,
		result:   &ThesisToGraphResult{},
	}

	plan, err := saga.NewPlanBuilder(PlanKindThesisToGraph).
		ForConcepts(input.ConceptID).
		WithStep(saga.Step{
			Name:    StepLoadTheses,
			Kind:    saga.StepKindStore,
			Execute: data.loadTheses,
		}).
		WithStep(saga.Step{
			Name:    StepDeriveGraph,
			Kind:    saga.StepKindReasoning,
			Execute: data.deriveGraph,
		}).
		WithStep(saga.Step{
			Name:       StepReplaceGraph,
			Kind:       saga.StepKindStore,
			Execute:    data.replaceGraph,
			Compensate: data.restoreSnapshot,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return plan, data.result, nil
}

func (d *thesisToGraphData) loadTheses(ctx context.Context) error {
	concept, err := d.registry.stores.Concepts.GetConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	if concept.IsArchived() {
		return apperrors.NewConflict("concept " + concept.ID + " is archived")
	}

	theses, err := d.registry.stores.Theses.GetThesesByConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	if len(theses) == 0 {
		return apperrors.NewValidationFailed("concept " + concept.ID + " has no theses to derive a graph from")
	}
	d.theses = theses

	snapshot, err := d.registry.stores.Graph.GetGraphByConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	d.snapshot = snapshot
	return nil
}

func (d *thesisToGraphData) deriveGraph(ctx context.Context) error {
	graph, err := d.registry.engine.ThesesToGraph(ctx, d.input.ConceptID, d.theses)
	if err != nil {
		return err
	}
	d.result.Graph = graph
	return nil
}

func (d *thesisToGraphData) replaceGraph(ctx context.Context) error {
	if err := d.registry.stores.Graph.DeleteGraphByConcept(ctx, d.input.ConceptID); err != nil {
		return err
	}
	return writeGraph(ctx, d.registry, d.result.Graph)
}

// restoreSnapshot puts the pre-plan graph back.
func (d *thesisToGraphData) restoreSnapshot(ctx context.Context) error {
	if err := d.registry.stores.Graph.DeleteGraphByConcept(ctx, d.input.ConceptID); err != nil {
		return err
	}
	return writeGraph(ctx, d.registry, d.snapshot)
}

// writeGraph persists a graph's categories then relationships. Conflicts
// from re-runs are tolerated since ids are stable within one plan.
func writeGraph(ctx context.Context, r *Registry, graph *domain.ConceptGraph) error {
	if graph == nil {
		return nil
	}
	for _, category := range graph.Categories {
		if _, err := r.stores.Graph.CreateCategory(ctx, category); err != nil && !apperrors.IsConflict(err) {
			return err
		}
	}
	for _, rel := range graph.Relationships {
		if _, err := r.stores.Graph.CreateRelationship(ctx, rel); err != nil && !apperrors.IsConflict(err) {
			return err
		}
	}
	return nil
}
