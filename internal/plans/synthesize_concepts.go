package plans

import (
	"context"
	"fmt"
	"strings"

	"noesis-backend/domain"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/saga"
	"noesis-backend/internal/transform"
	apperrors "noesis-backend/pkg/errors"
)

// SynthesizeInput is the request for a synthesize-concepts plan.
type SynthesizeInput struct {
	Name        string
	Description string
	ParentIDs   []string
	Params      gateway.SynthesisParams
}

// SynthesizeResult is populated as the plan executes.
type SynthesizeResult struct {
	Concept       *domain.Concept
	Graph         *domain.ConceptGraph
	Theses        []*domain.Thesis
	Provenance    []*domain.SynthesisProvenance
	Compatibility *transform.CompatibilityReport
}

type synthesizeData struct {
	registry *Registry
	input    SynthesizeInput
	concept  *domain.Concept
	parents  []*domain.ConceptGraph
	result   *SynthesizeResult

	created []*domain.Thesis
}

// Synthesize assembles the plan that builds a new concept out of two
// parents: compatibility check, reasoning synthesis, then writes across all
// three stores. Every store write is compensable, so a failure anywhere
// leaves no trace of the new concept.
func (r *Registry) Synthesize(input SynthesizeInput) (*saga.Plan, *SynthesizeResult, error) {
	if len(input.ParentIDs) != domain.MaxParentConcepts {
		return nil, nil, apperrors.NewValidationFailed(
			fmt.Sprintf("synthesis requires exactly %d parent concepts", domain.MaxParentConcepts))
	}
	if input.ParentIDs[0] == input.ParentIDs[1] {
		return nil, nil, apperrors.NewValidationFailed("synthesis parents must differ")
	}

	concept, err := domain.NewSynthesisConcept(input.Name, input.Description, input.Params.Method, input.ParentIDs)
	if err != nil {
		return nil, nil, err
	}

	data := &synthesizeData{
		registry: r,
		input:    input,
		concept:  concept,
		result:   &SynthesizeResult{},
	}
	created := []string{concept.ID}

	plan, err := saga.NewPlanBuilder(PlanKindSynthesize).
		ForConcepts(append([]string{concept.ID}, input.ParentIDs...)...).
		WithStep(saga.Step{
			Name:       StepLoadParents,
			Kind:       saga.StepKindStore,
			ConceptIDs: input.ParentIDs,
			Execute:    data.loadParents,
		}).
		WithStep(saga.Step{
			Name:       StepCheckCompatibility,
			Kind:       saga.StepKindReasoning,
			ConceptIDs: input.ParentIDs,
			Data:       input.Params.Method,
			Execute:    data.checkCompatibility,
		}).
		WithStep(saga.Step{
			Name:       StepSynthesize,
			Kind:       saga.StepKindReasoning,
			ConceptIDs: created,
			Data:       input.Params,
			Execute:    data.synthesize,
		}).
		WithStep(saga.Step{
			Name:       StepCreateConcept,
			Kind:       saga.StepKindStore,
			ConceptIDs: created,
			Data:       input.Name,
			Execute:    data.createConcept,
			Compensate: data.deleteConcept,
		}).
		WithStep(saga.Step{
			Name:       StepCreateGraph,
			Kind:       saga.StepKindStore,
			ConceptIDs: created,
			Execute:    data.createGraph,
			Compensate: data.deleteGraph,
		}).
		WithStep(saga.Step{
			Name:       StepCreateTheses,
			Kind:       saga.StepKindStore,
			ConceptIDs: created,
			Execute:    data.createTheses,
			Compensate: data.deleteTheses,
		}).
		WithStep(saga.Step{
			Name:       StepSaveProvenance,
			Kind:       saga.StepKindStore,
			ConceptIDs: created,
			Execute:    data.saveProvenance,
			Compensate: data.deleteProvenance,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return plan, data.result, nil
}

func (d *synthesizeData) loadParents(ctx context.Context) error {
	d.parents = d.parents[:0]
	for _, parentID := range d.input.ParentIDs {
		parent, err := d.registry.stores.Concepts.GetConcept(ctx, parentID)
		if err != nil {
			return err
		}
		if parent.IsArchived() {
			return apperrors.NewConflict("parent concept " + parentID + " is archived")
		}
		graph, err := d.registry.stores.Graph.GetGraphByConcept(ctx, parentID)
		if err != nil {
			return err
		}
		if graph.IsEmpty() {
			return apperrors.NewValidationFailed("parent concept " + parentID + " has no graph")
		}
		d.parents = append(d.parents, graph)
	}
	return nil
}

func (d *synthesizeData) checkCompatibility(ctx context.Context) error {
	report, err := d.registry.engine.CheckCompatibility(ctx, d.parents[0], d.parents[1], d.input.Params.Method)
	if err != nil {
		return err
	}
	d.result.Compatibility = report
	if report.HasIncompatible() {
		return apperrors.NewValidationFailed(fmt.Sprintf(
			"parents cannot be synthesized by %s: incompatible elements %s",
			d.input.Params.Method, strings.Join(report.Incompatible, ", ")))
	}
	return nil
}

func (d *synthesizeData) synthesize(ctx context.Context) error {
	result, err := d.registry.engine.Synthesize(ctx, d.concept.ID, d.parents[0], d.parents[1], d.input.Params)
	if err != nil {
		return err
	}
	d.result.Graph = result.Graph
	d.result.Theses = result.Theses
	d.result.Provenance = result.Provenance
	return nil
}

func (d *synthesizeData) createConcept(ctx context.Context) error {
	created, err := d.registry.stores.Concepts.CreateConcept(ctx, d.concept)
	if err != nil {
		return err
	}
	d.result.Concept = created
	return nil
}

func (d *synthesizeData) deleteConcept(ctx context.Context) error {
	return d.registry.stores.Concepts.DeleteConcept(ctx, d.concept.ID)
}

func (d *synthesizeData) createGraph(ctx context.Context) error {
	return writeGraph(ctx, d.registry, d.result.Graph)
}

func (d *synthesizeData) deleteGraph(ctx context.Context) error {
	return d.registry.stores.Graph.DeleteGraphByConcept(ctx, d.concept.ID)
}

func (d *synthesizeData) createTheses(ctx context.Context) error {
	for _, thesis := range d.result.Theses {
		if containsThesis(d.created, thesis.ID) {
			// A retried attempt may have written this thesis already.
			continue
		}
		if _, err := d.registry.stores.Theses.CreateThesis(ctx, thesis); err != nil {
			return err
		}
		d.created = append(d.created, thesis)
	}
	return nil
}

func (d *synthesizeData) deleteTheses(ctx context.Context) error {
	return d.registry.stores.Theses.DeleteThesesByConcept(ctx, d.concept.ID)
}

func (d *synthesizeData) saveProvenance(ctx context.Context) error {
	return d.registry.stores.Theses.SaveProvenance(ctx, d.result.Provenance)
}

func (d *synthesizeData) deleteProvenance(ctx context.Context) error {
	return d.registry.stores.Theses.DeleteProvenanceByConcept(ctx, d.concept.ID)
}
