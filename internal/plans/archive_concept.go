package plans

import (
	"context"

	"noesis-backend/domain"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
)

// ArchiveConceptInput is the request for an archive-concept plan.
type ArchiveConceptInput struct {
	ConceptID string
}

// ArchiveConceptResult is populated as the plan executes.
type ArchiveConceptResult struct {
	Concept *domain.Concept
}

type archiveConceptData struct {
	registry *Registry
	input    ArchiveConceptInput
	// priorStatus is kept so compensation can restore the concept's
	// lifecycle state.
	priorStatus domain.ConceptStatus
	result      *ArchiveConceptResult
}

// ArchiveConcept assembles the plan that soft-deletes a concept. The graph
// and the theses stay in place; archival only flips the lifecycle state and
// drops the concept's derived cache entries.
func (r *Registry) ArchiveConcept(input ArchiveConceptInput) (*saga.Plan, *ArchiveConceptResult, error) {
	if input.ConceptID == "" {
		return nil, nil, apperrors.NewValidationFailed("archive-concept requires a concept id")
	}

	data := &archiveConceptData{
		registry: r,
		input:    input,
		result:   &ArchiveConceptResult{},
	}

	plan, err := saga.NewPlanBuilder(PlanKindArchiveConcept).
		ForConcepts(input.ConceptID).
		WithStep(saga.Step{
			Name:    StepLoadConcept,
			Kind:    saga.StepKindStore,
			Execute: data.loadConcept,
		}).
		WithStep(saga.Step{
			Name:       StepArchiveConcept,
			Kind:       saga.StepKindStore,
			Execute:    data.archive,
			Compensate: data.restoreStatus,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return plan, data.result, nil
}

func (d *archiveConceptData) loadConcept(ctx context.Context) error {
	concept, err := d.registry.stores.Concepts.GetConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	if concept.IsArchived() {
		return apperrors.NewConflict("concept " + concept.ID + " is already archived")
	}
	d.priorStatus = concept.Status
	return nil
}

func (d *archiveConceptData) archive(ctx context.Context) error {
	if err := d.registry.stores.Concepts.ArchiveConcept(ctx, d.input.ConceptID); err != nil {
		return err
	}
	concept, err := d.registry.stores.Concepts.GetConcept(ctx, d.input.ConceptID)
	if err != nil {
		return err
	}
	d.result.Concept = concept
	return nil
}

func (d *archiveConceptData) restoreStatus(ctx context.Context) error {
	concept, err := d.registry.stores.Concepts.GetConcept(ctx, d.input.ConceptID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	concept.Status = d.priorStatus
	_, err = d.registry.stores.Concepts.UpdateConcept(ctx, concept)
	return err
}
