// Package saga implements the cross-store transaction coordinator. A plan
// is an ordered list of steps with compensations; the coordinator executes
// steps in order, persists progress to the saga log, and unwinds committed
// steps in reverse order when a step fails.
package saga

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "noesis-backend/pkg/errors"
)

// StepKind classifies a step by the resource it talks to, which decides its
// per-attempt timeout.
type StepKind string

const (
	// StepKindStore is a write against one of the three stores.
	StepKindStore StepKind = "store"
	// StepKindReasoning is a call through the reasoning gateway.
	StepKindReasoning StepKind = "reasoning"
)

// Step is one unit of work in a plan. Execute must be idempotent enough to
// retry on transient failure; Compensate, when set, must tolerate being
// called after a partially applied or already-undone Execute.
type Step struct {
	// Name identifies the step within its plan kind. Names are stable
	// identifiers: crash recovery resolves compensations by (plan kind,
	// step name).
	Name string

	// Kind selects the per-attempt timeout.
	Kind StepKind

	// ConceptIDs are the concepts whose derived cache entries this step
	// invalidates once committed. Empty means the plan-level ids.
	ConceptIDs []string

	// Data is the step's input payload; the coordinator records its content
	// hash in the saga log for auditing. Optional.
	Data any

	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Plan is an ordered, compensable unit of cross-store work.
type Plan struct {
	ID         string
	Kind       string
	ConceptIDs []string
	Steps      []Step
}

// PlanBuilder assembles a plan step by step.
type PlanBuilder struct {
	plan *Plan
	err  error
}

// NewPlanBuilder starts a plan of the given kind.
func NewPlanBuilder(kind string) *PlanBuilder {
	return &PlanBuilder{
		plan: &Plan{
			ID:   uuid.New().String(),
			Kind: kind,
		},
	}
}

// ForConcepts declares the concepts the plan touches. The coordinator takes
// the per-concept locks for these ids before the first step runs.
func (b *PlanBuilder) ForConcepts(ids ...string) *PlanBuilder {
	b.plan.ConceptIDs = append(b.plan.ConceptIDs, ids...)
	return b
}

// WithStep appends a step.
func (b *PlanBuilder) WithStep(step Step) *PlanBuilder {
	if b.err != nil {
		return b
	}
	if step.Name == "" {
		b.err = apperrors.NewValidationFailed("plan step requires a name")
		return b
	}
	if step.Execute == nil {
		b.err = apperrors.NewValidationFailed(fmt.Sprintf("step %q has no execute function", step.Name))
		return b
	}
	if step.Kind == "" {
		step.Kind = StepKindStore
	}
	for _, existing := range b.plan.Steps {
		if existing.Name == step.Name {
			b.err = apperrors.NewValidationFailed(fmt.Sprintf("duplicate step name %q", step.Name))
			return b
		}
	}
	b.plan.Steps = append(b.plan.Steps, step)
	return b
}

// Build finalizes the plan.
func (b *PlanBuilder) Build() (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.plan.Steps) == 0 {
		return nil, apperrors.NewValidationFailed("plan has no steps")
	}
	if len(b.plan.ConceptIDs) == 0 {
		return nil, apperrors.NewValidationFailed("plan declares no concept ids")
	}
	return b.plan, nil
}

// stepConcepts returns the concept ids a step invalidates.
func (p *Plan) stepConcepts(step Step) []string {
	if len(step.ConceptIDs) > 0 {
		return step.ConceptIDs
	}
	return p.ConceptIDs
}
