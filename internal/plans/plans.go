// Package plans defines the concrete cross-store plans the coordinator can
// execute: each factory assembles a saga plan whose steps close over a
// shared data struct, and the registry resolves logged steps back to
// compensation code after a crash.
package plans

import (
	"context"
	"encoding/json"
	"time"

	"noesis-backend/domain"
	"noesis-backend/internal/infrastructure/cache"
	"noesis-backend/internal/repository"
	"noesis-backend/internal/transform"
)

// Plan kinds.
const (
	PlanKindCreateConcept  = "create-concept"
	PlanKindGenerateTheses = "generate-theses"
	PlanKindThesisToGraph  = "thesis-to-graph"
	PlanKindSynthesize     = "synthesize-concepts"
	PlanKindArchiveConcept = "archive-concept"
)

// Step names. These are persisted in the saga log and resolved by the
// registry during recovery, so they are part of the log's schema.
const (
	StepCreateConcept       = "create-concept"
	StepCreateCategories    = "create-categories"
	StepCreateRelationships = "create-relationships"
	StepEnrichCategories    = "enrich-categories"
	StepValidateGraph       = "validate-graph"

	StepLoadGraph      = "load-graph"
	StepGenerateTheses = "generate-theses"
	StepCreateTheses   = "create-theses"

	StepLoadTheses   = "load-theses"
	StepDeriveGraph  = "derive-graph"
	StepReplaceGraph = "replace-graph"

	StepLoadParents        = "load-parents"
	StepCheckCompatibility = "check-compatibility"
	StepSynthesize         = "synthesize"
	StepCreateGraph        = "create-graph"
	StepSaveProvenance     = "save-provenance"

	StepLoadConcept    = "load-concept"
	StepArchiveConcept = "archive"
)

// Stores bundles the three store adapters every factory needs.
type Stores struct {
	Concepts repository.ConceptRepository
	Graph    repository.GraphRepository
	Theses   repository.ThesisRepository
}

// projectionTTL bounds how long an enriched category projection stays
// cached; invalidation by concept prefix usually drops it sooner.
const projectionTTL = 10 * time.Minute

// Registry builds plans and resolves compensations for crash recovery.
type Registry struct {
	stores      Stores
	engine      *transform.Engine
	projections *cache.MemoryCache
}

// NewRegistry creates a registry over the store adapters and the transform
// engine. projections may be nil, in which case enriched categories are
// persisted but not cached.
func NewRegistry(stores Stores, engine *transform.Engine, projections *cache.MemoryCache) *Registry {
	return &Registry{stores: stores, engine: engine, projections: projections}
}

// cacheEnriched stores an enriched category projection under the concept's
// key prefix, so the coordinator's invalidation sweeps cover it.
func (r *Registry) cacheEnriched(ctx context.Context, category *domain.Category) {
	if r.projections == nil {
		return
	}
	data, err := json.Marshal(category)
	if err != nil {
		return
	}
	r.projections.Set(ctx, cache.EnrichedCategoryKey(category.ConceptID, category.ID), data, projectionTTL)
}

// Resolve maps a committed, logged step to its compensation for crash
// recovery. Compensations here operate purely from the concept ids the log
// entry recorded; steps whose undo needs in-memory state that did not
// survive the crash resolve to nothing and stay in the log as residual
// state.
func (r *Registry) Resolve(planKind, stepName string, entry *repository.SagaLogEntry) (func(ctx context.Context) error, bool) {
	if len(entry.ConceptIDs) == 0 {
		return nil, false
	}
	conceptID := entry.ConceptIDs[0]

	switch stepName {
	case StepCreateConcept:
		return func(ctx context.Context) error {
			return r.stores.Concepts.DeleteConcept(ctx, conceptID)
		}, true

	case StepCreateCategories, StepCreateRelationships, StepCreateGraph:
		return func(ctx context.Context) error {
			return r.stores.Graph.DeleteGraphByConcept(ctx, conceptID)
		}, true

	case StepCreateTheses:
		// Only a synthesized concept's theses can be wiped wholesale; for
		// an existing concept the log cannot tell new theses from old.
		if planKind != PlanKindSynthesize {
			return nil, false
		}
		return func(ctx context.Context) error {
			return r.stores.Theses.DeleteThesesByConcept(ctx, conceptID)
		}, true

	case StepSaveProvenance:
		return func(ctx context.Context) error {
			return r.stores.Theses.DeleteProvenanceByConcept(ctx, conceptID)
		}, true
	}

	// Read-only and reasoning steps, plus steps whose undo state was lost
	// with the process (replace-graph snapshots, archive prior status,
	// pre-enrichment definitions).
	return nil, false
}
