package plans_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"noesis-backend/domain"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/infrastructure/cache"
	"noesis-backend/internal/infrastructure/persistence/memory"
	"noesis-backend/internal/plans"
	"noesis-backend/internal/repository"
	"noesis-backend/internal/saga"
	"noesis-backend/internal/transform"
	apperrors "noesis-backend/pkg/errors"
)

// fixture wires the whole execution stack over in-memory stores and the
// deterministic mock provider.
type fixture struct {
	concepts    *memory.ConceptStore
	graph       *memory.GraphStore
	theses      *memory.ThesisStore
	log         *memory.SagaLogStore
	provider    *gateway.MockProvider
	projections *cache.MemoryCache
	gw          *gateway.Gateway
	registry    *plans.Registry
	coordinator *saga.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		concepts:    memory.NewConceptStore(),
		graph:       memory.NewGraphStore(),
		theses:      memory.NewThesisStore(),
		log:         memory.NewSagaLogStore(),
		provider:    gateway.NewMockProvider(),
		projections: cache.NewMemoryCache(256, 1<<20, zap.NewNop()),
	}
	f.gw = gateway.New(f.provider, nil, gateway.DefaultConfig(), nil, zap.NewNop())
	engine := transform.NewEngine(f.gw, zap.NewNop())
	f.registry = plans.NewRegistry(plans.Stores{
		Concepts: f.concepts,
		Graph:    f.graph,
		Theses:   f.theses,
	}, engine, f.projections)
	f.coordinator = saga.NewCoordinator(f.log, saga.NewConceptLocks(), nil, saga.Config{
		StoreTimeout:        time.Second,
		ReasoningTimeout:    time.Second,
		CompensationTimeout: time.Second,
		Retry: repository.RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     time.Millisecond,
			MaxDelay:      10 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}, nil, zap.NewNop())
	return f
}

// seedConcept creates a concept with a small graph directly through the
// stores, outside any plan.
func (f *fixture) seedConcept(t *testing.T, name string, categoryNames ...string) *domain.Concept {
	t.Helper()
	concept, err := domain.NewConcept(name, "seeded for tests")
	require.NoError(t, err)
	_, err = f.concepts.CreateConcept(context.Background(), concept)
	require.NoError(t, err)
	for _, categoryName := range categoryNames {
		category, err := domain.NewCategory(concept.ID, categoryName, "definition of "+categoryName, 0.5, 0.5, 0.5)
		require.NoError(t, err)
		_, err = f.graph.CreateCategory(context.Background(), category)
		require.NoError(t, err)
	}
	return concept
}

func TestCreateConceptPlan_CommitsAcrossStores(t *testing.T) {
	// Arrange
	f := newFixture(t)
	plan, result, err := f.registry.CreateConcept(plans.CreateConceptInput{
		Name:        "Dialectic",
		Description: "movement through contradiction",
		Categories: []plans.CategoryInput{
			{Name: "Thesis", Definition: "the initial position", Centrality: 0.8, Certainty: 0.7, HistoricalSignificance: 0.9},
			{Name: "Antithesis", Definition: "the opposing position", Centrality: 0.8, Certainty: 0.7, HistoricalSignificance: 0.9},
		},
		Relationships: []plans.RelationshipInput{
			{SourceName: "Thesis", TargetName: "Antithesis", Type: "opposes", Direction: domain.DirectionBidirectional, Strength: 0.9, Certainty: 0.8},
		},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Concept)

	stored, err := f.concepts.GetConcept(context.Background(), result.Concept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dialectic", stored.Name)
	assert.Equal(t, domain.ConceptStatusDraft, stored.Status)

	categories, relationships := f.graph.CountByConcept(result.Concept.ID)
	assert.Equal(t, 2, categories)
	assert.Equal(t, 1, relationships)
	assert.Len(t, result.CategoryIDs, 2)
	assert.Len(t, result.RelationshipIDs, 1)
}

func TestCreateConceptPlan_GraphFailureRemovesTheConcept(t *testing.T) {
	// Arrange: the category write fails permanently.
	f := newFixture(t)
	f.graphFailNext(apperrors.NewConflict("partition split"))

	plan, result, err := f.registry.CreateConcept(plans.CreateConceptInput{
		Name:       "Doomed",
		Categories: []plans.CategoryInput{{Name: "Only", Definition: "never lands", Centrality: 0.5, Certainty: 0.5, HistoricalSignificance: 0.5}},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: no trace of the concept anywhere.
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, f.concepts.Snapshot())
	categories, relationships := f.graph.CountByConcept(result.Concept.ID)
	assert.Zero(t, categories)
	assert.Zero(t, relationships)
}

func (f *fixture) graphFailNext(errs ...error) { f.graph.FailNext(errs...) }

func TestCreateConceptPlan_RejectsInvalidInputBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)

	t.Run("no categories", func(t *testing.T) {
		_, _, err := f.registry.CreateConcept(plans.CreateConceptInput{Name: "Empty"})
		assert.True(t, apperrors.IsValidationFailed(err))
	})

	t.Run("duplicate category names", func(t *testing.T) {
		_, _, err := f.registry.CreateConcept(plans.CreateConceptInput{
			Name: "Doubled",
			Categories: []plans.CategoryInput{
				{Name: "Same", Definition: "a", Centrality: 0.5, Certainty: 0.5, HistoricalSignificance: 0.5},
				{Name: "Same", Definition: "b", Centrality: 0.5, Certainty: 0.5, HistoricalSignificance: 0.5},
			},
		})
		assert.True(t, apperrors.IsValidationFailed(err))
	})

	t.Run("relationship to unknown category", func(t *testing.T) {
		_, _, err := f.registry.CreateConcept(plans.CreateConceptInput{
			Name:       "Dangling",
			Categories: []plans.CategoryInput{{Name: "Present", Definition: "", Centrality: 0.5, Certainty: 0.5, HistoricalSignificance: 0.5}},
			Relationships: []plans.RelationshipInput{
				{SourceName: "Present", TargetName: "Absent", Type: "points-at", Direction: domain.DirectionDirected, Strength: 0.5, Certainty: 0.5},
			},
		})
		assert.True(t, apperrors.IsValidationFailed(err))
	})

	assert.Empty(t, f.concepts.Snapshot(), "rejected inputs never touch the stores")
}

func TestCreateConceptPlan_EnrichmentExpandsAndCachesDefinitions(t *testing.T) {
	// Arrange
	f := newFixture(t)
	plan, result, err := f.registry.CreateConcept(plans.CreateConceptInput{
		Name: "Dialectic",
		Categories: []plans.CategoryInput{
			{Name: "Thesis", Definition: "the initial position", Centrality: 0.8, Certainty: 0.7, HistoricalSignificance: 0.9},
		},
		Enrich: true,
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: the stored definition grew and the projection is cached.
	require.NoError(t, err)
	require.Contains(t, result.EnrichedDefinitions, "Thesis")
	enriched := result.EnrichedDefinitions["Thesis"]
	assert.Contains(t, enriched, "the initial position")
	assert.Greater(t, len(enriched), len("the initial position"))

	graph, err := f.graph.GetGraphByConcept(context.Background(), result.Concept.ID)
	require.NoError(t, err)
	stored := graph.CategoryByName("Thesis")
	require.NotNil(t, stored)
	assert.Equal(t, enriched, stored.Definition)

	_, cached := f.projections.Get(context.Background(), cache.EnrichedCategoryKey(result.Concept.ID, result.CategoryIDs["Thesis"]))
	assert.True(t, cached, "enriched projection must land under the concept's key prefix")
}

func TestCreateConceptPlan_EnrichmentSkippedWhileCircuitOpen(t *testing.T) {
	// Arrange: trip the breaker with five straight failures.
	f := newFixture(t)
	seed := f.seedConcept(t, "Tinder", "Spark")
	seedGraph, err := f.graph.GetGraphByConcept(context.Background(), seed.ID)
	require.NoError(t, err)
	tripReq, err := gateway.NewValidateGraphRequest(seedGraph)
	require.NoError(t, err)

	outage := apperrors.NewUnavailable("service down", nil)
	f.provider.FailNext(outage, outage, outage, outage, outage)
	for i := 0; i < 5; i++ {
		_, err := f.gw.Send(context.Background(), tripReq)
		require.Error(t, err)
	}
	require.Equal(t, "open", f.gw.State())

	plan, result, err := f.registry.CreateConcept(plans.CreateConceptInput{
		Name:       "Undeterred",
		Categories: []plans.CategoryInput{{Name: "Core", Definition: "holds as written", Centrality: 0.5, Certainty: 0.5, HistoricalSignificance: 0.5}},
		Enrich:     true,
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: the plan commits with the original definitions.
	require.NoError(t, err, "an open circuit degrades enrichment, it must not fail the plan")
	assert.Empty(t, result.EnrichedDefinitions)

	graph, err := f.graph.GetGraphByConcept(context.Background(), result.Concept.ID)
	require.NoError(t, err)
	stored := graph.CategoryByName("Core")
	require.NotNil(t, stored)
	assert.Equal(t, "holds as written", stored.Definition)

	_, cached := f.projections.Get(context.Background(), cache.EnrichedCategoryKey(result.Concept.ID, result.CategoryIDs["Core"]))
	assert.False(t, cached)
}

func TestGenerateThesesPlan_PersistsDerivedTheses(t *testing.T) {
	// Arrange
	f := newFixture(t)
	concept := f.seedConcept(t, "Monad", "Unity", "Simplicity")

	plan, result, err := f.registry.GenerateTheses(plans.GenerateThesesInput{
		ConceptID: concept.ID,
		Params:    gateway.ThesisParams{Quantity: 3, Type: domain.ThesisTypeOntological},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Theses, 3)

	stored, err := f.theses.GetThesesByConcept(context.Background(), concept.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	for _, thesis := range stored {
		assert.Equal(t, concept.ID, thesis.ConceptID)
		assert.NotEmpty(t, thesis.Content)
	}
}

func TestGenerateThesesPlan_RollbackSparesPreexistingTheses(t *testing.T) {
	// Arrange: the concept already has one thesis; the plan's second store
	// write fails permanently after the first landed.
	f := newFixture(t)
	concept := f.seedConcept(t, "Monad", "Unity")

	existing, err := domain.NewThesis(concept.ID, domain.ThesisTypeGeneral, "The monad has no windows.", "", nil)
	require.NoError(t, err)
	_, err = f.theses.CreateThesis(context.Background(), existing)
	require.NoError(t, err)

	f.theses.FailNext(nil, apperrors.NewConflict("duplicate key"))

	plan, _, err := f.registry.GenerateTheses(plans.GenerateThesesInput{
		ConceptID: concept.ID,
		Params:    gateway.ThesisParams{Quantity: 2, Type: domain.ThesisTypeGeneral},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: only the plan's own thesis was rolled back.
	require.Error(t, err)
	stored, err := f.theses.GetThesesByConcept(context.Background(), concept.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, existing.ID, stored[0].ID)
}

func TestGenerateThesesPlan_ArchivedConceptConflicts(t *testing.T) {
	f := newFixture(t)
	concept := f.seedConcept(t, "Gone", "Trace")
	require.NoError(t, f.concepts.ArchiveConcept(context.Background(), concept.ID))

	plan, _, err := f.registry.GenerateTheses(plans.GenerateThesesInput{
		ConceptID: concept.ID,
		Params:    gateway.ThesisParams{Quantity: 1, Type: domain.ThesisTypeGeneral},
	})
	require.NoError(t, err)

	err = f.coordinator.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	theses, _ := f.theses.CountByConcept(concept.ID)
	assert.Zero(t, theses)
}

func TestThesisToGraphPlan_ReplacesTheGraph(t *testing.T) {
	// Arrange: a concept with an old graph and theses naming new categories.
	f := newFixture(t)
	concept := f.seedConcept(t, "Heraclitus", "Fire")

	thesis, err := domain.NewThesis(concept.ID, domain.ThesisTypeGeneral, "Everything flows.", "", nil)
	require.NoError(t, err)
	thesis.RelatedCategoryIDs = nil
	_, err = f.theses.CreateThesis(context.Background(), thesis)
	require.NoError(t, err)

	plan, result, err := f.registry.ThesisToGraph(plans.ThesisToGraphInput{ConceptID: concept.ID})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: the seeded category is gone, the derived one is in place.
	require.NoError(t, err)
	require.NotNil(t, result.Graph)
	assert.False(t, result.Graph.IsEmpty())

	graph, err := f.graph.GetGraphByConcept(context.Background(), concept.ID)
	require.NoError(t, err)
	assert.Nil(t, graph.CategoryByName("Fire"), "pre-plan graph is replaced")
	assert.Equal(t, len(result.Graph.Categories), len(graph.Categories))
}

func TestThesisToGraphPlan_NoThesesFailsValidation(t *testing.T) {
	f := newFixture(t)
	concept := f.seedConcept(t, "Silent", "Quiet")

	plan, _, err := f.registry.ThesisToGraph(plans.ThesisToGraphInput{ConceptID: concept.ID})
	require.NoError(t, err)

	err = f.coordinator.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationFailed(err))

	// The original graph is untouched.
	graph, err := f.graph.GetGraphByConcept(context.Background(), concept.ID)
	require.NoError(t, err)
	assert.NotNil(t, graph.CategoryByName("Quiet"))
}

func TestSynthesizePlan_CommitsConceptGraphThesesAndProvenance(t *testing.T) {
	// Arrange
	f := newFixture(t)
	parentA := f.seedConcept(t, "Being", "Presence")
	parentB := f.seedConcept(t, "Nothing", "Absence")

	plan, result, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:        "Becoming",
		Description: "the unity of being and nothing",
		ParentIDs:   []string{parentA.ID, parentB.ID},
		Params:      gateway.SynthesisParams{Method: "dialectical", InnovationDegree: 0.5},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Concept)
	assert.True(t, result.Concept.IsSynthesis)
	assert.ElementsMatch(t, []string{parentA.ID, parentB.ID}, result.Concept.ParentConceptIDs)
	assert.Equal(t, "dialectical", result.Concept.SynthesisMethod)

	stored, err := f.concepts.GetConcept(context.Background(), result.Concept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Becoming", stored.Name)

	categories, _ := f.graph.CountByConcept(result.Concept.ID)
	assert.Equal(t, len(result.Graph.Categories), categories)

	thesesCount, provenanceCount := f.theses.CountByConcept(result.Concept.ID)
	assert.Equal(t, len(result.Theses), thesesCount)

	// Every synthesized element has exactly one provenance record.
	wantProvenance := len(result.Graph.Categories) + len(result.Graph.Relationships) + len(result.Theses)
	assert.Equal(t, wantProvenance, provenanceCount)

	records, err := f.theses.GetProvenanceByConcept(context.Background(), result.Concept.ID)
	require.NoError(t, err)
	covered := make(map[string]bool, len(records))
	for _, record := range records {
		covered[record.ElementID] = true
	}
	for _, category := range result.Graph.Categories {
		assert.True(t, covered[category.ID], "category %s has no provenance", category.Name)
	}
	for _, rel := range result.Graph.Relationships {
		assert.True(t, covered[rel.ID])
	}
	for _, thesis := range result.Theses {
		assert.True(t, covered[thesis.ID])
	}

	// Parents are untouched.
	parentCategories, _ := f.graph.CountByConcept(parentA.ID)
	assert.Equal(t, 1, parentCategories)
}

func TestSynthesizePlan_TransientStoreFailureIsRetriedToCommit(t *testing.T) {
	// Arrange: the first graph write attempt hits a transient outage.
	f := newFixture(t)
	parentA := f.seedConcept(t, "Being", "Presence")
	parentB := f.seedConcept(t, "Nothing", "Absence")

	f.graph.FailNext(apperrors.NewUnavailable("throttled", nil))

	plan, result, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Becoming",
		ParentIDs: []string{parentA.ID, parentB.ID},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert
	require.NoError(t, err, "a single transient failure must not fail the plan")
	categories, _ := f.graph.CountByConcept(result.Concept.ID)
	assert.Equal(t, len(result.Graph.Categories), categories)
}

func TestSynthesizePlan_ReasoningOutageRetriedThreeTimesThenCommits(t *testing.T) {
	// Arrange: the compatibility check hits three straight transient outages
	// before the service recovers. The default retry budget must absorb all
	// three; only the backoff delays are shortened here.
	f := newFixture(t)
	parentA := f.seedConcept(t, "Being", "Presence")
	parentB := f.seedConcept(t, "Nothing", "Absence")

	outage := apperrors.NewUnavailable("service down", nil)
	f.provider.FailNext(outage, outage, outage)

	retry := repository.DefaultRetryConfig()
	retry.BaseDelay = time.Millisecond
	retry.MaxDelay = 10 * time.Millisecond
	coordinator := saga.NewCoordinator(f.log, saga.NewConceptLocks(), nil, saga.Config{
		StoreTimeout:        time.Second,
		ReasoningTimeout:    time.Second,
		CompensationTimeout: time.Second,
		Retry:               retry,
	}, nil, zap.NewNop())

	plan, result, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Becoming",
		ParentIDs: []string{parentA.ID, parentB.ID},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	require.NoError(t, err)

	// Act
	err = coordinator.Execute(context.Background(), plan)

	// Assert: the fourth compatibility attempt lands, then one synthesis call.
	require.NoError(t, err)
	assert.Equal(t, 5, f.provider.CallCount())
	categories, _ := f.graph.CountByConcept(result.Concept.ID)
	assert.Equal(t, len(result.Graph.Categories), categories)
}

func TestSynthesizePlan_LateFailureLeavesNoTrace(t *testing.T) {
	// Arrange: concept and graph commit, then the thesis write fails
	// permanently.
	f := newFixture(t)
	parentA := f.seedConcept(t, "Being", "Presence")
	parentB := f.seedConcept(t, "Nothing", "Absence")

	f.theses.FailNext(apperrors.NewConflict("document already exists"))

	plan, result, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Becoming",
		ParentIDs: []string{parentA.ID, parentB.ID},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: nothing of the synthesized concept remains in any store.
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	newID := result.Concept.ID
	_, exists := f.concepts.Snapshot()[newID]
	assert.False(t, exists, "relational store must not keep the concept")

	categories, relationships := f.graph.CountByConcept(newID)
	assert.Zero(t, categories)
	assert.Zero(t, relationships)

	thesesCount, provenanceCount := f.theses.CountByConcept(newID)
	assert.Zero(t, thesesCount)
	assert.Zero(t, provenanceCount)

	// Parents survive intact.
	parentCategories, _ := f.graph.CountByConcept(parentA.ID)
	assert.Equal(t, 1, parentCategories)
}

func TestSynthesizePlan_RequiresTwoDistinctParents(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Solo",
		ParentIDs: []string{"only-one"},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	assert.True(t, apperrors.IsValidationFailed(err))

	_, _, err = f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Twin",
		ParentIDs: []string{"same", "same"},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestSynthesizePlan_ArchivedParentConflicts(t *testing.T) {
	f := newFixture(t)
	parentA := f.seedConcept(t, "Being", "Presence")
	parentB := f.seedConcept(t, "Nothing", "Absence")
	require.NoError(t, f.concepts.ArchiveConcept(context.Background(), parentB.ID))

	plan, _, err := f.registry.Synthesize(plans.SynthesizeInput{
		Name:      "Becoming",
		ParentIDs: []string{parentA.ID, parentB.ID},
		Params:    gateway.SynthesisParams{Method: "dialectical"},
	})
	require.NoError(t, err)

	err = f.coordinator.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestArchiveConceptPlan_SoftDeletesAndKeepsData(t *testing.T) {
	// Arrange
	f := newFixture(t)
	concept := f.seedConcept(t, "Aether", "Fifth Element")
	thesis, err := domain.NewThesis(concept.ID, domain.ThesisTypeGeneral, "The aether fills the heavens.", "", nil)
	require.NoError(t, err)
	_, err = f.theses.CreateThesis(context.Background(), thesis)
	require.NoError(t, err)

	plan, result, err := f.registry.ArchiveConcept(plans.ArchiveConceptInput{ConceptID: concept.ID})
	require.NoError(t, err)

	// Act
	err = f.coordinator.Execute(context.Background(), plan)

	// Assert: archived, but graph and theses remain.
	require.NoError(t, err)
	assert.Equal(t, domain.ConceptStatusArchived, result.Concept.Status)

	stored, err := f.concepts.GetConcept(context.Background(), concept.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsArchived())

	categories, _ := f.graph.CountByConcept(concept.ID)
	assert.Equal(t, 1, categories)
	thesesCount, _ := f.theses.CountByConcept(concept.ID)
	assert.Equal(t, 1, thesesCount)
}

func TestArchiveConceptPlan_AlreadyArchivedConflicts(t *testing.T) {
	f := newFixture(t)
	concept := f.seedConcept(t, "Twice", "Once")
	require.NoError(t, f.concepts.ArchiveConcept(context.Background(), concept.ID))

	plan, _, err := f.registry.ArchiveConcept(plans.ArchiveConceptInput{ConceptID: concept.ID})
	require.NoError(t, err)

	err = f.coordinator.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRegistryResolve_MapsLoggedStepsToCompensations(t *testing.T) {
	// Arrange
	f := newFixture(t)
	concept := f.seedConcept(t, "Orphan", "Leftover")
	thesis, err := domain.NewThesis(concept.ID, domain.ThesisTypeGeneral, "Orphaned by a crash.", "", nil)
	require.NoError(t, err)
	_, err = f.theses.CreateThesis(context.Background(), thesis)
	require.NoError(t, err)

	entry := &repository.SagaLogEntry{ConceptIDs: []string{concept.ID}}

	// Act + Assert: create-concept resolves to a hard delete.
	compensate, ok := f.registry.Resolve(plans.PlanKindSynthesize, plans.StepCreateConcept, entry)
	require.True(t, ok)
	require.NoError(t, compensate(context.Background()))
	_, err = f.concepts.GetConcept(context.Background(), concept.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// Graph steps resolve to a wholesale graph delete.
	compensate, ok = f.registry.Resolve(plans.PlanKindSynthesize, plans.StepCreateGraph, entry)
	require.True(t, ok)
	require.NoError(t, compensate(context.Background()))
	categories, _ := f.graph.CountByConcept(concept.ID)
	assert.Zero(t, categories)

	// Theses are only wiped for a synthesized concept.
	compensate, ok = f.registry.Resolve(plans.PlanKindSynthesize, plans.StepCreateTheses, entry)
	require.True(t, ok)
	require.NoError(t, compensate(context.Background()))
	thesesCount, _ := f.theses.CountByConcept(concept.ID)
	assert.Zero(t, thesesCount)

	_, ok = f.registry.Resolve(plans.PlanKindGenerateTheses, plans.StepCreateTheses, entry)
	assert.False(t, ok, "theses of an existing concept cannot be distinguished from the plan's")

	// Snapshot- and state-dependent undos are not resolvable from the log.
	_, ok = f.registry.Resolve(plans.PlanKindThesisToGraph, plans.StepReplaceGraph, entry)
	assert.False(t, ok)
	_, ok = f.registry.Resolve(plans.PlanKindArchiveConcept, plans.StepArchiveConcept, entry)
	assert.False(t, ok)

	_, ok = f.registry.Resolve(plans.PlanKindCreateConcept, plans.StepCreateConcept, &repository.SagaLogEntry{})
	assert.False(t, ok, "entries without concept ids resolve to nothing")
}

func TestCrashRecovery_EndToEnd(t *testing.T) {
	// Arrange: simulate a crash mid-synthesis by writing the log the way the
	// coordinator would have, with the store writes already applied.
	f := newFixture(t)
	concept, err := domain.NewSynthesisConcept("Interrupted", "", "dialectical", []string{"p-1", "p-2"})
	require.NoError(t, err)
	_, err = f.concepts.CreateConcept(context.Background(), concept)
	require.NoError(t, err)
	category, err := domain.NewCategory(concept.ID, "Partial", "half written", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	_, err = f.graph.CreateCategory(context.Background(), category)
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, entry := range []*repository.SagaLogEntry{
		{PlanID: "crashed", StepIndex: repository.PlanMarkerIndex, StepName: plans.PlanKindSynthesize, StepKind: "plan", Status: repository.SagaLogPending, ConceptIDs: []string{concept.ID, "p-1", "p-2"}, Timestamp: now},
		{PlanID: "crashed", StepIndex: 0, StepName: plans.StepCreateConcept, StepKind: "store", Status: repository.SagaLogCommitted, ConceptIDs: []string{concept.ID}, Timestamp: now},
		{PlanID: "crashed", StepIndex: 1, StepName: plans.StepCreateGraph, StepKind: "store", Status: repository.SagaLogCommitted, ConceptIDs: []string{concept.ID}, Timestamp: now},
		{PlanID: "crashed", StepIndex: 2, StepName: plans.StepCreateTheses, StepKind: "store", Status: repository.SagaLogPending, ConceptIDs: []string{concept.ID}, Timestamp: now},
	} {
		require.NoError(t, f.log.Append(context.Background(), entry))
	}

	// Act
	err = f.coordinator.Recover(context.Background(), f.registry)

	// Assert: the half-written concept is gone and the plan is terminal.
	require.NoError(t, err)
	_, err = f.concepts.GetConcept(context.Background(), concept.ID)
	assert.True(t, apperrors.IsNotFound(err))
	categories, _ := f.graph.CountByConcept(concept.ID)
	assert.Zero(t, categories)

	pending, err := f.log.PendingPlanIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}
