package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"noesis-backend/domain"
	"noesis-backend/internal/app"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/infrastructure/persistence/memory"
	"noesis-backend/internal/plans"
	"noesis-backend/internal/repository"
	"noesis-backend/internal/saga"
	"noesis-backend/internal/transform"
	httpapi "noesis-backend/interfaces/http"
)

type testServer struct {
	router   http.Handler
	concepts *memory.ConceptStore
	graph    *memory.GraphStore
	theses   *memory.ThesisStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	concepts := memory.NewConceptStore()
	graphStore := memory.NewGraphStore()
	thesisStore := memory.NewThesisStore()

	gw := gateway.New(gateway.NewMockProvider(), nil, gateway.DefaultConfig(), nil, zap.NewNop())
	engine := transform.NewEngine(gw, zap.NewNop())
	registry := plans.NewRegistry(plans.Stores{
		Concepts: concepts,
		Graph:    graphStore,
		Theses:   thesisStore,
	}, engine, nil)

	coordinator := saga.NewCoordinator(memory.NewSagaLogStore(), saga.NewConceptLocks(), nil, saga.Config{
		StoreTimeout:        time.Second,
		ReasoningTimeout:    time.Second,
		CompensationTimeout: time.Second,
		Retry: repository.RetryConfig{
			MaxAttempts:   2,
			BaseDelay:     time.Millisecond,
			MaxDelay:      10 * time.Millisecond,
			BackoffFactor: 2,
		},
	}, nil, zap.NewNop())
	service := app.NewPlanService(coordinator, memory.NewPlanStatusStore(time.Hour), nil, zap.NewNop())

	handler := httpapi.NewPlanHandler(service, registry, gw, nil, zap.NewNop())
	return &testServer{
		router:   httpapi.NewRouter(handler, nil, zap.NewNop()),
		concepts: concepts,
		graph:    graphStore,
		theses:   thesisStore,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func createConceptRequest() map[string]any {
	return map[string]any{
		"kind": "create-concept",
		"create_concept": map[string]any{
			"name":        "Dialectic",
			"description": "movement through contradiction",
			"categories": []map[string]any{
				{"name": "Thesis", "definition": "the initial position"},
				{"name": "Antithesis", "definition": "the opposing position"},
			},
			"relationships": []map[string]any{
				{"source": "Thesis", "target": "Antithesis", "type": "opposes", "direction": "bidirectional"},
			},
		},
	}
}

func TestSubmitPlan_CreateConcept(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(t, http.MethodPost, "/v1/plans", createConceptRequest())

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		PlanID string `json:"plan_id"`
		Kind   string `json:"kind"`
		Result struct {
			Concept struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"Concept"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.PlanID)
	assert.Equal(t, "create-concept", body.Kind)
	assert.Equal(t, "Dialectic", body.Result.Concept.Name)

	categories, relationships := server.graph.CountByConcept(body.Result.Concept.ID)
	assert.Equal(t, 2, categories)
	assert.Equal(t, 1, relationships)
}

func TestSubmitPlan_OmittedWeightsDefault(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(t, http.MethodPost, "/v1/plans", createConceptRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	snapshot := server.concepts.Snapshot()
	require.Len(t, snapshot, 1)
	for id := range snapshot {
		graph, err := server.graph.GetGraphByConcept(context.Background(), id)
		require.NoError(t, err)
		for _, category := range graph.Categories {
			assert.InDelta(t, domain.DefaultWeight, category.Centrality, 1e-9)
		}
	}
}

func TestSubmitPlan_ErrorMapping(t *testing.T) {
	server := newTestServer(t)

	t.Run("unknown kind is 400", func(t *testing.T) {
		rec := server.do(t, http.MethodPost, "/v1/plans", map[string]any{"kind": "transmute-lead"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
	})

	t.Run("missing section is 400", func(t *testing.T) {
		rec := server.do(t, http.MethodPost, "/v1/plans", map[string]any{"kind": "create-concept"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing concept is 404", func(t *testing.T) {
		rec := server.do(t, http.MethodPost, "/v1/plans", map[string]any{
			"kind":            "generate-theses",
			"generate_theses": map[string]any{"concept_id": "no-such-concept", "quantity": 2},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})

	t.Run("archived concept is 409", func(t *testing.T) {
		concept, err := domain.NewConcept("Gone", "")
		require.NoError(t, err)
		_, err = server.concepts.CreateConcept(context.Background(), concept)
		require.NoError(t, err)
		require.NoError(t, server.concepts.ArchiveConcept(context.Background(), concept.ID))

		rec := server.do(t, http.MethodPost, "/v1/plans", map[string]any{
			"kind":    "archive-concept",
			"archive": map[string]any{"concept_id": concept.ID},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONFLICT")
	})

	t.Run("quantity over the limit is 400", func(t *testing.T) {
		rec := server.do(t, http.MethodPost, "/v1/plans", map[string]any{
			"kind":            "generate-theses",
			"generate_theses": map[string]any{"concept_id": "whatever", "quantity": 500},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubmitPlanAsync_AcceptsAndCompletes(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(t, http.MethodPost, "/v1/plans/async", createConceptRequest())

	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		PlanID string `json:"plan_id"`
		State  string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.PlanID)
	assert.Equal(t, "accepted", accepted.State)

	// Poll until terminal.
	deadline := time.Now().Add(2 * time.Second)
	for {
		statusRec := server.do(t, http.MethodGet, "/v1/plans/"+accepted.PlanID, nil)
		require.Equal(t, http.StatusOK, statusRec.Code)
		var record struct {
			State string `json:"state"`
		}
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &record))
		if record.State == "committed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("plan stuck in state %s", record.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetPlanStatus_UnknownIs404(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(t, http.MethodGet, "/v1/plans/nonexistent", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_ReportsBreakerState(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "closed", body["breaker"])
}
