// Package gateway mediates every call to the external reasoning service.
// It owns the circuit breaker, the idempotent response cache and the typed
// request construction; it never interprets response content.
package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

// RequestKind tags the kind of reasoning request.
type RequestKind string

const (
	KindValidateGraph      RequestKind = "validate-graph"
	KindEnrichCategory     RequestKind = "enrich-category"
	KindGenerateTheses     RequestKind = "generate-theses"
	KindThesisToGraph      RequestKind = "thesis-to-graph"
	KindConceptSynthesis   RequestKind = "concept-synthesis"
	KindCompatibilityCheck RequestKind = "compatibility-check"
)

var validate = validator.New()

// Request is a validated, kind-tagged reasoning request. Construct requests
// through the New*Request constructors; they validate required fields before
// any network call is attempted.
type Request struct {
	Kind    RequestKind
	Payload map[string]any
}

// CacheKey derives the deterministic cache key: request kind plus a content
// hash of the payload. Identical prompts repeat across retries and synthesis
// sub-steps, so responses are cached under this key.
func (r Request) CacheKey() string {
	data, err := json.Marshal(r.Payload)
	if err != nil {
		// Unmarshalable payloads cannot have been built by a constructor;
		// fall back to an uncacheable unique-ish key.
		data = []byte(fmt.Sprintf("%p", r.Payload))
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("reasoning:%s:%s", r.Kind, hex.EncodeToString(sum[:]))
}

// ThesisParams configures thesis generation.
type ThesisParams struct {
	Quantity int               `validate:"required,min=1,max=50"`
	Type     domain.ThesisType `validate:"required"`
	Style    string            `validate:"omitempty,max=100"`
}

// SynthesisParams configures a concept synthesis.
type SynthesisParams struct {
	Method           string  `validate:"required"`
	Focus            string  `validate:"omitempty,max=500"`
	InnovationDegree float64 `validate:"min=0,max=1"`
}

// NewValidateGraphRequest builds a request asking the service to check a
// graph for logical consistency.
func NewValidateGraphRequest(graph *domain.ConceptGraph) (Request, error) {
	if graph == nil || graph.IsEmpty() {
		return Request{}, apperrors.NewValidationFailed("validate-graph requires a non-empty graph")
	}
	return Request{
		Kind:    KindValidateGraph,
		Payload: map[string]any{"graph": graph},
	}, nil
}

// NewEnrichCategoryRequest builds a request asking the service to expand a
// category's definition in the context of its graph.
func NewEnrichCategoryRequest(category *domain.Category, graph *domain.ConceptGraph) (Request, error) {
	if category == nil {
		return Request{}, apperrors.NewValidationFailed("enrich-category requires a category")
	}
	return Request{
		Kind: KindEnrichCategory,
		Payload: map[string]any{
			"category": category,
			"graph":    graph,
		},
	}, nil
}

// NewGenerateThesesRequest builds a graph-to-theses generation request.
func NewGenerateThesesRequest(graph *domain.ConceptGraph, params ThesisParams) (Request, error) {
	if graph == nil || graph.IsEmpty() {
		return Request{}, apperrors.NewValidationFailed("generate-theses requires a non-empty graph")
	}
	if err := validate.Struct(params); err != nil {
		return Request{}, apperrors.NewValidationFailed(fmt.Sprintf("invalid thesis params: %v", err))
	}
	return Request{
		Kind: KindGenerateTheses,
		Payload: map[string]any{
			"graph":    graph,
			"quantity": params.Quantity,
			"type":     string(params.Type),
			"style":    params.Style,
		},
	}, nil
}

// NewThesisToGraphRequest builds the inverse request: derive a graph from
// a list of theses.
func NewThesisToGraphRequest(conceptID string, theses []*domain.Thesis) (Request, error) {
	if conceptID == "" {
		return Request{}, apperrors.NewValidationFailed("thesis-to-graph requires a concept id")
	}
	if len(theses) == 0 {
		return Request{}, apperrors.NewValidationFailed("thesis-to-graph requires at least one thesis")
	}
	return Request{
		Kind: KindThesisToGraph,
		Payload: map[string]any{
			"concept_id": conceptID,
			"theses":     theses,
		},
	}, nil
}

// NewCompatibilityCheckRequest builds the synthesis pre-check request that
// classifies elements of the two parent graphs.
func NewCompatibilityCheckRequest(graphA, graphB *domain.ConceptGraph, method string) (Request, error) {
	if graphA == nil || graphB == nil {
		return Request{}, apperrors.NewValidationFailed("compatibility-check requires both graphs")
	}
	if method == "" {
		return Request{}, apperrors.NewValidationFailed("compatibility-check requires a synthesis method")
	}
	return Request{
		Kind: KindCompatibilityCheck,
		Payload: map[string]any{
			"graph_a": graphA,
			"graph_b": graphB,
			"method":  method,
		},
	}, nil
}

// NewConceptSynthesisRequest builds the request for a synthesized graph and
// thesis set.
func NewConceptSynthesisRequest(graphA, graphB *domain.ConceptGraph, params SynthesisParams) (Request, error) {
	if graphA == nil || graphB == nil {
		return Request{}, apperrors.NewValidationFailed("concept-synthesis requires both graphs")
	}
	if err := validate.Struct(params); err != nil {
		return Request{}, apperrors.NewValidationFailed(fmt.Sprintf("invalid synthesis params: %v", err))
	}
	return Request{
		Kind: KindConceptSynthesis,
		Payload: map[string]any{
			"graph_a":           graphA,
			"graph_b":           graphB,
			"method":            params.Method,
			"focus":             params.Focus,
			"innovation_degree": params.InnovationDegree,
		},
	}, nil
}
