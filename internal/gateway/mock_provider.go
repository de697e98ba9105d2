package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "noesis-backend/pkg/errors"
)

// MockProvider returns deterministic canned responses for development and
// tests. Responses echo the input payload where the transform engine needs
// to correlate elements (category names in particular), so the whole
// pipeline runs without network access.
type MockProvider struct {
	mu        sync.Mutex
	callCount int
	// failures queues errors returned before any canned response. Tests use
	// it to exercise retry and breaker behavior.
	failures []error
	delay    time.Duration
}

// NewMockProvider creates a provider that always succeeds.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// FailNext queues errs to be returned, in order, by the next Send calls.
func (p *MockProvider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// SetDelay makes every Send sleep, for timeout and cancellation tests.
func (p *MockProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// CallCount reports how many Send calls reached the provider.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Name identifies the provider in logs and health output.
func (p *MockProvider) Name() string { return "mock" }

// Send returns the canned response for the request kind.
func (p *MockProvider) Send(ctx context.Context, kind RequestKind, payload map[string]any) (Response, error) {
	p.mu.Lock()
	p.callCount++
	var pending error
	if len(p.failures) > 0 {
		pending = p.failures[0]
		p.failures = p.failures[1:]
	}
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperrors.NewUnavailable("mock provider interrupted", ctx.Err())
		}
	}
	if pending != nil {
		return nil, pending
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewUnavailable("mock provider interrupted", err)
	}

	// Normalize through JSON so typed payload values read like a decoded
	// wire response.
	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unmarshalable payload: %v", err))
	}

	switch kind {
	case KindValidateGraph:
		return Response{"valid": true, "issues": []any{}}, nil
	case KindEnrichCategory:
		return p.enrichCategory(normalized), nil
	case KindGenerateTheses:
		return p.generateTheses(normalized), nil
	case KindThesisToGraph:
		return p.thesisToGraph(normalized), nil
	case KindConceptSynthesis:
		return p.synthesize(normalized), nil
	case KindCompatibilityCheck:
		return p.compatibilityCheck(normalized), nil
	default:
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unsupported request kind %q", kind))
	}
}

func normalizePayload(payload map[string]any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (p *MockProvider) enrichCategory(payload map[string]any) Response {
	name := "unnamed"
	definition := ""
	if category, ok := payload["category"].(map[string]any); ok {
		if n, ok := category["name"].(string); ok {
			name = n
		}
		if d, ok := category["definition"].(string); ok {
			definition = d
		}
	}
	return Response{
		"category": map[string]any{
			"name":       name,
			"definition": definition + " Considered more broadly, this notion anchors the surrounding structure of the concept.",
		},
	}
}

func (p *MockProvider) generateTheses(payload map[string]any) Response {
	quantity := 3
	if q, ok := payload["quantity"].(float64); ok && q > 0 {
		quantity = int(q)
	}
	thesisType := "general"
	if t, ok := payload["type"].(string); ok && t != "" {
		thesisType = t
	}
	names := graphCategoryNames(payload, "graph")

	theses := make([]any, 0, quantity)
	for i := 0; i < quantity; i++ {
		subject := "the concept"
		var related []any
		if len(names) > 0 {
			subject = names[i%len(names)]
			related = []any{subject}
		}
		theses = append(theses, map[string]any{
			"content":            fmt.Sprintf("Thesis %d: %s grounds the conceptual structure it belongs to.", i+1, subject),
			"type":               thesisType,
			"style":              payloadString(payload, "style"),
			"related_categories": related,
		})
	}
	return Response{"theses": theses}
}

func (p *MockProvider) thesisToGraph(payload map[string]any) Response {
	categories := []any{}
	relationships := []any{}
	seen := map[string]bool{}

	theses, _ := payload["theses"].([]any)
	for _, raw := range theses {
		thesis, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		related, _ := thesis["related_categories"].([]any)
		for _, r := range related {
			name, ok := r.(string)
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			categories = append(categories, map[string]any{
				"name":       name,
				"definition": fmt.Sprintf("Derived from the theses that mention %s.", name),
				"weight":     0.5,
			})
		}
	}
	if len(categories) == 0 {
		categories = append(categories, map[string]any{
			"name":       "Central Notion",
			"definition": "The single notion the supplied theses revolve around.",
			"weight":     0.5,
		})
	}
	if len(categories) >= 2 {
		from, _ := categories[0].(map[string]any)
		to, _ := categories[1].(map[string]any)
		relationships = append(relationships, map[string]any{
			"from":      from["name"],
			"to":        to["name"],
			"type":      "grounds",
			"direction": "directed",
			"weight":    0.5,
		})
	}
	return Response{"categories": categories, "relationships": relationships}
}

func (p *MockProvider) synthesize(payload map[string]any) Response {
	namesA := graphCategoryNames(payload, "graph_a")
	namesB := graphCategoryNames(payload, "graph_b")

	categories := []any{}
	// First parent's categories carry over unchanged, second parent's get
	// reinterpreted definitions, plus one genuinely new category.
	for _, name := range namesA {
		categories = append(categories, map[string]any{
			"name":       name,
			"definition": graphCategoryDefinition(payload, "graph_a", name),
			"weight":     0.5,
		})
	}
	for _, name := range namesB {
		categories = append(categories, map[string]any{
			"name":       name,
			"definition": fmt.Sprintf("Reinterpreted within the synthesis: %s", graphCategoryDefinition(payload, "graph_b", name)),
			"weight":     0.5,
		})
	}
	categories = append(categories, map[string]any{
		"name":       "Synthetic Unity",
		"definition": "The mediating notion that reconciles both parent structures.",
		"weight":     0.7,
	})

	relationships := []any{}
	if len(namesA) > 0 {
		relationships = append(relationships, map[string]any{
			"from":      namesA[0],
			"to":        "Synthetic Unity",
			"type":      "participates-in",
			"direction": "directed",
			"weight":    0.5,
		})
	}
	if len(namesB) > 0 {
		relationships = append(relationships, map[string]any{
			"from":      namesB[0],
			"to":        "Synthetic Unity",
			"type":      "participates-in",
			"direction": "directed",
			"weight":    0.5,
		})
	}

	theses := []any{
		map[string]any{
			"content":            "Thesis 1: the synthesized concept preserves both parents while exceeding each.",
			"type":               "ontological",
			"related_categories": []any{"Synthetic Unity"},
		},
	}

	return Response{
		"categories":    categories,
		"relationships": relationships,
		"theses":        theses,
	}
}

func (p *MockProvider) compatibilityCheck(payload map[string]any) Response {
	namesA := graphCategoryNames(payload, "graph_a")
	namesB := graphCategoryNames(payload, "graph_b")

	compatible := []any{}
	reinterpretable := []any{}
	for _, name := range namesA {
		compatible = append(compatible, name)
	}
	for _, name := range namesB {
		reinterpretable = append(reinterpretable, name)
	}
	return Response{
		"fully_compatible": compatible,
		"reinterpretable":  reinterpretable,
		"incompatible":     []any{},
	}
}

func graphCategoryNames(payload map[string]any, key string) []string {
	graph, ok := payload[key].(map[string]any)
	if !ok {
		return nil
	}
	rawCategories, ok := graph["categories"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(rawCategories))
	for _, raw := range rawCategories {
		category, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := category["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func graphCategoryDefinition(payload map[string]any, key, name string) string {
	graph, ok := payload[key].(map[string]any)
	if !ok {
		return ""
	}
	rawCategories, ok := graph["categories"].([]any)
	if !ok {
		return ""
	}
	for _, raw := range rawCategories {
		category, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if n, _ := category["name"].(string); n == name {
			definition, _ := category["definition"].(string)
			return definition
		}
	}
	return ""
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
