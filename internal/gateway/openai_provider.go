package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "noesis-backend/pkg/errors"
)

// systemInstructions carries the minimal per-kind instruction the provider
// prepends to the structured payload. The full prompt phrasing layer is a
// separate collaborator; these keep the provider self-contained for
// development deployments.
var systemInstructions = map[RequestKind]string{
	KindValidateGraph:      "Validate the supplied concept graph for logical consistency. Respond with a JSON object {\"valid\": bool, \"issues\": [string]}.",
	KindEnrichCategory:     "Expand the supplied category's definition in the context of its graph. Respond with a JSON object {\"category\": {\"name\": string, \"definition\": string}}.",
	KindGenerateTheses:     "Derive theses from the supplied concept graph. Respond with a JSON object {\"theses\": [{\"content\": string, \"type\": string, \"style\": string, \"related_categories\": [string]}]}.",
	KindThesisToGraph:      "Derive a concept graph from the supplied theses. Respond with a JSON object {\"categories\": [...], \"relationships\": [...]}.",
	KindConceptSynthesis:   "Synthesize the two supplied concept graphs using the given method. Respond with a JSON object {\"categories\": [...], \"relationships\": [...], \"theses\": [...]}.",
	KindCompatibilityCheck: "Classify elements of the two supplied graphs as fully-compatible, reinterpretable or incompatible. Respond with a JSON object {\"fully_compatible\": [...], \"reinterpretable\": [...], \"incompatible\": [...]}.",
}

// OpenAIProvider issues reasoning requests against the OpenAI chat
// completion API with JSON-mode responses.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewOpenAIProvider creates a provider for the given API key and model.
func NewOpenAIProvider(apiKey, model string, logger *zap.Logger) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0.3,
		logger:      logger,
	}
}

// Name identifies the provider in logs and health output.
func (p *OpenAIProvider) Name() string { return "openai" }

// Send issues one chat completion and decodes the JSON body.
func (p *OpenAIProvider) Send(ctx context.Context, kind RequestKind, payload map[string]any) (Response, error) {
	instruction, ok := systemInstructions[kind]
	if !ok {
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unsupported request kind %q", kind))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unmarshalable payload: %v", err))
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
	})
	if err != nil {
		return nil, apperrors.NewUnavailable("openai completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewUnavailable("openai returned no choices", nil)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = stripCodeFence(content)

	var decoded Response
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		p.logger.Warn("reasoning response was not valid JSON",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, apperrors.NewUnavailable("reasoning response was not valid JSON", err)
	}

	return decoded, nil
}

// stripCodeFence removes markdown fences some models wrap JSON in.
func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
