// Package http is the coordinator's REST boundary: plan submission (sync
// and async), status polling, health and metrics.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"noesis-backend/domain"
	"noesis-backend/internal/app"
	"noesis-backend/internal/config"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/plans"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
)

// PlanHandler handles plan submission and status endpoints.
type PlanHandler struct {
	service  *app.PlanService
	registry *plans.Registry
	gateway  *gateway.Gateway
	limits   func() config.Limits
	logger   *zap.Logger
}

// NewPlanHandler creates the handler. limits may be nil, in which case the
// defaults apply.
func NewPlanHandler(service *app.PlanService, registry *plans.Registry, gw *gateway.Gateway, limits func() config.Limits, logger *zap.Logger) *PlanHandler {
	if limits == nil {
		limits = func() config.Limits { return config.DefaultLimits() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanHandler{
		service:  service,
		registry: registry,
		gateway:  gw,
		limits:   limits,
		logger:   logger,
	}
}

// planRequest is the tagged submission envelope. Exactly the section named
// by Kind must be present.
type planRequest struct {
	Kind string `json:"kind"`

	CreateConcept  *createConceptRequest  `json:"create_concept,omitempty"`
	GenerateTheses *generateThesesRequest `json:"generate_theses,omitempty"`
	ThesisToGraph  *thesisToGraphRequest  `json:"thesis_to_graph,omitempty"`
	Synthesize     *synthesizeRequest     `json:"synthesize,omitempty"`
	Archive        *archiveRequest        `json:"archive,omitempty"`
}

type createConceptRequest struct {
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Categories    []categoryRequest     `json:"categories"`
	Relationships []relationshipRequest `json:"relationships,omitempty"`
	Enrich        bool                  `json:"enrich,omitempty"`
	Validate      bool                  `json:"validate,omitempty"`
}

type categoryRequest struct {
	Name                   string   `json:"name"`
	Definition             string   `json:"definition"`
	Centrality             *float64 `json:"centrality,omitempty"`
	Certainty              *float64 `json:"certainty,omitempty"`
	HistoricalSignificance *float64 `json:"historical_significance,omitempty"`
}

type relationshipRequest struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Type      string   `json:"type"`
	Direction string   `json:"direction,omitempty"`
	Strength  *float64 `json:"strength,omitempty"`
	Certainty *float64 `json:"certainty,omitempty"`
}

type generateThesesRequest struct {
	ConceptID string `json:"concept_id"`
	Quantity  int    `json:"quantity"`
	Type      string `json:"type,omitempty"`
	Style     string `json:"style,omitempty"`
}

type thesisToGraphRequest struct {
	ConceptID string `json:"concept_id"`
}

type synthesizeRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	ParentIDs        []string `json:"parent_ids"`
	Method           string   `json:"method"`
	Focus            string   `json:"focus,omitempty"`
	InnovationDegree float64  `json:"innovation_degree,omitempty"`
}

type archiveRequest struct {
	ConceptID string `json:"concept_id"`
}

type planAccepted struct {
	PlanID string `json:"plan_id"`
	State  string `json:"state"`
}

// SubmitPlan handles POST /v1/plans: build, execute, respond with the
// plan's result.
func (h *PlanHandler) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	plan, result, err := h.buildPlan(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.Run(r.Context(), plan); err != nil {
		h.logger.Warn("plan failed",
			zap.String("plan_id", plan.ID),
			zap.String("kind", plan.Kind),
			zap.Error(err),
		)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"plan_id": plan.ID,
		"kind":    plan.Kind,
		"result":  result,
	})
}

// SubmitPlanAsync handles POST /v1/plans/async: accept and return a
// pollable plan id.
func (h *PlanHandler) SubmitPlanAsync(w http.ResponseWriter, r *http.Request) {
	plan, _, err := h.buildPlan(r)
	if err != nil {
		respondError(w, err)
		return
	}

	planID, err := h.service.RunAsync(plan)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, planAccepted{PlanID: planID, State: "accepted"})
}

// GetPlanStatus handles GET /v1/plans/{planID}.
func (h *PlanHandler) GetPlanStatus(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if planID == "" {
		respondError(w, apperrors.NewValidationFailed("plan id is required"))
		return
	}

	record, err := h.service.Status(r.Context(), planID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Health handles GET /health, including the reasoning breaker state.
func (h *PlanHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"breaker": h.gateway.State(),
	})
}

// buildPlan decodes a submission and assembles the corresponding plan. All
// input validation happens here or in the factories, before any store is
// touched.
func (h *PlanHandler) buildPlan(r *http.Request) (*saga.Plan, any, error) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, apperrors.NewValidationFailed("invalid request body: " + err.Error())
	}
	limits := h.limits()

	switch req.Kind {
	case plans.PlanKindCreateConcept:
		if req.CreateConcept == nil {
			return nil, nil, apperrors.NewValidationFailed("create_concept section is required")
		}
		if len(req.CreateConcept.Categories) > limits.MaxCategoriesPerConcept {
			return nil, nil, apperrors.NewValidationFailed(
				fmt.Sprintf("at most %d categories per concept", limits.MaxCategoriesPerConcept))
		}
		return h.buildCreateConcept(req.CreateConcept)

	case plans.PlanKindGenerateTheses:
		if req.GenerateTheses == nil {
			return nil, nil, apperrors.NewValidationFailed("generate_theses section is required")
		}
		if req.GenerateTheses.Quantity > limits.MaxThesisQuantity {
			return nil, nil, apperrors.NewValidationFailed(
				fmt.Sprintf("at most %d theses per plan", limits.MaxThesisQuantity))
		}
		plan, result, err := h.registry.GenerateTheses(plans.GenerateThesesInput{
			ConceptID: req.GenerateTheses.ConceptID,
			Params: gateway.ThesisParams{
				Quantity: req.GenerateTheses.Quantity,
				Type:     domain.ThesisType(req.GenerateTheses.Type),
				Style:    req.GenerateTheses.Style,
			},
		})
		return plan, result, err

	case plans.PlanKindThesisToGraph:
		if req.ThesisToGraph == nil {
			return nil, nil, apperrors.NewValidationFailed("thesis_to_graph section is required")
		}
		plan, result, err := h.registry.ThesisToGraph(plans.ThesisToGraphInput{
			ConceptID: req.ThesisToGraph.ConceptID,
		})
		return plan, result, err

	case plans.PlanKindSynthesize:
		if req.Synthesize == nil {
			return nil, nil, apperrors.NewValidationFailed("synthesize section is required")
		}
		plan, result, err := h.registry.Synthesize(plans.SynthesizeInput{
			Name:        req.Synthesize.Name,
			Description: req.Synthesize.Description,
			ParentIDs:   req.Synthesize.ParentIDs,
			Params: gateway.SynthesisParams{
				Method:           req.Synthesize.Method,
				Focus:            req.Synthesize.Focus,
				InnovationDegree: req.Synthesize.InnovationDegree,
			},
		})
		return plan, result, err

	case plans.PlanKindArchiveConcept:
		if req.Archive == nil {
			return nil, nil, apperrors.NewValidationFailed("archive section is required")
		}
		plan, result, err := h.registry.ArchiveConcept(plans.ArchiveConceptInput{
			ConceptID: req.Archive.ConceptID,
		})
		return plan, result, err

	default:
		return nil, nil, apperrors.NewValidationFailed(fmt.Sprintf("unknown plan kind %q", req.Kind))
	}
}

func (h *PlanHandler) buildCreateConcept(req *createConceptRequest) (*saga.Plan, any, error) {
	input := plans.CreateConceptInput{
		Name:        req.Name,
		Description: req.Description,
		Enrich:      req.Enrich,
		Validate:    req.Validate,
	}
	for _, c := range req.Categories {
		input.Categories = append(input.Categories, plans.CategoryInput{
			Name:                   c.Name,
			Definition:             c.Definition,
			Centrality:             weightOrDefault(c.Centrality),
			Certainty:              weightOrDefault(c.Certainty),
			HistoricalSignificance: weightOrDefault(c.HistoricalSignificance),
		})
	}
	for _, rel := range req.Relationships {
		direction := domain.RelationshipDirection(rel.Direction)
		if direction == "" {
			direction = domain.DirectionDirected
		}
		input.Relationships = append(input.Relationships, plans.RelationshipInput{
			SourceName: rel.Source,
			TargetName: rel.Target,
			Type:       rel.Type,
			Direction:  direction,
			Strength:   weightOrDefault(rel.Strength),
			Certainty:  weightOrDefault(rel.Certainty),
		})
	}
	return h.registry.CreateConcept(input)
}

// weightOrDefault applies the documented default for omitted weights.
func weightOrDefault(w *float64) float64 {
	if w == nil {
		return domain.DefaultWeight
	}
	return *w
}
