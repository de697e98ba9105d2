package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"noesis-backend/internal/repository"
	"noesis-backend/internal/saga"
	apperrors "noesis-backend/pkg/errors"
	"noesis-backend/pkg/observability"
)

// PlanService is the plan submission boundary. Plans run either
// synchronously, returning the outcome to the caller, or asynchronously
// with a pollable status record.
type PlanService struct {
	coordinator *saga.Coordinator
	status      repository.PlanStatusStore
	metrics     *observability.Collector
	logger      *zap.Logger

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

// NewPlanService creates the submission service.
func NewPlanService(coordinator *saga.Coordinator, status repository.PlanStatusStore, metrics *observability.Collector, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{
		coordinator: coordinator,
		status:      status,
		metrics:     metrics,
		logger:      logger,
		maxInFlight: 32,
	}
}

// SetMaxInFlight adjusts the async concurrency cap at runtime.
func (s *PlanService) SetMaxInFlight(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxInFlight = n
	s.mu.Unlock()
}

// Run executes a plan synchronously. The status store is kept current so a
// sync plan's outcome is pollable too.
func (s *PlanService) Run(ctx context.Context, plan *saga.Plan) error {
	s.putStatus(ctx, plan, repository.PlanStateRunning, "", time.Now().UTC(), time.Time{})
	err := s.coordinator.Execute(ctx, plan)
	s.recordOutcome(ctx, plan, err, time.Now().UTC())
	return err
}

// RunAsync accepts a plan and executes it in the background. The returned
// plan id is immediately pollable via Status.
func (s *PlanService) RunAsync(plan *saga.Plan) (string, error) {
	s.mu.Lock()
	if s.inFlight >= s.maxInFlight {
		s.mu.Unlock()
		return "", apperrors.NewUnavailable("too many plans in flight, retry later", nil)
	}
	s.inFlight++
	s.mu.Unlock()

	submitted := time.Now().UTC()
	s.putStatus(context.Background(), plan, repository.PlanStateAccepted, "", submitted, time.Time{})

	go func() {
		defer func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
		}()

		// The submitting request's context dies with the response; the
		// plan's lifetime is its own.
		ctx := context.Background()
		s.putStatus(ctx, plan, repository.PlanStateRunning, "", submitted, time.Time{})
		err := s.coordinator.Execute(ctx, plan)
		s.recordOutcome(ctx, plan, err, time.Now().UTC())
	}()

	return plan.ID, nil
}

// Status returns the current status of a submitted plan.
func (s *PlanService) Status(ctx context.Context, planID string) (*repository.PlanStatusRecord, error) {
	return s.status.Get(ctx, planID)
}

func (s *PlanService) recordOutcome(ctx context.Context, plan *saga.Plan, err error, completed time.Time) {
	switch {
	case err == nil:
		s.putStatus(ctx, plan, repository.PlanStateCommitted, "", time.Time{}, completed)
	case apperrors.IsCompensationFailed(err):
		s.putStatus(ctx, plan, repository.PlanStateCompensationFailed, err.Error(), time.Time{}, completed)
	default:
		s.putStatus(ctx, plan, repository.PlanStateCompensated, err.Error(), time.Time{}, completed)
	}
}

func (s *PlanService) putStatus(ctx context.Context, plan *saga.Plan, state repository.PlanState, errMsg string, submitted, completed time.Time) {
	record := &repository.PlanStatusRecord{
		PlanID:      plan.ID,
		Kind:        plan.Kind,
		State:       state,
		ConceptIDs:  plan.ConceptIDs,
		Error:       errMsg,
		SubmittedAt: submitted,
		CompletedAt: completed,
	}
	if submitted.IsZero() {
		if existing, err := s.status.Get(ctx, plan.ID); err == nil {
			record.SubmittedAt = existing.SubmittedAt
		}
	}
	if err := s.status.Put(ctx, record); err != nil {
		s.logger.Warn("failed to record plan status",
			zap.String("plan_id", plan.ID),
			zap.Error(err),
		)
	}
}
