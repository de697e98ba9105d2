package saga

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"noesis-backend/internal/infrastructure/cache"
	"noesis-backend/internal/repository"
	apperrors "noesis-backend/pkg/errors"
	"noesis-backend/pkg/observability"
)

// markerStepKind tags the plan-level marker entries in the saga log. The
// marker's step name carries the plan kind so recovery can resolve
// compensations without any other plan record.
const markerStepKind = "plan"

// Config tunes coordinator execution.
type Config struct {
	// StoreTimeout bounds one attempt of a store step.
	StoreTimeout time.Duration
	// ReasoningTimeout bounds one attempt of a reasoning step.
	ReasoningTimeout time.Duration
	// CompensationTimeout bounds one compensation call.
	CompensationTimeout time.Duration
	// Retry governs re-attempts of transiently failing steps.
	Retry repository.RetryConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:        5 * time.Second,
		ReasoningTimeout:    60 * time.Second,
		CompensationTimeout: 10 * time.Second,
		Retry:               repository.DefaultRetryConfig(),
	}
}

// Coordinator executes plans with saga semantics: steps run in declared
// order, progress is persisted to the saga log before and after every step,
// and a failure unwinds already-committed steps in reverse order.
type Coordinator struct {
	log         repository.SagaLogStore
	locks       *ConceptLocks
	invalidator *cache.Invalidator
	metrics     *observability.Collector
	logger      *zap.Logger
	cfg         Config
}

// NewCoordinator creates a coordinator.
func NewCoordinator(log repository.SagaLogStore, locks *ConceptLocks, invalidator *cache.Invalidator, cfg Config, metrics *observability.Collector, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewConceptLocks()
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.ReasoningTimeout == 0 {
		cfg.ReasoningTimeout = 60 * time.Second
	}
	if cfg.CompensationTimeout == 0 {
		cfg.CompensationTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = repository.DefaultRetryConfig()
	}
	return &Coordinator{
		log:         log,
		locks:       locks,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Execute runs a plan to completion or unwinds it. It returns nil only when
// every step committed. On failure the original step error is returned when
// all compensations succeed; when any compensation also fails the error is
// CompensationFailed wrapping the original cause.
func (c *Coordinator) Execute(ctx context.Context, plan *Plan) error {
	if plan == nil || len(plan.Steps) == 0 {
		return apperrors.NewValidationFailed("cannot execute an empty plan")
	}

	started := time.Now()
	release := c.locks.Acquire(plan.ConceptIDs)
	defer release()

	logger := c.logger.With(
		zap.String("plan_id", plan.ID),
		zap.String("plan_kind", plan.Kind),
	)

	if err := c.appendMarker(ctx, plan, repository.SagaLogPending, ""); err != nil {
		return err
	}

	for i, step := range plan.Steps {
		if err := c.appendStep(ctx, plan, i, step, repository.SagaLogPending, ""); err != nil {
			return c.unwind(ctx, plan, i, err, logger, started)
		}

		if err := c.runStep(ctx, step, logger); err != nil {
			logger.Warn("plan step failed",
				zap.String("step", step.Name),
				zap.Error(err),
			)
			if appendErr := c.appendStep(ctx, plan, i, step, repository.SagaLogFailed, err.Error()); appendErr != nil {
				logger.Error("failed to record step failure", zap.Error(appendErr))
			}
			// The failed Execute may have partially applied before erroring,
			// so its own Compensate is part of the unwind.
			return c.unwind(ctx, plan, i+1, err, logger, started)
		}

		if err := c.appendStep(ctx, plan, i, step, repository.SagaLogCommitted, ""); err != nil {
			// The step's effect is live but unrecorded; treat it as
			// committed for this run and unwind including it.
			return c.unwind(ctx, plan, i+1, err, logger, started)
		}
		c.invalidate(ctx, plan.stepConcepts(step))
	}

	if err := c.appendMarker(ctx, plan, repository.SagaLogCommitted, ""); err != nil {
		logger.Error("failed to record plan completion", zap.Error(err))
	}

	c.metrics.RecordPlanExecution(plan.Kind, "committed", time.Since(started))
	logger.Info("plan committed",
		zap.Int("steps", len(plan.Steps)),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// runStep executes one step with retry and a per-attempt timeout.
func (c *Coordinator) runStep(ctx context.Context, step Step, logger *zap.Logger) error {
	timeout := c.cfg.StoreTimeout
	if step.Kind == StepKindReasoning {
		timeout = c.cfg.ReasoningTimeout
	}

	return repository.RetryWithBackoff(ctx, c.cfg.Retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := step.Execute(attemptCtx)
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return apperrors.NewUnavailable(fmt.Sprintf("step %s timed out", step.Name), err)
		}
		return err
	}, func(attempt int) {
		c.metrics.RecordStepRetry()
		logger.Info("retrying plan step",
			zap.String("step", step.Name),
			zap.Int("attempt", attempt),
		)
	})
}

// unwind compensates the first `executed` steps in reverse order, the
// failed step included since its writes may have partially landed. All
// compensations are attempted regardless of individual failures; the root
// cause is never masked by a compensation error.
func (c *Coordinator) unwind(ctx context.Context, plan *Plan, executed int, cause error, logger *zap.Logger, started time.Time) error {
	// Compensation must proceed even when the plan's context was cancelled.
	base := context.WithoutCancel(ctx)

	var compFailures []string
	for i := executed - 1; i >= 0; i-- {
		step := plan.Steps[i]
		if step.Compensate == nil {
			continue
		}

		compCtx, cancel := context.WithTimeout(base, c.cfg.CompensationTimeout)
		err := step.Compensate(compCtx)
		cancel()

		if err != nil {
			compFailures = append(compFailures, fmt.Sprintf("%s: %v", step.Name, err))
			logger.Error("compensation failed",
				zap.String("step", step.Name),
				zap.Error(err),
			)
			if appendErr := c.appendStep(base, plan, i, step, repository.SagaLogFailed, "compensation: "+err.Error()); appendErr != nil {
				logger.Error("failed to record compensation failure", zap.Error(appendErr))
			}
			continue
		}

		if appendErr := c.appendStep(base, plan, i, step, repository.SagaLogCompensated, ""); appendErr != nil {
			logger.Error("failed to record compensation", zap.Error(appendErr))
		}
		c.invalidate(base, plan.stepConcepts(step))
	}

	status := repository.SagaLogCompensated
	outcome := "compensated"
	if len(compFailures) > 0 {
		status = repository.SagaLogFailed
		outcome = "compensation_failed"
	}
	if err := c.appendMarker(base, plan, status, cause.Error()); err != nil {
		logger.Error("failed to record plan outcome", zap.Error(err))
	}

	c.metrics.RecordPlanExecution(plan.Kind, outcome, time.Since(started))
	if len(compFailures) > 0 {
		return apperrors.NewCompensationFailed(
			fmt.Sprintf("plan %s left residual state, manual cleanup needed (%s)", plan.ID, strings.Join(compFailures, "; ")),
			cause,
		)
	}
	return cause
}

func (c *Coordinator) appendStep(ctx context.Context, plan *Plan, index int, step Step, status repository.SagaLogStatus, errMsg string) error {
	return c.log.Append(ctx, &repository.SagaLogEntry{
		PlanID:      plan.ID,
		StepIndex:   index,
		StepName:    step.Name,
		StepKind:    string(step.Kind),
		Status:      status,
		ConceptIDs:  plan.stepConcepts(step),
		PayloadHash: payloadHash(step.Data),
		Error:       errMsg,
		Timestamp:   time.Now().UTC(),
	})
}

func (c *Coordinator) appendMarker(ctx context.Context, plan *Plan, status repository.SagaLogStatus, errMsg string) error {
	return c.log.Append(ctx, &repository.SagaLogEntry{
		PlanID:     plan.ID,
		StepIndex:  repository.PlanMarkerIndex,
		StepName:   plan.Kind,
		StepKind:   markerStepKind,
		Status:     status,
		ConceptIDs: plan.ConceptIDs,
		Error:      errMsg,
		Timestamp:  time.Now().UTC(),
	})
}

func (c *Coordinator) invalidate(ctx context.Context, conceptIDs []string) {
	if c.invalidator == nil {
		return
	}
	for _, id := range conceptIDs {
		c.invalidator.Invalidate(ctx, id)
	}
}

// payloadHash hashes a step's input for the audit log. Unhashable payloads
// are recorded as absent rather than failing the plan.
func payloadHash(data any) string {
	if data == nil {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
