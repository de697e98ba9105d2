package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"noesis-backend/internal/repository"
)

// CompensationResolver maps a logged step back to executable compensation
// code. The saga log stores data, not closures, so after a crash the plan
// registry rebuilds each step's compensation from the plan kind, the step
// name and the concept ids the entry recorded. A false second return means
// the step has no compensation.
type CompensationResolver interface {
	Resolve(planKind, stepName string, entry *repository.SagaLogEntry) (func(ctx context.Context) error, bool)
}

// Recover unwinds every plan the log shows as interrupted: committed steps
// are compensated in reverse order and the plan gets its terminal marker.
// It runs at startup, before the coordinator accepts new plans, and is
// best-effort per plan so one unrecoverable plan does not block the rest.
func (c *Coordinator) Recover(ctx context.Context, resolver CompensationResolver) error {
	planIDs, err := c.log.PendingPlanIDs(ctx)
	if err != nil {
		return err
	}
	if len(planIDs) == 0 {
		return nil
	}

	c.logger.Info("recovering interrupted plans", zap.Int("count", len(planIDs)))
	for _, planID := range planIDs {
		if err := c.recoverPlan(ctx, planID, resolver); err != nil {
			c.logger.Error("plan recovery failed",
				zap.String("plan_id", planID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (c *Coordinator) recoverPlan(ctx context.Context, planID string, resolver CompensationResolver) error {
	entries, err := c.log.Entries(ctx, planID)
	if err != nil {
		return err
	}
	planKind, conceptIDs := planMarkerInfo(entries)
	if planKind == "" {
		return fmt.Errorf("plan %s has no marker entry", planID)
	}

	release := c.locks.Acquire(conceptIDs)
	defer release()

	logger := c.logger.With(
		zap.String("plan_id", planID),
		zap.String("plan_kind", planKind),
	)

	latest := repository.LatestStepStatuses(entries)

	// Steps still pending at the crash are of unknown effect; record them
	// failed so the log reads terminally, then unwind what committed.
	for index, entry := range latest {
		if entry.Status != repository.SagaLogPending {
			continue
		}
		if err := c.appendRecovered(ctx, planID, index, entry, repository.SagaLogFailed, "interrupted before commit"); err != nil {
			logger.Error("failed to mark interrupted step", zap.Error(err))
		}
	}

	committed := repository.CommittedSteps(entries)
	var failures int
	for i := len(committed) - 1; i >= 0; i-- {
		entry := committed[i]
		compensate, ok := resolver.Resolve(planKind, entry.StepName, entry)
		if !ok {
			continue
		}

		compCtx, cancel := context.WithTimeout(ctx, c.cfg.CompensationTimeout)
		err := compensate(compCtx)
		cancel()

		if err != nil {
			failures++
			logger.Error("recovery compensation failed",
				zap.String("step", entry.StepName),
				zap.Error(err),
			)
			if appendErr := c.appendRecovered(ctx, planID, entry.StepIndex, entry, repository.SagaLogFailed, "compensation: "+err.Error()); appendErr != nil {
				logger.Error("failed to record recovery failure", zap.Error(appendErr))
			}
			continue
		}

		if appendErr := c.appendRecovered(ctx, planID, entry.StepIndex, entry, repository.SagaLogCompensated, ""); appendErr != nil {
			logger.Error("failed to record recovery compensation", zap.Error(appendErr))
		}
		c.invalidate(ctx, entry.ConceptIDs)
	}

	status := repository.SagaLogCompensated
	if failures > 0 {
		status = repository.SagaLogFailed
	}
	if err := c.log.Append(ctx, &repository.SagaLogEntry{
		PlanID:     planID,
		StepIndex:  repository.PlanMarkerIndex,
		StepName:   planKind,
		StepKind:   markerStepKind,
		Status:     status,
		ConceptIDs: conceptIDs,
		Error:      "recovered after interruption",
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	c.invalidate(ctx, conceptIDs)

	logger.Info("plan recovered",
		zap.Int("compensated", len(committed)-failures),
		zap.Int("failed_compensations", failures),
	)
	return nil
}

func (c *Coordinator) appendRecovered(ctx context.Context, planID string, index int, entry *repository.SagaLogEntry, status repository.SagaLogStatus, errMsg string) error {
	return c.log.Append(ctx, &repository.SagaLogEntry{
		PlanID:      planID,
		StepIndex:   index,
		StepName:    entry.StepName,
		StepKind:    entry.StepKind,
		Status:      status,
		ConceptIDs:  entry.ConceptIDs,
		PayloadHash: entry.PayloadHash,
		Error:       errMsg,
		Timestamp:   time.Now().UTC(),
	})
}

// planMarkerInfo extracts the plan kind and concept ids from the first
// marker entry.
func planMarkerInfo(entries []*repository.SagaLogEntry) (string, []string) {
	for _, e := range entries {
		if e.StepIndex == repository.PlanMarkerIndex {
			return e.StepName, e.ConceptIDs
		}
	}
	return "", nil
}
