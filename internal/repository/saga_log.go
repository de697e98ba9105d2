package repository

import (
	"context"
	"time"
)

// SagaLogStatus is the status recorded for a plan step (or the plan marker).
type SagaLogStatus string

const (
	SagaLogPending     SagaLogStatus = "pending"
	SagaLogCommitted   SagaLogStatus = "committed"
	SagaLogCompensated SagaLogStatus = "compensated"
	SagaLogFailed      SagaLogStatus = "failed"
)

// PlanMarkerIndex is the step index used for the plan-level terminal marker.
// Without it, a crash after the last step's committed row but before the
// plan finished would be indistinguishable from a clean completion.
const PlanMarkerIndex = -1

// SagaLogEntry is one append-only record of saga progress. Entries are
// events: a later entry for the same (planID, stepIndex) supersedes earlier
// ones, which keeps the full history available for auditing.
type SagaLogEntry struct {
	PlanID      string        `json:"plan_id"`
	StepIndex   int           `json:"step_index"`
	StepName    string        `json:"step_name"`
	StepKind    string        `json:"step_kind"`
	Status      SagaLogStatus `json:"status"`
	ConceptIDs  []string      `json:"concept_ids,omitempty"`
	PayloadHash string        `json:"payload_hash,omitempty"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SagaLogStore persists saga progress. It is the only state the coordinator
// persists directly; entity data lives in the store adapters' stores.
type SagaLogStore interface {
	// Append writes one entry. The log is append-only and replayable.
	Append(ctx context.Context, entry *SagaLogEntry) error

	// Entries returns all entries for a plan in append order.
	Entries(ctx context.Context, planID string) ([]*SagaLogEntry, error)

	// PendingPlanIDs returns ids of plans with no terminal plan marker,
	// i.e. plans interrupted by a crash.
	PendingPlanIDs(ctx context.Context) ([]string, error)
}

// LatestStepStatuses folds a plan's entries into the latest status per step
// index. The plan marker entry is excluded.
func LatestStepStatuses(entries []*SagaLogEntry) map[int]*SagaLogEntry {
	latest := make(map[int]*SagaLogEntry)
	for _, e := range entries {
		if e.StepIndex == PlanMarkerIndex {
			continue
		}
		latest[e.StepIndex] = e
	}
	return latest
}

// CommittedSteps returns the entries whose latest status is committed,
// ordered by ascending step index.
func CommittedSteps(entries []*SagaLogEntry) []*SagaLogEntry {
	latest := LatestStepStatuses(entries)
	max := -1
	for idx := range latest {
		if idx > max {
			max = idx
		}
	}
	committed := make([]*SagaLogEntry, 0, len(latest))
	for idx := 0; idx <= max; idx++ {
		if e, ok := latest[idx]; ok && e.Status == SagaLogCommitted {
			committed = append(committed, e)
		}
	}
	return committed
}
