package repository

import (
	"context"
	"time"
)

// PlanState is the externally visible execution state of a submitted plan.
type PlanState string

const (
	PlanStateAccepted           PlanState = "accepted"
	PlanStateRunning            PlanState = "running"
	PlanStateCommitted          PlanState = "committed"
	PlanStateCompensated        PlanState = "compensated"
	PlanStateCompensationFailed PlanState = "compensation_failed"
)

// PlanStatusRecord is what status polling returns for an async submission.
type PlanStatusRecord struct {
	PlanID      string    `json:"plan_id"`
	Kind        string    `json:"kind"`
	State       PlanState `json:"state"`
	ConceptIDs  []string  `json:"concept_ids,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the record's state is final.
func (r *PlanStatusRecord) Terminal() bool {
	switch r.State {
	case PlanStateCommitted, PlanStateCompensated, PlanStateCompensationFailed:
		return true
	}
	return false
}

// PlanStatusStore tracks async plan submissions for polling. Records are
// short-lived bookkeeping, not durable history; the saga log is the durable
// record.
type PlanStatusStore interface {
	Put(ctx context.Context, record *PlanStatusRecord) error
	Get(ctx context.Context, planID string) (*PlanStatusRecord, error)
}
