package sqlite

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"noesis-backend/internal/repository"
)

// SagaLogStore is the durable append-only saga log on SQLite. The log and
// the concepts table share one database file, but entries are never written
// in the same transaction as entity data: the log tracks intent and
// outcome, not state.
type SagaLogStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSagaLogStore creates a saga log store over an opened database.
func NewSagaLogStore(db *sql.DB, logger *zap.Logger) *SagaLogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SagaLogStore{db: db, logger: logger}
}

// Append writes one entry.
func (s *SagaLogStore) Append(ctx context.Context, entry *repository.SagaLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_log (plan_id, step_index, step_name, step_kind, status, concept_ids, payload_hash, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PlanID, entry.StepIndex, entry.StepName, entry.StepKind,
		string(entry.Status), joinIDs(entry.ConceptIDs), entry.PayloadHash,
		entry.Error, entry.Timestamp,
	)
	return mapError("append saga log entry", err)
}

// Entries returns all entries for a plan in append order.
func (s *SagaLogStore) Entries(ctx context.Context, planID string) ([]*repository.SagaLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, step_index, step_name, step_kind, status, concept_ids, payload_hash, error, timestamp
		FROM saga_log WHERE plan_id = ? ORDER BY seq`, planID)
	if err != nil {
		return nil, mapError("read saga log", err)
	}
	defer rows.Close()

	var entries []*repository.SagaLogEntry
	for rows.Next() {
		var (
			entry      repository.SagaLogEntry
			status     string
			conceptIDs string
		)
		if err := rows.Scan(
			&entry.PlanID, &entry.StepIndex, &entry.StepName, &entry.StepKind,
			&status, &conceptIDs, &entry.PayloadHash, &entry.Error, &entry.Timestamp,
		); err != nil {
			return nil, mapError("read saga log", err)
		}
		entry.Status = repository.SagaLogStatus(status)
		entry.ConceptIDs = splitIDs(conceptIDs)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("read saga log", err)
	}
	return entries, nil
}

// PendingPlanIDs returns plans whose latest marker entry is still pending.
func (s *SagaLogStore) PendingPlanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id FROM saga_log
		WHERE step_index = ?
		GROUP BY plan_id
		HAVING (SELECT status FROM saga_log inner_log
			WHERE inner_log.plan_id = saga_log.plan_id AND inner_log.step_index = ?
			ORDER BY inner_log.seq DESC LIMIT 1) = ?
		ORDER BY MIN(seq)`,
		repository.PlanMarkerIndex, repository.PlanMarkerIndex, string(repository.SagaLogPending))
	if err != nil {
		return nil, mapError("scan saga log for pending plans", err)
	}
	defer rows.Close()

	var planIDs []string
	for rows.Next() {
		var planID string
		if err := rows.Scan(&planID); err != nil {
			return nil, mapError("scan saga log for pending plans", err)
		}
		planIDs = append(planIDs, planID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("scan saga log for pending plans", err)
	}
	return planIDs, nil
}
