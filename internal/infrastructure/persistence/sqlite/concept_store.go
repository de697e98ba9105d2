package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

// ConceptStore is the SQLite-backed relational adapter for concepts.
type ConceptStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConceptStore creates a concept store over an opened database.
func NewConceptStore(db *sql.DB, logger *zap.Logger) *ConceptStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConceptStore{db: db, logger: logger}
}

// CreateConcept inserts a new concept. A duplicate id is a Conflict.
func (s *ConceptStore) CreateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concepts (id, name, description, status, is_synthesis, parent_concept_ids, synthesis_method, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		concept.ID, concept.Name, concept.Description, string(concept.Status),
		concept.IsSynthesis, joinIDs(concept.ParentConceptIDs), concept.SynthesisMethod,
		concept.CreatedAt, concept.LastModified,
	)
	if err != nil {
		return nil, mapError("create concept", err)
	}
	copied := *concept
	return &copied, nil
}

// GetConcept fetches one concept by id.
func (s *ConceptStore) GetConcept(ctx context.Context, id string) (*domain.Concept, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, is_synthesis, parent_concept_ids, synthesis_method, created_at, last_modified
		FROM concepts WHERE id = ?`, id)
	return scanConcept(row)
}

// UpdateConcept replaces an existing concept's mutable fields.
func (s *ConceptStore) UpdateConcept(ctx context.Context, concept *domain.Concept) (*domain.Concept, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE concepts
		SET name = ?, description = ?, status = ?, last_modified = ?
		WHERE id = ?`,
		concept.Name, concept.Description, string(concept.Status), now, concept.ID,
	)
	if err != nil {
		return nil, mapError("update concept", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, mapError("update concept", err)
	}
	if affected == 0 {
		return nil, apperrors.NewNotFound("concept " + concept.ID + " not found")
	}
	copied := *concept
	copied.LastModified = now
	return &copied, nil
}

// ArchiveConcept soft-deletes a concept.
func (s *ConceptStore) ArchiveConcept(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE concepts SET status = ?, last_modified = ? WHERE id = ?`,
		string(domain.ConceptStatusArchived), time.Now().UTC(), id,
	)
	if err != nil {
		return mapError("archive concept", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError("archive concept", err)
	}
	if affected == 0 {
		return apperrors.NewNotFound("concept " + id + " not found")
	}
	return nil
}

// DeleteConcept removes a concept outright. Compensation-only; deleting a
// missing concept is not an error so compensations stay idempotent.
func (s *ConceptStore) DeleteConcept(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id); err != nil {
		return mapError("delete concept", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcept(row rowScanner) (*domain.Concept, error) {
	var (
		concept   domain.Concept
		status    string
		parentIDs string
	)
	err := row.Scan(
		&concept.ID, &concept.Name, &concept.Description, &status,
		&concept.IsSynthesis, &parentIDs, &concept.SynthesisMethod,
		&concept.CreatedAt, &concept.LastModified,
	)
	if err != nil {
		return nil, mapError("get concept", err)
	}
	concept.Status = domain.ConceptStatus(status)
	concept.ParentConceptIDs = splitIDs(parentIDs)
	return &concept, nil
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
