// Package badger implements the document store adapter for theses and
// synthesis provenance on BadgerDB. Documents are JSON values under
// per-concept key prefixes, so a concept's documents are one prefix scan
// away.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

const (
	thesisPrefix     = "thesis:"
	provenancePrefix = "provenance:"
)

// ThesisStore is the Badger-backed document adapter.
type ThesisStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory instance.
func Open(path string, logger *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.NewUnavailable("failed to open badger database", err)
	}
	return db, nil
}

// NewThesisStore creates a thesis store over an opened database.
func NewThesisStore(db *badger.DB, logger *zap.Logger) *ThesisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThesisStore{db: db, logger: logger}
}

func thesisKey(conceptID, thesisID string) []byte {
	return []byte(thesisPrefix + conceptID + ":" + thesisID)
}

func provenanceKey(conceptID, recordID string) []byte {
	return []byte(provenancePrefix + conceptID + ":" + recordID)
}

// CreateThesis stores a new thesis, rejecting duplicate ids.
func (s *ThesisStore) CreateThesis(ctx context.Context, thesis *domain.Thesis) (*domain.Thesis, error) {
	key := thesisKey(thesis.ConceptID, thesis.ID)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return apperrors.NewConflict("thesis " + thesis.ID + " already exists")
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value, err := json.Marshal(thesis)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return nil, s.mapError("create thesis", err)
	}
	copied := *thesis
	return &copied, nil
}

// GetThesis fetches one thesis.
func (s *ThesisStore) GetThesis(ctx context.Context, conceptID, thesisID string) (*domain.Thesis, error) {
	var thesis domain.Thesis
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(thesisKey(conceptID, thesisID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &thesis)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, apperrors.NewNotFound("thesis " + thesisID + " not found")
		}
		return nil, s.mapError("get thesis", err)
	}
	return &thesis, nil
}

// DeleteThesis removes one thesis.
func (s *ThesisStore) DeleteThesis(ctx context.Context, conceptID, thesisID string) error {
	key := thesisKey(conceptID, thesisID)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.NewNotFound("thesis " + thesisID + " not found")
		}
		return s.mapError("delete thesis", err)
	}
	return nil
}

// GetThesesByConcept scans the concept's thesis prefix, returning theses
// ordered by creation time.
func (s *ThesisStore) GetThesesByConcept(ctx context.Context, conceptID string) ([]*domain.Thesis, error) {
	var theses []*domain.Thesis
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachValue(txn, []byte(thesisPrefix+conceptID+":"), func(value []byte) error {
			var thesis domain.Thesis
			if err := json.Unmarshal(value, &thesis); err != nil {
				return err
			}
			theses = append(theses, &thesis)
			return nil
		})
	})
	if err != nil {
		return nil, s.mapError("list theses", err)
	}
	sort.Slice(theses, func(i, j int) bool {
		if theses[i].CreatedAt.Equal(theses[j].CreatedAt) {
			return theses[i].ID < theses[j].ID
		}
		return theses[i].CreatedAt.Before(theses[j].CreatedAt)
	})
	return theses, nil
}

// DeleteThesesByConcept removes every thesis of a concept.
func (s *ThesisStore) DeleteThesesByConcept(ctx context.Context, conceptID string) error {
	return s.deletePrefix("delete theses", []byte(thesisPrefix+conceptID+":"))
}

// SaveProvenance stores a batch of provenance records. Re-saving a record
// overwrites it, which keeps compensation retries idempotent.
func (s *ThesisStore) SaveProvenance(ctx context.Context, records []*domain.SynthesisProvenance) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, record := range records {
			value, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := txn.Set(provenanceKey(record.ConceptID, record.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	return s.mapError("save provenance", err)
}

// GetProvenanceByConcept scans the concept's provenance prefix.
func (s *ThesisStore) GetProvenanceByConcept(ctx context.Context, conceptID string) ([]*domain.SynthesisProvenance, error) {
	var records []*domain.SynthesisProvenance
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachValue(txn, []byte(provenancePrefix+conceptID+":"), func(value []byte) error {
			var record domain.SynthesisProvenance
			if err := json.Unmarshal(value, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, s.mapError("list provenance", err)
	}
	return records, nil
}

// DeleteProvenanceByConcept removes every provenance record of a concept.
func (s *ThesisStore) DeleteProvenanceByConcept(ctx context.Context, conceptID string) error {
	return s.deletePrefix("delete provenance", []byte(provenancePrefix+conceptID+":"))
}

func (s *ThesisStore) deletePrefix(op string, prefix []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	return s.mapError(op, err)
}

func forEachValue(txn *badger.Txn, prefix []byte, fn func(value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *ThesisStore) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindInternal {
		return err
	}
	s.logger.Error("badger operation failed", zap.String("op", op), zap.Error(err))
	return apperrors.NewUnavailable(op+" failed", err)
}
