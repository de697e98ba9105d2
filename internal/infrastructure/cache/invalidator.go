package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Derived projection keys. Everything cached for a concept shares the
// concept key prefix so Invalidate can drop it in one sweep.

// ConceptKeyPrefix returns the key prefix shared by all derived entries of
// a concept.
func ConceptKeyPrefix(conceptID string) string {
	return fmt.Sprintf("concept:%s:", conceptID)
}

// GraphProjectionKey is the cache key of the assembled concept graph.
func GraphProjectionKey(conceptID string) string {
	return ConceptKeyPrefix(conceptID) + "graph"
}

// EnrichedCategoryKey is the cache key of an enriched category projection.
func EnrichedCategoryKey(conceptID, categoryID string) string {
	return ConceptKeyPrefix(conceptID) + "category:" + categoryID
}

// ThesesProjectionKey is the cache key of a concept's thesis list.
func ThesesProjectionKey(conceptID string) string {
	return ConceptKeyPrefix(conceptID) + "theses"
}

// Invalidator removes every derived cache entry keyed by a concept id. The
// saga coordinator calls it synchronously after each committed store
// mutation, never before, so readers cannot observe a partially-invalidated
// stale cache after a failed step. Compensating writes invalidate again.
type Invalidator struct {
	cache  *MemoryCache
	logger *zap.Logger
}

// NewInvalidator creates an invalidator over the shared projection cache.
func NewInvalidator(cache *MemoryCache, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{cache: cache, logger: logger}
}

// Invalidate drops every cache entry derived from the concept.
func (i *Invalidator) Invalidate(ctx context.Context, conceptID string) {
	if conceptID == "" {
		return
	}
	dropped := i.cache.DeleteByPrefix(ctx, ConceptKeyPrefix(conceptID))
	if dropped > 0 {
		i.logger.Debug("invalidated derived cache entries",
			zap.String("concept_id", conceptID),
			zap.Int("count", dropped),
		)
	}
}
