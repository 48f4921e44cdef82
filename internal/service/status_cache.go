package service

import (
	"context"
	"time"

	"github.com/caseready/petition-score-api/internal/models"
)

const statusCacheTTL = time.Hour

// StatusSnapshot is the cached polling view of a session run.
type StatusSnapshot struct {
	Status          models.SessionStatus `json:"status"`
	Progress        int                  `json:"progress"`
	ProgressMessage string               `json:"progress_message"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// StatusCache mirrors run progress into Redis so the polling dashboard reads
// skip Postgres. It satisfies the coordinator's publisher contract.
type StatusCache struct {
	cache *CacheService
}

// NewStatusCache wraps the shared cache service.
func NewStatusCache(cache *CacheService) *StatusCache {
	return &StatusCache{cache: cache}
}

func statusCacheKey(sessionID string) string {
	return "session:status:" + sessionID
}

// Publish stores the latest snapshot. Best effort: errors are already logged
// by the cache service and intentionally dropped here.
func (c *StatusCache) Publish(ctx context.Context, sessionID string, status models.SessionStatus, progress int, message string) {
	if c == nil || !c.cache.Enabled() {
		return
	}
	snapshot := StatusSnapshot{
		Status:          status,
		Progress:        progress,
		ProgressMessage: message,
		UpdatedAt:       time.Now().UTC(),
	}
	_ = c.cache.Set(ctx, statusCacheKey(sessionID), snapshot, statusCacheTTL)
}

// Lookup returns the cached snapshot when present.
func (c *StatusCache) Lookup(ctx context.Context, sessionID string) (*StatusSnapshot, bool) {
	if c == nil || !c.cache.Enabled() {
		return nil, false
	}
	var snapshot StatusSnapshot
	hit, err := c.cache.Get(ctx, statusCacheKey(sessionID), &snapshot)
	if err != nil || !hit {
		return nil, false
	}
	return &snapshot, true
}
