package coordinator

import (
	"context"
	"sync"

	"github.com/caseready/petition-score-api/internal/models"
)

// StatusPublisher mirrors session progress to a fast read path. Publishing is
// best effort; failures must not leak back into the pipeline.
type StatusPublisher interface {
	Publish(ctx context.Context, sessionID string, status models.SessionStatus, progress int, message string)
}

// NopPublisher discards all updates.
type NopPublisher struct{}

// Publish implements StatusPublisher.
func (NopPublisher) Publish(context.Context, string, models.SessionStatus, int, string) {}

// progressTracker keeps progress monotonically non-decreasing within one run
// and holds intermediate updates below the terminal value. 100 is written by
// the terminal transition only.
type progressTracker struct {
	mu   sync.Mutex
	last int
}

// advance returns the value to persist, or -1 when the update would move
// progress backwards.
func (t *progressTracker) advance(progress int) int {
	if progress > 99 {
		progress = 99
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress <= t.last {
		return -1
	}
	t.last = progress
	return progress
}
