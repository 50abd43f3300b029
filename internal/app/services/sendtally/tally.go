// Package sendtally counts snaps sent per user. Sending and approval are
// distinct events; only approvals feed the scoring engine. Sends are a
// plain informational counter kept outside the score profile.
package sendtally

import (
	"context"
	"fmt"
	"strings"

	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

// Tally records and reads the per-user sent-snap counter.
type Tally struct {
	store storage.SendTallyStore
	log   *logger.Logger
}

// New creates a configured tally.
func New(store storage.SendTallyStore, log *logger.Logger) *Tally {
	if log == nil {
		log = logger.NewDefault("sendtally")
	}
	return &Tally{store: store, log: log}
}

// Record bumps the user's sent counter and returns the new total.
func (t *Tally) Record(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	count, err := t.store.IncrementSendCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("increment send count: %w", err)
	}
	return count, nil
}

// Count returns the user's sent total, zero when the user never sent.
func (t *Tally) Count(ctx context.Context, userID string) (int, error) {
	count, err := t.store.GetSendCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get send count: %w", err)
	}
	return count, nil
}
