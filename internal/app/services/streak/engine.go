// Package streak implements the mutual pair streak state machine.
//
// Each friend pair shares one record. A cycle completes when both sides
// act toward each other within the rolling window; the streak increments
// and a fresh cycle begins. Letting the window lapse resets the current
// streak to zero while the longest streak survives.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitsnap/core/internal/app/domain/pair"
	"github.com/habitsnap/core/internal/app/metrics"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/internal/clock"
	"github.com/habitsnap/core/pkg/logger"
)

// Window is the rolling deadline for the opposite side to act. It is
// anchored to the most recent qualifying action, not to calendar days.
const Window = 24 * time.Hour

// maxRetries bounds the CAS loop under contention on one hot pair.
const maxRetries = 5

// ErrConflict is returned when the optimistic retry budget is exhausted.
// The caller may retry the whole action once but must not drop it.
var ErrConflict = errors.New("pair streak update lost to concurrent writers")

// Result reports the pair state after a recorded action.
type Result struct {
	CurrentStreak int  `json:"current_streak"`
	LongestStreak int  `json:"longest_streak"`
	Increased     bool `json:"increased"`
}

// Engine applies streak transitions through optimistic concurrency.
type Engine struct {
	store storage.PairStreakStore
	clock clock.Clock
	log   *logger.Logger
}

// New creates a configured streak engine.
func New(store storage.PairStreakStore, clk clock.Clock, log *logger.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("streak")
	}
	return &Engine{store: store, clock: clk, log: log}
}

// RecordAction records that sender acted toward receiver and applies the
// resulting state transition. Two opposite-direction calls racing on the
// same pair cannot lose an update: each commit is a single CAS and the
// loser recomputes against the winner's state.
func (e *Engine) RecordAction(ctx context.Context, senderID, receiverID string) (Result, error) {
	key, err := pair.Canonicalize(senderID, receiverID)
	if err != nil {
		metrics.ObserveStreakAction("rejected")
		return Result{}, err
	}
	side, err := key.SideOf(senderID)
	if err != nil {
		return Result{}, err
	}

	now := e.clock.Now()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		rec, err := e.store.GetOrCreatePairStreak(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("load pair streak: %w", err)
		}

		next, increased, outcome := transition(rec, side, now)

		committed, err := e.store.CompareAndSwapPairStreak(ctx, next)
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.ObserveStreakRetry()
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("commit pair streak: %w", err)
		}

		metrics.ObserveStreakAction(outcome)
		if increased {
			e.log.WithField("low", key.Low).
				WithField("high", key.High).
				WithField("current_streak", committed.CurrentStreak).
				Info("pair streak increased")
		}
		return Result{
			CurrentStreak: committed.CurrentStreak,
			LongestStreak: committed.LongestStreak,
			Increased:     increased,
		}, nil
	}

	metrics.ObserveStreakAction("conflict")
	return Result{}, ErrConflict
}

// GetPairStreak returns the streak record for the two users, or nil when
// no record exists yet.
func (e *Engine) GetPairStreak(ctx context.Context, userA, userB string) (*pair.Streak, error) {
	key, err := pair.Canonicalize(userA, userB)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.GetPairStreak(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pair streak: %w", err)
	}
	return &rec, nil
}

// transition computes the next record state for an action by the given
// side at the given instant. It is pure: the CAS loop re-invokes it on
// every retry against freshly read state.
func transition(rec pair.Streak, side pair.Side, now time.Time) (next pair.Streak, increased bool, outcome string) {
	expires := now.Add(Window)

	// Window already lapsed: the streak is dead. The incoming action
	// starts a new cycle from zero; the longest streak is untouched.
	if rec.StreakExpiresAt != nil && now.After(*rec.StreakExpiresAt) {
		rec.CurrentStreak = 0
		rec.LastActionLow = nil
		rec.LastActionHigh = nil
		rec.StreakStartedAt = nil
		rec.SetLastAction(side, &now)
		rec.StreakExpiresAt = &expires
		return rec, false, "reset"
	}

	rec.SetLastAction(side, &now)

	other := rec.LastActionOf(side.Other())
	if other != nil && now.Sub(*other) <= Window {
		// Both sides acted within the trailing window: complete the
		// cycle and open a fresh one with both timestamps cleared.
		rec.CurrentStreak++
		if rec.LongestStreak < rec.CurrentStreak {
			rec.LongestStreak = rec.CurrentStreak
		}
		if rec.StreakStartedAt == nil {
			rec.StreakStartedAt = &now
		}
		rec.LastActionLow = nil
		rec.LastActionHigh = nil
		rec.StreakExpiresAt = &expires
		return rec, true, "increased"
	}

	rec.StreakExpiresAt = &expires
	return rec, false, "held"
}
