// Package storage declares the persistence interfaces consumed by the
// engine services. Implementations live in the memory and postgres
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/domain/pair"
	"github.com/habitsnap/core/internal/app/domain/score"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict indicates a compare-and-swap lost to a
	// concurrent writer; the caller must re-read and recompute.
	ErrVersionConflict = errors.New("version conflict")
)

// PairStreakStore persists one streak record per canonical friend pair.
type PairStreakStore interface {
	// GetOrCreatePairStreak returns the record for the pair, creating a
	// zero-state record atomically on first access. Two concurrent
	// creators for the same pair observe a single record.
	GetOrCreatePairStreak(ctx context.Context, key pair.Key) (pair.Streak, error)

	// GetPairStreak returns the record or ErrNotFound.
	GetPairStreak(ctx context.Context, key pair.Key) (pair.Streak, error)

	// CompareAndSwapPairStreak commits updated only if the stored version
	// still equals updated.Version, returning the record with the bumped
	// version. ErrVersionConflict signals a lost race.
	CompareAndSwapPairStreak(ctx context.Context, updated pair.Streak) (pair.Streak, error)
}

// HabitStore persists habit metadata.
type HabitStore interface {
	CreateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error)
	GetHabit(ctx context.Context, id string) (habit.Habit, error)
	ListActiveHabits(ctx context.Context) ([]habit.Habit, error)
	SetHabitActive(ctx context.Context, id string, active bool) (habit.Habit, error)
}

// HabitDayStore persists the per-day completion ledger.
type HabitDayStore interface {
	// UpsertHabitDay merges day into the ledger, keyed on
	// (user, habit, date). Completed is sticky: once a day is completed a
	// later miss upsert cannot clear it. SnapCount accumulates.
	// PenaltyApplied is owned by MarkPenaltyApplied and is preserved.
	UpsertHabitDay(ctx context.Context, day habit.Day) (habit.Day, error)

	// GetHabitDay returns the ledger row or ErrNotFound.
	GetHabitDay(ctx context.Context, userID, habitID string, date time.Time) (habit.Day, error)

	// ListHabitDays returns rows for the habit with Date <= until, in
	// descending date order, at most limit rows.
	ListHabitDays(ctx context.Context, userID, habitID string, until time.Time, limit int) ([]habit.Day, error)

	// MarkPenaltyApplied records the penalty charged for the day.
	// ErrNotFound when no ledger row exists for the date.
	MarkPenaltyApplied(ctx context.Context, userID, habitID string, date time.Time, penalty int) error
}

// ScoreStore persists per-user score profiles.
type ScoreStore interface {
	GetOrCreateProfile(ctx context.Context, userID string) (score.Profile, error)
	GetProfile(ctx context.Context, userID string) (score.Profile, error)

	// CompareAndSwapProfile follows the same discipline as
	// CompareAndSwapPairStreak.
	CompareAndSwapProfile(ctx context.Context, updated score.Profile) (score.Profile, error)

	// ListProfiles returns all profiles; the leaderboard cache is the
	// only consumer and sorts on its own.
	ListProfiles(ctx context.Context) ([]score.Profile, error)
}

// SendTallyStore persists the per-user sent-snap counter. The tally is
// informational and deliberately separate from score profiles.
type SendTallyStore interface {
	IncrementSendCount(ctx context.Context, userID string) (int, error)
	GetSendCount(ctx context.Context, userID string) (int, error)
}
