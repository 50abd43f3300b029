// Package habits maintains the per-user per-habit daily completion
// ledger and derives streaks from it.
package habits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

const (
	// completionLookback bounds the backward scan when computing streaks.
	completionLookback = 30

	// missLookback bounds the backward scan when counting consecutive
	// misses for the progressive penalty.
	missLookback = 7
)

// ErrDayCompleted is returned by RecordMiss when the target day already
// holds a completion; a completed day can never be turned into a miss.
var ErrDayCompleted = errors.New("day already completed")

// Tracker owns the HabitDay ledger. The ledger stores explicit rows only;
// a missing row breaks a streak exactly like an explicit miss.
type Tracker struct {
	habits storage.HabitStore
	days   storage.HabitDayStore
	log    *logger.Logger
}

// New creates a configured tracker. The habit store, when present, is
// used to reject completions for unknown habits.
func New(habitStore storage.HabitStore, dayStore storage.HabitDayStore, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewDefault("habits")
	}
	return &Tracker{habits: habitStore, days: dayStore, log: log}
}

// RecordCompletion upserts a completed ledger row for the date and
// returns the current streak ending on that date. Recording the same day
// twice is a no-op for the streak; only the snap count accumulates.
func (t *Tracker) RecordCompletion(ctx context.Context, userID, habitID string, date time.Time) (int, error) {
	date = habit.Truncate(date)
	if err := t.checkHabit(ctx, habitID); err != nil {
		return 0, err
	}

	_, err := t.days.UpsertHabitDay(ctx, habit.Day{
		UserID:    userID,
		HabitID:   habitID,
		Date:      date,
		Completed: true,
		SnapCount: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("record completion: %w", err)
	}

	return t.CurrentStreak(ctx, userID, habitID, date)
}

// RecordMiss upserts a missed ledger row for the date and returns the
// number of consecutive missed days ending on that date, this day
// included, capped at the lookback. ErrDayCompleted signals the day
// already holds a completion.
func (t *Tracker) RecordMiss(ctx context.Context, userID, habitID string, date time.Time) (int, error) {
	date = habit.Truncate(date)
	if err := t.checkHabit(ctx, habitID); err != nil {
		return 0, err
	}

	merged, err := t.days.UpsertHabitDay(ctx, habit.Day{
		UserID:  userID,
		HabitID: habitID,
		Date:    date,
	})
	if err != nil {
		return 0, fmt.Errorf("record miss: %w", err)
	}
	if merged.Completed {
		return 0, ErrDayCompleted
	}

	days, err := t.days.ListHabitDays(ctx, userID, habitID, date, missLookback)
	if err != nil {
		return 0, fmt.Errorf("scan misses: %w", err)
	}

	misses := 0
	expect := date
	for _, d := range days {
		if !d.Date.Equal(expect) || d.Completed {
			break
		}
		misses++
		expect = expect.AddDate(0, 0, -1)
	}
	return misses, nil
}

// CurrentStreak counts consecutive completed days scanning backward from
// the most recent ledger row at or before asOf. A date gap or an explicit
// miss ends the count.
func (t *Tracker) CurrentStreak(ctx context.Context, userID, habitID string, asOf time.Time) (int, error) {
	days, err := t.days.ListHabitDays(ctx, userID, habitID, habit.Truncate(asOf), completionLookback)
	if err != nil {
		return 0, fmt.Errorf("scan completions: %w", err)
	}
	if len(days) == 0 {
		return 0, nil
	}

	streak := 0
	expect := days[0].Date
	for _, d := range days {
		if !d.Date.Equal(expect) || !d.Completed {
			break
		}
		streak++
		expect = expect.AddDate(0, 0, -1)
	}
	return streak, nil
}

// LongestStreak returns the longest run of consecutive completed days
// within the lookback window ending at asOf.
func (t *Tracker) LongestStreak(ctx context.Context, userID, habitID string, asOf time.Time) (int, error) {
	days, err := t.days.ListHabitDays(ctx, userID, habitID, habit.Truncate(asOf), completionLookback)
	if err != nil {
		return 0, fmt.Errorf("scan completions: %w", err)
	}

	longest, run := 0, 0
	var expect time.Time
	for _, d := range days {
		if !d.Completed {
			run = 0
			expect = d.Date.AddDate(0, 0, -1)
			continue
		}
		if run > 0 && !d.Date.Equal(expect) {
			run = 0
		}
		run++
		expect = d.Date.AddDate(0, 0, -1)
		if run > longest {
			longest = run
		}
	}
	return longest, nil
}

func (t *Tracker) checkHabit(ctx context.Context, habitID string) error {
	if t.habits == nil {
		return nil
	}
	if _, err := t.habits.GetHabit(ctx, habitID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("habit %s: %w", habitID, storage.ErrNotFound)
		}
		return fmt.Errorf("check habit: %w", err)
	}
	return nil
}
