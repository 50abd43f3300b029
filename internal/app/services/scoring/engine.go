// Package scoring converts habit completion events into score deltas and
// missed days into progressive penalties. It is the only writer of user
// score profiles.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitsnap/core/internal/app/domain/score"
	"github.com/habitsnap/core/internal/app/metrics"
	"github.com/habitsnap/core/internal/app/services/habits"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

const (
	// approvalBase is the score awarded for every approved completion.
	approvalBase = 1

	// bonusBlock is the streak length granting one bonus point per
	// completed block: a 14-day streak earns +2, a 21-day streak +3.
	bonusBlock = 7

	// penaltyCap bounds the progressive miss penalty.
	penaltyCap = 3

	// maxRetries bounds the profile CAS loop.
	maxRetries = 5
)

// ErrConflict is returned when the profile CAS retry budget is exhausted.
var ErrConflict = errors.New("score profile update lost to concurrent writers")

// Engine owns all score mutations. Approvals and misses for different
// users never interfere; for the same user the version token serializes
// concurrent writers.
type Engine struct {
	profiles storage.ScoreStore
	days     storage.HabitDayStore
	tracker  *habits.Tracker
	log      *logger.Logger
}

// New creates a configured scoring engine.
func New(profiles storage.ScoreStore, days storage.HabitDayStore, tracker *habits.Tracker, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("scoring")
	}
	return &Engine{profiles: profiles, days: days, tracker: tracker, log: log}
}

// OnApproval records an approved completion for the date and applies the
// base point plus the streak-length bonus to the user's profile.
func (e *Engine) OnApproval(ctx context.Context, userID, habitID string, date time.Time) (score.Delta, error) {
	habitStreak, err := e.tracker.RecordCompletion(ctx, userID, habitID, date)
	if err != nil {
		return score.Delta{}, err
	}

	points := approvalBase + habitStreak/bonusBlock

	profile, err := e.updateProfile(ctx, userID, func(p *score.Profile) {
		p.Score += points
		p.CurrentStreak = habitStreak
		if p.LongestStreak < p.CurrentStreak {
			p.LongestStreak = p.CurrentStreak
		}
	})
	if err != nil {
		return score.Delta{}, err
	}

	metrics.ObserveScoringEvent("approval", points)
	e.log.WithField("user_id", userID).
		WithField("habit_id", habitID).
		WithField("points", points).
		WithField("habit_streak", habitStreak).
		Info("approval scored")
	return score.Delta{Points: points, NewScore: profile.Score, NewStreak: profile.CurrentStreak}, nil
}

// OnMiss records a missed day and charges the progressive penalty: the
// first miss costs 1, the second 2, the third and beyond 3. The charge is
// applied at most once per (user, habit, date); reruns observe the
// recorded penalty and leave the score alone.
func (e *Engine) OnMiss(ctx context.Context, userID, habitID string, date time.Time) (score.Delta, error) {
	misses, err := e.tracker.RecordMiss(ctx, userID, habitID, date)
	if errors.Is(err, habits.ErrDayCompleted) {
		return e.currentDelta(ctx, userID)
	}
	if err != nil {
		return score.Delta{}, err
	}

	day, err := e.days.GetHabitDay(ctx, userID, habitID, date)
	if err != nil {
		return score.Delta{}, fmt.Errorf("load habit day: %w", err)
	}
	if day.PenaltyApplied > 0 {
		return e.currentDelta(ctx, userID)
	}

	penalty := misses
	if penalty > penaltyCap {
		penalty = penaltyCap
	}

	var applied int
	profile, err := e.updateProfile(ctx, userID, func(p *score.Profile) {
		newScore := p.Score - penalty
		if newScore < 0 {
			newScore = 0
		}
		applied = p.Score - newScore
		p.Score = newScore
		if p.CurrentStreak > 0 {
			p.CurrentStreak--
		}
	})
	if err != nil {
		return score.Delta{}, err
	}

	if err := e.days.MarkPenaltyApplied(ctx, userID, habitID, date, penalty); err != nil {
		return score.Delta{}, fmt.Errorf("mark penalty applied: %w", err)
	}

	metrics.ObserveScoringEvent("miss", -applied)
	e.log.WithField("user_id", userID).
		WithField("habit_id", habitID).
		WithField("penalty", penalty).
		WithField("consecutive_misses", misses).
		Info("miss penalized")
	return score.Delta{Points: -applied, NewScore: profile.Score, NewStreak: profile.CurrentStreak}, nil
}

// GetProfile returns the user's score profile or storage.ErrNotFound.
func (e *Engine) GetProfile(ctx context.Context, userID string) (score.Profile, error) {
	return e.profiles.GetProfile(ctx, userID)
}

// currentDelta reports the profile state with a zero point change.
func (e *Engine) currentDelta(ctx context.Context, userID string) (score.Delta, error) {
	p, err := e.profiles.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return score.Delta{}, fmt.Errorf("load profile: %w", err)
	}
	return score.Delta{NewScore: p.Score, NewStreak: p.CurrentStreak}, nil
}

// updateProfile applies mutate through the CAS loop, re-reading and
// recomputing on every conflict.
func (e *Engine) updateProfile(ctx context.Context, userID string, mutate func(*score.Profile)) (score.Profile, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return score.Profile{}, err
		}

		p, err := e.profiles.GetOrCreateProfile(ctx, userID)
		if err != nil {
			return score.Profile{}, fmt.Errorf("load profile: %w", err)
		}

		mutate(&p)

		committed, err := e.profiles.CompareAndSwapProfile(ctx, p)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return score.Profile{}, fmt.Errorf("commit profile: %w", err)
		}
		return committed, nil
	}
	return score.Profile{}, ErrConflict
}
