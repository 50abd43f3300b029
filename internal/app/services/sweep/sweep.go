// Package sweep implements the nightly penalty sweep over active habits.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/metrics"
	"github.com/habitsnap/core/internal/app/services/scoring"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

// defaultWorkers bounds sweep parallelism across habits. Habits are
// independent units; writes to one user's profile still serialize through
// the profile version token.
const defaultWorkers = 4

// Report summarizes one sweep pass. A partial run still reports the
// counts it completed.
type Report struct {
	Processed int `json:"processed"`
	Penalized int `json:"penalized"`
	Failed    int `json:"failed"`
}

// Sweep finds active habits lacking a completed record for the target day
// and routes them through the scoring engine's miss path, the same entry
// point the live path uses.
type Sweep struct {
	habits  storage.HabitStore
	days    storage.HabitDayStore
	scoring *scoring.Engine
	workers int
	log     *logger.Logger
}

// New creates a configured sweep.
func New(habitStore storage.HabitStore, dayStore storage.HabitDayStore, engine *scoring.Engine, log *logger.Logger) *Sweep {
	if log == nil {
		log = logger.NewDefault("sweep")
	}
	return &Sweep{
		habits:  habitStore,
		days:    dayStore,
		scoring: engine,
		workers: defaultWorkers,
		log:     log,
	}
}

// WithWorkers overrides the worker pool size. Values below 1 are ignored.
func (s *Sweep) WithWorkers(n int) *Sweep {
	if n >= 1 {
		s.workers = n
	}
	return s
}

// Run sweeps every active habit for the given day. Per-habit failures are
// logged and counted; one bad habit never aborts the pass. Rerunning for
// the same day is safe: days already penalized are charged nothing.
func (s *Sweep) Run(ctx context.Context, asOf time.Time) (Report, error) {
	start := time.Now()
	target := habit.Truncate(asOf)

	active, err := s.habits.ListActiveHabits(ctx)
	if err != nil {
		metrics.ObserveSweepRun("error", time.Since(start))
		return Report{}, fmt.Errorf("list active habits: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	jobs := make(chan habit.Habit)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range jobs {
				disposition := s.sweepHabit(ctx, h, target)
				metrics.ObserveSweepHabit(disposition)
				mu.Lock()
				report.Processed++
				switch disposition {
				case "penalized":
					report.Penalized++
				case "failed":
					report.Failed++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, h := range active {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- h:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		metrics.ObserveSweepRun("canceled", time.Since(start))
		return report, err
	}

	metrics.ObserveSweepRun("ok", time.Since(start))
	s.log.WithField("as_of", target.Format("2006-01-02")).
		WithField("processed", report.Processed).
		WithField("penalized", report.Penalized).
		WithField("failed", report.Failed).
		Info("penalty sweep finished")
	return report, nil
}

func (s *Sweep) sweepHabit(ctx context.Context, h habit.Habit, target time.Time) string {
	day, err := s.days.GetHabitDay(ctx, h.UserID, h.ID, target)
	switch {
	case err == nil && day.Completed:
		return "completed"
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		s.log.WithError(err).WithField("habit_id", h.ID).Warn("sweep: load habit day")
		return "failed"
	}

	if _, err := s.scoring.OnMiss(ctx, h.UserID, h.ID, target); err != nil {
		s.log.WithError(err).
			WithField("habit_id", h.ID).
			WithField("user_id", h.UserID).
			Warn("sweep: apply miss")
		return "failed"
	}
	return "penalized"
}
