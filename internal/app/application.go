// Package app wires the engine services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/habitsnap/core/internal/app/services/habits"
	"github.com/habitsnap/core/internal/app/services/leaderboard"
	"github.com/habitsnap/core/internal/app/services/scoring"
	"github.com/habitsnap/core/internal/app/services/sendtally"
	"github.com/habitsnap/core/internal/app/services/streak"
	"github.com/habitsnap/core/internal/app/services/sweep"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/internal/app/storage/memory"
	"github.com/habitsnap/core/internal/app/system"
	"github.com/habitsnap/core/internal/clock"
	"github.com/habitsnap/core/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	PairStreaks storage.PairStreakStore
	Habits      storage.HabitStore
	HabitDays   storage.HabitDayStore
	Scores      storage.ScoreStore
	SendTallies storage.SendTallyStore
}

// Options tunes optional application behavior.
type Options struct {
	Clock clock.Clock

	// Redis backs the leaderboard cache; nil degrades to store scans.
	Redis *redis.Client

	// SweepSchedule is the cron expression for the nightly penalty
	// sweep; empty uses the default.
	SweepSchedule string

	// LeaderboardRefresh is the cache rebuild interval.
	LeaderboardRefresh time.Duration
}

// Application ties the engine services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Streaks     *streak.Engine
	Habits      *habits.Tracker
	HabitStore  storage.HabitStore
	Scoring     *scoring.Engine
	Sweep       *sweep.Sweep
	Leaderboard *leaderboard.Cache
	SendTally   *sendtally.Tally
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}

	mem := memory.New()
	if stores.PairStreaks == nil {
		stores.PairStreaks = mem
	}
	if stores.Habits == nil {
		stores.Habits = mem
	}
	if stores.HabitDays == nil {
		stores.HabitDays = mem
	}
	if stores.Scores == nil {
		stores.Scores = mem
	}
	if stores.SendTallies == nil {
		stores.SendTallies = mem
	}

	streakEngine := streak.New(stores.PairStreaks, opts.Clock, log)
	tracker := habits.New(stores.Habits, stores.HabitDays, log)
	scoringEngine := scoring.New(stores.Scores, stores.HabitDays, tracker, log)
	penaltySweep := sweep.New(stores.Habits, stores.HabitDays, scoringEngine, log)
	board := leaderboard.New(stores.Scores, opts.Redis, log)
	tally := sendtally.New(stores.SendTallies, log)

	manager := system.NewManager()
	scheduler := sweep.NewScheduler(penaltySweep, opts.SweepSchedule, opts.Clock, log)
	if err := manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register sweep scheduler: %w", err)
	}
	if opts.Redis != nil {
		refresher := leaderboard.NewRefresher(board, opts.LeaderboardRefresh, log)
		if err := manager.Register(refresher); err != nil {
			return nil, fmt.Errorf("register leaderboard refresher: %w", err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Streaks:     streakEngine,
		Habits:      tracker,
		HabitStore:  stores.Habits,
		Scoring:     scoringEngine,
		Sweep:       penaltySweep,
		Leaderboard: board,
		SendTally:   tally,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
