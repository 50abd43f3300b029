package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/habitsnap/core/internal/app/system"
	"github.com/habitsnap/core/internal/clock"
	"github.com/habitsnap/core/pkg/logger"
)

// DefaultSchedule fires shortly after midnight UTC, once the prior day is
// closed.
const DefaultSchedule = "15 0 * * *"

// runTimeout bounds one scheduled sweep pass.
const runTimeout = 10 * time.Minute

// Scheduler runs the sweep on a cron schedule, targeting the day before
// the fire time.
type Scheduler struct {
	sweep    *Sweep
	clock    clock.Clock
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Scheduler)(nil)

// NewScheduler creates a scheduler with the given cron expression.
func NewScheduler(s *Sweep, schedule string, clk clock.Clock, log *logger.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("sweep-scheduler")
	}
	return &Scheduler{sweep: s, clock: clk, schedule: schedule, log: log}
}

func (s *Scheduler) Name() string { return "sweep-scheduler" }

// Start validates the schedule and begins firing sweep runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		yesterday := s.clock.Now().AddDate(0, 0, -1)
		if _, err := s.sweep.Run(runCtx, yesterday); err != nil {
			s.log.WithError(err).Error("scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("sweep scheduler started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	stopped := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("sweep scheduler stopped")
	return nil
}
