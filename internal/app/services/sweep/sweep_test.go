package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/services/habits"
	"github.com/habitsnap/core/internal/app/services/scoring"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/internal/app/storage/memory"
)

var day0 = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	engine *scoring.Engine
	sweep  *Sweep
}

func newFixture() *fixture {
	store := memory.New()
	tracker := habits.New(store, store, nil)
	engine := scoring.New(store, store, tracker, nil)
	return &fixture{
		store:  store,
		engine: engine,
		sweep:  New(store, store, engine, nil).WithWorkers(2),
	}
}

func (f *fixture) addHabit(t *testing.T, userID, title string) habit.Habit {
	t.Helper()
	h, err := f.store.CreateHabit(context.Background(), habit.Habit{UserID: userID, Title: title, Active: true})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return h
}

func (f *fixture) score(t *testing.T, userID string) int {
	t.Helper()
	p, err := f.engine.GetProfile(context.Background(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p.Score
}

func TestRunPenalizesMissingDays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	done := f.addHabit(t, "alice", "run")
	missedA := f.addHabit(t, "bob", "read")
	f.addHabit(t, "carol", "yoga")

	// Seed scores so penalties are visible above the zero clamp.
	for day := -5; day < 0; day++ {
		for _, h := range []habit.Habit{done, missedA} {
			if _, err := f.engine.OnApproval(ctx, h.UserID, h.ID, day0.AddDate(0, 0, day)); err != nil {
				t.Fatalf("seed approval: %v", err)
			}
		}
	}
	if _, err := f.engine.OnApproval(ctx, "alice", done.ID, day0); err != nil {
		t.Fatalf("approve target day: %v", err)
	}

	before := f.score(t, "bob")

	report, err := f.sweep.Run(ctx, day0)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if report.Processed != 3 {
		t.Fatalf("processed = %d, want 3", report.Processed)
	}
	if report.Penalized != 2 {
		t.Fatalf("penalized = %d, want 2", report.Penalized)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d, want 0", report.Failed)
	}

	if got := f.score(t, "bob"); got != before-1 {
		t.Fatalf("bob score = %d, want %d", got, before-1)
	}
}

func TestRunSkipsCompletedDays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	h := f.addHabit(t, "alice", "run")
	if _, err := f.engine.OnApproval(ctx, "alice", h.ID, day0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	before := f.score(t, "alice")

	report, err := f.sweep.Run(ctx, day0)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if report.Penalized != 0 {
		t.Fatalf("penalized = %d, want 0", report.Penalized)
	}
	if got := f.score(t, "alice"); got != before {
		t.Fatalf("score changed from %d to %d", before, got)
	}
}

func TestRunRerunChargesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	h := f.addHabit(t, "alice", "run")
	for day := -5; day < 0; day++ {
		if _, err := f.engine.OnApproval(ctx, "alice", h.ID, day0.AddDate(0, 0, day)); err != nil {
			t.Fatalf("seed approval: %v", err)
		}
	}

	if _, err := f.sweep.Run(ctx, day0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	after := f.score(t, "alice")

	if _, err := f.sweep.Run(ctx, day0); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := f.score(t, "alice"); got != after {
		t.Fatalf("rerun changed score from %d to %d", after, got)
	}
}

func TestRunIgnoresInactiveHabits(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	h := f.addHabit(t, "alice", "run")
	if _, err := f.store.SetHabitActive(ctx, h.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	report, err := f.sweep.Run(ctx, day0)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("processed = %d, want 0", report.Processed)
	}
}

// faultyDayStore fails day lookups for one habit and delegates the rest.
type faultyDayStore struct {
	storage.HabitDayStore
	badHabitID string
}

func (f *faultyDayStore) GetHabitDay(ctx context.Context, userID, habitID string, date time.Time) (habit.Day, error) {
	if habitID == f.badHabitID {
		return habit.Day{}, errors.New("disk on fire")
	}
	return f.HabitDayStore.GetHabitDay(ctx, userID, habitID, date)
}

func TestRunToleratesPerHabitFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bad := f.addHabit(t, "alice", "run")
	f.addHabit(t, "bob", "read")

	sweep := New(f.store, &faultyDayStore{HabitDayStore: f.store, badHabitID: bad.ID}, f.engine, nil).WithWorkers(2)

	report, err := sweep.Run(ctx, day0)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if report.Processed != 2 {
		t.Fatalf("processed = %d, want 2", report.Processed)
	}
	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
	if report.Penalized != 1 {
		t.Fatalf("penalized = %d, want 1", report.Penalized)
	}
}

func TestRunCanceledContext(t *testing.T) {
	f := newFixture()
	f.addHabit(t, "alice", "run")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.sweep.Run(ctx, day0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
