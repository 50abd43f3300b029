// Package memory is an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/domain/pair"
	"github.com/habitsnap/core/internal/app/domain/score"
	"github.com/habitsnap/core/internal/app/storage"
)

// Store holds all engine state in maps guarded by a single RWMutex.
type Store struct {
	mu          sync.RWMutex
	pairStreaks map[string]pair.Streak
	habits      map[string]habit.Habit
	habitDays   map[string]habit.Day
	profiles    map[string]score.Profile
	sendCounts  map[string]int
}

var _ storage.PairStreakStore = (*Store)(nil)
var _ storage.HabitStore = (*Store)(nil)
var _ storage.HabitDayStore = (*Store)(nil)
var _ storage.ScoreStore = (*Store)(nil)
var _ storage.SendTallyStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		pairStreaks: make(map[string]pair.Streak),
		habits:      make(map[string]habit.Habit),
		habitDays:   make(map[string]habit.Day),
		profiles:    make(map[string]score.Profile),
		sendCounts:  make(map[string]int),
	}
}

func pairKey(key pair.Key) string { return key.Low + "\x00" + key.High }

func dayKey(userID, habitID string, date time.Time) string {
	return userID + "\x00" + habitID + "\x00" + habit.Truncate(date).Format("2006-01-02")
}

// PairStreakStore implementation ---------------------------------------------

func (s *Store) GetOrCreatePairStreak(_ context.Context, key pair.Key) (pair.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.pairStreaks[pairKey(key)]; ok {
		return clonePairStreak(rec), nil
	}

	now := time.Now().UTC()
	rec := pair.Streak{
		Low:       key.Low,
		High:      key.High,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.pairStreaks[pairKey(key)] = rec
	return clonePairStreak(rec), nil
}

func (s *Store) GetPairStreak(_ context.Context, key pair.Key) (pair.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.pairStreaks[pairKey(key)]
	if !ok {
		return pair.Streak{}, storage.ErrNotFound
	}
	return clonePairStreak(rec), nil
}

func (s *Store) CompareAndSwapPairStreak(_ context.Context, updated pair.Streak) (pair.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(updated.Key())
	stored, ok := s.pairStreaks[key]
	if !ok {
		return pair.Streak{}, storage.ErrNotFound
	}
	if stored.Version != updated.Version {
		return pair.Streak{}, storage.ErrVersionConflict
	}

	updated.Version++
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.pairStreaks[key] = clonePairStreak(updated)
	return clonePairStreak(updated), nil
}

// HabitStore implementation --------------------------------------------------

func (s *Store) CreateHabit(_ context.Context, h habit.Habit) (habit.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(h.UserID) == "" {
		return habit.Habit{}, fmt.Errorf("user_id is required")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	} else if _, exists := s.habits[h.ID]; exists {
		return habit.Habit{}, fmt.Errorf("habit %s already exists", h.ID)
	}

	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	s.habits[h.ID] = h
	return h, nil
}

func (s *Store) GetHabit(_ context.Context, id string) (habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.habits[id]
	if !ok {
		return habit.Habit{}, storage.ErrNotFound
	}
	return h, nil
}

func (s *Store) ListActiveHabits(_ context.Context) ([]habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []habit.Habit
	for _, h := range s.habits {
		if h.Active {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) SetHabitActive(_ context.Context, id string, active bool) (habit.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.habits[id]
	if !ok {
		return habit.Habit{}, storage.ErrNotFound
	}
	h.Active = active
	h.UpdatedAt = time.Now().UTC()
	s.habits[id] = h
	return h, nil
}

// HabitDayStore implementation ------------------------------------------------

func (s *Store) UpsertHabitDay(_ context.Context, day habit.Day) (habit.Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day.Date = habit.Truncate(day.Date)
	key := dayKey(day.UserID, day.HabitID, day.Date)
	now := time.Now().UTC()

	if existing, ok := s.habitDays[key]; ok {
		existing.Completed = existing.Completed || day.Completed
		existing.SnapCount += day.SnapCount
		existing.UpdatedAt = now
		s.habitDays[key] = existing
		return existing, nil
	}

	day.PenaltyApplied = 0
	day.CreatedAt = now
	day.UpdatedAt = now
	s.habitDays[key] = day
	return day, nil
}

func (s *Store) GetHabitDay(_ context.Context, userID, habitID string, date time.Time) (habit.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.habitDays[dayKey(userID, habitID, date)]
	if !ok {
		return habit.Day{}, storage.ErrNotFound
	}
	return day, nil
}

func (s *Store) ListHabitDays(_ context.Context, userID, habitID string, until time.Time, limit int) ([]habit.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until = habit.Truncate(until)
	var result []habit.Day
	for _, day := range s.habitDays {
		if day.UserID == userID && day.HabitID == habitID && !day.Date.After(until) {
			result = append(result, day)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkPenaltyApplied(_ context.Context, userID, habitID string, date time.Time, penalty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(userID, habitID, date)
	day, ok := s.habitDays[key]
	if !ok {
		return storage.ErrNotFound
	}
	day.PenaltyApplied = penalty
	day.UpdatedAt = time.Now().UTC()
	s.habitDays[key] = day
	return nil
}

// ScoreStore implementation ---------------------------------------------------

func (s *Store) GetOrCreateProfile(_ context.Context, userID string) (score.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(userID) == "" {
		return score.Profile{}, fmt.Errorf("user_id is required")
	}
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}

	now := time.Now().UTC()
	p := score.Profile{
		UserID:    userID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.profiles[userID] = p
	return p, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (score.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return score.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) CompareAndSwapProfile(_ context.Context, updated score.Profile) (score.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.profiles[updated.UserID]
	if !ok {
		return score.Profile{}, storage.ErrNotFound
	}
	if stored.Version != updated.Version {
		return score.Profile{}, storage.ErrVersionConflict
	}

	updated.Version++
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.profiles[updated.UserID] = updated
	return updated, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]score.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]score.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// SendTallyStore implementation ------------------------------------------------

func (s *Store) IncrementSendCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sendCounts[userID]++
	return s.sendCounts[userID], nil
}

func (s *Store) GetSendCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sendCounts[userID], nil
}

func clonePairStreak(rec pair.Streak) pair.Streak {
	rec.LastActionLow = cloneTime(rec.LastActionLow)
	rec.LastActionHigh = cloneTime(rec.LastActionHigh)
	rec.StreakStartedAt = cloneTime(rec.StreakStartedAt)
	rec.StreakExpiresAt = cloneTime(rec.StreakExpiresAt)
	return rec
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
