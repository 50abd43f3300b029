// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/domain/pair"
	"github.com/habitsnap/core/internal/app/domain/score"
	"github.com/habitsnap/core/internal/app/storage"
)

// Store implements the storage interfaces over a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.PairStreakStore = (*Store)(nil)
var _ storage.HabitStore = (*Store)(nil)
var _ storage.HabitDayStore = (*Store)(nil)
var _ storage.ScoreStore = (*Store)(nil)
var _ storage.SendTallyStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and applies migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// --- PairStreakStore ---------------------------------------------------------

const pairStreakColumns = `low_user_id, high_user_id, current_streak, longest_streak,
	last_action_low, last_action_high, streak_started_at, streak_expires_at,
	version, created_at, updated_at`

func (s *Store) GetOrCreatePairStreak(ctx context.Context, key pair.Key) (pair.Streak, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pair_streaks (low_user_id, high_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (low_user_id, high_user_id) DO NOTHING
	`, key.Low, key.High, now)
	if err != nil {
		return pair.Streak{}, fmt.Errorf("insert pair streak: %w", err)
	}
	return s.GetPairStreak(ctx, key)
}

func (s *Store) GetPairStreak(ctx context.Context, key pair.Key) (pair.Streak, error) {
	var rec pair.Streak
	err := s.db.GetContext(ctx, &rec, `
		SELECT `+pairStreakColumns+`
		FROM pair_streaks
		WHERE low_user_id = $1 AND high_user_id = $2
	`, key.Low, key.High)
	if errors.Is(err, sql.ErrNoRows) {
		return pair.Streak{}, storage.ErrNotFound
	}
	if err != nil {
		return pair.Streak{}, fmt.Errorf("get pair streak: %w", err)
	}
	return rec, nil
}

func (s *Store) CompareAndSwapPairStreak(ctx context.Context, updated pair.Streak) (pair.Streak, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE pair_streaks
		SET current_streak = $3, longest_streak = $4,
		    last_action_low = $5, last_action_high = $6,
		    streak_started_at = $7, streak_expires_at = $8,
		    version = version + 1, updated_at = $9
		WHERE low_user_id = $1 AND high_user_id = $2 AND version = $10
	`, updated.Low, updated.High, updated.CurrentStreak, updated.LongestStreak,
		updated.LastActionLow, updated.LastActionHigh,
		updated.StreakStartedAt, updated.StreakExpiresAt, now, updated.Version)
	if err != nil {
		return pair.Streak{}, fmt.Errorf("cas pair streak: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetPairStreak(ctx, updated.Key()); errors.Is(err, storage.ErrNotFound) {
			return pair.Streak{}, storage.ErrNotFound
		}
		return pair.Streak{}, storage.ErrVersionConflict
	}
	updated.Version++
	updated.UpdatedAt = now
	return updated, nil
}

// --- HabitStore --------------------------------------------------------------

func (s *Store) CreateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error) {
	if strings.TrimSpace(h.UserID) == "" {
		return habit.Habit{}, fmt.Errorf("user_id is required")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (id, user_id, title, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.UserID, h.Title, h.Active, h.CreatedAt, h.UpdatedAt)
	if isUniqueViolation(err) {
		return habit.Habit{}, fmt.Errorf("habit %s already exists", h.ID)
	}
	if err != nil {
		return habit.Habit{}, fmt.Errorf("insert habit: %w", err)
	}
	return h, nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (habit.Habit, error) {
	var h habit.Habit
	err := s.db.GetContext(ctx, &h, `
		SELECT id, user_id, title, active, created_at, updated_at
		FROM habits
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return habit.Habit{}, storage.ErrNotFound
	}
	if err != nil {
		return habit.Habit{}, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *Store) ListActiveHabits(ctx context.Context) ([]habit.Habit, error) {
	var result []habit.Habit
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, user_id, title, active, created_at, updated_at
		FROM habits
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active habits: %w", err)
	}
	return result, nil
}

func (s *Store) SetHabitActive(ctx context.Context, id string, active bool) (habit.Habit, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE habits SET active = $2, updated_at = $3 WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return habit.Habit{}, fmt.Errorf("set habit active: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return habit.Habit{}, storage.ErrNotFound
	}
	return s.GetHabit(ctx, id)
}

// --- HabitDayStore -----------------------------------------------------------

const habitDayColumns = `user_id, habit_id, day, completed, snap_count,
	penalty_applied, created_at, updated_at`

func (s *Store) UpsertHabitDay(ctx context.Context, day habit.Day) (habit.Day, error) {
	day.Date = habit.Truncate(day.Date)
	now := time.Now().UTC()

	var merged habit.Day
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO habit_days (user_id, habit_id, day, completed, snap_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, habit_id, day) DO UPDATE
		SET completed  = habit_days.completed OR EXCLUDED.completed,
		    snap_count = habit_days.snap_count + EXCLUDED.snap_count,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+habitDayColumns+`
	`, day.UserID, day.HabitID, day.Date, day.Completed, day.SnapCount, now).StructScan(&merged)
	if err != nil {
		return habit.Day{}, fmt.Errorf("upsert habit day: %w", err)
	}
	merged.Date = habit.Truncate(merged.Date)
	return merged, nil
}

func (s *Store) GetHabitDay(ctx context.Context, userID, habitID string, date time.Time) (habit.Day, error) {
	var day habit.Day
	err := s.db.GetContext(ctx, &day, `
		SELECT `+habitDayColumns+`
		FROM habit_days
		WHERE user_id = $1 AND habit_id = $2 AND day = $3
	`, userID, habitID, habit.Truncate(date))
	if errors.Is(err, sql.ErrNoRows) {
		return habit.Day{}, storage.ErrNotFound
	}
	if err != nil {
		return habit.Day{}, fmt.Errorf("get habit day: %w", err)
	}
	day.Date = habit.Truncate(day.Date)
	return day, nil
}

func (s *Store) ListHabitDays(ctx context.Context, userID, habitID string, until time.Time, limit int) ([]habit.Day, error) {
	var result []habit.Day
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+habitDayColumns+`
		FROM habit_days
		WHERE user_id = $1 AND habit_id = $2 AND day <= $3
		ORDER BY day DESC
		LIMIT $4
	`, userID, habitID, habit.Truncate(until), limit)
	if err != nil {
		return nil, fmt.Errorf("list habit days: %w", err)
	}
	for i := range result {
		result[i].Date = habit.Truncate(result[i].Date)
	}
	return result, nil
}

func (s *Store) MarkPenaltyApplied(ctx context.Context, userID, habitID string, date time.Time, penalty int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE habit_days
		SET penalty_applied = $4, updated_at = $5
		WHERE user_id = $1 AND habit_id = $2 AND day = $3
	`, userID, habitID, habit.Truncate(date), penalty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark penalty applied: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ScoreStore --------------------------------------------------------------

const profileColumns = `user_id, score, current_streak, longest_streak, version, created_at, updated_at`

func (s *Store) GetOrCreateProfile(ctx context.Context, userID string) (score.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return score.Profile{}, fmt.Errorf("user_id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_profiles (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return score.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (score.Profile, error) {
	var p score.Profile
	err := s.db.GetContext(ctx, &p, `
		SELECT `+profileColumns+`
		FROM score_profiles
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return score.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return score.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Store) CompareAndSwapProfile(ctx context.Context, updated score.Profile) (score.Profile, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE score_profiles
		SET score = $2, current_streak = $3, longest_streak = $4,
		    version = version + 1, updated_at = $5
		WHERE user_id = $1 AND version = $6
	`, updated.UserID, updated.Score, updated.CurrentStreak, updated.LongestStreak, now, updated.Version)
	if err != nil {
		return score.Profile{}, fmt.Errorf("cas profile: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetProfile(ctx, updated.UserID); errors.Is(err, storage.ErrNotFound) {
			return score.Profile{}, storage.ErrNotFound
		}
		return score.Profile{}, storage.ErrVersionConflict
	}
	updated.Version++
	updated.UpdatedAt = now
	return updated, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]score.Profile, error) {
	var result []score.Profile
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+profileColumns+`
		FROM score_profiles
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return result, nil
}

// --- SendTallyStore ----------------------------------------------------------

func (s *Store) IncrementSendCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO send_tallies (user_id, sent_count, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET sent_count = send_tallies.sent_count + 1,
		    updated_at = EXCLUDED.updated_at
		RETURNING sent_count
	`, userID, time.Now().UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment send count: %w", err)
	}
	return count, nil
}

func (s *Store) GetSendCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT sent_count FROM send_tallies WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get send count: %w", err)
	}
	return count, nil
}
