// Package habit defines habit metadata and the per-day completion ledger.
package habit

import "time"

// Habit is the metadata for one tracked habit. The engine only consumes
// the Active flag; titles and schedules belong to the surrounding app.
type Habit struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Day is one row of the completion ledger, unique on (user, habit, date).
// Date is always a UTC midnight; Truncate normalizes arbitrary instants.
type Day struct {
	UserID    string    `db:"user_id" json:"user_id"`
	HabitID   string    `db:"habit_id" json:"habit_id"`
	Date      time.Time `db:"day" json:"date"`
	Completed bool      `db:"completed" json:"completed"`
	SnapCount int       `db:"snap_count" json:"snap_count"`

	// PenaltyApplied is the score penalty already charged for this day,
	// 0 when none. The sweep consults it so a rerun never double-charges.
	PenaltyApplied int       `db:"penalty_applied" json:"penalty_applied"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Truncate normalizes an instant to its UTC calendar day.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
