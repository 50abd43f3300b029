// Package score defines the per-user score profile owned by the scoring
// engine.
package score

import "time"

// Profile is one user's score state. It is mutated only through the
// scoring engine; readers (leaderboard, profile views) treat it as
// read-only.
type Profile struct {
	UserID string `db:"user_id" json:"user_id"`

	// Score never goes negative; penalties clamp at zero.
	Score int `db:"score" json:"score"`

	CurrentStreak int `db:"current_streak" json:"current_streak"`
	LongestStreak int `db:"longest_streak" json:"longest_streak"`

	// Version is the optimistic concurrency token.
	Version   int64     `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Delta reports the outcome of a single scoring operation.
type Delta struct {
	// Points is the signed score change that was applied. For a penalty
	// it is negative and already reflects the zero clamp.
	Points    int `json:"points"`
	NewScore  int `json:"new_score"`
	NewStreak int `json:"new_streak"`
}
