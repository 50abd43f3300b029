// Package pair defines the canonical friend-pair key and the mutual streak
// record shared by both members of a friendship.
package pair

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSelfPair is returned when both sides of a pair are the same user.
var ErrSelfPair = errors.New("pair members must be distinct users")

// Key identifies an unordered friend pair in canonical order, Low < High.
// Both directions of an interaction map onto the same key.
type Key struct {
	Low  string
	High string
}

// Canonicalize orders the two user IDs into a Key. The ordering is
// lexicographic and never depends on which user initiated the action.
func Canonicalize(a, b string) (Key, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return Key{}, fmt.Errorf("pair members must be non-empty")
	}
	if a == b {
		return Key{}, ErrSelfPair
	}
	if a < b {
		return Key{Low: a, High: b}, nil
	}
	return Key{Low: b, High: a}, nil
}

// Side distinguishes the two members of a canonical pair.
type Side int

const (
	SideLow Side = iota
	SideHigh
)

// Other returns the opposite side of the pair.
func (s Side) Other() Side {
	if s == SideLow {
		return SideHigh
	}
	return SideLow
}

// SideOf reports which side of the pair the user occupies.
func (k Key) SideOf(userID string) (Side, error) {
	switch userID {
	case k.Low:
		return SideLow, nil
	case k.High:
		return SideHigh, nil
	}
	return SideLow, fmt.Errorf("user %s is not a member of pair (%s, %s)", userID, k.Low, k.High)
}

// Streak is the single record tracking the mutual streak for one friend
// pair. The low/high invariant is enforced by Canonicalize before any
// storage access; stores never see an unordered pair.
type Streak struct {
	Low  string `db:"low_user_id" json:"low_user_id"`
	High string `db:"high_user_id" json:"high_user_id"`

	CurrentStreak int `db:"current_streak" json:"current_streak"`
	LongestStreak int `db:"longest_streak" json:"longest_streak"`

	// LastActionLow/High record the most recent qualifying action by each
	// side within the active cycle. Both are cleared when a cycle
	// completes or the window expires.
	LastActionLow  *time.Time `db:"last_action_low" json:"last_action_low,omitempty"`
	LastActionHigh *time.Time `db:"last_action_high" json:"last_action_high,omitempty"`

	StreakStartedAt *time.Time `db:"streak_started_at" json:"streak_started_at,omitempty"`
	StreakExpiresAt *time.Time `db:"streak_expires_at" json:"streak_expires_at,omitempty"`

	// Version is the optimistic concurrency token; every successful
	// compare-and-swap increments it.
	Version   int64     `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the canonical key for the record.
func (s Streak) Key() Key { return Key{Low: s.Low, High: s.High} }

// LastActionOf returns the recorded last action for the given side.
func (s Streak) LastActionOf(side Side) *time.Time {
	if side == SideLow {
		return s.LastActionLow
	}
	return s.LastActionHigh
}

// SetLastAction records the last action timestamp for the given side.
func (s *Streak) SetLastAction(side Side, t *time.Time) {
	if side == SideLow {
		s.LastActionLow = t
	} else {
		s.LastActionHigh = t
	}
}
