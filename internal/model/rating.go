package model

import (
	"strings"
	"time"
)

// SafetyRating is the normalized categorical safety rating.
type SafetyRating string

const (
	RatingSatisfactory   SafetyRating = "satisfactory"
	RatingConditional    SafetyRating = "conditional"
	RatingUnsatisfactory SafetyRating = "unsatisfactory"
	RatingNotRated       SafetyRating = "not_rated"
	RatingUnknown        SafetyRating = "unknown"
)

// ParseSafetyRating maps registry rating text to a SafetyRating. Empty input
// returns "" so that an extraction gap is never mistaken for a rating.
func ParseSafetyRating(raw string) SafetyRating {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ".:")
	switch s {
	case "":
		return ""
	case "satisfactory", "s":
		return RatingSatisfactory
	case "conditional", "c":
		return RatingConditional
	case "unsatisfactory", "u":
		return RatingUnsatisfactory
	case "none", "not rated", "not-rated", "not_rated", "unrated", "n":
		return RatingNotRated
	default:
		return RatingUnknown
	}
}

// Trend classifies the direction of recent rating transitions.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendVolatile  Trend = "volatile"
	TrendStable    Trend = "stable"
)

// SafetyRatingEvent is one append-only entry in an entity's rating history.
// OldRating is nil for the first rating ever observed.
type SafetyRatingEvent struct {
	EntityID   string        `json:"entity_id"`
	OldRating  *SafetyRating `json:"old_rating,omitempty"`
	NewRating  SafetyRating  `json:"new_rating"`
	ChangeDate time.Time     `json:"change_date"`
	Source     DataSource    `json:"source"`
}

// IsTransition reports whether the event records an actual change rather
// than the first observation.
func (e SafetyRatingEvent) IsTransition() bool {
	return e.OldRating != nil
}

// StabilityState is derived from the full event sequence on every append.
type StabilityState struct {
	StabilityScore int        `json:"stability_score"`
	Trend          Trend      `json:"trend"`
	ChangeCount    int        `json:"change_count"`
	LastChangeDate *time.Time `json:"last_change_date,omitempty"`
}
