// Package history tracks safety-rating changes and derives rating stability,
// trend and a blended risk score from the append-only event log.
package history

import (
	"math"
	"slices"
	"time"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
)

const (
	defaultLookbackMonths = 24
	defaultChurnThreshold = 3

	// volatileMinTransitions is the transition count at which mixed
	// directions make a history volatile.
	volatileMinTransitions = 3
)

// ratingScores maps categorical ratings to their risk contribution.
var ratingScores = map[model.SafetyRating]float64{
	model.RatingSatisfactory:   100,
	model.RatingNotRated:       80,
	model.RatingConditional:    60,
	model.RatingUnknown:        50,
	model.RatingUnsatisfactory: 20,
}

// trendAdjust is applied to the blended risk score.
var trendAdjust = map[model.Trend]float64{
	model.TrendImproving: 10,
	model.TrendDeclining: -20,
	model.TrendVolatile:  -15,
}

// RatingScore returns the risk contribution of a rating. Missing ratings
// score as unknown.
func RatingScore(r model.SafetyRating) float64 {
	if s, ok := ratingScores[r]; ok {
		return s
	}
	return ratingScores[model.RatingUnknown]
}

// Tracker derives rating history signals.
type Tracker struct {
	lookbackMonths int
	churnThreshold int
}

// NewTracker creates a Tracker from config, defaulting unset values.
func NewTracker(cfg config.HistoryConfig) *Tracker {
	t := &Tracker{
		lookbackMonths: cfg.LookbackMonths,
		churnThreshold: cfg.ChurnThreshold,
	}
	if t.lookbackMonths <= 0 {
		t.lookbackMonths = defaultLookbackMonths
	}
	if t.churnThreshold <= 0 {
		t.churnThreshold = defaultChurnThreshold
	}
	return t
}

// Observe returns the event to append when observed differs from the
// stored rating, or nil when nothing changed. An empty observation is an
// extraction gap and never produces an event.
func (t *Tracker) Observe(entityID string, stored, observed model.SafetyRating, at time.Time, source model.DataSource) *model.SafetyRatingEvent {
	if observed == "" || observed == stored {
		return nil
	}
	ev := &model.SafetyRatingEvent{
		EntityID:   entityID,
		NewRating:  observed,
		ChangeDate: at.UTC(),
		Source:     source,
	}
	if stored != "" {
		old := stored
		ev.OldRating = &old
	}
	return ev
}

// Stability recomputes the stability state from the full event sequence.
// Only transitions inside the lookback window count; the first observation
// of a rating is not a transition.
func (t *Tracker) Stability(events []model.SafetyRatingEvent, now time.Time) model.StabilityState {
	transitions := t.recentTransitions(events, now)
	n := len(transitions)

	state := model.StabilityState{
		StabilityScore: t.stabilityScore(n),
		Trend:          trend(transitions),
		ChangeCount:    n,
	}
	if n > 0 {
		last := transitions[n-1].ChangeDate
		state.LastChangeDate = &last
	}
	return state
}

// RiskScore blends the current rating with the stability state, applies the
// trend adjustment and a churn penalty, clamped to 0-100.
func (t *Tracker) RiskScore(current model.SafetyRating, state model.StabilityState) int {
	score := (RatingScore(current) + float64(state.StabilityScore)) / 2
	score += trendAdjust[state.Trend]
	if state.ChangeCount > t.churnThreshold {
		score -= 5 * float64(state.ChangeCount)
	}
	return clamp(int(math.Round(score)))
}

// Evaluate is Stability followed by RiskScore.
func (t *Tracker) Evaluate(events []model.SafetyRatingEvent, current model.SafetyRating, now time.Time) (model.StabilityState, int) {
	state := t.Stability(events, now)
	return state, t.RiskScore(current, state)
}

func (t *Tracker) stabilityScore(transitions int) int {
	steady := min(transitions, t.churnThreshold)
	churn := max(transitions-t.churnThreshold, 0)
	return clamp(100 - 10*steady - 20*churn)
}

func (t *Tracker) recentTransitions(events []model.SafetyRatingEvent, now time.Time) []model.SafetyRatingEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b model.SafetyRatingEvent) int {
		return a.ChangeDate.Compare(b.ChangeDate)
	})

	cutoff := now.AddDate(0, -t.lookbackMonths, 0)
	var out []model.SafetyRatingEvent
	for _, e := range sorted {
		if !e.IsTransition() || e.ChangeDate.Before(cutoff) || e.ChangeDate.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// direction is +1 for a move toward satisfactory, -1 toward unsatisfactory.
func direction(e model.SafetyRatingEvent) int {
	d := RatingScore(e.NewRating) - RatingScore(*e.OldRating)
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

func trend(transitions []model.SafetyRatingEvent) model.Trend {
	if len(transitions) == 0 {
		return model.TrendStable
	}

	var up, down bool
	for _, e := range transitions {
		switch direction(e) {
		case 1:
			up = true
		case -1:
			down = true
		}
	}
	if len(transitions) >= volatileMinTransitions && up && down {
		return model.TrendVolatile
	}

	switch direction(transitions[len(transitions)-1]) {
	case 1:
		return model.TrendImproving
	case -1:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

func clamp(v int) int {
	return max(0, min(100, v))
}
