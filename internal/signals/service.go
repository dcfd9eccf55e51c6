// Package signals answers the per-entity alert queries: the current
// insurance tier and the blended safety risk score. Both are recomputed from
// stored state on every call.
package signals

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/history"
	"github.com/sells-group/carrier-sync/internal/insurance"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/store"
)

// Risk is the safety risk score with the state it was derived from.
type Risk struct {
	EntityID  string               `json:"entity_id" yaml:"entity_id"`
	Rating    model.SafetyRating   `json:"safety_rating" yaml:"safety_rating"`
	Score     int                  `json:"risk_score" yaml:"risk_score"`
	Stability model.StabilityState `json:"stability" yaml:"stability"`
}

// Service reads entities and rating history from the store.
type Service struct {
	store   store.Store
	tracker *history.Tracker
	now     func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store, tracker *history.Tracker) *Service {
	return &Service{store: st, tracker: tracker, now: time.Now}
}

// InsuranceTier returns the entity's insurance tier at now, TierNone when it
// has no expiry on file.
func (s *Service) InsuranceTier(ctx context.Context, rawDOT string, now time.Time) (model.InsuranceTier, error) {
	w, err := s.InsuranceWindow(ctx, rawDOT, now)
	if err != nil {
		return "", err
	}
	if w == nil {
		return model.TierNone, nil
	}
	return w.CurrentTier, nil
}

// InsuranceWindow returns the full insurance window at now, or nil when the
// entity has no expiry on file.
func (s *Service) InsuranceWindow(ctx context.Context, rawDOT string, now time.Time) (*model.InsuranceWindow, error) {
	rec, err := s.entity(ctx, rawDOT)
	if err != nil {
		return nil, err
	}
	return insurance.Window(rec, now), nil
}

// SafetyRiskScore returns the entity's 0-100 risk score.
func (s *Service) SafetyRiskScore(ctx context.Context, rawDOT string) (int, error) {
	r, err := s.Risk(ctx, rawDOT)
	if err != nil {
		return 0, err
	}
	return r.Score, nil
}

// Risk returns the risk score together with the stability state.
func (s *Service) Risk(ctx context.Context, rawDOT string) (*Risk, error) {
	rec, err := s.entity(ctx, rawDOT)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListRatingEvents(ctx, rec.ExternalID)
	if err != nil {
		return nil, eris.Wrapf(err, "signals: rating history %s", rec.ExternalID)
	}
	state, score := s.tracker.Evaluate(events, rec.SafetyRating, s.now().UTC())
	return &Risk{
		EntityID:  rec.ExternalID,
		Rating:    rec.SafetyRating,
		Score:     score,
		Stability: state,
	}, nil
}

func (s *Service) entity(ctx context.Context, rawDOT string) (*model.EntityRecord, error) {
	dot, err := model.ValidateDOT(rawDOT)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.GetEntity(ctx, dot)
	if err != nil {
		return nil, eris.Wrapf(err, "signals: load entity %s", dot)
	}
	return &stored.Record, nil
}
