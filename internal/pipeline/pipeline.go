// Package pipeline runs one identifier through fetch, extraction,
// classification, scoring, history and insurance evaluation, and hands the
// finished record to the store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/classify"
	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/extract"
	"github.com/sells-group/carrier-sync/internal/history"
	"github.com/sells-group/carrier-sync/internal/insurance"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/registry"
	"github.com/sells-group/carrier-sync/internal/resilience"
	"github.com/sells-group/carrier-sync/internal/scorer"
	"github.com/sells-group/carrier-sync/internal/store"
)

// Outcome is the result of processing one identifier.
type Outcome struct {
	Record *model.EntityRecord `json:"record" yaml:"record"`
	// Changed is false when the stored record was byte-identical.
	Changed bool `json:"changed" yaml:"changed"`
	// Event is the rating event appended by this pass, if any.
	Event     *model.SafetyRatingEvent `json:"event,omitempty" yaml:"event,omitempty"`
	Stability model.StabilityState     `json:"stability" yaml:"stability"`
	RiskScore int                      `json:"risk_score" yaml:"risk_score"`
	Insurance *model.InsuranceWindow   `json:"insurance,omitempty" yaml:"insurance,omitempty"`
	Rule      string                   `json:"classification_rule" yaml:"classification_rule"`
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRetry overrides the fetch retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) { p.retry = cfg }
}

// Pipeline is stateless between identifiers; all shared state lives in the
// store.
type Pipeline struct {
	fetcher   registry.Fetcher
	store     store.Store
	scorer    *scorer.Scorer
	tracker   *history.Tracker
	extractor *extract.Extractor
	retry     resilience.RetryConfig
	now       func() time.Time
}

// New builds a Pipeline from configuration.
func New(f registry.Fetcher, st store.Store, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scorer")
	}
	p := &Pipeline{
		fetcher:   f,
		store:     st,
		scorer:    sc,
		tracker:   history.NewTracker(cfg.History),
		extractor: extract.DefaultExtractor(),
		retry:     resilience.FromRetryConfig(cfg.Sync.MaxAttempts, cfg.Sync.InitialBackoffMs, cfg.Sync.MaxBackoffMs),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Tracker returns the history tracker used for risk scoring.
func (p *Pipeline) Tracker() *history.Tracker { return p.tracker }

// Build turns one markup document into a classified, scored record with
// registry provenance. It depends only on its arguments.
func (p *Pipeline) Build(dot, markup string) (*model.EntityRecord, string, error) {
	doc, err := extract.Parse(markup)
	if err != nil {
		return nil, "", eris.Wrapf(err, "pipeline: parse snapshot for %s", dot)
	}
	rec := extract.BuildRecord(doc, dot, p.extractor)

	res := classify.Classify(rec.EntityType, rec.OperationClassification, rec.CarrierOperation)
	rec.IsCarrierEntity = res.IsCarrier

	p.scorer.Apply(&rec)
	return &rec, res.Rule, nil
}

// Process validates, fetches and ingests one identifier.
func (p *Pipeline) Process(ctx context.Context, rawDOT string) (*Outcome, error) {
	return p.run(ctx, rawDOT, true)
}

// Preview runs the pipeline without writing anything.
func (p *Pipeline) Preview(ctx context.Context, rawDOT string) (*Outcome, error) {
	return p.run(ctx, rawDOT, false)
}

func (p *Pipeline) run(ctx context.Context, rawDOT string, persist bool) (*Outcome, error) {
	dot, err := model.ValidateDOT(rawDOT)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("dot", dot))

	retry := p.retry
	retry.OnRetry = resilience.RetryLogger("registry fetch", dot)
	markup, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return p.fetcher.Fetch(ctx, dot)
	})
	if err != nil {
		return nil, err
	}

	rec, rule, err := p.Build(dot, markup)
	if err != nil {
		return nil, err
	}
	if rec.HasPlaceholderName() {
		log.Info("pipeline: stored with placeholder name", zap.Int("quality_score", rec.QualityScore))
	}

	prev, err := p.store.GetEntity(ctx, dot)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "pipeline: load stored entity %s", dot)
	}
	if prev != nil && carryProvenance(rec, &prev.Record) {
		p.scorer.Apply(rec)
	}

	events, err := p.store.ListRatingEvents(ctx, dot)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load rating history %s", dot)
	}

	now := p.now().UTC()
	out := &Outcome{Record: rec, Rule: rule}

	out.Event = p.tracker.Observe(dot, lastKnownRating(prev, events), rec.SafetyRating, now, model.DataSourceExternalRegistry)
	if out.Event != nil {
		if persist {
			if err := p.store.AppendRatingEvent(ctx, *out.Event); err != nil {
				return nil, eris.Wrapf(err, "pipeline: append rating event %s", dot)
			}
		}
		events = append(events, *out.Event)
		log.Info("pipeline: safety rating changed",
			zap.String("new_rating", string(out.Event.NewRating)),
			zap.Bool("first_observation", out.Event.OldRating == nil),
		)
	}

	out.Stability, out.RiskScore = p.tracker.Evaluate(events, rec.SafetyRating, now)
	out.Insurance = insurance.Window(rec, now)
	out.Changed = prev == nil || prev.Fingerprint != rec.Fingerprint()

	if persist {
		if err := p.store.UpsertEntity(ctx, rec, now); err != nil {
			return nil, eris.Wrapf(err, "pipeline: persist entity %s", dot)
		}
	}

	log.Debug("pipeline: processed",
		zap.Bool("changed", out.Changed),
		zap.Bool("is_carrier", rec.IsCarrierEntity),
		zap.String("rule", rule),
		zap.Int("quality_score", rec.QualityScore),
		zap.Int("trust_score", rec.TrustScore),
		zap.Int("risk_score", out.RiskScore),
	)
	return out, nil
}

// lastKnownRating is the newest rating in the event log, falling back to
// the stored record when no events exist.
func lastKnownRating(prev *store.StoredEntity, events []model.SafetyRatingEvent) model.SafetyRating {
	if n := len(events); n > 0 {
		return events[n-1].NewRating
	}
	if prev != nil {
		return prev.Record.SafetyRating
	}
	return ""
}
