package regsync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/resilience"
)

// selectTargets applies the job type's target-selection policy.
func (e *Engine) selectTargets(ctx context.Context, req JobRequest) ([]string, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	switch req.JobType {
	case model.JobTypeStaleRefresh:
		days := req.StaleDays
		if days <= 0 {
			days = e.cfg.StaleAfterDays
		}
		if days <= 0 {
			days = defaultStaleDays
		}
		cutoff := e.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		ids, err := e.store.ListStaleEntities(ctx, cutoff, limit)
		if err != nil {
			return nil, eris.Wrap(err, "regsync: list stale entities")
		}
		return ids, nil

	case model.JobTypeDiscover:
		if len(req.IDs) == 0 {
			return nil, resilience.NewValidationError("ids", "", "discover job requires identifiers")
		}
		seen := make(map[string]bool, len(req.IDs))
		ids := make([]string, 0, min(len(req.IDs), limit))
		for _, raw := range req.IDs {
			dot, err := model.ValidateDOT(raw)
			if err != nil {
				return nil, err
			}
			if seen[dot] {
				continue
			}
			seen[dot] = true
			ids = append(ids, dot)
			if len(ids) == limit {
				break
			}
		}
		return ids, nil

	default:
		return nil, resilience.NewValidationError("job_type", string(req.JobType), "unknown job type")
	}
}
