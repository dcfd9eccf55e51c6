// Package insurance evaluates insurance expiry windows. Every result is a
// pure function of (expiry, now) and is recomputed on read.
package insurance

import (
	"math"
	"time"

	"github.com/sells-group/carrier-sync/internal/model"
)

const day = 24 * time.Hour

// DaysUntilExpiry returns ceil((expiry - now) / 1 day). Negative values mean
// the policy has expired.
func DaysUntilExpiry(expiry, now time.Time) int {
	d := math.Ceil(float64(expiry.Sub(now)) / float64(day))
	if d == 0 {
		// Normalize -0.
		return 0
	}
	return int(d)
}

// TierForDays maps days-until-expiry to its tier. Lower bounds are inclusive.
func TierForDays(days int) model.InsuranceTier {
	switch {
	case days < 0:
		return model.TierExpired
	case days <= 7:
		return model.Tier7d
	case days <= 15:
		return model.Tier15d
	case days <= 30:
		return model.Tier30d
	default:
		return model.TierNone
	}
}

// AlertTierForDays is TierForDays with the final-notice bucket: zero or one
// day left yields the 1d tier.
func AlertTierForDays(days int) model.InsuranceTier {
	if days >= 0 && days <= 1 {
		return model.Tier1d
	}
	return TierForDays(days)
}

// Tier returns the current tier for expiry at now.
func Tier(expiry, now time.Time) model.InsuranceTier {
	return TierForDays(DaysUntilExpiry(expiry, now))
}

// Window derives the insurance window for a record, or nil when the record
// has no expiry date.
func Window(r *model.EntityRecord, now time.Time) *model.InsuranceWindow {
	if r.InsuranceExpiryDate == nil {
		return nil
	}
	days := DaysUntilExpiry(*r.InsuranceExpiryDate, now)
	return &model.InsuranceWindow{
		EntityID:        r.ExternalID,
		ExpiryDate:      *r.InsuranceExpiryDate,
		EffectiveDate:   r.InsuranceEffectiveDate,
		DaysUntilExpiry: days,
		CurrentTier:     TierForDays(days),
		AlertTier:       AlertTierForDays(days),
		Critical:        days >= 0 && days <= 7,
	}
}

// TierOf returns the record's current tier, TierNone when it has no expiry.
func TierOf(r *model.EntityRecord, now time.Time) model.InsuranceTier {
	w := Window(r, now)
	if w == nil {
		return model.TierNone
	}
	return w.CurrentTier
}
