package model

import "time"

// InsuranceTier is the alert bucket an insurance policy currently falls in.
type InsuranceTier string

const (
	TierNone    InsuranceTier = "none"
	Tier30d     InsuranceTier = "30d"
	Tier15d     InsuranceTier = "15d"
	Tier7d      InsuranceTier = "7d"
	Tier1d      InsuranceTier = "1d"
	TierExpired InsuranceTier = "expired"
)

// InsuranceWindow is recomputed from (expiry, now) on every read and never stored.
type InsuranceWindow struct {
	EntityID        string        `json:"entity_id"`
	ExpiryDate      time.Time     `json:"expiry_date"`
	EffectiveDate   *time.Time    `json:"effective_date,omitempty"`
	DaysUntilExpiry int           `json:"days_until_expiry"`
	CurrentTier     InsuranceTier `json:"current_tier"`
	AlertTier       InsuranceTier `json:"alert_tier"`
	Critical        bool          `json:"critical"`
}

// AlertKey identifies one alert per tier per policy period. Delivery
// collaborators deduplicate on it.
type AlertKey struct {
	EntityID   string        `json:"entity_id"`
	Tier       InsuranceTier `json:"tier"`
	ExpiryDate string        `json:"expiry_date"`
}

// Key returns the dedupe key for the window's alert tier.
func (w InsuranceWindow) Key() AlertKey {
	return AlertKey{
		EntityID:   w.EntityID,
		Tier:       w.AlertTier,
		ExpiryDate: w.ExpiryDate.UTC().Format(time.DateOnly),
	}
}
