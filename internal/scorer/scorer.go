package scorer

import (
	"math"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
)

// Scorer computes quality and trust scores. Both are pure functions of the
// record snapshot.
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a Scorer. Unset weights and trust values take defaults.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: withDefaults(cfg)}, nil
}

// Present reports, per checklist field, whether the record carries a value.
func Present(r *model.EntityRecord) map[string]bool {
	return map[string]bool{
		FieldLegalName:        r.LegalName != "" && !r.HasPlaceholderName(),
		FieldPhysicalAddress:  model.Deref(r.PhysicalAddress) != "",
		FieldSafetyRating:     r.SafetyRating != "",
		FieldInsuranceStatus:  model.Deref(r.InsuranceStatus) != "",
		FieldAuthorityStatus:  model.Deref(r.AuthorityStatus) != "",
		FieldEntityType:       model.Deref(r.EntityType) != "",
		FieldEquipmentTypes:   len(r.EquipmentTypes) > 0,
		FieldOperatingStatus:  model.Deref(r.OperatingStatus) != "",
		FieldPhone:            model.Deref(r.Phone) != "",
		FieldCarrierOperation: len(r.CarrierOperation) > 0,
		FieldMCNumber:         model.Deref(r.MCNumber) != "",
	}
}

// Quality returns the weighted share of checklist fields present, 0-100.
func (s *Scorer) Quality(r *model.EntityRecord) int {
	present := Present(r)
	total := WeightSum(s.cfg)
	if total <= 0 {
		return 0
	}
	var got float64
	for _, f := range ChecklistFields {
		if present[f] {
			got += s.cfg.QualityWeights[f]
		}
	}
	return clamp(int(math.Round(100 * got / total)))
}

// Trust returns the provenance score: a base per data source, raised when
// the record is verified with a verification date.
func (s *Scorer) Trust(r *model.EntityRecord) int {
	var score int
	switch r.DataSource {
	case model.DataSourceAdminVerified:
		score = s.cfg.TrustAdmin
	case model.DataSourceExternalRegistry:
		score = s.cfg.TrustRegistry
	default:
		score = s.cfg.TrustManual
	}
	if r.Verified && r.VerificationDate != nil {
		score += s.cfg.VerifiedBonus
	}
	return clamp(score)
}

// Apply writes both scores onto the record.
func (s *Scorer) Apply(r *model.EntityRecord) {
	r.QualityScore = s.Quality(r)
	r.TrustScore = s.Trust(r)
}

func clamp(v int) int {
	return max(0, min(100, v))
}
