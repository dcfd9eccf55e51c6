// Package scorer computes record completeness (quality) and provenance
// (trust) scores.
package scorer

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/config"
)

// Checklist field names, also the keys of config.ScorerConfig.QualityWeights.
const (
	FieldLegalName        = "legal_name"
	FieldPhysicalAddress  = "physical_address"
	FieldSafetyRating     = "safety_rating"
	FieldInsuranceStatus  = "insurance_status"
	FieldAuthorityStatus  = "authority_status"
	FieldEntityType       = "entity_type"
	FieldEquipmentTypes   = "equipment_types"
	FieldOperatingStatus  = "operating_status"
	FieldPhone            = "phone"
	FieldCarrierOperation = "carrier_operation"
	FieldMCNumber         = "mc_number"
)

// ChecklistFields lists the quality checklist in a fixed order.
var ChecklistFields = []string{
	FieldLegalName, FieldPhysicalAddress, FieldSafetyRating, FieldInsuranceStatus,
	FieldAuthorityStatus, FieldEntityType, FieldEquipmentTypes, FieldOperatingStatus,
	FieldPhone, FieldCarrierOperation, FieldMCNumber,
}

// DefaultScorerConfig returns equal checklist weights and the standard
// trust base values.
func DefaultScorerConfig() config.ScorerConfig {
	weights := make(map[string]float64, len(ChecklistFields))
	for _, f := range ChecklistFields {
		weights[f] = 1
	}
	return config.ScorerConfig{
		QualityWeights: weights,
		TrustAdmin:     90,
		TrustRegistry:  70,
		TrustManual:    40,
		VerifiedBonus:  10,
	}
}

// withDefaults fills unset weights and trust values from the defaults.
func withDefaults(c config.ScorerConfig) config.ScorerConfig {
	def := DefaultScorerConfig()
	weights := make(map[string]float64, len(ChecklistFields))
	for _, f := range ChecklistFields {
		weights[f] = def.QualityWeights[f]
		if w, ok := c.QualityWeights[f]; ok {
			weights[f] = w
		}
	}
	c.QualityWeights = weights
	if c.TrustAdmin == 0 && c.TrustRegistry == 0 && c.TrustManual == 0 {
		c.TrustAdmin, c.TrustRegistry, c.TrustManual = def.TrustAdmin, def.TrustRegistry, def.TrustManual
	}
	return c
}

// WeightSum returns the sum of the checklist weights.
func WeightSum(c config.ScorerConfig) float64 {
	var sum float64
	for _, f := range ChecklistFields {
		sum += c.QualityWeights[f]
	}
	return sum
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	for _, name := range ChecklistFields {
		if c.QualityWeights[name] < 0 {
			errs = append(errs, fmt.Sprintf("quality weight %s must be >= 0", name))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.QualityWeights)) {
		if !isChecklistField(name) {
			errs = append(errs, fmt.Sprintf("unknown quality field %s", name))
		}
	}
	if WeightSum(withDefaults(c)) <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	trust := []struct {
		name  string
		value int
	}{
		{"trust_admin_verified", c.TrustAdmin},
		{"trust_external_registry", c.TrustRegistry},
		{"trust_manual", c.TrustManual},
	}
	for _, t := range trust {
		if t.value < 0 || t.value > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", t.name))
		}
	}
	if c.VerifiedBonus < 0 {
		errs = append(errs, "verified_bonus must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isChecklistField(name string) bool {
	return slices.Contains(ChecklistFields, name)
}
