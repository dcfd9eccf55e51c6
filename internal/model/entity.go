package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DataSource records where an entity record's data came from.
type DataSource string

const (
	DataSourceManual           DataSource = "manual"
	DataSourceExternalRegistry DataSource = "external_registry"
	DataSourceAdminVerified    DataSource = "admin_verified"
)

// Valid reports whether d is a known data source.
func (d DataSource) Valid() bool {
	switch d {
	case DataSourceManual, DataSourceExternalRegistry, DataSourceAdminVerified:
		return true
	default:
		return false
	}
}

// NameSource identifies which step of name resolution produced LegalName.
type NameSource string

const (
	NameSourceField       NameSource = "field"
	NameSourceTitle       NameSource = "title"
	NameSourceBodySuffix  NameSource = "body_suffix"
	NameSourceBodyPhrase  NameSource = "body_phrase"
	NameSourcePlaceholder NameSource = "placeholder"
)

// EntityRecord is one regulated transportation entity as extracted from a
// registry snapshot. Optional scalars are nil when the extractor could not
// find them; multi-value fields are empty slices, never nil.
type EntityRecord struct {
	ExternalID string     `json:"external_id"`
	LegalName  string     `json:"legal_name"`
	NameSource NameSource `json:"name_source"`

	DBAName         *string `json:"dba_name,omitempty"`
	PhysicalAddress *string `json:"physical_address,omitempty"`
	MailingAddress  *string `json:"mailing_address,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	MCNumber        *string `json:"mc_number,omitempty"`
	EntityType      *string `json:"entity_type,omitempty"`
	OperatingStatus *string `json:"operating_status,omitempty"`
	AuthorityStatus *string `json:"authority_status,omitempty"`
	InsuranceStatus *string `json:"insurance_status,omitempty"`

	PowerUnits *int       `json:"power_units,omitempty"`
	Drivers    *int       `json:"drivers,omitempty"`
	MCS150Date *time.Time `json:"mcs150_date,omitempty"`

	SafetyRating     SafetyRating `json:"safety_rating,omitempty"`
	SafetyRatingDate *time.Time   `json:"safety_rating_date,omitempty"`
	OutOfServiceDate *time.Time   `json:"out_of_service_date,omitempty"`

	InsuranceEffectiveDate *time.Time `json:"insurance_effective_date,omitempty"`
	InsuranceExpiryDate    *time.Time `json:"insurance_expiry_date,omitempty"`

	OperationClassification []string `json:"operation_classification"`
	CarrierOperation        []string `json:"carrier_operation"`
	EquipmentTypes          []string `json:"equipment_types"`

	IsCarrierEntity bool `json:"is_carrier_entity"`
	QualityScore    int  `json:"quality_score"`
	TrustScore      int  `json:"trust_score"`

	DataSource       DataSource `json:"data_source"`
	Verified         bool       `json:"verified"`
	VerificationDate *time.Time `json:"verification_date,omitempty"`
}

// Fingerprint returns a stable hash of the record's canonical JSON form.
// Two ingestion passes over identical markup produce the same fingerprint.
func (r *EntityRecord) Fingerprint() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HasPlaceholderName reports whether LegalName was synthesized.
func (r *EntityRecord) HasPlaceholderName() bool {
	return r.NameSource == NameSourcePlaceholder
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PlaceholderName is the synthetic legal name used when every resolution
// step fails.
func PlaceholderName(externalID string) string {
	return "Carrier " + externalID
}
