package extract

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/carrier-sync/internal/model"
)

// dateLayouts are the date formats seen on snapshot pages.
var dateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02", "Jan 2, 2006", "January 2, 2006"}

// Label alternatives per scalar field, most specific first.
var (
	labelsDBA             = []string{"DBA Name"}
	labelsPhysicalAddress = []string{"Physical Address"}
	labelsMailingAddress  = []string{"Mailing Address"}
	labelsPhone           = []string{"Phone", "Telephone"}
	labelsMCNumber        = []string{"MC/MX/FF Number(s)", "MC/MX/FF Number", "MC Number"}
	labelsEntityType      = []string{"Entity Type"}
	labelsOperatingStatus = []string{"USDOT Status", "Operating Status"}
	labelsAuthority       = []string{"Operating Authority Status", "Authority Status"}
	labelsInsurance       = []string{"Insurance Status", "BIPD Insurance on File"}
	labelsPowerUnits      = []string{"Power Units"}
	labelsDrivers         = []string{"Drivers"}
	labelsMCS150          = []string{"MCS-150 Form Date"}
	labelsRating          = []string{"Safety Rating", "Rating"}
	labelsRatingDate      = []string{"Rating Date"}
	labelsOOSDate         = []string{"Out of Service Date"}
	labelsInsEffective    = []string{"Insurance Effective Date", "Effective Date"}
	labelsInsExpiry       = []string{"Insurance Expiration Date", "Insurance Expiry Date", "Expiration Date"}
)

// fieldLabels lists every scalar label whose value must never be read as a
// legal name.
var fieldLabels = slices.Concat(
	labelsDBA, labelsPhysicalAddress, labelsMailingAddress, labelsPhone, labelsMCNumber,
	labelsEntityType, labelsOperatingStatus, labelsAuthority, labelsInsurance,
	labelsPowerUnits, labelsDrivers, labelsMCS150, labelsRating, labelsRatingDate,
	labelsOOSDate, labelsInsEffective, labelsInsExpiry,
)

// BuildRecord extracts a raw EntityRecord from one snapshot document. The
// classifier and scorer fill in the derived fields afterwards. The result
// depends only on the document and externalID.
func BuildRecord(doc *Document, externalID string, ex *Extractor) model.EntityRecord {
	name := ResolveName(doc, ex, externalID)

	rec := model.EntityRecord{
		ExternalID: externalID,
		LegalName:  name.Name,
		NameSource: name.Source,

		DBAName:         ex.Optional(doc, labelsDBA...),
		PhysicalAddress: ex.Optional(doc, labelsPhysicalAddress...),
		MailingAddress:  ex.Optional(doc, labelsMailingAddress...),
		Phone:           ex.Optional(doc, labelsPhone...),
		MCNumber:        ex.Optional(doc, labelsMCNumber...),
		EntityType:      ex.Optional(doc, labelsEntityType...),
		OperatingStatus: ex.Optional(doc, labelsOperatingStatus...),
		AuthorityStatus: ex.Optional(doc, labelsAuthority...),
		InsuranceStatus: ex.Optional(doc, labelsInsurance...),

		PowerUnits: intField(doc, ex, labelsPowerUnits),
		Drivers:    intField(doc, ex, labelsDrivers),
		MCS150Date: dateField(doc, ex, labelsMCS150),

		SafetyRatingDate: dateField(doc, ex, labelsRatingDate),
		OutOfServiceDate: dateField(doc, ex, labelsOOSDate),

		InsuranceEffectiveDate: dateField(doc, ex, labelsInsEffective),
		InsuranceExpiryDate:    dateField(doc, ex, labelsInsExpiry),

		OperationClassification: Checkboxes(doc, LabelOperationClassification),
		CarrierOperation:        Checkboxes(doc, LabelCarrierOperation),
		EquipmentTypes:          Checkboxes(doc, LabelCargoCarried),

		DataSource: model.DataSourceExternalRegistry,
	}

	if v, ok := ex.First(doc, labelsRating...); ok {
		rec.SafetyRating = model.ParseSafetyRating(v)
	}
	return rec
}

// intField parses the first integer in the field, ignoring thousands
// separators ("1,204").
func intField(doc *Document, ex *Extractor, labels []string) *int {
	v, ok := ex.First(doc, labels...)
	if !ok {
		return nil
	}
	fields := strings.Fields(strings.ReplaceAll(v, ",", ""))
	if len(fields) == 0 {
		return nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// dateField parses the field with the known layouts; "None" and other
// non-dates are absent.
func dateField(doc *Document, ex *Extractor, labels []string) *time.Time {
	v, ok := ex.First(doc, labels...)
	if !ok {
		return nil
	}
	return ParseDate(v)
}

// ParseDate parses a registry date string, returning nil if no layout fits.
func ParseDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
