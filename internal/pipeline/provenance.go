package pipeline

import "github.com/sells-group/carrier-sync/internal/model"

// carryProvenance keeps verification state that a registry pass cannot
// produce. An admin-verified or verified record stays verified after a
// refresh; the registry only supplies field values. It reports whether rec
// was modified.
func carryProvenance(rec, prev *model.EntityRecord) bool {
	if prev == nil {
		return false
	}
	changed := false
	if prev.DataSource == model.DataSourceAdminVerified && rec.DataSource != model.DataSourceAdminVerified {
		rec.DataSource = model.DataSourceAdminVerified
		changed = true
	}
	if prev.Verified && !rec.Verified {
		rec.Verified = true
		rec.VerificationDate = prev.VerificationDate
		changed = true
	}
	return changed
}
