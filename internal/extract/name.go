package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/carrier-sync/internal/model"
)

// maxNameLen is the sanity bound for a legal name. Longer values mean the
// extractor grabbed the wrong region of the page.
const maxNameLen = 200

// boilerplate phrases never appear in a real legal name.
var boilerplate = []string{
	"search criteria",
	"query result",
	"safer web",
	"company snapshot",
	"usdot number",
	"users of this",
	"click here",
	"not found",
	"record inactive",
	"fmcsa",
}

// stopPhrases are capitalized tokens common on snapshot pages that the loose
// body pattern must not mistake for a name.
var stopPhrases = map[string]bool{
	"USDOT": true, "US DOT": true, "SAFER": true, "MC": true, "MCS-150": true,
	"CARRIER": true, "BROKER": true, "SHIPPER": true, "ACTIVE": true, "INACTIVE": true,
	"AUTHORIZED": true, "NOT AUTHORIZED": true, "AUTHORIZED FOR PROPERTY": true,
	"NONE": true, "NOT RATED": true, "SATISFACTORY": true, "CONDITIONAL": true,
	"UNSATISFACTORY": true, "OUT OF SERVICE": true, "HM": true, "NON-HM": true,
	"US": true, "USA": true, "N/A": true, "X": true, "ID": true, "OOS": true,
	"US INSPECTION RESULTS": true, "CANADIAN INSPECTION RESULTS": true,
}

var (
	titleNameRe = regexp.MustCompile(`(?i)company\s+snapshot\s*[:\-]?\s*(.+)`)

	// Capitalized tokens ending in a corporate suffix, on one line.
	suffixNameRe = regexp.MustCompile(
		`\b[A-Z][\w&'.\-]*(?:[ \t]+[A-Z0-9][\w&'.,\-]*){0,6}[ \t]+(?i:corporation|company|corp|inc|llc|llp|ltd|lp|co)\b\.?`)

	// Looser fallback: two to six upper-case tokens.
	capsPhraseRe = regexp.MustCompile(`\b[A-Z][A-Z0-9&'.\-]+(?:[ \t]+[A-Z0-9&'.\-]+){1,5}\b`)

	// A ZIP code marks an address fragment, not a name.
	postalRe = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
)

// NameResolution is the resolved legal name and the step that produced it.
type NameResolution struct {
	Name   string
	Source model.NameSource
}

// ResolveName produces a non-empty legal name through layered fallbacks:
// the labeled field, the page title, body patterns, then a placeholder.
func ResolveName(doc *Document, ex *Extractor, externalID string) NameResolution {
	if v, ok := ex.Field(doc, "Legal Name"); ok && plausibleName(v) {
		return NameResolution{Name: v, Source: model.NameSourceField}
	}

	if m := titleNameRe.FindStringSubmatch(doc.Title()); m != nil {
		if v := strings.TrimSpace(m[1]); plausibleName(v) {
			return NameResolution{Name: v, Source: model.NameSourceTitle}
		}
	}

	var body []string
	for _, line := range doc.freeLines(fieldLabels) {
		if !postalRe.MatchString(line) {
			body = append(body, line)
		}
	}
	for _, line := range body {
		for _, m := range suffixNameRe.FindAllString(line, -1) {
			if v := strings.TrimSpace(m); plausibleName(v) {
				return NameResolution{Name: v, Source: model.NameSourceBodySuffix}
			}
		}
	}

	for _, line := range body {
		for _, m := range capsPhraseRe.FindAllString(line, -1) {
			v := strings.TrimSpace(m)
			if !stopPhrases[v] && plausibleName(v) && !looksLikeLabel(doc, v) {
				return NameResolution{Name: v, Source: model.NameSourceBodyPhrase}
			}
		}
	}

	name := model.PlaceholderName(externalID)
	zap.L().Warn("extract: name resolution exhausted, using placeholder",
		zap.String("component", "extract"),
		zap.String("external_id", externalID),
		zap.String("name", name),
	)
	return NameResolution{Name: name, Source: model.NameSourcePlaceholder}
}

// plausibleName applies the length bound and boilerplate filter.
func plausibleName(v string) bool {
	if v == "" || len(v) > maxNameLen {
		return false
	}
	lower := strings.ToLower(v)
	for _, p := range boilerplate {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return strings.ContainsFunc(v, isLetter)
}

// looksLikeLabel reports whether v is a field label on the page.
func looksLikeLabel(doc *Document, v string) bool {
	for _, n := range doc.labelNodes(v) {
		if hasClass(n, "querylabel") {
			return true
		}
		if cell := enclosingCell(n); cell != nil && cell.DataAtom == atom.Th {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
