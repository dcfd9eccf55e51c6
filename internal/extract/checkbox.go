package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// markToken is the literal used by the registry to mark a checkbox.
	markToken = "X"

	// maxItemLen rejects adjacent-cell text that is too long to be an item.
	maxItemLen = 50

	// maxRegionRows bounds the forward scan from the label row.
	maxRegionRows = 6
)

// Checkbox section labels on snapshot pages.
const (
	LabelOperationClassification = "Operation Classification"
	LabelCarrierOperation        = "Carrier Operation"
	LabelCargoCarried            = "Cargo Carried"
)

// Vocabularies holds the known item strings per checkbox section, used when
// no marks can be located.
var Vocabularies = map[string][]string{
	LabelOperationClassification: {
		"Auth. For Hire", "Exempt For Hire", "Private(Property)", "Priv. Pass. (Business)",
		"Priv. Pass.(Non-business)", "Migrant", "U.S. Mail", "Fed. Gov't", "State Gov't",
		"Local Gov't", "Indian Nation",
	},
	LabelCarrierOperation: {
		"Interstate", "Intrastate Only (HM)", "Intrastate Only (Non-HM)",
	},
	LabelCargoCarried: {
		"General Freight", "Household Goods", "Metal: sheets, coils, rolls", "Motor Vehicles",
		"Drive/Tow away", "Logs, Poles, Beams, Lumber", "Building Materials", "Mobile Homes",
		"Machinery, Large Objects", "Fresh Produce", "Liquids/Gases", "Intermodal Cont.",
		"Passengers", "Oilfield Equipment", "Livestock", "Grain, Feed, Hay", "Coal/Coke",
		"Meat", "Garbage/Refuse", "US Mail", "Chemicals", "Commodities Dry Bulk",
		"Refrigerated Food", "Beverages", "Paper Products", "Utilities",
		"Agricultural/Farm Supplies", "Construction", "Water Well",
	},
}

// Checkboxes returns the marked items of the section named by label, in page
// order. When no marks are found it falls back to a vocabulary scan of the
// section text. It returns an empty list, never nil, when nothing matches.
func Checkboxes(doc *Document, label string) []string {
	region := checkboxRegion(doc, label)
	if len(region) == 0 {
		return []string{}
	}

	if items := markedItems(region); len(items) > 0 {
		return items
	}
	return vocabularyScan(region, Vocabularies[label])
}

// checkboxRegion collects the nodes following the label: the rest of the
// label's row, then up to maxRegionRows sibling rows, stopping at the next
// labeled row.
func checkboxRegion(doc *Document, label string) []*html.Node {
	for _, n := range doc.labelNodes(label) {
		row := enclosing(n, atom.Tr)
		if row == nil {
			continue
		}

		var region []*html.Node
		for _, c := range cells(row) {
			if !contains(c, n) && !contains(n, c) {
				region = append(region, c)
			}
		}
		for next, i := nextRow(row), 0; next != nil && i < maxRegionRows; next, i = nextRow(next), i+1 {
			if isLabelRow(next) {
				break
			}
			region = append(region, next)
		}
		if len(region) > 0 {
			return region
		}
	}
	return nil
}

// isLabelRow reports whether row starts another labeled section.
func isLabelRow(row *html.Node) bool {
	for _, c := range cells(row) {
		if c.DataAtom == atom.Th || hasClass(c, "querylabelbkg") {
			return true
		}
		for _, a := range findAll(c, atom.A) {
			if hasClass(a, "querylabel") {
				return true
			}
		}
	}
	return false
}

// markedItems finds cells holding the mark token and takes the text of the
// adjacent cell as the item.
func markedItems(region []*html.Node) []string {
	seen := make(map[string]bool)
	var items []string
	for _, r := range region {
		for _, td := range findAll(r, atom.Td) {
			if textOf(td) != markToken {
				continue
			}
			next := nextCell(td)
			if next == nil {
				continue
			}
			item := textOf(next)
			if item == "" || item == markToken || len(item) > maxItemLen || seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, item)
		}
	}
	return items
}

// vocabularyScan returns the vocabulary entries found in the region text, in
// vocabulary order.
func vocabularyScan(region []*html.Node, vocab []string) []string {
	var b strings.Builder
	for _, r := range region {
		b.WriteString(textOf(r))
		b.WriteByte(' ')
	}
	text := strings.ToLower(b.String())

	items := []string{}
	for _, v := range vocab {
		if strings.Contains(text, strings.ToLower(v)) {
			items = append(items, v)
		}
	}
	return items
}
