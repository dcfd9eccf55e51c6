package extract

import (
	"strings"

	"golang.org/x/net/html/atom"
)

// Strategy looks up the value paired with a label. It returns false when it
// cannot find a usable value.
type Strategy interface {
	Name() string
	Lookup(doc *Document, label string) (string, bool)
}

// SiblingCell finds a label element by tag (and optional class), climbs to
// its table cell and reads the next cell in the row.
type SiblingCell struct {
	Tag   atom.Atom
	Class string
}

// Name identifies the strategy in logs, e.g. "sibling:a.querylabel".
func (s SiblingCell) Name() string {
	name := "sibling:" + s.Tag.String()
	if s.Class != "" {
		name += "." + s.Class
	}
	return name
}

// Lookup implements Strategy.
func (s SiblingCell) Lookup(doc *Document, label string) (string, bool) {
	for _, n := range doc.labelNodes(label) {
		if n.DataAtom != s.Tag || (s.Class != "" && !hasClass(n, s.Class)) {
			continue
		}
		cell := enclosingCell(n)
		if cell == nil {
			continue
		}
		next := nextCell(cell)
		if next == nil {
			continue
		}
		if v := textOf(next); usable(v, label) {
			return v, true
		}
	}
	return "", false
}

// RowScan finds any element carrying the label, then scans the enclosing
// table row for the first cell that is not itself a label.
type RowScan struct{}

// Name implements Strategy.
func (RowScan) Name() string { return "row_scan" }

// Lookup implements Strategy.
func (RowScan) Lookup(doc *Document, label string) (string, bool) {
	for _, n := range doc.labelNodes(label) {
		row := enclosing(n, atom.Tr)
		if row == nil {
			continue
		}
		for _, c := range cells(row) {
			if contains(c, n) || contains(n, c) {
				continue
			}
			if v := textOf(c); usable(v, label) {
				return v, true
			}
		}
	}
	return "", false
}

// usable rejects empty values and values that echo a label.
func usable(v, label string) bool {
	if v == "" {
		return false
	}
	if normalizeLabel(v) == normalizeLabel(label) {
		return false
	}
	return !strings.HasSuffix(v, ":")
}

// Extractor applies an ordered chain of strategies; the first usable value
// wins.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor creates an Extractor that tries strategies in order.
func NewExtractor(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// DefaultExtractor returns the chain tuned for registry snapshot pages:
// anchor labels, header cells, plain label cells, then a row scan.
func DefaultExtractor() *Extractor {
	return NewExtractor(
		SiblingCell{Tag: atom.A, Class: "querylabel"},
		SiblingCell{Tag: atom.Th},
		SiblingCell{Tag: atom.Td},
		SiblingCell{Tag: atom.Label},
		RowScan{},
	)
}

// Field returns the value for label or false if every strategy fails.
func (e *Extractor) Field(doc *Document, label string) (string, bool) {
	for _, s := range e.strategies {
		if v, ok := s.Lookup(doc, label); ok {
			return v, true
		}
	}
	return "", false
}

// First returns the value for the first label that resolves.
func (e *Extractor) First(doc *Document, labels ...string) (string, bool) {
	for _, l := range labels {
		if v, ok := e.Field(doc, l); ok {
			return v, true
		}
	}
	return "", false
}

// Optional is First as a nil-able pointer.
func (e *Extractor) Optional(doc *Document, labels ...string) *string {
	v, ok := e.First(doc, labels...)
	if !ok {
		return nil
	}
	return &v
}
