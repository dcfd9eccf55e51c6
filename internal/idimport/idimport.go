// Package idimport loads lists of registry identifiers for discover jobs from
// inline lists, CSV files and XLSX workbooks.
package idimport

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/model"
)

// headerNames are column headers recognised as the identifier column.
var headerNames = map[string]bool{
	"dot":          true,
	"usdot":        true,
	"dot_number":   true,
	"dot number":   true,
	"usdot number": true,
	"external_id":  true,
}

// Options selects the identifier column.
type Options struct {
	// Column is the header of the identifier column. Empty means detect a
	// known header or use the first column.
	Column string
	// Sheet names the XLSX worksheet. Empty means the first sheet.
	Sheet string
}

// Result holds the canonical identifiers in input order, deduplicated, and
// the raw values that failed validation.
type Result struct {
	IDs      []string
	Rejected []string
}

// ReadFile loads identifiers from a .csv, .txt or .xlsx file.
func ReadFile(ctx context.Context, path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := readXLSX(path, opts.Sheet)
		if err != nil {
			return nil, err
		}
		return collect(rows, opts.Column), nil
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "idimport: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, opts)
	default:
		return nil, eris.Errorf("idimport: unsupported file type %q", filepath.Ext(path))
	}
}

// ParseList splits an inline list on commas and whitespace.
func ParseList(list string) *Result {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f})
	}
	return collect(rows, "")
}

// collect picks the identifier column, validates and deduplicates.
func collect(rows [][]string, column string) *Result {
	res := &Result{IDs: []string{}}
	if len(rows) == 0 {
		return res
	}

	col, skipHeader := pickColumn(rows[0], column)
	if skipHeader {
		rows = rows[1:]
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[col])
		if raw == "" {
			continue
		}
		id, err := model.ValidateDOT(raw)
		if err != nil {
			res.Rejected = append(res.Rejected, raw)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		res.IDs = append(res.IDs, id)
	}
	return res
}

// pickColumn returns the identifier column index and whether the first row
// is a header.
func pickColumn(first []string, column string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, cell := range first {
		h := strings.ToLower(strings.TrimSpace(cell))
		if want != "" && h == want {
			return i, true
		}
		if want == "" && headerNames[h] {
			return i, true
		}
	}
	return 0, false
}
