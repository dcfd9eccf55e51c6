package idimport

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// ReadCSV loads identifiers from CSV (or one-per-line text) read from r.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	rowCh, errCh := streamCSV(ctx, r)

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return collect(rows, opts.Column), nil
}

// streamCSV reads rows on a goroutine. Both channels are closed when the
// reader is exhausted, fails, or ctx is cancelled.
func streamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true
		reader.Comment = '#'

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "idimport: csv cancelled")
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "idimport: read csv row")
				return
			}
			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "idimport: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
