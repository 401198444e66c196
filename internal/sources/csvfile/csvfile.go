// Package csvfile reads observations from CSV exports.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pricedash/internal/core"
	"pricedash/internal/sources"
)

type Reader struct {
	path string
}

var _ sources.Reader = (*Reader)(nil)

func New(path string) *Reader {
	return &Reader{path: path}
}

func (r *Reader) Name() string {
	return "csv:" + filepath.Base(r.path)
}

func (r *Reader) Read(ctx context.Context) (sources.Result, error) {
	if err := ctx.Err(); err != nil {
		return sources.Result{}, err
	}
	f, err := os.Open(r.path)
	if err != nil {
		return sources.Result{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a whole CSV document. Ragged rows are accepted.
func Parse(in io.Reader) (sources.Result, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return sources.Result{}, fmt.Errorf("read csv: %w", err)
	}
	return sources.ParseTable(records)
}

// Write renders rows as CSV with the canonical header.
func Write(w io.Writer, rows []core.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sources.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(sources.Record(r)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
