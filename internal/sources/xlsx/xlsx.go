// Package xlsx reads observations from Excel workbooks and renders query
// results back into one.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/xuri/excelize/v2"

	"pricedash/internal/core"
	"pricedash/internal/sources"
)

// SheetName is the sheet written by WriteObservations.
const SheetName = "Prices"

type Reader struct {
	path  string
	sheet string
}

var _ sources.Reader = (*Reader)(nil)

// New reads sheet from the workbook at path. An empty sheet selects the
// first one.
func New(path, sheet string) *Reader {
	return &Reader{path: path, sheet: sheet}
}

func (r *Reader) Name() string {
	return "xlsx:" + filepath.Base(r.path)
}

func (r *Reader) Read(ctx context.Context) (sources.Result, error) {
	if err := ctx.Err(); err != nil {
		return sources.Result{}, err
	}
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return sources.Result{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return parse(f, r.sheet)
}

// Parse reads the first sheet of a workbook stream.
func Parse(in io.Reader) (sources.Result, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return sources.Result{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return parse(f, "")
}

func parse(f *excelize.File, sheet string) (sources.Result, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return sources.Result{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return sources.Result{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return sources.ParseTable(rows)
}

// WriteObservations renders rows as a single-sheet workbook. Parseable
// prices are written as numbers; malformed ones keep their raw text.
func WriteObservations(w io.Writer, rows []core.Observation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range sources.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(sources.Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	priceCol := slices.Index(sources.Header, string(core.ColumnPrice))
	for r, o := range rows {
		for c, value := range sources.Record(o) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var v any = value
			if c == priceCol {
				if p, err := core.ParsePrice(value); err == nil {
					v = p
				}
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", r+2, err)
			}
		}
	}

	for i := range sources.Header {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, col, col, 15)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
