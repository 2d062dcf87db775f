// Package table loads small tabular datasets (CSV or XLSX) into memory and
// writes CSV results. Columns are addressed by header name.
package table

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labormarket/internal/fetcher"
)

// Options controls how a file is turned into a Table.
type Options struct {
	// SkipRows discards leading rows before the header.
	SkipRows int
	// Encoding is a WHATWG label for CSV input; empty means UTF-8.
	Encoding string
	// HeaderRow promotes the given data row (1-based) to the header and
	// drops every row up to and including it. Census "with_ann" files keep
	// their readable column names in row 1.
	HeaderRow int
	// Sheet selects an XLSX sheet by name.
	Sheet string
}

// Table is an in-memory table of string cells.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// New builds a Table from a header and rows.
func New(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := strings.TrimSpace(h)
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
}

// Read loads a CSV or XLSX file (chosen by extension).
func Read(ctx context.Context, path string, opts Options) (*Table, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = fetcher.ReadSheet(path, fetcher.SheetOptions{Sheet: opts.Sheet, SkipRows: opts.SkipRows})
		if err != nil {
			return nil, eris.Wrapf(err, "table: read %s", path)
		}
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "table: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		rows, err = fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
			SkipRows: opts.SkipRows,
			Encoding: opts.Encoding,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "table: read %s", path)
		}
	}

	if len(rows) == 0 {
		return nil, eris.Errorf("table: %s has no header row", path)
	}

	header, data := rows[0], rows[1:]
	if opts.HeaderRow > 0 {
		if opts.HeaderRow > len(data) {
			return nil, eris.Errorf("table: %s has no row %d to use as header", path, opts.HeaderRow)
		}
		header, data = data[opts.HeaderRow-1], data[opts.HeaderRow:]
	}

	return New(header, data), nil
}

// Col returns the index of the named column.
func (t *Table) Col(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return -1, eris.Errorf("table: missing column %q", name)
	}
	return i, nil
}

// Cols resolves several column names at once.
func (t *Table) Cols(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, err := t.Col(name)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}
	return idx, nil
}

// Select projects the table onto the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx, err := t.Cols(names...)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(t.Rows))
	for r := range t.Rows {
		out := make([]string, len(idx))
		for i, c := range idx {
			out[i] = t.Value(r, c)
		}
		rows[r] = out
	}
	return New(append([]string(nil), names...), rows), nil
}

// FirstCol returns the first of the candidate column names that exists.
func (t *Table) FirstCol(names ...string) (int, error) {
	for _, name := range names {
		if c, ok := t.index[name]; ok {
			return c, nil
		}
	}
	return -1, eris.Errorf("table: missing column (any of %q)", names)
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Value returns the trimmed cell at row r, column c. Short rows read as "".
func (t *Table) Value(r, c int) string {
	row := t.Rows[r]
	if c < 0 || c >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ParseNumber parses a numeric cell. Thousands separators and a leading
// "+/-" or "±" are ignored. ok is false for an empty cell.
func ParseNumber(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+/-")
	s = strings.TrimPrefix(s, "±")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, eris.Wrapf(err, "table: parse number %q", s)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}

// Number parses the cell at (r, c), naming the row and column on failure.
func (t *Table) Number(r, c int) (float64, bool, error) {
	v, ok, err := ParseNumber(t.Value(r, c))
	if err != nil {
		return 0, false, eris.Wrapf(err, "table: row %d column %q", r+1, t.Header[c])
	}
	return v, ok, nil
}

// WriteCSV writes header and rows to path, creating parent directories.
func WriteCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "table: create dir for %s", path)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "table: write header to %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "table: write rows to %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "table: close %s", path)
	}
	return nil
}

// FormatFloat renders a float without trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
