package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetOptions selects a worksheet and the number of leading rows to drop.
type SheetOptions struct {
	Sheet    string // first worksheet when empty
	SkipRows int
}

// ReadSheet returns the cell text of one worksheet. Trailing empty cells are
// trimmed and blank rows dropped.
func ReadSheet(path string, opts SheetOptions) ([][]string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := pickSheet(wb, opts.Sheet)
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		if cells := cellText(row.Cells); len(cells) > 0 {
			out = append(out, cells)
		}
	}
	return out, nil
}

func pickSheet(wb *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(wb.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		return wb.Sheets[0], nil
	}
	sheet, ok := wb.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	return sheet, nil
}

func cellText(cells []*xlsx.Cell) []string {
	last := -1
	text := make([]string, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		text[i] = c.String()
		if text[i] != "" {
			last = i
		}
	}
	return text[:last+1]
}
