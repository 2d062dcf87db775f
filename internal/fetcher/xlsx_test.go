package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// writeWorkbook saves one sheet per entry of names, filled from rows.
func writeWorkbook(t *testing.T, names []string, rows map[string][][]string) string {
	t.Helper()
	wb := xlsx.NewFile()
	for _, name := range names {
		sheet, err := wb.AddSheet(name)
		require.NoError(t, err)
		for _, r := range rows[name] {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	require.NoError(t, wb.Save(path))
	return path
}

func TestReadSheet_FirstSheet(t *testing.T) {
	path := writeWorkbook(t, []string{"Counties", "Notes"}, map[string][][]string{
		"Counties": {{"County", "FIPS"}, {"Autauga County", "01001"}},
		"Notes":    {{"ignored"}},
	})

	rows, err := ReadSheet(path, SheetOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"County", "FIPS"}, {"Autauga County", "01001"}}, rows)
}

func TestReadSheet_SkipRowsAndTrim(t *testing.T) {
	path := writeWorkbook(t, []string{"Sheet1"}, map[string][][]string{
		"Sheet1": {
			{"Table 1. Residence to workplace flows"},
			{"RESIDENCE", "WORKPLACE", ""},
			{"", ""},
			{"Autauga County, Alabama", "Baldwin County, Alabama", "", ""},
		},
	})

	rows, err := ReadSheet(path, SheetOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"RESIDENCE", "WORKPLACE"},
		{"Autauga County, Alabama", "Baldwin County, Alabama"},
	}, rows)
}

func TestReadSheet_ByName(t *testing.T) {
	path := writeWorkbook(t, []string{"Summary", "Flows"}, map[string][][]string{
		"Flows": {{"RESIDENCE"}},
	})

	rows, err := ReadSheet(path, SheetOptions{Sheet: "Flows"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"RESIDENCE"}}, rows)

	_, err = ReadSheet(path, SheetOptions{Sheet: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadSheet_MissingFile(t *testing.T) {
	_, err := ReadSheet(filepath.Join(t.TempDir(), "nope.xlsx"), SheetOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open")
}
