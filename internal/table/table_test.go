package table

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead_CSV(t *testing.T) {
	path := writeFile(t, "fips.csv", "County,FIPS\nAutauga County,01001\nBaldwin County,01003\n")

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"County", "FIPS"}, tbl.Header)
	assert.Equal(t, 2, tbl.Len())

	c, err := tbl.Col("FIPS")
	require.NoError(t, err)
	assert.Equal(t, "01003", tbl.Value(1, c))
}

func TestRead_SkipRowsAndHeaderRow(t *testing.T) {
	content := "preamble\n" +
		"GEO.id,GEO.id2,GEO.display-label\n" +
		"Id,Id2,Geography\n" +
		"0500000US01001,01001,\"Autauga County, Alabama\"\n"
	path := writeFile(t, "dec.csv", content)

	tbl, err := Read(context.Background(), path, Options{SkipRows: 1, HeaderRow: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Id2", "Geography"}, tbl.Header)
	require.Equal(t, 1, tbl.Len())

	c, err := tbl.Col("Geography")
	require.NoError(t, err)
	assert.Equal(t, "Autauga County, Alabama", tbl.Value(0, c))
}

func TestRead_HeaderRowOutOfRange(t *testing.T) {
	path := writeFile(t, "short.csv", "a,b\n")

	_, err := Read(context.Background(), path, Options{HeaderRow: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no row 1")
}

func TestRead_Empty(t *testing.T) {
	path := writeFile(t, "empty.csv", "")

	_, err := Read(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table: open")
}

func TestRead_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range [][]string{{"County", "FIPS"}, {"Autauga County", "01001"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "fips.xlsx")
	require.NoError(t, f.Save(path))

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	c, err := tbl.Col("FIPS")
	require.NoError(t, err)
	assert.Equal(t, "01001", tbl.Value(0, c))
}

func TestColumnLookup(t *testing.T) {
	tbl := New([]string{" fips ", "NAMELSAD", "fips"}, [][]string{{"01001", "Autauga County"}})

	c, err := tbl.Col("fips")
	require.NoError(t, err)
	assert.Equal(t, 0, c, "first duplicate wins and header is trimmed")

	_, err = tbl.Col("GEOID")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "GEOID"`)

	c, err = tbl.FirstCol("GEOID", "NAMELSAD")
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	_, err = tbl.FirstCol("x", "y")
	require.Error(t, err)

	cols, err := tbl.Cols("fips", "NAMELSAD")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, cols)

	assert.True(t, tbl.Has("NAMELSAD"))
	assert.False(t, tbl.Has("INTPTLAT"))
	assert.Equal(t, "", tbl.Value(0, 2), "short rows read as empty")
}

func TestSelect(t *testing.T) {
	tbl := New([]string{"RESIDENCE", "WORKPLACE", "Output", "Workers 16 and Over", "Extra"},
		[][]string{{"A", "B", "Estimate", "120", "x"}, {"A", "B"}})

	sel, err := tbl.Select("Output", "RESIDENCE")
	require.NoError(t, err)
	assert.Equal(t, []string{"Output", "RESIDENCE"}, sel.Header)
	assert.Equal(t, [][]string{{"Estimate", "A"}, {"", "A"}}, sel.Rows)

	_, err = tbl.Select("Nope")
	require.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		ok      bool
		wantErr bool
	}{
		{in: "1,234", want: 1234, ok: true},
		{in: " 42 ", want: 42, ok: true},
		{in: "+/-18", want: 18, ok: true},
		{in: "±7", want: 7, ok: true},
		{in: "-165.428791", want: -165.428791, ok: true},
		{in: "", ok: false},
		{in: "NaN", ok: false},
		{in: "12(r3)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, ok, err := ParseNumber(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestNumber_NamesColumn(t *testing.T) {
	tbl := New([]string{"Workers 16 and Over"}, [][]string{{"12"}, {"n/a"}})

	v, ok, err := tbl.Number(0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 12, v, 1e-9)

	_, _, err = tbl.Number(1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `row 2 column "Workers 16 and Over"`)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	err := WriteCSV(path, []string{"fips", "County"}, [][]string{{"01001", "Autauga County"}, {"02270", "Wade Hampton, AK"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fips,County\n01001,Autauga County\n02270,\"Wade Hampton, AK\"\n", string(data))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "62.0826229", FormatFloat(62.0826229))
	assert.Equal(t, "100", FormatFloat(100))
}
