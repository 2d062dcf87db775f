package ctpp

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `"CTPP 2006-2010 Census Tract Flows"
"Job 4393"
RESIDENCE,WORKPLACE,Output,Workers 16 and Over,Extra
"Autauga County, Alabama","Autauga County, Alabama",Estimate,"8,455",
"Autauga County, Alabama","Autauga County, Alabama",Margin of Error,"+/-601",
"Autauga County, Alabama","Elmore County, Alabama",Estimate,"2,010",x
"Autauga County, Alabama","Elmore County, Alabama",Margin of Error,"+/-320",x
"Elmore County, Alabama","Montgomery County, Alabama",Estimate,90,
"Elmore County, Alabama","Montgomery County, Alabama",Margin of Error,20,
"Baldwin County, Alabama","Mobile County, Alabama",Estimate,400,
,,,,
"Source: 2006-2010 ACS",,,,
`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Job_4393.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	records, err := Load(context.Background(), writeExport(t, sampleExport), LoadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 7)

	assert.Equal(t, Record{
		Residence: "Autauga County, Alabama",
		Workplace: "Autauga County, Alabama",
		Output:    OutputEstimate,
		Workers:   8455,
		HasValue:  true,
	}, records[0])
	assert.InDelta(t, 601, records[1].Workers, 1e-9)
}

func TestLoad_MissingColumn(t *testing.T) {
	path := writeExport(t, "a\nb\nRESIDENCE,WORKPLACE,Output\nx,y,Estimate\n")
	_, err := Load(context.Background(), path, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "Workers 16 and Over"`)
}

func TestLoad_BadNumber(t *testing.T) {
	path := writeExport(t, "a\nb\nRESIDENCE,WORKPLACE,Output,Workers 16 and Over\nx,y,Estimate,lots\n")
	_, err := Load(context.Background(), path, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestPivot(t *testing.T) {
	records, err := Load(context.Background(), writeExport(t, sampleExport), LoadOptions{})
	require.NoError(t, err)

	flows := Pivot(records)
	require.Len(t, flows, 3, "Baldwin→Mobile has no margin of error")
	assert.Equal(t, Flow{
		Residence:     "Autauga County, Alabama",
		Workplace:     "Elmore County, Alabama",
		Estimate:      2010,
		MarginOfError: 320,
	}, flows[1])
}

func TestPivot_KeepsFirstDuplicate(t *testing.T) {
	records := []Record{
		{Residence: "A", Workplace: "B", Output: OutputEstimate, Workers: 500, HasValue: true},
		{Residence: "A", Workplace: "B", Output: OutputEstimate, Workers: 700, HasValue: true},
		{Residence: "A", Workplace: "B", Output: OutputMarginOfError, Workers: 50, HasValue: true},
		{Residence: "C", Workplace: "D", Output: OutputEstimate, HasValue: false},
		{Residence: "C", Workplace: "D", Output: OutputMarginOfError, Workers: 5, HasValue: true},
	}
	flows := Pivot(records)
	require.Len(t, flows, 1)
	assert.InDelta(t, 500, flows[0].Estimate, 1e-9)
}

func TestMOERatio(t *testing.T) {
	assert.InDelta(t, 0.25, Flow{Estimate: 400, MarginOfError: 100}.MOERatio(), 1e-9)
	assert.True(t, math.IsInf(Flow{Estimate: 0, MarginOfError: 5}.MOERatio(), 1))
	assert.True(t, math.IsNaN(Flow{}.MOERatio()))
}

func TestFilter(t *testing.T) {
	flows := []Flow{
		{Residence: "A", Workplace: "A", Estimate: 5000, MarginOfError: 100},
		{Residence: "A", Workplace: "B", Estimate: 200, MarginOfError: 100},
		{Residence: "A", Workplace: "C", Estimate: 200, MarginOfError: 101},
		{Residence: "B", Workplace: "C", Estimate: 99, MarginOfError: 10},
		{Residence: "C", Workplace: "A", Estimate: 100, MarginOfError: 0},
		{Residence: "C", Workplace: "B", Estimate: 0, MarginOfError: 0},
	}

	got := Filter(flows, DefaultFilterOptions())
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Workplace, "ratio exactly 0.5 passes")
	assert.Equal(t, Key{"C", "A"}, Key{got[1].Residence, got[1].Workplace})

	opts := DefaultFilterOptions()
	opts.DropSelfLinks = false
	got = Filter(flows, opts)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Workplace)
}

func TestEstimates(t *testing.T) {
	records, err := Load(context.Background(), writeExport(t, sampleExport), LoadOptions{})
	require.NoError(t, err)

	est := Estimates(records)
	require.Len(t, est, 4)
	assert.Equal(t, "Mobile County, Alabama", est[3].Workplace)
	assert.InDelta(t, 400, est[3].Estimate, 1e-9)
}

func TestCountiesAndPairs(t *testing.T) {
	flows := []Flow{
		{Residence: "B", Workplace: "A"},
		{Residence: "C", Workplace: "D"},
		{Residence: "B", Workplace: "A"},
		{Residence: "A", Workplace: "E"},
	}
	assert.Equal(t, []string{"B", "C", "A", "D", "E"}, Counties(flows))
	assert.Equal(t, 3, Pairs(flows))
}
