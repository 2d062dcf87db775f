// Package ctpp reads Census Transportation Planning Products (CTPP)
// county-to-county commuting tables.
package ctpp

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/table"
)

// CTPP export column names.
const (
	ColResidence = "RESIDENCE"
	ColWorkplace = "WORKPLACE"
	ColOutput    = "Output"
	ColWorkers   = "Workers 16 and Over"
)

// Output values in the long-format export.
const (
	OutputEstimate      = "Estimate"
	OutputMarginOfError = "Margin of Error"
)

// preambleRows is the number of title rows above the header in a CTPP export.
const preambleRows = 2

// Record is one row of the long-format export.
type Record struct {
	Residence string
	Workplace string
	Output    string
	Workers   float64
	HasValue  bool
}

// Flow is a residence→workplace commuting flow with its margin of error.
type Flow struct {
	Residence     string
	Workplace     string
	Estimate      float64
	MarginOfError float64
}

// Key identifies a residence/workplace pair.
type Key struct {
	Residence string
	Workplace string
}

// LoadOptions configures Load.
type LoadOptions struct {
	Encoding string
}

// Load reads a CTPP export. Only the first four columns are used. Rows
// with a blank residence or workplace (footnotes) are skipped.
func Load(ctx context.Context, path string, opts LoadOptions) ([]Record, error) {
	tbl, err := table.Read(ctx, path, table.Options{SkipRows: preambleRows, Encoding: opts.Encoding})
	if err != nil {
		return nil, eris.Wrap(err, "ctpp: load")
	}

	cols, err := tbl.Cols(ColResidence, ColWorkplace, ColOutput, ColWorkers)
	if err != nil {
		return nil, eris.Wrap(err, "ctpp: load")
	}

	records := make([]Record, 0, tbl.Len())
	skipped := 0
	for r := 0; r < tbl.Len(); r++ {
		rec := Record{
			Residence: tbl.Value(r, cols[0]),
			Workplace: tbl.Value(r, cols[1]),
			Output:    tbl.Value(r, cols[2]),
		}
		if rec.Residence == "" || rec.Workplace == "" {
			skipped++
			continue
		}
		rec.Workers, rec.HasValue, err = tbl.Number(r, cols[3])
		if err != nil {
			return nil, eris.Wrap(err, "ctpp: load")
		}
		records = append(records, rec)
	}

	zap.L().Debug("ctpp: loaded records",
		zap.String("component", "ctpp"),
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
	)

	return records, nil
}

// Pivot joins Estimate rows with their Margin of Error rows on the
// residence/workplace pair. Pairs missing either side, or missing a value,
// are dropped. Flows keep the order of their Estimate rows.
func Pivot(records []Record) []Flow {
	moe := make(map[Key]float64)
	for _, rec := range records {
		if rec.Output == OutputMarginOfError && rec.HasValue {
			moe[Key{rec.Residence, rec.Workplace}] = rec.Workers
		}
	}

	seen := make(map[Key]bool)
	flows := make([]Flow, 0, len(moe))
	for _, rec := range records {
		if rec.Output != OutputEstimate || !rec.HasValue {
			continue
		}
		k := Key{rec.Residence, rec.Workplace}
		m, ok := moe[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		flows = append(flows, Flow{
			Residence:     rec.Residence,
			Workplace:     rec.Workplace,
			Estimate:      rec.Workers,
			MarginOfError: m,
		})
	}
	return flows
}

// FilterOptions bounds which flows enter the graph.
type FilterOptions struct {
	MaxMOERatio   float64
	MinWorkers    float64
	DropSelfLinks bool
}

// DefaultFilterOptions returns the thresholds used for the published graph.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{MaxMOERatio: 0.5, MinWorkers: 100, DropSelfLinks: true}
}

// MOERatio returns MarginOfError / Estimate. A zero estimate gives +Inf,
// or NaN when the margin is also zero.
func (f Flow) MOERatio() float64 {
	if f.Estimate == 0 {
		if f.MarginOfError == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return f.MarginOfError / f.Estimate
}

// Filter keeps reliable, sizeable flows. A NaN ratio never passes.
func Filter(flows []Flow, opts FilterOptions) []Flow {
	out := make([]Flow, 0, len(flows))
	for _, f := range flows {
		if !(f.MOERatio() <= opts.MaxMOERatio) {
			continue
		}
		if f.Estimate < opts.MinWorkers {
			continue
		}
		if opts.DropSelfLinks && f.Residence == f.Workplace {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Estimates returns every Estimate record with a value, unfiltered.
func Estimates(records []Record) []Flow {
	out := make([]Flow, 0, len(records)/2)
	for _, rec := range records {
		if rec.Output == OutputEstimate && rec.HasValue {
			out = append(out, Flow{Residence: rec.Residence, Workplace: rec.Workplace, Estimate: rec.Workers})
		}
	}
	return out
}

// Counties returns the distinct county names of flows, all residences
// first then all workplaces, in first-appearance order.
func Counties(flows []Flow) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, f := range flows {
		add(f.Residence)
	}
	for _, f := range flows {
		add(f.Workplace)
	}
	return out
}

// Pairs counts distinct residence/workplace pairs.
func Pairs(flows []Flow) int {
	seen := make(map[Key]struct{}, len(flows))
	for _, f := range flows {
		seen[Key{f.Residence, f.Workplace}] = struct{}{}
	}
	return len(seen)
}
