// Package regions assigns every county to a labor-market region: Fill
// patches counties the community detection missed using raw commuting
// flows, and Model learns regions from county internal points and names
// each after its largest city.
package regions

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/ctpp"
	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/table"
	"github.com/sells-group/labormarket/internal/tiger"
)

// FillInput is everything Fill needs.
type FillInput struct {
	Counties  []tiger.County
	Classes   map[string]int
	Flows     []ctpp.Flow
	Crosswalk *fips.Crosswalk
}

// FilledCounty is a county with its (possibly filled) modularity class.
type FilledCounty struct {
	tiger.County
	Class    int
	HasClass bool
	Filled   bool
}

// FillResult reports the filled county table.
type FillResult struct {
	Counties  []FilledCounty
	Holes     int
	Filled    int
	Remaining int
}

// Fill assigns each county without a class the class it exchanges the
// most commuters with. Flows from the county count toward the workplace's
// class and flows into it toward the residence's class. Ties go to the
// smallest class. Only original classes are used, so one fill never feeds
// another.
func Fill(in FillInput) FillResult {
	res := FillResult{Counties: make([]FilledCounty, len(in.Counties))}
	holes := make(map[string]bool)
	for i, c := range in.Counties {
		fc := FilledCounty{County: c}
		fc.Class, fc.HasClass = in.Classes[c.FIPS]
		if !fc.HasClass {
			holes[c.FIPS] = true
		}
		res.Counties[i] = fc
	}
	res.Holes = len(holes)

	totals := linkTotals(in, holes)

	for i := range res.Counties {
		fc := &res.Counties[i]
		if fc.HasClass {
			continue
		}
		if class, ok := strongest(totals[fc.FIPS]); ok {
			fc.Class, fc.HasClass, fc.Filled = class, true, true
			res.Filled++
		}
	}
	for _, fc := range res.Counties {
		if !fc.HasClass {
			res.Remaining++
		}
	}

	zap.L().Info("regions: filled holes",
		zap.String("component", "regions.fill"),
		zap.Int("holes", res.Holes),
		zap.Int("filled", res.Filled),
		zap.Int("remaining", res.Remaining),
	)
	return res
}

// linkTotals sums workers between each hole and every classified county,
// keyed by hole FIPS then class.
func linkTotals(in FillInput, holes map[string]bool) map[string]map[int]float64 {
	totals := make(map[string]map[int]float64, len(holes))
	add := func(hole, other string, workers float64) {
		if !holes[hole] {
			return
		}
		class, ok := in.Classes[other]
		if !ok {
			return
		}
		m := totals[hole]
		if m == nil {
			m = make(map[int]float64)
			totals[hole] = m
		}
		m[class] += workers
	}

	for _, f := range in.Flows {
		res, okRes := in.Crosswalk.Lookup(f.Residence)
		work, okWork := in.Crosswalk.Lookup(f.Workplace)
		if okRes && okWork {
			add(res, work, f.Estimate)
			add(work, res, f.Estimate)
		}
	}
	return totals
}

// strongest returns the class with the largest total, ties to the smallest.
func strongest(totals map[int]float64) (int, bool) {
	if len(totals) == 0 {
		return 0, false
	}
	classes := make([]int, 0, len(totals))
	for c := range totals {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	best := classes[0]
	for _, c := range classes[1:] {
		if totals[c] > totals[best] {
			best = c
		}
	}
	return best, true
}

// FillHeader is the column layout of the filled county table.
var FillHeader = []string{"fips", "County", "Latitude", "Longitude", "Modularity Class"}

// WriteFilled writes the filled county table. Remaining holes have an
// empty class.
func WriteFilled(path string, res FillResult) error {
	rows := make([][]string, len(res.Counties))
	for i, c := range res.Counties {
		class := ""
		if c.HasClass {
			class = strconv.Itoa(c.Class)
		}
		rows[i] = []string{c.FIPS, c.Name, table.FormatFloat(c.Latitude), table.FormatFloat(c.Longitude), class}
	}
	if err := table.WriteCSV(path, FillHeader, rows); err != nil {
		return eris.Wrap(err, "regions: write filled counties")
	}
	return nil
}
