// Package census reads 2010 Census SF1 geography files (the "with_ann"
// American FactFinder exports) for counties and incorporated places.
package census

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/table"
)

// Readable column names from the second header row.
const (
	ColID         = "Id2"
	ColGeography  = "Geography"
	ColLatitude   = "AREA CHARACTERISTICS - Internal Point (Latitude)"
	ColLongitude  = "AREA CHARACTERISTICS - Internal Point (Longitude)"
	ColPopulation = "AREA CHARACTERISTICS - Population Count (100%)"
)

// Geography is one county or place with its internal point.
type Geography struct {
	ID         string
	Name       string
	Latitude   float64
	Longitude  float64
	Population float64
	// HasPopulation is false when the count was blank or annotated.
	HasPopulation bool
}

// ReadCounties reads the county geography file. IDs are five-digit FIPS.
func ReadCounties(ctx context.Context, path string) ([]Geography, error) {
	geos, err := read(ctx, path, false)
	if err != nil {
		return nil, eris.Wrap(err, "census: read counties")
	}
	for i := range geos {
		geos[i].ID = fips.Pad(geos[i].ID)
	}
	return geos, nil
}

// ReadPlaces reads the incorporated places file, dropping census
// designated places and "balance" remainders.
func ReadPlaces(ctx context.Context, path string) ([]Geography, error) {
	geos, err := read(ctx, path, true)
	if err != nil {
		return nil, eris.Wrap(err, "census: read places")
	}

	kept := geos[:0]
	dropped := 0
	for _, g := range geos {
		if strings.Contains(g.Name, "CDP") || strings.Contains(g.Name, "balance") {
			dropped++
			continue
		}
		kept = append(kept, g)
	}

	zap.L().Debug("census: read places",
		zap.String("component", "census"),
		zap.Int("kept", len(kept)),
		zap.Int("dropped", dropped),
	)
	return kept, nil
}

func read(ctx context.Context, path string, population bool) ([]Geography, error) {
	tbl, err := table.Read(ctx, path, table.Options{HeaderRow: 1})
	if err != nil {
		return nil, err
	}

	names := []string{ColID, ColGeography, ColLatitude, ColLongitude}
	if population {
		names = append(names, ColPopulation)
	}
	cols, err := tbl.Cols(names...)
	if err != nil {
		return nil, err
	}

	out := make([]Geography, 0, tbl.Len())
	for r := 0; r < tbl.Len(); r++ {
		g := Geography{ID: tbl.Value(r, cols[0]), Name: tbl.Value(r, cols[1])}

		var ok bool
		if g.Latitude, ok, err = tbl.Number(r, cols[2]); err != nil {
			return nil, err
		} else if !ok {
			return nil, eris.Errorf("row %d: missing latitude for %s", r+1, g.ID)
		}
		if g.Longitude, ok, err = tbl.Number(r, cols[3]); err != nil {
			return nil, err
		} else if !ok {
			return nil, eris.Errorf("row %d: missing longitude for %s", r+1, g.ID)
		}

		if population {
			// Counts revised after release carry notes like "2209(r38742)".
			v, ok, perr := table.ParseNumber(tbl.Value(r, cols[4]))
			if perr == nil && ok {
				g.Population, g.HasPopulation = v, true
			}
		}
		out = append(out, g)
	}
	return out, nil
}

var placeSuffixes = strings.NewReplacer(
	" city,", ",",
	" urban county,", ",",
	" zona urbana,", ",",
	" municipality,", ",",
)

// CleanPlaceName drops the legal suffix from a place name:
// "Chicago city, Illinois" → "Chicago, Illinois".
func CleanPlaceName(name string) string {
	return placeSuffixes.Replace(name)
}
