// Package tiger reads Census TIGER/Line county records: FIPS code, legal
// name and internal point.
package tiger

import (
	"fmt"
)

// County is a TIGER/Line county with its internal point.
type County struct {
	FIPS      string
	Name      string
	Latitude  float64
	Longitude float64
}

// CountyURL returns the national county shapefile archive for a vintage.
func CountyURL(year int) string {
	return fmt.Sprintf("https://www2.census.gov/geo/tiger/TIGER%d/COUNTY/tl_%d_us_county.zip", year, year)
}

// Supplements are counties that commuting data still reference but later
// TIGER vintages dropped. Wade Hampton Census Area became Kusilvak in 2015.
var Supplements = []County{
	{FIPS: "02270", Name: "Wade Hampton County", Latitude: 62.0826229, Longitude: -165.428791},
}

// WithSupplements appends each supplement whose FIPS is not already present.
func WithSupplements(counties []County) []County {
	have := make(map[string]bool, len(counties))
	for _, c := range counties {
		have[c.FIPS] = true
	}
	out := counties
	for _, s := range Supplements {
		if !have[s.FIPS] {
			out = append(out, s)
		}
	}
	return out
}
