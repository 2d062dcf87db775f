package tiger

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/table"
)

// TIGER/Line county attribute names.
const (
	FieldGEOID    = "GEOID"
	FieldNAMELSAD = "NAMELSAD"
	FieldINTPTLAT = "INTPTLAT"
	FieldINTPTLON = "INTPTLON"
)

// ReadCounties loads counties from a TIGER/Line county shapefile, or from
// a CSV/XLSX export of its attribute table (fips or GEOID, NAMELSAD,
// INTPTLAT, INTPTLON).
func ReadCounties(ctx context.Context, path string) ([]County, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return ParseShapefile(path)
	}

	tbl, err := table.Read(ctx, path, table.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "tiger: read counties")
	}
	fc, err := tbl.FirstCol("fips", FieldGEOID)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: read counties")
	}
	cols, err := tbl.Cols(FieldNAMELSAD, FieldINTPTLAT, FieldINTPTLON)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: read counties")
	}

	counties := make([]County, 0, tbl.Len())
	for r := 0; r < tbl.Len(); r++ {
		c, err := newCounty(tbl.Value(r, fc), tbl.Value(r, cols[0]), tbl.Value(r, cols[1]), tbl.Value(r, cols[2]))
		if err != nil {
			return nil, eris.Wrapf(err, "tiger: row %d", r+1)
		}
		counties = append(counties, c)
	}
	return counties, nil
}

// ParseShapefile reads county attributes from a shapefile's .dbf. The
// geometry itself is not needed; the internal point comes from INTPTLAT and
// INTPTLON.
func ParseShapefile(shpPath string) ([]County, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	for _, name := range []string{FieldGEOID, FieldNAMELSAD, FieldINTPTLAT, FieldINTPTLON} {
		if _, ok := fieldIdx[name]; !ok {
			return nil, eris.Errorf("tiger: shapefile %s has no %s field", shpPath, name)
		}
	}

	attr := func(name string) string {
		val := strings.TrimRight(reader.Attribute(fieldIdx[name]), "\x00")
		return strings.TrimSpace(val)
	}

	var counties []County
	skipped := 0
	for reader.Next() {
		c, err := newCounty(attr(FieldGEOID), attr(FieldNAMELSAD), attr(FieldINTPTLAT), attr(FieldINTPTLON))
		if err != nil {
			skipped++
			continue
		}
		counties = append(counties, c)
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return counties, nil
}

func newCounty(code, name, lat, lon string) (County, error) {
	if code == "" {
		return County{}, eris.New("empty fips")
	}
	c := County{FIPS: fips.Pad(code), Name: name}

	var ok bool
	var err error
	if c.Latitude, ok, err = table.ParseNumber(lat); err != nil || !ok {
		return County{}, eris.Errorf("bad INTPTLAT %q for %s", lat, code)
	}
	if c.Longitude, ok, err = table.ParseNumber(lon); err != nil || !ok {
		return County{}, eris.Errorf("bad INTPTLON %q for %s", lon, code)
	}
	return c, nil
}
