// Package fips maps county names, as written in Census tables, to
// five-digit county FIPS codes.
package fips

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/labormarket/internal/table"
)

// Crosswalk column names.
const (
	ColCounty = "County"
	ColFIPS   = "FIPS"
)

// Code is one crosswalk row.
type Code struct {
	County string
	FIPS   string
}

// Crosswalk resolves county names to FIPS codes.
type Crosswalk struct {
	codes  []Code
	byKey  map[string]string
	byFIPS map[string]string
}

// New builds a Crosswalk. The first row wins when two names normalize to
// the same key.
func New(codes []Code) *Crosswalk {
	c := &Crosswalk{
		codes:  codes,
		byKey:  make(map[string]string, len(codes)),
		byFIPS: make(map[string]string, len(codes)),
	}
	for _, code := range codes {
		k := Key(code.County)
		if _, dup := c.byKey[k]; !dup {
			c.byKey[k] = code.FIPS
		}
		if _, dup := c.byFIPS[code.FIPS]; !dup {
			c.byFIPS[code.FIPS] = code.County
		}
	}
	return c
}

// Load reads a County,FIPS crosswalk file.
func Load(ctx context.Context, path string) (*Crosswalk, error) {
	tbl, err := table.Read(ctx, path, table.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "fips: load")
	}
	cols, err := tbl.Cols(ColCounty, ColFIPS)
	if err != nil {
		return nil, eris.Wrap(err, "fips: load")
	}

	codes := make([]Code, 0, tbl.Len())
	for r := 0; r < tbl.Len(); r++ {
		name := tbl.Value(r, cols[0])
		code := tbl.Value(r, cols[1])
		if name == "" || code == "" {
			continue
		}
		codes = append(codes, Code{County: name, FIPS: Pad(code)})
	}
	if len(codes) == 0 {
		return nil, eris.Errorf("fips: %s has no codes", path)
	}
	return New(codes), nil
}

// Lookup returns the FIPS code for a county name.
func (c *Crosswalk) Lookup(name string) (string, bool) {
	code, ok := c.byKey[Key(name)]
	return code, ok
}

// Name returns the crosswalk's county name for a FIPS code.
func (c *Crosswalk) Name(code string) (string, bool) {
	name, ok := c.byFIPS[Pad(code)]
	return name, ok
}

// Len returns the number of crosswalk rows.
func (c *Crosswalk) Len() int {
	return len(c.codes)
}

// Pad left-pads an all-digit code to five characters. Spreadsheet tools
// tend to strip the leading zero from Alabama through Connecticut.
func Pad(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) >= 5 {
		return code
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return code
		}
	}
	return strings.Repeat("0", 5-len(code)) + code
}

// Key normalizes a county name for matching: accents stripped, case
// folded, whitespace collapsed. "Doña Ana County, New Mexico" and
// "dona ana  county, new mexico" share a key.
func Key(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
