package regions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labormarket/internal/ctpp"
	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/tiger"
)

func fillInput() FillInput {
	return FillInput{
		Counties: []tiger.County{
			{FIPS: "01001", Name: "Autauga County", Latitude: 32.5, Longitude: -86.6},
			{FIPS: "01003", Name: "Baldwin County", Latitude: 30.7, Longitude: -87.7},
			{FIPS: "01005", Name: "Barbour County", Latitude: 31.9, Longitude: -85.4},
			{FIPS: "01007", Name: "Bibb County", Latitude: 33.0, Longitude: -87.1},
			{FIPS: "01009", Name: "Blount County", Latitude: 34.0, Longitude: -86.6},
			{FIPS: "01011", Name: "Bullock County", Latitude: 32.1, Longitude: -85.7},
		},
		Classes: map[string]int{"01001": 2, "01003": 5, "01005": 7},
		Flows: []ctpp.Flow{
			// Bibb: 300 to class 2, 100 + 250 from class 5.
			{Residence: "Bibb", Workplace: "Autauga", Estimate: 300},
			{Residence: "Bibb", Workplace: "Baldwin", Estimate: 100},
			{Residence: "Baldwin", Workplace: "Bibb", Estimate: 250},
			{Residence: "Bibb", Workplace: "Bibb", Estimate: 9000},
			// Blount ties classes 5 and 7.
			{Residence: "Blount", Workplace: "Barbour", Estimate: 40},
			{Residence: "Baldwin", Workplace: "Blount", Estimate: 40},
			// Blount ↔ Bibb: both holes, ignored.
			{Residence: "Blount", Workplace: "Bibb", Estimate: 5000},
			// Bullock only links to an unknown county.
			{Residence: "Bullock", Workplace: "Atlantis", Estimate: 900},
		},
		Crosswalk: fips.New([]fips.Code{
			{County: "Autauga", FIPS: "01001"},
			{County: "Baldwin", FIPS: "01003"},
			{County: "Barbour", FIPS: "01005"},
			{County: "Bibb", FIPS: "01007"},
			{County: "Blount", FIPS: "01009"},
			{County: "Bullock", FIPS: "01011"},
		}),
	}
}

func TestFill(t *testing.T) {
	res := Fill(fillInput())

	assert.Equal(t, 3, res.Holes)
	assert.Equal(t, 2, res.Filled)
	assert.Equal(t, 1, res.Remaining)

	bibb := res.Counties[3]
	assert.True(t, bibb.Filled)
	assert.Equal(t, 5, bibb.Class, "350 workers with class 5 beat 300 with class 2")

	blount := res.Counties[4]
	assert.True(t, blount.Filled)
	assert.Equal(t, 5, blount.Class, "tie goes to the smaller class")

	bullock := res.Counties[5]
	assert.False(t, bullock.HasClass)

	autauga := res.Counties[0]
	assert.True(t, autauga.HasClass)
	assert.False(t, autauga.Filled)
}

func TestStrongest(t *testing.T) {
	_, ok := strongest(nil)
	assert.False(t, ok)

	c, ok := strongest(map[int]float64{9: 10, 3: 10, 4: 2})
	require.True(t, ok)
	assert.Equal(t, 3, c)
}

func TestWriteFilled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Regionalized U.S. Counties.csv")
	require.NoError(t, WriteFilled(path, Fill(fillInput())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fips,County,Latitude,Longitude,Modularity Class\n"+
		"01001,Autauga County,32.5,-86.6,2\n"+
		"01003,Baldwin County,30.7,-87.7,5\n"+
		"01005,Barbour County,31.9,-85.4,7\n"+
		"01007,Bibb County,33,-87.1,5\n"+
		"01009,Blount County,34,-86.6,5\n"+
		"01011,Bullock County,32.1,-85.7,\n", string(data))
}
