package regions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/labormarket/internal/census"
	"github.com/sells-group/labormarket/internal/classify"
)

// grid places 16 counties around a center and returns them with classes.
func grid(prefix string, lat, lon float64, class int, classes map[string]int) []census.Geography {
	var out []census.Geography
	for i := 0; i < 16; i++ {
		id := prefix + string(rune('a'+i))
		out = append(out, census.Geography{
			ID:        id,
			Name:      "County " + id,
			Latitude:  lat + float64(i%4)*0.5,
			Longitude: lon + float64(i/4)*0.5,
		})
		classes[id] = class
	}
	return out
}

func modelInput() ModelInput {
	classes := make(map[string]int)
	var counties []census.Geography
	counties = append(counties, grid("w", 40, -120, 0, classes)...)
	counties = append(counties, grid("s", 30, -90, 1, classes)...)
	counties = append(counties, grid("e", 42, -74, 2, classes)...)
	// Unclassified county in the west still gets predicted.
	counties = append(counties, census.Geography{ID: "wz", Name: "County wz", Latitude: 40.7, Longitude: -119.2})

	places := []census.Geography{
		{ID: "p1", Name: "Reno city, Nevada", Latitude: 40.5, Longitude: -119.5, Population: 225221, HasPopulation: true},
		{ID: "p2", Name: "Sparks city, Nevada", Latitude: 40.6, Longitude: -119.4, Population: 90264, HasPopulation: true},
		{ID: "p3", Name: "Anytown city, Alabama", Latitude: 30.5, Longitude: -89.5, Population: 1000, HasPopulation: true},
		{ID: "p4", Name: "Bigtown city, Alabama", Latitude: 30.6, Longitude: -89.6, Population: 1000, HasPopulation: true},
		{ID: "p5", Name: "Nocount city, New York", Latitude: 42.5, Longitude: -73.5},
	}

	return ModelInput{
		Counties:     counties,
		Places:       places,
		Classes:      classes,
		Ensemble:     classify.DefaultOptions(),
		TestFraction: 0.25,
		SplitSeed:    0,
	}
}

func TestModel(t *testing.T) {
	res, err := Model(context.Background(), modelInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"bag", "rf", "svm", "et", "dt"}, res.Members)
	assert.Equal(t, 36, res.Training)
	assert.Equal(t, 12, res.Test)
	require.Len(t, res.Scores, 5)
	assert.GreaterOrEqual(t, res.EnsembleScore, 0.9)

	// The east region's only place has no population, so its counties drop.
	assert.Equal(t, 16, res.DroppedUnnamed)
	require.Len(t, res.Rows, 33)

	byID := make(map[string]RegionRow)
	for _, r := range res.Rows {
		byID[r.ID] = r
	}
	assert.Equal(t, "Reno, Nevada", byID["wa"].AreaName)
	assert.Equal(t, 0, byID["wz"].Pred)
	assert.Len(t, byID["wz"].Labels, 5)
	assert.Equal(t, "Anytown, Alabama", byID["sa"].AreaName, "population tie goes to the first name")

	require.Len(t, res.Regions, 2)
	assert.Equal(t, Region{Class: 0, Name: "Reno, Nevada", Anchor: "Reno city, Nevada", Pop: 225221, Counties: 17}, res.Regions[0])
	assert.Equal(t, 16, res.Regions[1].Counties)
}

func TestModel_NoClasses(t *testing.T) {
	in := modelInput()
	in.Classes = map[string]int{}
	_, err := Model(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no county has a modularity class")
}

func TestModel_BadSplit(t *testing.T) {
	in := modelInput()
	in.TestFraction = 1.5
	_, err := Model(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regions: split training data")
}

func TestWriteRegionsAndReport(t *testing.T) {
	res := &ModelResult{
		Members: []string{"bag", "rf", "svm", "et", "dt"},
		Scores:  []classify.ModelScore{{Model: "bag", Score: 0.9}},
		Rows: []RegionRow{{
			Geography: census.Geography{ID: "01001", Name: "Autauga County, Alabama", Latitude: 32.5363818, Longitude: -86.6444901},
			Labels:    []int{3, 3, 4, 3, 3},
			Pred:      3,
			AreaName:  "Montgomery, Alabama",
		}},
		Regions: []Region{{Class: 3, Name: "Montgomery, Alabama", Counties: 1}},
	}
	dir := t.TempDir()

	path := filepath.Join(dir, "Regionalized U.S. Counties.csv")
	require.NoError(t, WriteRegions(path, res))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "fips,County,Latitude,Longitude,bag,rf,svm,et,dt,pred,Area Name", lines[0])
	assert.Equal(t, `01001,"Autauga County, Alabama",32.5363818,-86.6444901,3,3,4,3,3,3,"Montgomery, Alabama"`, lines[1])

	reportPath := filepath.Join(dir, "report.yaml")
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteReport(reportPath, NewReport(res, now)))

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var got Report
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, now, got.GeneratedAt)
	assert.Equal(t, 1, got.Counties)
	assert.Equal(t, "Montgomery, Alabama", got.Regions[0].Name)
	assert.InDelta(t, 0.9, got.Scores[0].Score, 1e-9)
}
