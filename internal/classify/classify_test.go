package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns three well separated clusters on a lat/lon-like grid.
func blobs() Dataset {
	centers := []struct {
		lat, lon float64
		label    int
	}{
		{lat: 40, lon: -120, label: 0},
		{lat: 30, lon: -90, label: 3},
		{lat: 45, lon: -75, label: 7},
	}
	var ds Dataset
	for _, c := range centers {
		for i := 0; i < 20; i++ {
			dLat := float64(i%5)*0.4 - 0.8
			dLon := float64(i/5)*0.4 - 0.6
			ds.X = append(ds.X, []float64{c.lat + dLat, c.lon + dLon})
			ds.Y = append(ds.Y, c.label)
		}
	}
	return ds
}

func TestVote(t *testing.T) {
	assert.Equal(t, 3, Vote(3, 1, 3, 2, 3))
	assert.Equal(t, 1, Vote(4, 1, 4, 1, 9), "tie goes to the smallest label")
	assert.Equal(t, 2, Vote(5, 2))
	assert.Equal(t, -1, Vote())
}

func TestClasses(t *testing.T) {
	assert.Equal(t, []int{0, 3, 7}, Classes([]int{7, 0, 3, 3, 7}))
}

func TestTrainTestSplit(t *testing.T) {
	ds := blobs()

	train, test, err := TrainTestSplit(ds, 0.25, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, test.Len())
	assert.Equal(t, 45, train.Len())

	again, _, err := TrainTestSplit(ds, 0.25, 0)
	require.NoError(t, err)
	assert.Equal(t, train, again, "same seed, same split")

	other, _, err := TrainTestSplit(ds, 0.25, 1)
	require.NoError(t, err)
	assert.NotEqual(t, train.X, other.X)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	_, _, err := TrainTestSplit(blobs(), 0, 0)
	require.Error(t, err)
	_, _, err = TrainTestSplit(blobs(), 1, 0)
	require.Error(t, err)
	_, _, err = TrainTestSplit(Dataset{X: [][]float64{{1}}, Y: []int{1}}, 0.25, 0)
	require.Error(t, err)
}

func TestDataset_Validate(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset
		want string
	}{
		{name: "empty", ds: Dataset{}, want: "empty training set"},
		{name: "mismatch", ds: Dataset{X: [][]float64{{1}}, Y: []int{1, 2}}, want: "labels"},
		{name: "no features", ds: Dataset{X: [][]float64{{}}, Y: []int{1}}, want: "no features"},
		{name: "ragged", ds: Dataset{X: [][]float64{{1, 2}, {1}}, Y: []int{1, 2}}, want: "sample 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScore(t *testing.T) {
	ds := Dataset{X: [][]float64{{0}, {1}, {2}, {3}}, Y: []int{0, 0, 1, 1}}
	tree := &DecisionTree{}
	require.NoError(t, tree.Fit(ds))
	assert.InDelta(t, 1.0, Score(tree, ds), 1e-9)
	assert.Zero(t, Score(tree, Dataset{}))
}

func TestSubset(t *testing.T) {
	ds := Dataset{X: [][]float64{{0}, {1}, {2}}, Y: []int{5, 6, 7}}
	sub := ds.Subset([]int{2, 2, 0})
	assert.Equal(t, []int{7, 7, 5}, sub.Y)
	assert.Equal(t, [][]float64{{2}, {2}, {0}}, sub.X)
}
