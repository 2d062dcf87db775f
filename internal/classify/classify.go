// Package classify implements the supervised learners behind the regional
// model: CART trees, random forests, extra trees, a one-vs-one linear SVM,
// k-nearest neighbors and bagged KNN, combined by majority vote.
package classify

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
)

// Dataset is a set of feature rows with integer labels.
type Dataset struct {
	X [][]float64
	Y []int
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Y) }

// Subset returns the samples at idx, in order. Indices may repeat.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{X: make([][]float64, len(idx)), Y: make([]int, len(idx))}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

func (d Dataset) validate() error {
	if d.Len() == 0 {
		return eris.New("classify: empty training set")
	}
	if len(d.X) != len(d.Y) {
		return eris.Errorf("classify: %d feature rows but %d labels", len(d.X), len(d.Y))
	}
	width := len(d.X[0])
	if width == 0 {
		return eris.New("classify: samples have no features")
	}
	for i, row := range d.X {
		if len(row) != width {
			return eris.Errorf("classify: sample %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

// Classifier is a trainable label predictor.
type Classifier interface {
	Fit(ds Dataset) error
	Predict(x []float64) int
}

// TrainTestSplit shuffles the samples and holds out ceil(testFraction*n)
// of them for testing.
func TrainTestSplit(ds Dataset, testFraction float64, seed uint64) (train, test Dataset, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return Dataset{}, Dataset{}, eris.Errorf("classify: test fraction %v not in (0, 1)", testFraction)
	}
	n := ds.Len()
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest == 0 || nTest >= n {
		return Dataset{}, Dataset{}, eris.Errorf("classify: cannot split %d samples with test fraction %v", n, testFraction)
	}

	perm := newRand(seed).Perm(n)
	return ds.Subset(perm[nTest:]), ds.Subset(perm[:nTest]), nil
}

// Score returns the fraction of samples c labels correctly.
func Score(c Classifier, ds Dataset) float64 {
	if ds.Len() == 0 {
		return 0
	}
	correct := 0
	for i, x := range ds.X {
		if c.Predict(x) == ds.Y[i] {
			correct++
		}
	}
	return float64(correct) / float64(ds.Len())
}

// Vote returns the most common label; ties go to the smallest label.
// It returns -1 for no labels.
func Vote(labels ...int) int {
	counts := make(map[int]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	best, bestCount := -1, 0
	for l, c := range counts {
		if c > bestCount || (c == bestCount && l < best) {
			best, bestCount = l, c
		}
	}
	return best
}

// Classes returns the distinct labels in ascending order.
func Classes(y []int) []int {
	seen := make(map[int]struct{}, 16)
	for _, l := range y {
		seen[l] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func classIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// argmax returns the first index of the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// bootstrap draws n sample indices with replacement.
func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

// sqrtFeatures is the per-split feature budget for randomized trees.
func sqrtFeatures(p int) int {
	return max(1, int(math.Sqrt(float64(p))))
}
