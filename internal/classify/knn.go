package classify

import (
	"gonum.org/v1/gonum/floats"
)

// KNN labels a point by majority among its K nearest training samples
// (Euclidean distance). Ties go to the smallest label.
type KNN struct {
	K int

	x       [][]float64
	y       []int
	classes []int
}

// Fit stores the training samples.
func (k *KNN) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	if k.K <= 0 {
		k.K = 5
	}
	k.x, k.y = ds.X, ds.Y
	k.classes = Classes(ds.Y)
	return nil
}

// neighbors returns the indices of the nearest samples, closest first.
// Equal distances keep training order.
func (k *KNN) neighbors(x []float64) []int {
	n := min(k.K, len(k.x))
	best := make([]int, 0, n)
	dist := make([]float64, 0, n)
	for i, row := range k.x {
		d := floats.Distance(x, row, 2)
		if len(best) == n && d >= dist[n-1] {
			continue
		}
		pos := len(best)
		for pos > 0 && dist[pos-1] > d {
			pos--
		}
		if len(best) < n {
			best = append(best, 0)
			dist = append(dist, 0)
		}
		copy(best[pos+1:], best[pos:len(best)-1])
		copy(dist[pos+1:], dist[pos:len(dist)-1])
		best[pos], dist[pos] = i, d
	}
	return best
}

// Predict returns the majority label among the K nearest samples.
func (k *KNN) Predict(x []float64) int {
	nb := k.neighbors(x)
	labels := make([]int, len(nb))
	for i, j := range nb {
		labels[i] = k.y[j]
	}
	return Vote(labels...)
}

// proba returns neighbor label shares over classes.
func (k *KNN) proba(x []float64, classes map[int]int) []float64 {
	out := make([]float64, len(classes))
	nb := k.neighbors(x)
	for _, j := range nb {
		out[classes[k.y[j]]]++
	}
	floats.Scale(1/float64(len(nb)), out)
	return out
}

// Bagging averages the class shares of KNN models fit on bootstrap
// samples.
type Bagging struct {
	Estimators int
	Neighbors  int
	Seed       uint64

	models  []*KNN
	classes []int
	index   map[int]int
}

// Fit trains the estimators.
func (b *Bagging) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	n := b.Estimators
	if n <= 0 {
		n = 10
	}

	rng := newRand(b.Seed)
	b.classes = Classes(ds.Y)
	b.index = classIndex(b.classes)
	b.models = make([]*KNN, n)
	for i := range b.models {
		m := &KNN{K: b.Neighbors}
		if err := m.Fit(ds.Subset(bootstrap(ds.Len(), rng))); err != nil {
			return err
		}
		b.models[i] = m
	}
	return nil
}

// Predict returns the class with the highest mean share.
func (b *Bagging) Predict(x []float64) int {
	sum := make([]float64, len(b.classes))
	for _, m := range b.models {
		floats.Add(sum, m.proba(x, b.index))
	}
	return b.classes[argmax(sum)]
}
