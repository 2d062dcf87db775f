package classify

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LinearSVM is a one-vs-one linear support vector classifier trained with
// the Pegasos subgradient method on standardized features.
type LinearSVM struct {
	// C is the inverse regularization strength.
	C float64
	// Epochs is the number of passes over each pair's samples.
	Epochs int
	Seed   uint64

	mean, scale []float64
	classes     []int
	pairs       []pairModel
}

// pairModel separates classes[a] (positive side) from classes[b]. The last
// weight is the bias.
type pairModel struct {
	a, b int
	w    []float64
}

// Fit trains one binary model per pair of classes.
func (s *LinearSVM) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	if s.C <= 0 {
		s.C = 1
	}
	if s.Epochs <= 0 {
		s.Epochs = 50
	}

	p := len(ds.X[0])
	s.mean = make([]float64, p)
	s.scale = make([]float64, p)
	col := make([]float64, ds.Len())
	for f := 0; f < p; f++ {
		for i, row := range ds.X {
			col[i] = row[f]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.mean[f], s.scale[f] = mean, std
	}

	xs := make([][]float64, ds.Len())
	for i, row := range ds.X {
		xs[i] = s.augment(row)
	}

	s.classes = Classes(ds.Y)
	index := classIndex(s.classes)
	byClass := make([][]int, len(s.classes))
	for i, l := range ds.Y {
		c := index[l]
		byClass[c] = append(byClass[c], i)
	}

	rng := newRand(s.Seed)
	s.pairs = s.pairs[:0]
	for a := 0; a < len(s.classes); a++ {
		for b := a + 1; b < len(s.classes); b++ {
			var idx []int
			var sign []float64
			for _, i := range byClass[a] {
				idx, sign = append(idx, i), append(sign, 1)
			}
			for _, i := range byClass[b] {
				idx, sign = append(idx, i), append(sign, -1)
			}

			n := len(idx)
			lambda := 1 / (s.C * float64(n))
			w := make([]float64, p+1)
			steps := s.Epochs * n
			for t := 1; t <= steps; t++ {
				k := rng.IntN(n)
				x := xs[idx[k]]
				eta := 1 / (lambda * float64(t))
				margin := sign[k] * floats.Dot(w, x)
				floats.Scale(1-eta*lambda, w)
				if margin < 1 {
					floats.AddScaled(w, eta*sign[k], x)
				}
			}
			s.pairs = append(s.pairs, pairModel{a: a, b: b, w: w})
		}
	}
	return nil
}

// augment standardizes x and appends the bias input.
func (s *LinearSVM) augment(x []float64) []float64 {
	out := make([]float64, len(x)+1)
	for f, v := range x {
		out[f] = (v - s.mean[f]) / s.scale[f]
	}
	out[len(x)] = 1
	return out
}

// Predict returns the class winning the most pairwise contests; ties go
// to the smallest label.
func (s *LinearSVM) Predict(x []float64) int {
	if len(s.classes) == 1 {
		return s.classes[0]
	}
	ax := s.augment(x)
	votes := make([]float64, len(s.classes))
	for _, m := range s.pairs {
		if floats.Dot(m.w, ax) >= 0 {
			votes[m.a]++
		} else {
			votes[m.b]++
		}
	}
	return s.classes[argmax(votes)]
}
