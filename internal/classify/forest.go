package classify

import (
	"gonum.org/v1/gonum/floats"
)

// forest averages the leaf distributions of its trees.
type forest struct {
	trees   []*DecisionTree
	classes []int
}

func (f *forest) proba(x []float64) []float64 {
	sum := make([]float64, len(f.classes))
	for _, t := range f.trees {
		floats.Add(sum, t.proba(x))
	}
	floats.Scale(1/float64(len(f.trees)), sum)
	return sum
}

// Predict returns the class with the highest mean probability; ties go to
// the smallest label.
func (f *forest) Predict(x []float64) int {
	return f.classes[argmax(f.proba(x))]
}

// RandomForest trains trees on bootstrap samples, trying √p features per
// split.
type RandomForest struct {
	Estimators int
	Seed       uint64
	forest
}

// Fit grows the forest.
func (r *RandomForest) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	n := r.Estimators
	if n <= 0 {
		n = 10
	}

	rng := newRand(r.Seed)
	r.classes = Classes(ds.Y)
	r.trees = make([]*DecisionTree, n)
	for i := range r.trees {
		sample := ds.Subset(bootstrap(ds.Len(), rng))
		t := &DecisionTree{MaxFeatures: sqrtFeatures(len(ds.X[0])), Seed: rng.Uint64()}
		t.fit(sample, r.classes)
		r.trees[i] = t
	}
	return nil
}

// ExtraTrees trains extremely randomized trees on the full sample: one
// random threshold per candidate feature, √p features per split.
type ExtraTrees struct {
	Estimators int
	Seed       uint64
	forest
}

// Fit grows the forest.
func (e *ExtraTrees) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	n := e.Estimators
	if n <= 0 {
		n = 10
	}

	rng := newRand(e.Seed)
	e.classes = Classes(ds.Y)
	e.trees = make([]*DecisionTree, n)
	for i := range e.trees {
		t := &DecisionTree{
			MaxFeatures:  sqrtFeatures(len(ds.X[0])),
			RandomSplits: true,
			Seed:         rng.Uint64(),
		}
		t.fit(ds, e.classes)
		e.trees[i] = t
	}
	return nil
}
