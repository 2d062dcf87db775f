package classify

import (
	"math"
	"math/rand/v2"
	"sort"
)

// DecisionTree is a CART classifier using Gini impurity.
type DecisionTree struct {
	// MaxDepth limits depth; 0 grows until leaves are pure.
	MaxDepth int
	// MinSamplesSplit is the smallest node that may be split (at least 2).
	MinSamplesSplit int
	// MaxFeatures is the number of features tried per split; 0 tries all.
	// More are tried when none of the first MaxFeatures splits the node.
	MaxFeatures int
	// RandomSplits draws one uniform threshold per feature instead of
	// searching all midpoints.
	RandomSplits bool
	Seed         uint64

	classes []int
	root    *treeNode
	rng     *rand.Rand
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right *treeNode
	dist        []float64
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

// Fit grows the tree.
func (t *DecisionTree) Fit(ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	t.fit(ds, Classes(ds.Y))
	return nil
}

// fit grows the tree over a fixed class list, so forest members trained on
// bootstrap samples agree on class positions.
func (t *DecisionTree) fit(ds Dataset, classes []int) {
	t.classes = classes
	t.rng = newRand(t.Seed)

	index := classIndex(classes)
	y := make([]int, ds.Len())
	for i, l := range ds.Y {
		y[i] = index[l]
	}
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	t.root = t.build(ds.X, y, idx, 0)
}

func (t *DecisionTree) build(x [][]float64, y []int, idx []int, depth int) *treeNode {
	counts := make([]float64, len(t.classes))
	for _, i := range idx {
		counts[y[i]]++
	}
	leaf := &treeNode{feature: -1, dist: normalize(counts)}

	if len(idx) < max(2, t.MinSamplesSplit) || pure(counts) || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return leaf
	}

	s, ok := t.bestSplit(x, y, idx)
	if !ok {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	return &treeNode{
		feature:   s.feature,
		threshold: s.threshold,
		left:      t.build(x, y, left, depth+1),
		right:     t.build(x, y, right, depth+1),
	}
}

func (t *DecisionTree) bestSplit(x [][]float64, y []int, idx []int) (split, bool) {
	nFeatures := len(x[idx[0]])
	budget := t.MaxFeatures
	if budget <= 0 || budget > nFeatures {
		budget = nFeatures
	}

	best := split{impurity: math.Inf(1)}
	found := false
	for tried, f := range t.rng.Perm(nFeatures) {
		if tried >= budget && found {
			break
		}
		var s split
		var ok bool
		if t.RandomSplits {
			s, ok = t.randomThreshold(x, y, idx, f)
		} else {
			s, ok = t.bestThreshold(x, y, idx, f)
		}
		if ok && s.impurity < best.impurity {
			best, found = s, true
		}
	}
	return best, found
}

// bestThreshold scans midpoints between consecutive distinct values.
func (t *DecisionTree) bestThreshold(x [][]float64, y []int, idx []int, f int) (split, bool) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

	n := float64(len(sorted))
	total := make([]float64, len(t.classes))
	for _, i := range sorted {
		total[y[i]]++
	}
	left := make([]float64, len(t.classes))
	right := append([]float64(nil), total...)

	best := split{feature: f, impurity: math.Inf(1)}
	found := false
	for p := 0; p < len(sorted)-1; p++ {
		c := y[sorted[p]]
		left[c]++
		right[c]--

		v, next := x[sorted[p]][f], x[sorted[p+1]][f]
		if v >= next {
			continue
		}
		nl := float64(p + 1)
		imp := (nl*gini(left, nl) + (n-nl)*gini(right, n-nl)) / n
		if imp < best.impurity {
			thr := v + (next-v)/2
			if thr >= next {
				thr = v
			}
			best.threshold, best.impurity, found = thr, imp, true
		}
	}
	return best, found
}

// randomThreshold draws a threshold uniformly between the node's min and
// max for feature f.
func (t *DecisionTree) randomThreshold(x [][]float64, y []int, idx []int, f int) (split, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		lo = min(lo, x[i][f])
		hi = max(hi, x[i][f])
	}
	if lo >= hi {
		return split{}, false
	}
	thr := lo + t.rng.Float64()*(hi-lo)

	left := make([]float64, len(t.classes))
	right := make([]float64, len(t.classes))
	var nl, nr float64
	for _, i := range idx {
		if x[i][f] <= thr {
			left[y[i]]++
			nl++
		} else {
			right[y[i]]++
			nr++
		}
	}
	if nl == 0 || nr == 0 {
		return split{}, false
	}
	n := nl + nr
	return split{
		feature:   f,
		threshold: thr,
		impurity:  (nl*gini(left, nl) + nr*gini(right, nr)) / n,
	}, true
}

// Predict returns the majority class of x's leaf.
func (t *DecisionTree) Predict(x []float64) int {
	return t.classes[argmax(t.proba(x))]
}

// proba returns the class distribution of x's leaf.
func (t *DecisionTree) proba(x []float64) []float64 {
	n := t.root
	for n.feature >= 0 {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.dist
}

// Depth returns the depth of the grown tree.
func (t *DecisionTree) Depth() int {
	var walk func(n *treeNode) int
	walk = func(n *treeNode) int {
		if n == nil || n.feature < 0 {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(t.root)
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func pure(counts []float64) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func normalize(counts []float64) []float64 {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}
