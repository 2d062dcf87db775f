// Package community partitions the commuting graph into labor-market
// communities with the Louvain method and reads/writes the resulting
// modularity-class tables.
package community

import (
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/laborgraph"
)

// Options configures Detect.
type Options struct {
	Resolution float64
	Seed       uint64
	MaxLevels  int
	MaxPasses  int
}

// DefaultOptions matches Gephi's modularity defaults.
func DefaultOptions() Options {
	return Options{Resolution: 1.0, Seed: 42, MaxLevels: 10, MaxPasses: 100}
}

// Result is a partition of the graph's nodes.
type Result struct {
	Classes     map[int64]int
	Modularity  float64
	Levels      int
	Communities int
}

const gainEpsilon = 1e-12

type neighbor struct {
	to int
	w  float64
}

// level is an undirected weighted graph over dense indices. loops[i] is
// the self-loop weight of i and counts twice toward its degree.
type level struct {
	adj    [][]neighbor
	loops  []float64
	degree []float64
	m2     float64
}

func (l *level) size() int { return len(l.adj) }

func newLevel(adj []map[int]float64, loops []float64) *level {
	l := &level{
		adj:    make([][]neighbor, len(adj)),
		loops:  loops,
		degree: make([]float64, len(adj)),
	}
	for i, m := range adj {
		nbrs := make([]neighbor, 0, len(m))
		for j, w := range m {
			nbrs = append(nbrs, neighbor{to: j, w: w})
			l.degree[i] += w
		}
		sort.Slice(nbrs, func(a, b int) bool { return nbrs[a].to < nbrs[b].to })
		l.adj[i] = nbrs
		l.degree[i] += 2 * loops[i]
		l.m2 += l.degree[i]
	}
	return l
}

// symmetrize folds u→v and v→u into one undirected edge of the summed
// weight. Nodes are indexed in ascending ID order.
func symmetrize(g *laborgraph.Graph) (*level, []int64) {
	ids := make([]int64, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adj := make([]map[int]float64, len(ids))
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	loops := make([]float64, len(ids))
	for _, e := range g.Edges {
		u, okU := index[e.Source]
		v, okV := index[e.Target]
		if !okU || !okV || e.Weight <= 0 {
			continue
		}
		if u == v {
			loops[u] += e.Weight
			continue
		}
		adj[u][v] += e.Weight
		adj[v][u] += e.Weight
	}
	return newLevel(adj, loops), ids
}

// Detect runs multi-level Louvain on the symmetrized graph. Node visiting
// order is shuffled with Seed, so results are reproducible.
func Detect(g *laborgraph.Graph, opts Options) Result {
	if opts.Resolution <= 0 {
		opts.Resolution = 1.0
	}
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultOptions().MaxLevels
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultOptions().MaxPasses
	}

	log := zap.L().With(zap.String("component", "community"))
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	base, ids := symmetrize(g)
	membership := make([]int, base.size())
	for i := range membership {
		membership[i] = i
	}

	cur := base
	levels := 0
	for levels < opts.MaxLevels && cur.size() > 0 {
		comm, moves := localMoving(cur, opts, rng)
		if moves == 0 {
			break
		}
		levels++

		dense, k := renumber(comm)
		for i, c := range membership {
			membership[i] = dense[c]
		}
		log.Debug("community: level complete",
			zap.Int("level", levels),
			zap.Int("moves", moves),
			zap.Int("communities", k),
		)
		cur = aggregate(cur, dense, k)
	}

	final := ordered(membership, ids)
	classes := make(map[int64]int, len(ids))
	for i, id := range ids {
		classes[id] = final[i]
	}

	count := 0
	for _, c := range final {
		if c+1 > count {
			count = c + 1
		}
	}

	return Result{
		Classes:     classes,
		Modularity:  modularity(base, final, opts.Resolution),
		Levels:      levels,
		Communities: count,
	}
}

// localMoving repeatedly moves nodes into the neighboring community with
// the best modularity gain until a pass makes no move or MaxPasses.
func localMoving(l *level, opts Options, rng *rand.Rand) ([]int, int) {
	n := l.size()
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := 0; i < n; i++ {
		comm[i] = i
		tot[i] = l.degree[i]
	}
	if l.m2 == 0 {
		return comm, 0
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	links := make(map[int]float64)
	var cands []int
	total := 0
	for pass := 0; pass < opts.MaxPasses; pass++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })

		moves := 0
		for _, i := range order {
			old := comm[i]
			ki := l.degree[i]

			clear(links)
			cands = cands[:0]
			for _, nb := range l.adj[i] {
				c := comm[nb.to]
				if _, ok := links[c]; !ok {
					cands = append(cands, c)
				}
				links[c] += nb.w
			}
			sort.Ints(cands)

			tot[old] -= ki
			best := old
			bestGain := links[old] - opts.Resolution*tot[old]*ki/l.m2
			for _, c := range cands {
				gain := links[c] - opts.Resolution*tot[c]*ki/l.m2
				if gain > bestGain+gainEpsilon {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki

			if best != old {
				comm[i] = best
				moves++
			}
		}

		total += moves
		if moves == 0 {
			break
		}
	}
	return comm, total
}

// renumber maps community labels to 0..k-1 in first-seen order.
func renumber(comm []int) ([]int, int) {
	dense := make([]int, len(comm))
	seen := make(map[int]int)
	for i, c := range comm {
		d, ok := seen[c]
		if !ok {
			d = len(seen)
			seen[c] = d
		}
		dense[i] = d
	}
	return dense, len(seen)
}

// aggregate collapses each community into a single node.
func aggregate(l *level, comm []int, k int) *level {
	adj := make([]map[int]float64, k)
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	loops := make([]float64, k)
	for i, nbrs := range l.adj {
		ci := comm[i]
		loops[ci] += l.loops[i]
		for _, nb := range nbrs {
			if nb.to < i {
				continue
			}
			cj := comm[nb.to]
			if ci == cj {
				loops[ci] += nb.w
				continue
			}
			adj[ci][cj] += nb.w
			adj[cj][ci] += nb.w
		}
	}
	return newLevel(adj, loops)
}

// ordered relabels communities by descending size, ties broken by the
// smallest member node ID.
func ordered(membership []int, ids []int64) []int {
	type group struct {
		label int
		size  int
		minID int64
	}
	groups := make(map[int]*group)
	for i, c := range membership {
		g, ok := groups[c]
		if !ok {
			g = &group{label: c, minID: ids[i]}
			groups[c] = g
		}
		g.size++
		if ids[i] < g.minID {
			g.minID = ids[i]
		}
	}

	list := make([]*group, 0, len(groups))
	for _, g := range groups {
		list = append(list, g)
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].size != list[b].size {
			return list[a].size > list[b].size
		}
		return list[a].minID < list[b].minID
	})

	relabel := make(map[int]int, len(list))
	for i, g := range list {
		relabel[g.label] = i
	}
	out := make([]int, len(membership))
	for i, c := range membership {
		out[i] = relabel[c]
	}
	return out
}

// modularity computes Newman modularity with a resolution parameter over a
// level graph, self loops included.
func modularity(l *level, comm []int, resolution float64) float64 {
	if l.m2 == 0 {
		return 0
	}
	in := make(map[int]float64)
	tot := make(map[int]float64)
	for i, nbrs := range l.adj {
		c := comm[i]
		tot[c] += l.degree[i]
		in[c] += 2 * l.loops[i]
		for _, nb := range nbrs {
			if comm[nb.to] == c {
				in[c] += nb.w
			}
		}
	}
	q := 0.0
	for c, t := range tot {
		q += in[c]/l.m2 - resolution*(t/l.m2)*(t/l.m2)
	}
	return q
}
