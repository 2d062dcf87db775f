package community

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	gcommunity "gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/sells-group/labormarket/internal/laborgraph"
)

// Undirected returns the symmetrized graph as a gonum weighted undirected
// graph. Self loops are left out.
func Undirected(g *laborgraph.Graph) *simple.WeightedUndirectedGraph {
	ug := simple.NewWeightedUndirectedGraph(0, 0)
	for _, n := range g.Nodes {
		ug.AddNode(simple.Node(n.ID))
	}
	for _, e := range g.Edges {
		if e.Source == e.Target || e.Weight <= 0 {
			continue
		}
		w := e.Weight
		if existing, ok := ug.Weight(e.Source, e.Target); ok {
			w += existing
		}
		ug.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(e.Source), T: simple.Node(e.Target), W: w})
	}
	return ug
}

// Modularity scores a class assignment on the symmetrized graph with
// gonum's community.Q. Nodes without a class are ignored.
func Modularity(g *laborgraph.Graph, classes map[int64]int, resolution float64) float64 {
	groups := make(map[int][]graph.Node)
	for _, n := range g.Nodes {
		c, ok := classes[n.ID]
		if !ok {
			continue
		}
		groups[c] = append(groups[c], simple.Node(n.ID))
	}

	keys := make([]int, 0, len(groups))
	for c := range groups {
		keys = append(keys, c)
	}
	sort.Ints(keys)

	communities := make([][]graph.Node, len(keys))
	for i, c := range keys {
		communities[i] = groups[c]
	}
	return gcommunity.Q(Undirected(g), communities, resolution)
}
