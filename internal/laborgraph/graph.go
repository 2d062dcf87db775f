// Package laborgraph builds the directed county commuting graph and writes
// it in formats Gephi and other graph tools read.
package laborgraph

import (
	"sort"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/sells-group/labormarket/internal/ctpp"
	"github.com/sells-group/labormarket/internal/fips"
)

// Node is a county in the graph.
type Node struct {
	ID    int64
	Label string
	FIPS  string
}

// Edge is a residence→workplace flow.
type Edge struct {
	Source int64
	Target int64
	Weight float64
}

// Graph is a directed weighted commuting graph. Classes and PageRank are
// optional node attributes.
type Graph struct {
	Name     string
	Nodes    []Node
	Edges    []Edge
	Classes  map[int64]int
	PageRank map[int64]float64
}

// Stats compares graph size with the raw export.
type Stats struct {
	NodesBefore int
	NodesAfter  int
	EdgesBefore int
	EdgesAfter  int
}

// NodesPercent is the share of raw counties kept in the graph.
func (s Stats) NodesPercent() float64 { return percent(s.NodesAfter, s.NodesBefore) }

// EdgesPercent is edges kept against raw export rows.
func (s Stats) EdgesPercent() float64 { return percent(s.EdgesAfter, s.EdgesBefore) }

func percent(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) * 100 / float64(b)
}

// Build pivots and filters the raw records, then joins county names to the
// crosswalk. Node IDs follow first appearance in the filtered flows (all
// residences, then all workplaces) and are assigned before the crosswalk
// join, so unmatched counties leave gaps. An edge is kept only when both
// ends matched, and only counties on a kept edge become nodes.
// Stats.NodesAfter still counts every matched county.
func Build(records []ctpp.Record, opts ctpp.FilterOptions, cw *fips.Crosswalk) (*Graph, Stats) {
	stats := rawStats(records)

	flows := ctpp.Filter(ctpp.Pivot(records), opts)

	g := &Graph{}
	ids := make(map[string]int64)
	var matched []Node
	for i, county := range ctpp.Counties(flows) {
		code, ok := cw.Lookup(county)
		if !ok {
			continue
		}
		id := int64(i)
		ids[county] = id
		matched = append(matched, Node{ID: id, Label: county, FIPS: code})
	}

	linked := make(map[int64]bool)
	for _, f := range flows {
		src, ok := ids[f.Residence]
		if !ok {
			continue
		}
		dst, ok := ids[f.Workplace]
		if !ok {
			continue
		}
		g.Edges = append(g.Edges, Edge{Source: src, Target: dst, Weight: f.Estimate})
		linked[src], linked[dst] = true, true
	}

	for _, n := range matched {
		if linked[n.ID] {
			g.Nodes = append(g.Nodes, n)
		}
	}

	stats.NodesAfter = len(matched)
	stats.EdgesAfter = len(g.Edges)
	return g, stats
}

// rawStats counts distinct counties and export rows. Every pair appears
// once as an Estimate row and once as a Margin of Error row, so
// EdgesBefore is about twice the number of pairs.
func rawStats(records []ctpp.Record) Stats {
	counties := make(map[string]struct{})
	for _, rec := range records {
		counties[rec.Residence] = struct{}{}
		counties[rec.Workplace] = struct{}{}
	}
	return Stats{NodesBefore: len(counties), EdgesBefore: len(records)}
}

// Node returns the node with the given ID.
func (g *Graph) Node(id int64) (Node, bool) {
	i := sort.Search(len(g.Nodes), func(i int) bool { return g.Nodes[i].ID >= id })
	if i < len(g.Nodes) && g.Nodes[i].ID == id {
		return g.Nodes[i], true
	}
	return Node{}, false
}

// SortNodes orders nodes by ID, which Node relies on.
func (g *Graph) SortNodes() {
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
}

// Directed converts the graph to a gonum weighted directed graph. Self
// loops are dropped since gonum simple graphs reject them.
func (g *Graph) Directed() *simple.WeightedDirectedGraph {
	dg := simple.NewWeightedDirectedGraph(0, 0)
	for _, n := range g.Nodes {
		dg.AddNode(simple.Node(n.ID))
	}
	for _, e := range g.Edges {
		if e.Source == e.Target {
			continue
		}
		dg.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(e.Source), T: simple.Node(e.Target), W: e.Weight})
	}
	return dg
}

// ComputePageRank stores PageRank scores (damping 0.85) on the graph.
func (g *Graph) ComputePageRank() {
	if len(g.Nodes) == 0 {
		g.PageRank = map[int64]float64{}
		return
	}
	g.PageRank = network.PageRank(g.Directed(), 0.85, 1e-6)
}
