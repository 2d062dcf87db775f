package laborgraph

import (
	"encoding/xml"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

// GraphML attribute names.
const (
	AttrLabel           = "label"
	AttrFIPS            = "fips"
	AttrModularityClass = "modularity_class"
	AttrPageRank        = "pagerank"
	AttrWeight          = "weight"
)

type xmlGraphML struct {
	XMLName xml.Name `xml:"graphml"`
	XMLNS   string   `xml:"xmlns,attr,omitempty"`
	Keys    []xmlKey `xml:"key"`
	Graph   xmlGraph `xml:"graph"`
}

type xmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type xmlGraph struct {
	ID          string    `xml:"id,attr,omitempty"`
	EdgeDefault string    `xml:"edgedefault,attr"`
	Nodes       []xmlNode `xml:"node"`
	Edges       []xmlEdge `xml:"edge"`
}

type xmlNode struct {
	ID   string    `xml:"id,attr"`
	Data []xmlData `xml:"data"`
}

type xmlEdge struct {
	Source string    `xml:"source,attr"`
	Target string    `xml:"target,attr"`
	Data   []xmlData `xml:"data"`
}

type xmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes g as a directed GraphML document.
func WriteGraphML(w io.Writer, g *Graph) error {
	doc := xmlGraphML{
		XMLNS: graphMLNamespace,
		Keys: []xmlKey{
			{ID: "d0", For: "node", Name: AttrLabel, Type: "string"},
			{ID: "d1", For: "node", Name: AttrFIPS, Type: "string"},
		},
		Graph: xmlGraph{ID: g.Name, EdgeDefault: "directed"},
	}
	if g.Classes != nil {
		doc.Keys = append(doc.Keys, xmlKey{ID: "d2", For: "node", Name: AttrModularityClass, Type: "int"})
	}
	if g.PageRank != nil {
		doc.Keys = append(doc.Keys, xmlKey{ID: "d3", For: "node", Name: AttrPageRank, Type: "double"})
	}
	doc.Keys = append(doc.Keys, xmlKey{ID: "d4", For: "edge", Name: AttrWeight, Type: "double"})

	nodes := append([]Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	for _, n := range nodes {
		xn := xmlNode{
			ID: strconv.FormatInt(n.ID, 10),
			Data: []xmlData{
				{Key: "d0", Value: n.Label},
				{Key: "d1", Value: n.FIPS},
			},
		}
		if c, ok := g.Classes[n.ID]; ok {
			xn.Data = append(xn.Data, xmlData{Key: "d2", Value: strconv.Itoa(c)})
		}
		if pr, ok := g.PageRank[n.ID]; ok {
			xn.Data = append(xn.Data, xmlData{Key: "d3", Value: strconv.FormatFloat(pr, 'g', -1, 64)})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, xn)
	}

	for _, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, xmlEdge{
			Source: strconv.FormatInt(e.Source, 10),
			Target: strconv.FormatInt(e.Target, 10),
			Data:   []xmlData{{Key: "d4", Value: strconv.FormatFloat(e.Weight, 'f', -1, 64)}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "graphml: write header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "graphml: encode")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return eris.Wrap(err, "graphml: write trailer")
	}
	return nil
}

// ReadGraphML reads the attributes WriteGraphML produces (and the same
// attributes from networkx or Gephi output). Node IDs must be integers.
// Edges without a weight get weight 1.
func ReadGraphML(r io.Reader) (*Graph, error) {
	var doc xmlGraphML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "graphml: decode")
	}

	names := make(map[string]string, len(doc.Keys))
	for _, k := range doc.Keys {
		names[k.ID] = k.Name
	}

	g := &Graph{Name: doc.Graph.ID}
	for _, xn := range doc.Graph.Nodes {
		id, err := strconv.ParseInt(xn.ID, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "graphml: node id %q", xn.ID)
		}
		n := Node{ID: id}
		for _, d := range xn.Data {
			switch names[d.Key] {
			case AttrLabel:
				n.Label = d.Value
			case AttrFIPS:
				n.FIPS = d.Value
			case AttrModularityClass:
				c, err := strconv.Atoi(d.Value)
				if err != nil {
					return nil, eris.Wrapf(err, "graphml: node %d modularity class", id)
				}
				if g.Classes == nil {
					g.Classes = make(map[int64]int)
				}
				g.Classes[id] = c
			case AttrPageRank:
				pr, err := strconv.ParseFloat(d.Value, 64)
				if err != nil {
					return nil, eris.Wrapf(err, "graphml: node %d pagerank", id)
				}
				if g.PageRank == nil {
					g.PageRank = make(map[int64]float64)
				}
				g.PageRank[id] = pr
			}
		}
		g.Nodes = append(g.Nodes, n)
	}
	g.SortNodes()

	for _, xe := range doc.Graph.Edges {
		src, err := strconv.ParseInt(xe.Source, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "graphml: edge source %q", xe.Source)
		}
		dst, err := strconv.ParseInt(xe.Target, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "graphml: edge target %q", xe.Target)
		}
		if _, ok := g.Node(src); !ok {
			return nil, eris.Errorf("graphml: edge references unknown node %d", src)
		}
		if _, ok := g.Node(dst); !ok {
			return nil, eris.Errorf("graphml: edge references unknown node %d", dst)
		}
		e := Edge{Source: src, Target: dst, Weight: 1}
		for _, d := range xe.Data {
			if names[d.Key] == AttrWeight {
				e.Weight, err = strconv.ParseFloat(d.Value, 64)
				if err != nil {
					return nil, eris.Wrapf(err, "graphml: edge %d→%d weight", src, dst)
				}
			}
		}
		g.Edges = append(g.Edges, e)
	}

	return g, nil
}
