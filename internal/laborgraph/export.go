package laborgraph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labormarket/internal/table"
)

// WriteEdgeList writes one "source target weight" line per edge.
func WriteEdgeList(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	for _, e := range g.Edges {
		if _, err := fmt.Fprintf(bw, "%d %d %s\n", e.Source, e.Target, table.FormatFloat(e.Weight)); err != nil {
			return eris.Wrap(err, "edgelist: write")
		}
	}
	return eris.Wrap(bw.Flush(), "edgelist: flush")
}

// WriteGephiCSV writes the node and edge tables Gephi's spreadsheet
// importer expects.
func WriteGephiCSV(nodesPath, edgesPath string, g *Graph) error {
	nodeRows := make([][]string, len(g.Nodes))
	for i, n := range g.Nodes {
		nodeRows[i] = []string{strconv.FormatInt(n.ID, 10), n.Label, n.FIPS}
	}
	if err := table.WriteCSV(nodesPath, []string{"Id", "Label", "fips"}, nodeRows); err != nil {
		return eris.Wrap(err, "gephi: write nodes")
	}

	edgeRows := make([][]string, len(g.Edges))
	for i, e := range g.Edges {
		edgeRows[i] = []string{
			strconv.FormatInt(e.Source, 10),
			strconv.FormatInt(e.Target, 10),
			table.FormatFloat(e.Weight),
			"Directed",
		}
	}
	if err := table.WriteCSV(edgesPath, []string{"Source", "Target", "Weight", "Type"}, edgeRows); err != nil {
		return eris.Wrap(err, "gephi: write edges")
	}
	return nil
}

// Files names the outputs of WriteAll.
type Files struct {
	GraphML  string
	EdgeList string
	Nodes    string
	Edges    string
}

// OutputFiles derives output paths from the graph name.
func OutputFiles(dir, name string) Files {
	return Files{
		GraphML:  filepath.Join(dir, name+".graphml"),
		EdgeList: filepath.Join(dir, name+".edgelist"),
		Nodes:    filepath.Join(dir, name+" [Gephi Nodes].csv"),
		Edges:    filepath.Join(dir, name+" [Gephi Edges].csv"),
	}
}

// WriteAll writes GraphML, edge list and Gephi tables.
func WriteAll(files Files, g *Graph) error {
	if err := writeFile(files.GraphML, func(w io.Writer) error { return WriteGraphML(w, g) }); err != nil {
		return err
	}
	if err := writeFile(files.EdgeList, func(w io.Writer) error { return WriteEdgeList(w, g) }); err != nil {
		return err
	}
	return WriteGephiCSV(files.Nodes, files.Edges, g)
}

// ReadGraphMLFile opens and reads a GraphML file.
func ReadGraphMLFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "graphml: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadGraphML(bufio.NewReader(f))
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "laborgraph: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "laborgraph: create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "laborgraph: close %s", path)
}
