package community

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/laborgraph"
	"github.com/sells-group/labormarket/internal/table"
)

// Node table column names, as Gephi exports them.
const (
	ColID    = "Id"
	ColLabel = "Label"
	ColFIPS  = "fips"
	ColClass = "Modularity Class"
)

// WriteNodes writes the Id,Label,fips,Modularity Class table. Nodes
// without a class are written with an empty class cell.
func WriteNodes(path string, g *laborgraph.Graph, classes map[int64]int) error {
	rows := make([][]string, len(g.Nodes))
	for i, n := range g.Nodes {
		class := ""
		if c, ok := classes[n.ID]; ok {
			class = strconv.Itoa(c)
		}
		rows[i] = []string{strconv.FormatInt(n.ID, 10), n.Label, n.FIPS, class}
	}
	if err := table.WriteCSV(path, []string{ColID, ColLabel, ColFIPS, ColClass}, rows); err != nil {
		return eris.Wrap(err, "community: write nodes")
	}
	return nil
}

// ReadNodes reads a node table (ours or a Gephi export) into a
// fips → modularity class map. Rows with an empty fips or class are
// skipped; the first row wins for a repeated fips.
func ReadNodes(ctx context.Context, path string) (map[string]int, error) {
	tbl, err := table.Read(ctx, path, table.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "community: read nodes")
	}
	fc, err := tbl.FirstCol(ColFIPS, "FIPS")
	if err != nil {
		return nil, eris.Wrap(err, "community: read nodes")
	}
	cc, err := tbl.FirstCol(ColClass, laborgraph.AttrModularityClass)
	if err != nil {
		return nil, eris.Wrap(err, "community: read nodes")
	}

	classes := make(map[string]int, tbl.Len())
	skipped := 0
	for r := 0; r < tbl.Len(); r++ {
		code := fips.Pad(tbl.Value(r, fc))
		v, ok, err := tbl.Number(r, cc)
		if err != nil {
			return nil, eris.Wrap(err, "community: read nodes")
		}
		if code == "" || !ok {
			skipped++
			continue
		}
		if _, dup := classes[code]; dup {
			continue
		}
		classes[code] = int(v)
	}

	zap.L().Debug("community: read nodes",
		zap.String("component", "community"),
		zap.String("path", path),
		zap.Int("classified", len(classes)),
		zap.Int("skipped", skipped),
	)
	return classes, nil
}
