package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/community"
	"github.com/sells-group/labormarket/internal/ctpp"
	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/laborgraph"
	"github.com/sells-group/labormarket/internal/store"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the county commuting graph from CTPP flows",
	Long: `Reads the CTPP county-to-county commuting export and the county FIPS
crosswalk, drops unreliable and small flows, and writes the directed
labor-market graph as GraphML, a weighted edge list and Gephi node/edge
tables.

Use --cluster to also run Louvain community detection and write the
[Nodes].csv table that fill and model read.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ctppPath := dataPath(cmd, "ctpp", cfg.Data.CTPP)
		fipsPath := dataPath(cmd, "fips", cfg.Data.FIPS)
		outDir := stringFlag(cmd, "out-dir", cfg.Data.Dir)
		opts := ctpp.FilterOptions{
			MaxMOERatio:   float64Flag(cmd, "max-moe-ratio", cfg.Graph.MaxMOERatio),
			MinWorkers:    float64Flag(cmd, "min-workers", cfg.Graph.MinWorkers),
			DropSelfLinks: !boolFlag(cmd, "allow-self-links", cfg.Graph.AllowSelfLinks),
		}
		cluster, _ := cmd.Flags().GetBool("cluster")

		params := map[string]string{
			"ctpp":          ctppPath,
			"fips":          fipsPath,
			"out_dir":       outDir,
			"max_moe_ratio": strconv.FormatFloat(opts.MaxMOERatio, 'g', -1, 64),
			"min_workers":   strconv.FormatFloat(opts.MinWorkers, 'g', -1, 64),
		}

		return track(ctx, "graph", params, func(ctx context.Context, _ store.Store, _ *store.Run) (map[string]float64, error) {
			return runGraph(ctx, ctppPath, fipsPath, outDir, opts, cluster)
		})
	},
}

func runGraph(ctx context.Context, ctppPath, fipsPath, outDir string, opts ctpp.FilterOptions, cluster bool) (map[string]float64, error) {
	log := zap.L().With(zap.String("command", "graph"))

	records, err := ctpp.Load(ctx, ctppPath, ctpp.LoadOptions{Encoding: cfg.Data.CTPPEncoding})
	if err != nil {
		return nil, eris.Wrap(err, "graph")
	}
	cw, err := fips.Load(ctx, fipsPath)
	if err != nil {
		return nil, eris.Wrap(err, "graph")
	}

	g, st := laborgraph.Build(records, opts, cw)
	g.Name = cfg.Data.GraphName
	g.ComputePageRank()

	fmt.Printf("Includes %d of %d nodes (%.1f%%)\n", st.NodesAfter, st.NodesBefore, st.NodesPercent())
	fmt.Printf("Includes %d of %d edges (%.1f%%)\n", st.EdgesAfter, st.EdgesBefore, st.EdgesPercent())

	stats := map[string]float64{
		"nodes_before": float64(st.NodesBefore),
		"nodes_after":  float64(st.NodesAfter),
		"edges_before": float64(st.EdgesBefore),
		"edges_after":  float64(st.EdgesAfter),
	}

	if cluster {
		res := community.Detect(g, clusterOptions(nil))
		g.Classes = res.Classes
		nodesPath := filepath.Join(outDir, filepath.Base(cfg.Data.Nodes))
		if err := community.WriteNodes(nodesPath, g, res.Classes); err != nil {
			return nil, eris.Wrap(err, "graph")
		}
		log.Info("detected communities",
			zap.Int("communities", res.Communities),
			zap.Float64("modularity", res.Modularity),
			zap.String("nodes", nodesPath),
		)
		stats["communities"] = float64(res.Communities)
		stats["modularity"] = res.Modularity
	}

	files := laborgraph.OutputFiles(outDir, cfg.Data.GraphName)
	if err := laborgraph.WriteAll(files, g); err != nil {
		return nil, eris.Wrap(err, "graph")
	}
	log.Info("wrote graph",
		zap.String("graphml", files.GraphML),
		zap.String("edgelist", files.EdgeList),
		zap.String("gephi_nodes", files.Nodes),
		zap.String("gephi_edges", files.Edges),
	)
	return stats, nil
}

func init() {
	graphCmd.Flags().String("ctpp", "", "CTPP county-to-county flow export (default from config)")
	graphCmd.Flags().String("fips", "", "county name to FIPS crosswalk (default from config)")
	graphCmd.Flags().String("out-dir", "", "output directory (default data dir)")
	graphCmd.Flags().Float64("max-moe-ratio", 0.5, "drop flows whose margin of error exceeds this share of the estimate")
	graphCmd.Flags().Float64("min-workers", 100, "drop flows with fewer workers")
	graphCmd.Flags().Bool("allow-self-links", false, "keep flows that stay within one county")
	graphCmd.Flags().Bool("cluster", false, "run community detection and write the nodes table")
	rootCmd.AddCommand(graphCmd)
}
