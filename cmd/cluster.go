package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/community"
	"github.com/sells-group/labormarket/internal/laborgraph"
	"github.com/sells-group/labormarket/internal/store"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Detect labor-market communities in a saved graph",
	Long: `Runs Louvain community detection on a GraphML file written by graph and
writes the nodes table (Id,Label,fips,Modularity Class) that fill and model
read. The table has the same shape as a Gephi node export.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		graphPath := dataPath(cmd, "graphml", cfg.Data.GraphName+".graphml")
		outPath := dataPath(cmd, "out", cfg.Data.Nodes)
		opts := clusterOptions(cmd)

		params := map[string]string{
			"graphml":    graphPath,
			"out":        outPath,
			"resolution": strconv.FormatFloat(opts.Resolution, 'g', -1, 64),
			"seed":       strconv.FormatUint(opts.Seed, 10),
		}

		return track(ctx, "cluster", params, func(context.Context, store.Store, *store.Run) (map[string]float64, error) {
			return runCluster(graphPath, outPath, opts)
		})
	},
}

// clusterOptions merges config with the cluster command's flags. cmd may
// be nil when clustering runs inside another command.
func clusterOptions(cmd *cobra.Command) community.Options {
	opts := community.Options{
		Resolution: cfg.Cluster.Resolution,
		Seed:       cfg.Cluster.Seed,
		MaxLevels:  cfg.Cluster.MaxLevels,
		MaxPasses:  cfg.Cluster.MaxPasses,
	}
	if cmd != nil {
		opts.Resolution = float64Flag(cmd, "resolution", opts.Resolution)
		opts.Seed = uint64Flag(cmd, "seed", opts.Seed)
	}
	return opts
}

func runCluster(graphPath, outPath string, opts community.Options) (map[string]float64, error) {
	g, err := laborgraph.ReadGraphMLFile(graphPath)
	if err != nil {
		return nil, eris.Wrap(err, "cluster")
	}

	res := community.Detect(g, opts)
	q := community.Modularity(g, res.Classes, opts.Resolution)

	if err := community.WriteNodes(outPath, g, res.Classes); err != nil {
		return nil, eris.Wrap(err, "cluster")
	}

	zap.L().Info("detected communities",
		zap.String("command", "cluster"),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("levels", res.Levels),
		zap.Float64("modularity", res.Modularity),
		zap.Float64("modularity_check", q),
		zap.String("out", outPath),
	)
	fmt.Printf("%d communities, modularity %.4f\n", res.Communities, res.Modularity)

	return map[string]float64{
		"nodes":       float64(len(g.Nodes)),
		"communities": float64(res.Communities),
		"modularity":  res.Modularity,
		"levels":      float64(res.Levels),
	}, nil
}

func init() {
	clusterCmd.Flags().String("graphml", "", "GraphML file written by graph (default <graph name>.graphml)")
	clusterCmd.Flags().String("out", "", "nodes table to write (default from config)")
	clusterCmd.Flags().Float64("resolution", 1.0, "modularity resolution")
	clusterCmd.Flags().Uint64("seed", 42, "node order seed")
	rootCmd.AddCommand(clusterCmd)
}
