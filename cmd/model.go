package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/census"
	"github.com/sells-group/labormarket/internal/classify"
	"github.com/sells-group/labormarket/internal/community"
	"github.com/sells-group/labormarket/internal/regions"
	"github.com/sells-group/labormarket/internal/store"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Train the regional classifier and name each region",
	Long: `Trains five classifiers (bagged KNN, random forest, linear SVM, extra
trees, decision tree) on county internal points labeled with modularity
classes, labels every county by majority vote and names each region after
its most populous incorporated place.

Counties whose region names no place are dropped from the output.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p := modelPaths{
			Counties: dataPath(cmd, "counties", cfg.Data.CensusCounty),
			Places:   dataPath(cmd, "places", cfg.Data.CensusPlaces),
			Nodes:    dataPath(cmd, "nodes", cfg.Data.Nodes),
			Out:      dataPath(cmd, "out", cfg.Data.Regionalized),
			Report:   stringFlag(cmd, "report", ""),
		}
		params := map[string]string{
			"counties": p.Counties,
			"places":   p.Places,
			"nodes":    p.Nodes,
			"out":      p.Out,
			"report":   p.Report,
		}

		return track(ctx, "model", params, func(ctx context.Context, st store.Store, run *store.Run) (map[string]float64, error) {
			return runModel(ctx, st, run, p)
		})
	},
}

type modelPaths struct {
	Counties string
	Places   string
	Nodes    string
	Out      string
	Report   string
}

func runModel(ctx context.Context, st store.Store, run *store.Run, p modelPaths) (map[string]float64, error) {
	log := zap.L().With(zap.String("command", "model"))

	counties, err := census.ReadCounties(ctx, p.Counties)
	if err != nil {
		return nil, eris.Wrap(err, "model")
	}
	places, err := census.ReadPlaces(ctx, p.Places)
	if err != nil {
		return nil, eris.Wrap(err, "model")
	}
	classes, err := community.ReadNodes(ctx, p.Nodes)
	if err != nil {
		return nil, eris.Wrap(err, "model")
	}

	res, err := regions.Model(ctx, regions.ModelInput{
		Counties: counties,
		Places:   places,
		Classes:  classes,
		Ensemble: classify.Options{
			Seed:       cfg.Model.Seed,
			Estimators: cfg.Model.Estimators,
			Neighbors:  cfg.Model.Neighbors,
		},
		TestFraction: cfg.Model.TestFraction,
		SplitSeed:    cfg.Model.SplitSeed,
	})
	if err != nil {
		return nil, eris.Wrap(err, "model")
	}

	if err := regions.WriteRegions(p.Out, res); err != nil {
		return nil, eris.Wrap(err, "model")
	}
	if p.Report != "" {
		if err := regions.WriteReport(p.Report, regions.NewReport(res, time.Now())); err != nil {
			return nil, eris.Wrap(err, "model")
		}
	}

	for _, s := range res.Scores {
		fmt.Printf("%-4s %.4f\n", s.Model, s.Score)
	}
	fmt.Printf("vote %.4f\n", res.EnsembleScore)

	if err := st.SaveModelScores(ctx, run.ID, res.Scores); err != nil {
		log.Warn("save model scores", zap.Error(err))
	}
	if err := st.SaveCountyRegions(ctx, run.ID, countyRegions(res)); err != nil {
		log.Warn("save county regions", zap.Error(err))
	}

	log.Info("wrote regions",
		zap.String("out", p.Out),
		zap.Int("counties", len(res.Rows)),
		zap.Int("regions", len(res.Regions)),
	)

	return map[string]float64{
		"training":        float64(res.Training),
		"test":            float64(res.Test),
		"ensemble_score":  res.EnsembleScore,
		"counties":        float64(len(res.Rows)),
		"regions":         float64(len(res.Regions)),
		"dropped_unnamed": float64(res.DroppedUnnamed),
	}, nil
}

func countyRegions(res *regions.ModelResult) []store.CountyRegion {
	out := make([]store.CountyRegion, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = store.CountyRegion{
			FIPS:      r.ID,
			County:    r.Name,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Class:     r.Pred,
			AreaName:  r.AreaName,
		}
	}
	return out
}

func init() {
	modelCmd.Flags().String("counties", "", "Census county geography file (default from config)")
	modelCmd.Flags().String("places", "", "Census incorporated places file (default from config)")
	modelCmd.Flags().String("nodes", "", "nodes table with modularity classes (default from config)")
	modelCmd.Flags().String("out", "", "regionalized county table to write (default from config)")
	modelCmd.Flags().String("report", "", "optional YAML score report")
	rootCmd.AddCommand(modelCmd)
}
