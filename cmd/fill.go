package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/community"
	"github.com/sells-group/labormarket/internal/ctpp"
	"github.com/sells-group/labormarket/internal/fetcher"
	"github.com/sells-group/labormarket/internal/fips"
	"github.com/sells-group/labormarket/internal/regions"
	"github.com/sells-group/labormarket/internal/store"
	"github.com/sells-group/labormarket/internal/tiger"
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Assign a modularity class to counties the clustering missed",
	Long: `Joins TIGER/Line counties with the nodes table and gives every county
without a class the class it exchanges the most commuters with.

The county table may be a TIGER .shp or a CSV export of its attributes.
When the file does not exist the TIGER county archive for the configured
year is downloaded instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := fillPaths{
			Counties: dataPath(cmd, "counties", cfg.Data.TigerCounty),
			Nodes:    dataPath(cmd, "nodes", cfg.Data.Nodes),
			CTPP:     dataPath(cmd, "ctpp", cfg.Data.CTPP),
			FIPS:     dataPath(cmd, "fips", cfg.Data.FIPS),
			Out:      dataPath(cmd, "out", cfg.Data.Regionalized),
		}
		params := map[string]string{
			"counties": in.Counties,
			"nodes":    in.Nodes,
			"ctpp":     in.CTPP,
			"fips":     in.FIPS,
			"out":      in.Out,
		}

		return track(ctx, "fill", params, func(ctx context.Context, _ store.Store, _ *store.Run) (map[string]float64, error) {
			return runFill(ctx, in)
		})
	},
}

type fillPaths struct {
	Counties string
	Nodes    string
	CTPP     string
	FIPS     string
	Out      string
}

func runFill(ctx context.Context, p fillPaths) (map[string]float64, error) {
	countyPath, err := resolveCounties(ctx, p.Counties)
	if err != nil {
		return nil, eris.Wrap(err, "fill")
	}
	counties, err := tiger.ReadCounties(ctx, countyPath)
	if err != nil {
		return nil, eris.Wrap(err, "fill")
	}
	counties = tiger.WithSupplements(counties)

	classes, err := community.ReadNodes(ctx, p.Nodes)
	if err != nil {
		return nil, eris.Wrap(err, "fill")
	}
	records, err := ctpp.Load(ctx, p.CTPP, ctpp.LoadOptions{Encoding: cfg.Data.CTPPEncoding})
	if err != nil {
		return nil, eris.Wrap(err, "fill")
	}
	cw, err := fips.Load(ctx, p.FIPS)
	if err != nil {
		return nil, eris.Wrap(err, "fill")
	}

	res := regions.Fill(regions.FillInput{
		Counties:  counties,
		Classes:   classes,
		Flows:     ctpp.Estimates(records),
		Crosswalk: cw,
	})
	if err := regions.WriteFilled(p.Out, res); err != nil {
		return nil, eris.Wrap(err, "fill")
	}

	fmt.Printf("%d holes: %d filled, %d remaining\n", res.Holes, res.Filled, res.Remaining)
	zap.L().Info("wrote filled counties", zap.String("command", "fill"), zap.String("out", p.Out))

	return map[string]float64{
		"counties":  float64(len(res.Counties)),
		"holes":     float64(res.Holes),
		"filled":    float64(res.Filled),
		"remaining": float64(res.Remaining),
	}, nil
}

// resolveCounties returns path when it exists, otherwise downloads the
// TIGER county shapefile and returns the .shp path.
func resolveCounties(ctx context.Context, path string) (string, error) {
	_, err := os.Stat(path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", eris.Wrapf(err, "stat %s", path)
	}

	url := tiger.CountyURL(cfg.Tiger.Year)
	zap.L().Info("county table missing, downloading TIGER counties",
		zap.String("command", "fill"),
		zap.String("path", path),
		zap.String("url", url),
	)
	return tiger.Download(ctx, newFetcher(), url, cfg.Data.Path(cfg.Tiger.TempDir))
}

func newFetcher() *fetcher.Mux {
	return fetcher.NewMux(
		fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		},
		fetcher.FTPOptions{
			Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		},
	)
}

func init() {
	fillCmd.Flags().String("counties", "", "TIGER county table, .shp or .csv (default from config)")
	fillCmd.Flags().String("nodes", "", "nodes table with modularity classes (default from config)")
	fillCmd.Flags().String("ctpp", "", "CTPP county-to-county flow export (default from config)")
	fillCmd.Flags().String("fips", "", "county name to FIPS crosswalk (default from config)")
	fillCmd.Flags().String("out", "", "filled county table to write (default from config)")
	rootCmd.AddCommand(fillCmd)
}
