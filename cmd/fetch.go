package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/labormarket/internal/config"
	"github.com/sells-group/labormarket/internal/fetcher"
	"github.com/sells-group/labormarket/internal/store"
	"github.com/sells-group/labormarket/internal/tiger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download input datasets into the data directory",
	Long: `Downloads every source listed under fetch.sources in config.yaml (http,
https or ftp) into the data directory, plus the TIGER county archive for
the configured year. Archives marked unzip are extracted next to the
download.

Files already on disk are skipped unless --force is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		force, _ := cmd.Flags().GetBool("force")
		concurrency := intFlag(cmd, "concurrency", cfg.Fetch.Concurrency)

		sources := fetchSources()
		params := map[string]string{
			"force":       strconv.FormatBool(force),
			"concurrency": strconv.Itoa(concurrency),
			"sources":     strconv.Itoa(len(sources)),
		}

		return track(ctx, "fetch", params, func(ctx context.Context, _ store.Store, _ *store.Run) (map[string]float64, error) {
			return runFetch(ctx, newFetcher(), sources, force, concurrency)
		})
	},
}

// fetchSources returns the configured sources followed by the TIGER
// county archive, which is fetched into the TIGER temp dir and unpacked
// where fill looks for it.
func fetchSources() []config.SourceConfig {
	sources := append([]config.SourceConfig(nil), cfg.Fetch.Sources...)
	url := tiger.CountyURL(cfg.Tiger.Year)
	sources = append(sources, config.SourceConfig{
		File:    filepath.Join(cfg.Tiger.TempDir, filepath.Base(url)),
		URL:     url,
		Unzip:   true,
		UnzipTo: tiger.UnpackDir(cfg.Tiger.TempDir, url),
	})
	return sources
}

func runFetch(ctx context.Context, f fetcher.Fetcher, sources []config.SourceConfig, force bool, concurrency int) (map[string]float64, error) {
	log := zap.L().With(zap.String("command", "fetch"))

	var downloaded, skipped, written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, concurrency))

	for _, src := range sources {
		g.Go(func() error {
			if src.URL == "" || src.File == "" {
				return eris.Errorf("fetch: source needs both url and file (url=%q file=%q)", src.URL, src.File)
			}
			dest := cfg.Data.Path(src.File)

			if !force {
				if _, err := os.Stat(dest); err == nil {
					log.Debug("already downloaded", zap.String("file", dest))
					skipped.Add(1)
					return nil
				} else if !errors.Is(err, fs.ErrNotExist) {
					return eris.Wrapf(err, "fetch: stat %s", dest)
				}
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return eris.Wrapf(err, "fetch: create dir for %s", dest)
			}
			n, err := f.DownloadToFile(gctx, src.URL, dest)
			if err != nil {
				return eris.Wrapf(err, "fetch: %s", src.URL)
			}
			downloaded.Add(1)
			written.Add(n)
			log.Info("downloaded", zap.String("url", src.URL), zap.String("file", dest), zap.Int64("bytes", n))

			if src.Unzip {
				into := filepath.Dir(dest)
				if src.UnzipTo != "" {
					into = cfg.Data.Path(src.UnzipTo)
				}
				files, err := fetcher.Unzip(dest, into)
				if err != nil {
					return eris.Wrapf(err, "fetch: unzip %s", dest)
				}
				log.Info("extracted", zap.String("archive", dest), zap.Int("files", len(files)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fmt.Printf("%d downloaded, %d already present\n", downloaded.Load(), skipped.Load())
	return map[string]float64{
		"downloaded": float64(downloaded.Load()),
		"skipped":    float64(skipped.Load()),
		"bytes":      float64(written.Load()),
	}, nil
}

func init() {
	fetchCmd.Flags().Bool("force", false, "download files that already exist")
	fetchCmd.Flags().Int("concurrency", 3, "parallel downloads")
	rootCmd.AddCommand(fetchCmd)
}
