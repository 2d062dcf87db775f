package main

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labormarket/internal/config"
	"github.com/sells-group/labormarket/internal/fetcher"
	"github.com/sells-group/labormarket/internal/tiger"
)

func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
	})
}

func TestRunFetch(t *testing.T) {
	archive := zipBytes(t, "fips.csv", "County,FIPS\n")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ctpp.csv":
			_, _ = w.Write([]byte("RESIDENCE,WORKPLACE\n"))
		case "/fips.zip":
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg = &config.Config{Data: config.DataConfig{Dir: dir}}
	sources := []config.SourceConfig{
		{File: "Job_4393.csv", URL: srv.URL + "/ctpp.csv"},
		{File: "fips.zip", URL: srv.URL + "/fips.zip", Unzip: true},
	}

	stats, err := runFetch(context.Background(), testFetcher(), sources, false, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2, stats["downloaded"], 1e-9)
	assert.InDelta(t, 0, stats["skipped"], 1e-9)
	assert.FileExists(t, filepath.Join(dir, "Job_4393.csv"))
	assert.FileExists(t, filepath.Join(dir, "fips.csv"))

	// Second run skips what is already on disk.
	stats, err = runFetch(context.Background(), testFetcher(), sources, false, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, stats["downloaded"], 1e-9)
	assert.InDelta(t, 2, stats["skipped"], 1e-9)
	assert.Equal(t, int32(2), hits.Load())

	// --force downloads again.
	stats, err = runFetch(context.Background(), testFetcher(), sources[:1], true, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, stats["downloaded"], 1e-9)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRunFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	cfg = &config.Config{Data: config.DataConfig{Dir: dir}}

	_, err := runFetch(context.Background(), testFetcher(), []config.SourceConfig{{File: "x.csv"}}, false, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source needs both url and file")

	_, err = runFetch(context.Background(), testFetcher(), []config.SourceConfig{{File: "x.csv", URL: srv.URL + "/x.csv"}}, false, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch: "+srv.URL)
	_, statErr := os.Stat(filepath.Join(dir, "x.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchSources_AppendsTigerCounties(t *testing.T) {
	cfg = &config.Config{
		Fetch: config.FetchConfig{Sources: []config.SourceConfig{{File: "fips.csv", URL: "https://example.com/fips.csv"}}},
		Tiger: config.TigerConfig{Year: 2015, TempDir: "/tmp/tiger"},
	}

	sources := fetchSources()
	require.Len(t, sources, 2)
	assert.Equal(t, config.SourceConfig{
		File:    "/tmp/tiger/tl_2015_us_county.zip",
		URL:     "https://www2.census.gov/geo/tiger/TIGER2015/COUNTY/tl_2015_us_county.zip",
		Unzip:   true,
		UnzipTo: "/tmp/tiger/tl_2015_us_county",
	}, sources[1])
	assert.Len(t, cfg.Fetch.Sources, 1)
}

func TestRunFetch_TigerArchiveReadyForFill(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"tl_2015_us_county.shp", "tl_2015_us_county.dbf"} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	tmp := t.TempDir()
	cfg = &config.Config{
		Data:  config.DataConfig{Dir: t.TempDir()},
		Tiger: config.TigerConfig{Year: 2015, TempDir: tmp},
	}
	src := fetchSources()[0]
	src.URL = srv.URL + "/tl_2015_us_county.zip"

	_, err := runFetch(context.Background(), testFetcher(), []config.SourceConfig{src}, false, 1)
	require.NoError(t, err)

	shp, err := tiger.Download(context.Background(), testFetcher(), src.URL, tmp)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "tl_2015_us_county", "tl_2015_us_county.shp"), shp)
	assert.Equal(t, int32(1), hits.Load())
}
