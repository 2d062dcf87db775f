package tiger

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/fetcher"
)

// Download makes the shapefile behind a TIGER/Line archive URL available
// under destDir and returns the path of its .shp. The archive is unpacked
// into a directory named after it; an already unpacked shapefile or an
// archive left by an earlier run is reused.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	archive := path.Base(url)
	unpacked := UnpackDir(destDir, url)
	log := zap.L().With(zap.String("component", "tiger.download"), zap.String("archive", archive))

	if shp, err := shapefileIn(unpacked); err == nil {
		log.Debug("using unpacked shapefile", zap.String("path", shp))
		return shp, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}

	zipPath := filepath.Join(destDir, archive)
	if info, err := os.Stat(zipPath); err != nil || info.Size() == 0 {
		log.Info("downloading TIGER/Line archive", zap.String("url", url))
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
		log.Debug("archive saved", zap.Int64("bytes", n))
	}

	if _, err := fetcher.Unzip(zipPath, unpacked); err != nil {
		return "", eris.Wrap(err, "tiger: unpack archive")
	}
	return shapefileIn(unpacked)
}

// UnpackDir is the directory under destDir that Download extracts the
// archive at url into.
func UnpackDir(destDir, url string) string {
	archive := path.Base(url)
	return filepath.Join(destDir, strings.TrimSuffix(archive, filepath.Ext(archive)))
}

// shapefileIn returns the .shp in dir once its .dbf attribute table is
// present too.
func shapefileIn(dir string) (string, error) {
	shp, err := fetcher.FindByExt(dir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "tiger: find .shp file")
	}
	if _, err := fetcher.FindByExt(dir, ".dbf"); err != nil {
		return "", eris.Wrap(err, "tiger: find .dbf file")
	}
	return shp, nil
}
