package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Unzip extracts every regular file of the archive at zipPath into destDir
// and returns the extracted paths in archive order. Entries that would land
// outside destDir are rejected.
func Unzip(zipPath, destDir string) ([]string, error) {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer archive.Close() //nolint:errcheck

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "zip: create destination")
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open destination")
	}
	defer root.Close() //nolint:errcheck

	var out []string
	for _, entry := range archive.File {
		name := path.Clean(entry.Name)
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return out, eris.Errorf("zip: entry %q escapes %s", entry.Name, destDir)
		}
		if entry.FileInfo().IsDir() {
			if err := root.MkdirAll(name, 0o755); err != nil {
				return out, eris.Wrapf(err, "zip: create %s", name)
			}
			continue
		}
		if err := copyEntry(root, name, entry); err != nil {
			return out, err
		}
		out = append(out, filepath.Join(destDir, filepath.FromSlash(name)))
	}
	return out, nil
}

func copyEntry(root *os.Root, name string, entry *zip.File) error {
	if dir := path.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "zip: create %s", dir)
		}
	}

	src, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := root.Create(name)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return eris.Wrapf(err, "zip: write %s", name)
	}
	if err := dst.Close(); err != nil {
		return eris.Wrapf(err, "zip: close %s", name)
	}
	return nil
}

// FindByExt returns the first file in dir with extension ext, compared
// case-insensitively. ext includes the dot.
func FindByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(err, "zip: list %s", dir)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("zip: no %s file in %s", ext, dir)
}
