package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Mux routes downloads to a Fetcher by URL scheme.
type Mux struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewMux creates a Mux backed by an HTTPFetcher and an FTPFetcher.
func NewMux(httpOpts HTTPOptions, ftpOpts FTPOptions) *Mux {
	return &Mux{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

func (m *Mux) route(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		if m.HTTP != nil {
			return m.HTTP, nil
		}
	case "ftp":
		if m.FTP != nil {
			return m.FTP, nil
		}
	}
	return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
}

// Download fetches the URL with the fetcher registered for its scheme.
func (m *Mux) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile fetches the URL to path with the fetcher registered for its scheme.
func (m *Mux) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// writeFile streams r into path through a sibling ".part" file that is
// renamed into place once complete. Nothing is left at either path on error.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", tmp)
	}

	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
