package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures FTPFetcher.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTPFetcher downloads from FTP mirrors such as ftp2.census.gov. Each
// download holds its own control connection.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher. Without a user it logs in anonymously.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

// splitFTPURL returns the dial address (port 21 unless given) and the remote
// file path of an ftp:// URL.
func splitFTPURL(rawURL string) (addr, file string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.Errorf("ftp: no file in %s", rawURL)
	}

	addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}
	return addr, u.Path, nil
}

// retrieval is the data stream of one RETR. Closing it also ends the session.
type retrieval struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r retrieval) Close() error {
	err := r.Response.Close()
	if quitErr := r.conn.Quit(); err == nil && quitErr != nil {
		err = quitErr
	}
	if err != nil {
		return eris.Wrap(err, "ftp: close")
	}
	return nil
}

// Download logs in and starts retrieving the file. The caller closes the
// returned reader to end the session.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	addr, file, err := splitFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ftp: retrieving",
		zap.String("component", "fetcher.ftp"),
		zap.String("addr", addr),
		zap.String("file", file),
	)

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", addr)
	}
	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: login as %s", f.opts.User)
	}
	resp, err := conn.Retr(file)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", file)
	}
	return retrieval{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves rawURL into path and returns the bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	return writeFile(path, rc)
}
