package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures HTTPFetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// BaseBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff. A Retry-After header from the server takes precedence.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// RateLimiters are keyed by host name and override CensusLimiters.
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher downloads over http and https with per-host rate limiting.
// Throttling and server errors are retried.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
}

// CensusLimiters returns the request budgets for the Census Bureau hosts the
// labor market datasets are published on.
func CensusLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"www2.census.gov": rate.NewLimiter(5, 5),
		"www.census.gov":  rate.NewLimiter(5, 5),
		"api.census.gov":  rate.NewLimiter(5, 5),
		"data.census.gov": rate.NewLimiter(2, 2),
	}
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "labormarket/1.0"
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	limiters := CensusLimiters()
	for host, lim := range opts.RateLimiters {
		limiters[host] = lim
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: limiters,
		fallback: rate.NewLimiter(20, 20),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return f.fallback
	}
	if lim, ok := f.limiters[u.Hostname()]; ok {
		return lim
	}
	return f.fallback
}

// Download fetches rawURL and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	lim := f.limiterFor(rawURL)
	log := zap.L().With(zap.String("component", "fetcher.http"), zap.String("url", rawURL))

	var lastErr error
	last := f.opts.MaxRetries - 1
	for attempt := range f.opts.MaxRetries {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "http: rate limiter wait")
		}

		resp, err := f.client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "http: download")
			}
			lastErr = err
			log.Warn("request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			if attempt < last {
				f.pause(ctx, attempt, 0)
			}

		case resp.StatusCode == http.StatusOK:
			return resp.Body, nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			hint := retryAfter(resp.Header.Get("Retry-After"), time.Now())
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
			log.Warn("retryable status",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_after", hint),
			)
			if attempt < last {
				f.pause(ctx, attempt, hint)
			}

		default:
			_ = resp.Body.Close()
			return nil, eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, rawURL)
		}
	}
	return nil, eris.Wrap(lastErr, "http: all retries exhausted")
}

// DownloadToFile fetches rawURL into path and returns the bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

// pause sleeps before the next attempt. hint, when positive, replaces the
// exponential delay. Both are capped at MaxBackoff.
func (f *HTTPFetcher) pause(ctx context.Context, attempt int, hint time.Duration) {
	d := hint
	if d <= 0 {
		d = f.opts.BaseBackoff << attempt
		if half := int64(d) / 2; half > 0 {
			d += time.Duration(rand.Int64N(half))
		}
	}
	if d <= 0 || d > f.opts.MaxBackoff {
		d = f.opts.MaxBackoff
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// retryAfter parses a Retry-After header given either as seconds or as an
// HTTP date. It returns 0 when the header is absent or unusable.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
