// Package fetch issues the HTTP GET requests that feed the parser,
// translating transport failures into the task subsystem's typed
// network-error taxonomy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
)

const defaultRetryAfter = 5 * time.Second

// Fetcher issues GET requests for feed URLs. A single Fetcher is
// built once and shared immutably across every worker goroutine; the
// underlying http.Client pools and reuses connections across calls.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	maxRedirects int
}

// New builds a Fetcher with a transport tuned for keep-alive reuse
// across many hosts, the shape a worker pool hammering dozens of feed
// hosts concurrently actually needs.
func New(userAgent string, maxBodyBytes int64, maxRedirects int) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	f := &Fetcher{
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		maxRedirects: maxRedirects,
	}

	f.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return f
}

var errTooManyRedirects = errors.New("too many redirects")

// Fetch performs one GET against url with the given per-attempt
// timeout, returning the response body or a typed *errs.NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, errs.NewNetworkError(errs.Timeout, "request timeout is zero", 0, 0, nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.NewNetworkError(errs.InvalidResponse, "malformed request URL", 0, 0, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classifyTransportError(reqCtx, err)
	}
	defer resp.Body.Close()

	// 429 is always rate limiting; a 503 only when the server says how
	// long to wait. A bare 503 falls through to InvalidResponse, which
	// is retryable as a 5xx under the worker's exponential backoff.
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "") {
		return nil, errs.NewNetworkError(errs.RateLimited, fmt.Sprintf("rate limited with status %d", resp.StatusCode), resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.NewNetworkError(errs.InvalidResponse, fmt.Sprintf("unexpected status %d", resp.StatusCode), resp.StatusCode, 0, nil)
	}

	if resp.ContentLength > 0 && resp.ContentLength > f.maxBodyBytes {
		return nil, errs.NewNetworkError(errs.InvalidResponse, "body too large", http.StatusRequestEntityTooLarge, 0, nil)
	}

	limited := io.LimitReader(resp.Body, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, f.classifyTransportError(reqCtx, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, errs.NewNetworkError(errs.InvalidResponse, "body too large", http.StatusRequestEntityTooLarge, 0, nil)
	}

	return body, nil
}

// classifyTransportError maps the errors client.Do and body reads can
// return (context deadlines, redirect-cap rejections, connection
// refusals, DNS failures) onto the taxonomy's kinds.
func (f *Fetcher) classifyTransportError(ctx context.Context, err error) *errs.NetworkError {
	if errors.Is(err, errTooManyRedirects) {
		return errs.NewNetworkError(errs.TooManyRedirects, "exceeded redirect limit", 0, 0, err)
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.NewNetworkError(errs.Timeout, "request timed out", 0, 0, err)
	}
	return errs.NewNetworkError(errs.ConnectionFailed, "connection failed", 0, 0, err)
}

// parseRetryAfter accepts either delta-seconds or an RFC 1123 HTTP
// date, falling back to a fixed suggestion when the header is absent
// or unparsable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0
		}
		return d
	}
	return defaultRetryAfter
}
