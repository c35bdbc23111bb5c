package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent: %q", got)
		}
		w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	f := New("test-agent", 1<<20, 5)
	body, err := f.Fetch(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<rss></rss>" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New("ua", 1<<20, 5)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.InvalidResponse {
		t.Fatalf("expected InvalidResponse, got %v", nerr.Kind)
	}
	if nerr.IsRetryable() {
		t.Fatal("404 should not be retryable")
	}
}

func TestFetchServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New("ua", 1<<20, 5)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T", err)
	}
	if !nerr.IsRetryable() {
		t.Fatal("500 should be retryable")
	}
}

func TestFetchRateLimitedParsesRetryAfterSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New("ua", 1<<20, 5)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T", err)
	}
	if nerr.Kind != errs.RateLimited {
		t.Fatalf("expected RateLimited, got %v", nerr.Kind)
	}
	if nerr.RetryAfter != 17*time.Second {
		t.Fatalf("expected 17s retry-after, got %v", nerr.RetryAfter)
	}
	if !nerr.IsRetryable() {
		t.Fatal("rate limited must be retryable")
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("too slow"))
	}))
	defer srv.Close()

	f := New("ua", 1<<20, 5)
	_, err := f.Fetch(context.Background(), srv.URL, 10*time.Millisecond)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.Timeout {
		t.Fatalf("expected Timeout, got %v", nerr.Kind)
	}
	if !nerr.IsRetryable() {
		t.Fatal("timeout must be retryable")
	}
}

func TestFetchBodyTooLargeWithContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := strings.Repeat("x", 100)
		w.Header().Set("Content-Length", "100")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := New("ua", 10, 5)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.InvalidResponse {
		t.Fatalf("expected InvalidResponse, got %v", nerr.Kind)
	}
}

func TestFetchBodyTooLargeWithoutContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			w.Write([]byte(strings.Repeat("x", 10)))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	f := New("ua", 10, 5)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.InvalidResponse {
		t.Fatalf("expected InvalidResponse, got %v", nerr.Kind)
	}
}

func TestFetchTooManyRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	f := New("ua", 1<<20, 2)
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.TooManyRedirects {
		t.Fatalf("expected TooManyRedirects, got %v", nerr.Kind)
	}
}

func TestFetchZeroTimeoutFailsImmediately(t *testing.T) {
	f := New("ua", 1<<20, 5)
	_, err := f.Fetch(context.Background(), "http://example.com", 0)
	var nerr *errs.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if nerr.Kind != errs.Timeout {
		t.Fatalf("expected Timeout, got %v", nerr.Kind)
	}
}
