package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/cfg"
	"github.com/lysyi3m/podcastcrawler/internal/feed"
	"github.com/lysyi3m/podcastcrawler/internal/fetch"
	"github.com/lysyi3m/podcastcrawler/internal/httpapi"
	"github.com/lysyi3m/podcastcrawler/internal/metrics"
	"github.com/lysyi3m/podcastcrawler/internal/store"
	"github.com/lysyi3m/podcastcrawler/internal/task"
)

func main() {
	c, err := cfg.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if c == nil {
		// --help was requested; go-flags already printed usage.
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting podcast crawler",
		"worker_count", c.MaxConcurrency,
		"port", c.Port,
		"sqlite_path", c.SQLitePath,
	)

	podcastStore := store.NewSQLiteStore(c.SQLitePath)
	defer podcastStore.Close()

	fetcher := fetch.New(c.UserAgent, c.MaxBodyBytes, c.MaxRedirects)
	parser := feed.NewParser(feed.Options{
		StrictMode:   c.StrictMode,
		CleanHTML:    c.CleanHTML,
		ValidateURLs: c.ValidateURLs,
	})
	m := metrics.New()

	tm := task.New(task.Config{
		WorkerCount:     c.MaxConcurrency,
		InboxCapacity:   c.InboxCapacity,
		MaxRetries:      c.MaxRetries,
		RequestTimeout:  c.RequestTimeout,
		SubmitTimeout:   c.SubmitTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		ValidateURLs:    c.ValidateURLs,
	}, fetcher, parser, m)

	tm.OnComplete(func(url string, result task.TaskResult) {
		if !result.Success || result.Feed == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := podcastStore.Save(ctx, url, *result.Feed); err != nil {
			slog.Error("failed to persist feed", "url", url, "error", err)
		}
	})

	seedURLs, err := cfg.LoadSeedFile(c.SeedFile)
	if err != nil {
		log.Fatalf("failed to load seed file: %v", err)
	}
	if len(seedURLs) > 0 {
		slog.Info("submitting seed batch", "count", len(seedURLs))
		_, submitErrs := tm.SubmitBatch(context.Background(), seedURLs)
		for i, err := range submitErrs {
			if err != nil {
				slog.Warn("seed url rejected", "url", seedURLs[i], "error", err)
			}
		}
	}

	handler := httpapi.NewHandler(tm, m.Registry)
	engine := httpapi.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-serverErrCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	if err := tm.Shutdown(c.ShutdownTimeout); err != nil {
		slog.Error("task manager shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
