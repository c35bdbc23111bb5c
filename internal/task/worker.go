package task

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
	"github.com/lysyi3m/podcastcrawler/internal/feed"
	"github.com/lysyi3m/podcastcrawler/internal/fetch"
	"github.com/lysyi3m/podcastcrawler/internal/metrics"
)

const (
	backoffBase  = 500 * time.Millisecond
	backoffCap   = 30 * time.Second
	rateLimitMin = 1 * time.Second
	rateLimitMax = 60 * time.Second
)

// workerConfig is the subset of TaskManager configuration a worker
// needs to run its per-task loop.
type workerConfig struct {
	maxRetries     int
	requestTimeout time.Duration
}

// worker owns one inbox and one slot. It is run under a supervisor
// that restarts it, with the same id, if its run loop panics.
type worker struct {
	slot    *workerSlot
	inbox   chan assignment
	fetcher *fetch.Fetcher
	parser  *feed.Parser
	metrics *metrics.Metrics
	cfg     workerConfig
	report  func(*TaskResult)
	onStart func(TaskID)

	current    *assignment
	curAttempt int
}

func newWorker(id int, inbox chan assignment, fetcher *fetch.Fetcher, parser *feed.Parser, m *metrics.Metrics, cfg workerConfig, report func(*TaskResult), onStart func(TaskID)) *worker {
	return &worker{
		slot:    &workerSlot{id: id, state: WorkerIdle},
		inbox:   inbox,
		fetcher: fetcher,
		parser:  parser,
		metrics: m,
		cfg:     cfg,
		report:  report,
		onStart: onStart,
	}
}

// run is the worker's main loop: Idle until a task arrives, Busy
// while processing it, Draining once ctx is cancelled, Stopped once
// the inbox is empty.
func (w *worker) run(ctx context.Context) {
	w.slot.setState(WorkerIdle)

	for {
		select {
		case a, ok := <-w.inbox:
			if !ok {
				w.slot.setState(WorkerStopped)
				return
			}
			w.slot.setState(WorkerBusy)
			w.metrics.IncActiveWorkers()
			w.process(ctx, a)
			w.metrics.DecActiveWorkers()
			w.slot.setState(WorkerIdle)

		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

// drain marks the worker Draining and empties the inbox without
// fetching: each assignment still queued is reported as aborted with
// zero attempts. A task already in process observes cancellation
// inline, in its fetch or its backoff sleep.
func (w *worker) drain() {
	w.slot.setState(WorkerDraining)
	for {
		select {
		case a, ok := <-w.inbox:
			if !ok {
				w.slot.setState(WorkerStopped)
				return
			}
			w.report(abortedResult(a.id, 0, time.Now()))
		default:
			w.slot.setState(WorkerStopped)
			return
		}
	}
}

// abortCurrent is invoked by the supervisor after recovering a panic,
// or it can be called directly to report the in-flight task as
// aborted before the worker goroutine is restarted.
func (w *worker) abortCurrent() {
	if w.current == nil {
		return
	}
	w.report(abortedResult(w.current.id, w.curAttempt, time.Now()))
	w.current = nil
}

func (w *worker) process(ctx context.Context, a assignment) {
	w.current = &a
	w.curAttempt = 0
	defer func() { w.current = nil }()

	w.onStart(a.id)
	start := time.Now()
	maxAttempts := w.cfg.maxRetries + 1

	for attempt := 1; ; attempt++ {
		w.curAttempt = attempt

		fetchStart := time.Now()
		body, err := w.fetcher.Fetch(ctx, a.url, w.cfg.requestTimeout)
		w.metrics.ObserveStage("fetch", time.Since(fetchStart))

		if err != nil {
			var nerr *errs.NetworkError
			retryable := errors.As(err, &nerr) && nerr.IsRetryable()

			if retryable && attempt < maxAttempts {
				w.metrics.IncRetries()
				delay := backoffDelay(nerr, attempt)
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
					continue
				case <-ctx.Done():
					timer.Stop()
					w.report(abortedResult(a.id, attempt, start))
					return
				}
			}

			w.report(failureResult(a.id, err, attempt, start))
			return
		}

		parseStart := time.Now()
		res, perr := w.parser.Parse(body)
		w.metrics.ObserveStage("parse", time.Since(parseStart))

		if perr != nil {
			w.report(failureResult(a.id, perr, attempt, start))
			return
		}

		w.report(successResult(a.id, &res.Feed, attempt, start))
		return
	}
}

// backoffDelay implements base*2^(attempts-1) capped at 30s with
// ±20% jitter, except RateLimited which uses the server-suggested
// delay clamped to [1s, 60s].
func backoffDelay(nerr *errs.NetworkError, attempt int) time.Duration {
	if nerr.Kind == errs.RateLimited {
		d := nerr.RetryAfter
		if d < rateLimitMin {
			d = rateLimitMin
		}
		if d > rateLimitMax {
			d = rateLimitMax
		}
		return d
	}

	d := backoffBase * time.Duration(uint64(1)<<uint(attempt-1))
	if d > backoffCap {
		d = backoffCap
	}

	jitterFrac := 0.2 * (rand.Float64()*2 - 1)
	jittered := time.Duration(float64(d) * (1 + jitterFrac))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

func successResult(id TaskID, f *feed.PodcastFeed, attempts int, start time.Time) *TaskResult {
	return &TaskResult{
		TaskID:     id,
		Success:    true,
		Attempts:   attempts,
		Duration:   time.Since(start),
		Feed:       f,
		FinishedAt: time.Now(),
	}
}

func failureResult(id TaskID, err error, attempts int, start time.Time) *TaskResult {
	kind, msg := classifyError(err)
	return &TaskResult{
		TaskID:       id,
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: msg,
		Attempts:     attempts,
		Duration:     time.Since(start),
		FinishedAt:   time.Now(),
	}
}

func abortedResult(id TaskID, attempts int, start time.Time) *TaskResult {
	return &TaskResult{
		TaskID:       id,
		Success:      false,
		ErrorKind:    string(errs.Aborted),
		ErrorMessage: "aborted during shutdown",
		Attempts:     attempts,
		Duration:     time.Since(start),
		FinishedAt:   time.Now(),
	}
}

func classifyError(err error) (kind, message string) {
	var nerr *errs.NetworkError
	if errors.As(err, &nerr) {
		return string(nerr.Kind), nerr.Message
	}
	var perr *errs.ParseError
	if errors.As(err, &perr) {
		return string(perr.Kind), perr.Message
	}
	return "unknown", err.Error()
}
