package task

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
	"github.com/lysyi3m/podcastcrawler/internal/feed"
	"github.com/lysyi3m/podcastcrawler/internal/fetch"
	"github.com/lysyi3m/podcastcrawler/internal/metrics"
)

// Config is the subset of internal/cfg.Cfg the TaskManager needs,
// kept separate so the task package doesn't import cfg directly.
type Config struct {
	WorkerCount     int
	InboxCapacity   int
	MaxRetries      int
	RequestTimeout  time.Duration
	SubmitTimeout   time.Duration
	ShutdownTimeout time.Duration
	ValidateURLs    bool
}

// TaskManager owns the worker pool, the task map, and the collector
// goroutine that applies worker progress and results to the map.
// Submission and Shutdown also write the map, under the same mutex.
type TaskManager struct {
	cfg     Config
	fetcher *fetch.Fetcher
	parser  *feed.Parser
	metrics *metrics.Metrics

	workers  []*worker
	inboxes  []chan assignment
	resultCh chan *TaskResult
	startCh  chan TaskID

	mu    sync.RWMutex
	tasks map[TaskID]*taskRecord

	nextID atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	workerWg      sync.WaitGroup
	collectorDone chan struct{}

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}

	onComplete func(url string, result TaskResult)
}

// New builds a TaskManager and starts its workers and collector. The
// returned manager is ready to accept submissions immediately.
func New(cfg Config, fetcher *fetch.Fetcher, parser *feed.Parser, m *metrics.Metrics) *TaskManager {
	ctx, cancel := context.WithCancel(context.Background())

	tm := &TaskManager{
		cfg:           cfg,
		fetcher:       fetcher,
		parser:        parser,
		metrics:       m,
		inboxes:       make([]chan assignment, cfg.WorkerCount),
		resultCh:      make(chan *TaskResult, cfg.WorkerCount*2),
		startCh:       make(chan TaskID, cfg.WorkerCount*2),
		tasks:         make(map[TaskID]*taskRecord),
		ctx:           ctx,
		cancel:        cancel,
		collectorDone: make(chan struct{}),
		shutdownDone:  make(chan struct{}),
	}

	wcfg := workerConfig{maxRetries: cfg.MaxRetries, requestTimeout: cfg.RequestTimeout}
	for i := 0; i < cfg.WorkerCount; i++ {
		inbox := make(chan assignment, cfg.InboxCapacity)
		tm.inboxes[i] = inbox
		w := newWorker(i, inbox, fetcher, parser, m, wcfg,
			func(r *TaskResult) { tm.resultCh <- r },
			func(id TaskID) { tm.startCh <- id },
		)
		tm.workers = append(tm.workers, w)
	}

	go tm.collect()

	for _, w := range tm.workers {
		tm.workerWg.Add(1)
		go tm.superviseWorker(w)
	}

	// Once every worker goroutine has returned, no more sends to
	// resultCh/startCh can happen, so it's safe to close them and let
	// collect drain to completion.
	go func() {
		tm.workerWg.Wait()
		close(tm.resultCh)
		close(tm.startCh)
	}()

	return tm
}

// collect is the single consumer of resultCh/startCh and writes the
// worker-reported state of each taskRecord. Two other writers take the
// same lock: record inserts new records on submission, and
// abortOutstanding marks leftover records failed during Shutdown.
// GetTask/AllTasks only ever read under RLock. collect runs until both
// channels are closed and drained.
func (tm *TaskManager) collect() {
	defer close(tm.collectorDone)
	resultsOpen, startsOpen := true, true
	for resultsOpen || startsOpen {
		select {
		case r, ok := <-tm.resultCh:
			if !ok {
				resultsOpen = false
				tm.resultCh = nil
				continue
			}
			tm.applyResult(r)
		case id, ok := <-tm.startCh:
			if !ok {
				startsOpen = false
				tm.startCh = nil
				continue
			}
			tm.applyStart(id)
		}
	}
}

func (tm *TaskManager) applyStart(id TaskID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	rec, ok := tm.tasks[id]
	if !ok || rec.status.Terminal() {
		return
	}
	from := string(rec.status)
	now := time.Now()
	rec.status = StatusInProgress
	rec.startedAt = &now
	tm.metrics.MoveStatus(from, string(rec.status))
}

func (tm *TaskManager) applyResult(r *TaskResult) {
	tm.mu.Lock()
	rec, ok := tm.tasks[r.TaskID]
	if !ok || rec.status.Terminal() {
		tm.mu.Unlock()
		return
	}

	from := string(rec.status)
	now := r.FinishedAt
	rec.attempts = r.Attempts
	rec.finishedAt = &now
	rec.result = r
	if r.Success {
		rec.status = StatusCompleted
		tm.metrics.IncProcessed()
	} else {
		rec.status = StatusFailed
		tm.metrics.IncFailed()
	}
	tm.metrics.MoveStatus(from, string(rec.status))
	url := rec.url
	closeOnce(rec.done)
	tm.mu.Unlock()

	if tm.onComplete != nil {
		tm.onComplete(url, *r)
	}
}

func (tm *TaskManager) superviseWorker(w *worker) {
	defer tm.workerWg.Done()
	for {
		if tm.ctx.Err() != nil && len(w.inbox) == 0 && w.slot.State() != WorkerBusy {
			return
		}
		if tm.runWorkerOnce(w) {
			return
		}
		slog.Warn("worker restarted after panic", "worker_id", w.slot.id)
	}
}

// runWorkerOnce runs the worker's loop under a recover, reporting
// whatever task it was holding as Aborted before the caller restarts
// the loop, on the same supervisor goroutine and with the same WorkerID.
func (tm *TaskManager) runWorkerOnce(w *worker) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panicked", "worker_id", w.slot.id, "panic", r)
			w.abortCurrent()
			clean = false
		}
	}()
	w.run(tm.ctx)
	return true
}

// SubmitTask validates url, assigns it a TaskID, and enqueues it to
// the worker chosen by task_id mod W, blocking up to SubmitTimeout if
// that worker's inbox is full.
func (tm *TaskManager) SubmitTask(ctx context.Context, rawURL string) (TaskID, error) {
	return tm.submitOne(ctx, rawURL, tm.cfg.SubmitTimeout)
}

// TrySubmitTask is the non-blocking variant: it fails immediately
// with QueueFull instead of waiting on a full inbox.
func (tm *TaskManager) TrySubmitTask(rawURL string) (TaskID, error) {
	return tm.submitOne(context.Background(), rawURL, 0)
}

func (tm *TaskManager) submitOne(ctx context.Context, rawURL string, timeout time.Duration) (TaskID, error) {
	if tm.shuttingDown.Load() {
		return 0, errs.NewInfraError(errs.ShutdownInProgress, "task manager is shutting down")
	}
	if err := tm.validateURL(rawURL); err != nil {
		return 0, err
	}

	id := TaskID(tm.nextID.Add(1))
	workerIdx := int(id) % len(tm.inboxes)
	if err := tm.enqueue(ctx, workerIdx, assignment{id: id, url: rawURL}, timeout); err != nil {
		return 0, err
	}

	tm.record(id, rawURL)
	return id, nil
}

// SubmitBatch distributes urls across workers via Distribute's
// algorithm and enqueues each one, returning task ids in input order.
// Entries that could not be enqueued come back as TaskID 0 with a
// non-nil error at the same index.
func (tm *TaskManager) SubmitBatch(ctx context.Context, urls []string) ([]TaskID, []error) {
	ids := make([]TaskID, len(urls))
	errsOut := make([]error, len(urls))
	if len(urls) == 0 {
		return ids, errsOut
	}

	if tm.shuttingDown.Load() {
		for i := range urls {
			errsOut[i] = errs.NewInfraError(errs.ShutdownInProgress, "task manager is shutting down")
		}
		return ids, errsOut
	}

	assign := assignWorkers(urls, len(tm.inboxes))
	for i, rawURL := range urls {
		if err := tm.validateURL(rawURL); err != nil {
			errsOut[i] = err
			continue
		}
		id := TaskID(tm.nextID.Add(1))
		if err := tm.enqueue(ctx, assign[i], assignment{id: id, url: rawURL}, tm.cfg.SubmitTimeout); err != nil {
			errsOut[i] = err
			continue
		}
		tm.record(id, rawURL)
		ids[i] = id
	}
	return ids, errsOut
}

func (tm *TaskManager) validateURL(rawURL string) error {
	if !tm.cfg.ValidateURLs {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.NewDomainError(errs.InvalidURL, "not an absolute http(s) URL: "+rawURL)
	}
	return nil
}

// enqueue sends a onto inboxes[workerIdx], blocking up to timeout
// once the immediate non-blocking attempt fails. timeout<=0 keeps the
// non-blocking, immediate-QueueFull semantics.
func (tm *TaskManager) enqueue(ctx context.Context, workerIdx int, a assignment, timeout time.Duration) error {
	select {
	case tm.inboxes[workerIdx] <- a:
		return nil
	default:
	}

	if timeout <= 0 {
		return errs.NewInfraError(errs.QueueFull, "worker inbox is full")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case tm.inboxes[workerIdx] <- a:
		return nil
	case <-waitCtx.Done():
		return errs.NewInfraError(errs.QueueFull, "worker inbox is full after waiting")
	case <-tm.ctx.Done():
		return errs.NewInfraError(errs.ShutdownInProgress, "task manager is shutting down")
	}
}

func (tm *TaskManager) record(id TaskID, rawURL string) {
	rec := newTaskRecord(id, rawURL, time.Now())
	tm.mu.Lock()
	tm.tasks[id] = rec
	tm.mu.Unlock()
	tm.metrics.IncSubmitted()
	tm.metrics.MoveStatus("", string(StatusPending))
}

// OnComplete registers a callback invoked once per task, right after
// it reaches a terminal state, with the submitted URL and its result.
// It runs on the collector goroutine outside the task map lock, so a
// slow callback (a store write, say) delays later completions but
// never blocks GetTask/AllTasks readers. Must be called before any
// task can complete: set it once, immediately after New.
func (tm *TaskManager) OnComplete(fn func(url string, result TaskResult)) {
	tm.onComplete = fn
}

// GetTask returns a point-in-time snapshot. The second value is false
// if no such task was ever recorded.
func (tm *TaskManager) GetTask(id TaskID) (TaskSnapshot, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	rec, ok := tm.tasks[id]
	if !ok {
		return TaskSnapshot{}, false
	}
	return rec.snapshot(), true
}

// AllTasks returns a snapshot of every task known to this manager.
func (tm *TaskManager) AllTasks() []TaskSnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]TaskSnapshot, 0, len(tm.tasks))
	for _, rec := range tm.tasks {
		out = append(out, rec.snapshot())
	}
	return out
}

// WaitForAll blocks until every known task reaches a terminal state
// or timeout elapses. The bool return reports whether the deadline
// was hit with tasks still outstanding; their snapshots still reflect
// their real (non-terminal) status.
func (tm *TaskManager) WaitForAll(timeout time.Duration) ([]TaskSnapshot, bool) {
	tm.mu.RLock()
	doneChans := make([]chan struct{}, 0, len(tm.tasks))
	for _, rec := range tm.tasks {
		doneChans = append(doneChans, rec.done)
	}
	tm.mu.RUnlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for _, done := range doneChans {
		select {
		case <-done:
		case <-deadline.C:
			return tm.AllTasks(), true
		}
	}
	return tm.AllTasks(), false
}

// Shutdown signals all workers to drain, waits up to timeout, then
// marks any still-outstanding tasks Failed{Aborted}. It is idempotent:
// concurrent or repeated calls block on the first call's completion
// and return nil.
func (tm *TaskManager) Shutdown(timeout time.Duration) error {
	tm.shutdownOnce.Do(func() {
		tm.shuttingDown.Store(true)
		tm.cancel()

		select {
		case <-tm.collectorDone:
		case <-time.After(timeout):
		}

		tm.abortOutstanding()
		close(tm.shutdownDone)
	})

	<-tm.shutdownDone
	return nil
}

func (tm *TaskManager) abortOutstanding() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, rec := range tm.tasks {
		if rec.status.Terminal() {
			continue
		}
		from := string(rec.status)
		now := time.Now()
		rec.status = StatusFailed
		rec.finishedAt = &now
		rec.result = &TaskResult{
			TaskID:       rec.id,
			Success:      false,
			ErrorKind:    string(errs.Aborted),
			ErrorMessage: "aborted during shutdown",
			Attempts:     rec.attempts,
			FinishedAt:   now,
		}
		tm.metrics.MoveStatus(from, string(rec.status))
		tm.metrics.IncFailed()
		closeOnce(rec.done)
	}
}

func closeOnce(done chan struct{}) {
	select {
	case <-done:
	default:
		close(done)
	}
}
