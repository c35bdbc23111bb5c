// Package task implements the worker-pool scheduler: a fixed set of
// goroutines, each with its own bounded inbox, that fetch and parse
// feed URLs handed to them by a TaskManager.
package task

import (
	"sync"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/feed"
)

// TaskID is a plain integer handle, unique for the lifetime of one
// TaskManager. Workers and the collector reference tasks only by ID,
// never by pointer.
type TaskID int64

// TaskStatus is the lifecycle state of a task as observed externally.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskResult is what a worker reports back to the collector once a
// task reaches a terminal state.
type TaskResult struct {
	TaskID       TaskID
	Success      bool
	ErrorKind    string
	ErrorMessage string
	Attempts     int
	Duration     time.Duration
	Feed         *feed.PodcastFeed
	FinishedAt   time.Time
}

// TaskSnapshot is the read-only view handed out by GetTask/AllTasks;
// mutating it has no effect on the underlying record.
type TaskSnapshot struct {
	ID          TaskID
	URL         string
	Status      TaskStatus
	Attempts    int
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      *TaskResult
}

// taskRecord is the mutable record held in the TaskManager's map. It
// is written by the collector goroutine, by submission (insertion) and
// by Shutdown (aborting leftovers), always under the map's RWMutex;
// readers go through TaskManager.GetTask/AllTasks under the same mutex
// and only ever see a copied snapshot.
type taskRecord struct {
	id          TaskID
	url         string
	status      TaskStatus
	attempts    int
	submittedAt time.Time
	startedAt   *time.Time
	finishedAt  *time.Time
	result      *TaskResult
	done        chan struct{}
}

func newTaskRecord(id TaskID, url string, submittedAt time.Time) *taskRecord {
	return &taskRecord{
		id:          id,
		url:         url,
		status:      StatusPending,
		submittedAt: submittedAt,
		done:        make(chan struct{}),
	}
}

func (r *taskRecord) snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:          r.id,
		URL:         r.url,
		Status:      r.status,
		Attempts:    r.attempts,
		SubmittedAt: r.submittedAt,
		StartedAt:   r.startedAt,
		FinishedAt:  r.finishedAt,
		Result:      r.result,
	}
}

// assignment is the value that travels through a worker's inbox
// channel: just enough to fetch and parse, plus the id the collector
// needs to find the matching taskRecord.
type assignment struct {
	id  TaskID
	url string
}

// WorkerState is the lifecycle state of one worker goroutine.
type WorkerState string

const (
	WorkerIdle     WorkerState = "idle"
	WorkerBusy     WorkerState = "busy"
	WorkerDraining WorkerState = "draining"
	WorkerStopped  WorkerState = "stopped"
)

// workerSlot tracks one worker's observable state. The mutex is the
// same one a workerSlot.State read goes through, so state transitions
// never race with an observer.
type workerSlot struct {
	mu    sync.Mutex
	id    int
	state WorkerState
}

func (w *workerSlot) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *workerSlot) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
