// Package httpapi is the thin gin front end over the task manager: it
// has no podcast query surface of its own, only task submission,
// metrics exposition, and a liveness probe.
package httpapi

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/podcastcrawler/internal/task"
)

// TaskSubmitter is the subset of *task.TaskManager the handlers call.
// Declaring it as an interface here keeps httpapi testable against a
// fake without pulling the whole worker pool into a handler test.
type TaskSubmitter interface {
	TrySubmitTask(rawURL string) (task.TaskID, error)
	SubmitBatch(ctx context.Context, urls []string) ([]task.TaskID, []error)
	GetTask(id task.TaskID) (task.TaskSnapshot, bool)
}

// Handler holds the collaborators every route needs.
type Handler struct {
	tasks    TaskSubmitter
	registry *prometheus.Registry
}

func NewHandler(tasks TaskSubmitter, registry *prometheus.Registry) *Handler {
	return &Handler{tasks: tasks, registry: registry}
}
