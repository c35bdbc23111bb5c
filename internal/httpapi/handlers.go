package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
)

// addTaskRequest binds the POST /add_task body. RSSURL is the named
// external interface field (spec's "rss_url"); URLs is an [ADD]
// batch extension accepted alongside it for submitting many feeds in
// one call.
type addTaskRequest struct {
	RSSURL string   `json:"rss_url"`
	URLs   []string `json:"urls"`
}

type addTaskResponse struct {
	TaskID  *uint64  `json:"task_id,omitempty"`
	TaskIDs []uint64 `json:"task_ids,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// AddTask handles POST /add_task. It accepts either a single "rss_url"
// or a batch "urls" array in the request body. A single URL is
// enqueued without blocking: a full inbox or an in-progress shutdown
// both come back as 503, distinguished only by response body, per the
// external interface contract. A batch waits up to the task manager's
// submit timeout per URL on a full inbox, and answers 202 with per-URL
// ids and errors if any URL was accepted, 503 if none was.
func (h *Handler) AddTask(c *gin.Context) {
	var req addTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.RSSURL == "" && len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must include \"rss_url\" or \"urls\""})
		return
	}

	if req.RSSURL != "" {
		h.addSingle(c, req.RSSURL)
		return
	}
	h.addBatch(c, req.URLs)
}

func (h *Handler) addSingle(c *gin.Context, rawURL string) {
	id, err := h.tasks.TrySubmitTask(rawURL)
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	taskID := uint64(id)
	c.JSON(http.StatusAccepted, addTaskResponse{TaskID: &taskID})
}

func (h *Handler) addBatch(c *gin.Context, urls []string) {
	ids, errsOut := h.tasks.SubmitBatch(c.Request.Context(), urls)
	resp := addTaskResponse{
		TaskIDs: make([]uint64, len(ids)),
		Errors:  make([]string, len(errsOut)),
	}
	anyOK := false
	for i, id := range ids {
		resp.TaskIDs[i] = uint64(id)
		if errsOut[i] == nil {
			anyOK = true
		} else {
			resp.Errors[i] = errsOut[i].Error()
		}
	}

	status := http.StatusAccepted
	if !anyOK && len(urls) > 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func writeSubmitError(c *gin.Context, err error) {
	var infraErr *errs.InfraError
	if errors.As(err, &infraErr) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": infraErr.Error(), "kind": infraErr.Kind})
		return
	}

	var domainErr *errs.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domainErr.Error(), "kind": domainErr.Kind})
		return
	}

	slog.Error("unexpected error submitting task", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// Healthz handles GET /healthz: a bare liveness probe with no
// dependency on the task manager's internal state.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
