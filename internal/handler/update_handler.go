package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/davomat-bot/internal/dto"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
	"github.com/noah-isme/davomat-bot/pkg/jobs"
	"github.com/noah-isme/davomat-bot/pkg/response"
)

type updateQueue interface {
	Enqueue(job jobs.Job) error
}

// UpdateHandler receives inbound transport updates on the gateway webhook
// and hands them to the worker pool. Processing is asynchronous; the
// transport only needs to know the event was accepted.
type UpdateHandler struct {
	queue updateQueue
}

// NewUpdateHandler constructs the handler.
func NewUpdateHandler(queue updateQueue) *UpdateHandler {
	return &UpdateHandler{queue: queue}
}

// Receive accepts one update.
func (h *UpdateHandler) Receive(c *gin.Context) {
	var upd dto.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload"))
		return
	}
	if upd.Text == "" && upd.Callback == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "update carries neither text nor callback"))
		return
	}

	job := jobs.Job{Type: "update", Payload: upd}
	if err := h.queue.Enqueue(job); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "update queue unavailable"))
		return
	}
	response.Accepted(c, gin.H{"status": "queued"})
}
