package jobs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"surgeval-backend/internal/shared/server/middleware"
	"surgeval-backend/internal/shared/server/respond"
	"surgeval-backend/internal/shared/telemetry"
)

// Handler exposes the job lifecycle over HTTP.
type Handler struct {
	Service *Service
}

// Register mounts the public job routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/jobs", h.submit)
	r.GET("/jobs/:id", h.status)
	r.PUT("/jobs/:id/override", h.override)
	r.POST("/jobs/:id/finalize", h.finalize)
	r.POST("/jobs/:id/notify", h.notify)
	r.DELETE("/jobs/:id", h.delete)
	r.GET("/evaluations", h.listCompleted)
	r.GET("/procedures", h.listProcedures)
}

// RegisterInternal mounts the authenticated process trigger.
func (h *Handler) RegisterInternal(r gin.IRouter) {
	r.POST("/jobs/:id/process", h.process)
}

func (h *Handler) submit(c *gin.Context) {
	var in SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	job, err := h.Service.Submit(c.Request.Context(), in, middleware.RequestIDFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Set("jobId", job.ID)
	c.Set("procedureId", job.ProcedureID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

type statusResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  any    `json:"error,omitempty"`
}

func (h *Handler) status(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	job, err := h.Service.Status(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := statusResponse{ID: job.ID, Status: job.Status}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	if job.Status == StatusFailed {
		resp.Error = gin.H{
			"code":    job.ErrorCode,
			"message": job.ErrorMessage,
		}
	}
	respond.OK(c, resp)
}

func (h *Handler) override(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	var in OverrideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if err := h.Service.ApplyOverride(c.Request.Context(), id, in); err != nil {
		h.respondError(c, err)
		return
	}
	respond.OK(c, gin.H{"id": id, "updated": true})
}

func (h *Handler) finalize(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	if err := h.Service.Finalize(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	respond.OK(c, gin.H{"id": id, "finalized": true})
}

type notifyRequest struct {
	Recipient string `json:"recipient"`
}

func (h *Handler) notify(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	var in notifyRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if err := h.Service.Notify(c.Request.Context(), id, in.Recipient); err != nil {
		h.respondError(c, err)
		return
	}
	respond.OK(c, gin.H{"id": id, "sent": true})
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	if err := h.Service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCompleted(c *gin.Context) {
	summaries, err := h.Service.ListCompleted(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond.OK(c, gin.H{"evaluations": summaries})
}

func (h *Handler) listProcedures(c *gin.Context) {
	respond.OK(c, gin.H{"procedures": h.Service.Rubrics.List()})
}

// process is the authenticated internal trigger. It answers 202 immediately
// and runs the pipeline in the background; duplicate triggers are no-ops
// thanks to the atomic claim.
func (h *Handler) process(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)
	if _, err := h.Service.Status(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	retry := c.Query("retry") == "1" || strings.EqualFold(c.Query("retry"), "true")
	requestID := middleware.RequestIDFromContext(c)

	go func() {
		ctx, cancel := newProcessContext(h.Service)
		defer cancel()
		if err := h.Service.Process(ctx, id, retry); err != nil {
			telemetry.Error("job.process_error", map[string]any{
				"request_id": requestID,
				"job_id":     id,
				"error":      err.Error(),
			})
		}
	}()

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":     id,
		"status":    "accepted",
		"requestId": requestID,
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ErrPrecondition):
		respond.Error(c, http.StatusPreconditionFailed, "precondition_failed", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
	}
}
