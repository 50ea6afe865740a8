// Package documents exposes the job pipeline over HTTP: upload, status, content, progress
// stream and history.
package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"studykit-backend/internal/history"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/pipeline"
	"studykit-backend/internal/shared/config"
	"studykit-backend/internal/shared/server/middleware"
	"studykit-backend/internal/shared/server/respond"
	"studykit-backend/internal/shared/util"
)

const (
	// multipartOverhead covers boundaries and part headers on top of the file itself.
	multipartOverhead = 1 << 20
	heartbeatInterval = 15 * time.Second
)

// JobService is the slice of the pipeline the handlers depend on.
type JobService interface {
	Accept(ctx context.Context, up pipeline.Upload) (pipeline.Receipt, error)
	Status(ctx context.Context, jobID, ownerID string) (jobs.Job, error)
	Content(ctx context.Context, jobID, ownerID string) (pipeline.Content, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]history.Entry, error)
	Hub() *pipeline.Hub
	Limits() config.Limits
}

// Handler wires HTTP handlers to the pipeline.
type Handler struct {
	Svc JobService
}

// NewHandler constructs a Handler.
func NewHandler(svc JobService) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.upload)
	rg.GET("/jobs/history", h.history)
	rg.GET("/jobs/:id", h.status)
	rg.GET("/jobs/:id/content", h.content)
	rg.GET("/jobs/:id/events", h.events)
}

func (h *Handler) maxFileBytes() int64 {
	limits := h.Svc.Limits()
	var largest int64
	for _, kind := range jobs.Kinds {
		if n := limits.For(kind).MaxBytes; n > largest {
			largest = n
		}
	}
	return largest
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	maxFile := h.maxFileBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFile+multipartOverhead)

	// The multipart stream is read part by part so the file never spills to a temp file.
	reader, err := c.Request.MultipartReader()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart body is required", nil)
		return
	}

	var (
		filename    string
		contentType string
		data        []byte
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			uploadReadError(c, err, maxFile)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		filename = part.FileName()
		contentType = part.Header.Get("Content-Type")
		data, err = io.ReadAll(io.LimitReader(part, maxFile+1))
		_ = part.Close()
		if err != nil {
			util.Zero(data)
			uploadReadError(c, err, maxFile)
			return
		}
		break
	}
	if data == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	defer util.Zero(data)

	receipt, err := h.Svc.Accept(c.Request.Context(), pipeline.Upload{
		OwnerID:     userID,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnsupportedType):
			respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_type", err.Error(), nil)
		case errors.Is(err, jobs.ErrTooLarge):
			respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", err.Error(), nil)
		case errors.Is(err, pipeline.ErrInvalidUpload):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to accept upload", nil)
		}
		return
	}

	c.Set("jobId", receipt.JobID)
	if job, err := h.Svc.Status(c.Request.Context(), receipt.JobID, userID); err == nil {
		c.Set("jobKind", string(job.Kind))
	}
	respond.JSON(c, http.StatusAccepted, receipt)
}

func uploadReadError(c *gin.Context, err error, maxFile int64) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large",
			"file exceeds size limit of "+humanize.IBytes(uint64(maxFile)), nil)
		return
	}
	respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
}

func (h *Handler) status(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	job, err := h.Svc.Status(c.Request.Context(), jobID, userID)
	if err != nil {
		lookupError(c, err, "failed to fetch job")
		return
	}
	c.Set("jobKind", string(job.Kind))
	respond.NoStore(c)
	respond.OK(c, toJobResponse(job))
}

func (h *Handler) content(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	content, err := h.Svc.Content(c.Request.Context(), jobID, userID)
	if err != nil {
		lookupError(c, err, "failed to fetch content")
		return
	}
	c.Set("jobKind", string(content.Kind))
	respond.NoStore(c)

	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(content.Text))
		return
	}
	respond.OK(c, toContentResponse(content))
}

func lookupError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
	case errors.Is(err, pipeline.ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "job belongs to another user", nil)
	case errors.Is(err, pipeline.ErrExpired):
		respond.Error(c, http.StatusGone, "expired", "content has expired", nil)
	case errors.Is(err, pipeline.ErrNotReady):
		respond.Error(c, http.StatusConflict, "not_ready", "job is still processing", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func (h *Handler) events(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	job, err := h.Svc.Status(c.Request.Context(), jobID, userID)
	if err != nil {
		lookupError(c, err, "failed to fetch job")
		return
	}

	hub := h.Svc.Hub()
	// Subscribe before replaying the last event so nothing published in between is lost.
	events, cancel := hub.Subscribe(pipeline.ForJob(jobID))
	defer cancel()

	respond.NoStore(c)
	c.Header("X-Accel-Buffering", "no")

	last, ok := hub.Last(jobID)
	if !ok && job.Phase.Terminal() {
		// The hub already forgot this job; replay its final state from the record.
		last, ok = pipeline.Event{
			JobID:    job.ID,
			Phase:    job.Phase,
			Progress: job.Phase.Progress(),
			Error:    job.Error,
			At:       job.UpdatedAt,
		}, true
	}
	if ok {
		c.SSEvent("progress", last)
		c.Writer.Flush()
		if last.Phase.Terminal() {
			return
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return !ev.Phase.Terminal()
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handler) history(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 50 {
		limit = 50
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.Svc.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}

	respond.OK(c, toHistoryItems(entries))
}
