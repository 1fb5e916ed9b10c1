package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/runs"
	"github.com/use-agent/appraise/site"
)

// PostRun returns a handler for POST /api/v1/runs.
// URLs are validated against the site registry before the run is queued.
func PostRun(m *runs.Manager, reg *site.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid request: "+err.Error())
			return
		}

		for i, raw := range req.URLs {
			raw = strings.TrimSpace(raw)
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				fail(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "not an absolute http(s) url: "+raw)
				return
			}
			if _, ok := reg.Resolve(raw); !ok {
				fail(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "no site profile for "+u.Host)
				return
			}
			req.URLs[i] = raw
		}

		run, err := m.Submit(req.URLs, req.Screenshots)
		if errors.Is(err, runs.ErrQueueFull) {
			fail(c, http.StatusServiceUnavailable, models.ErrCodeRateLimited, "run queue is full, try again later")
			return
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
			return
		}

		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:     run.ID,
			Status: models.RunQueued,
			Total:  len(run.URLs),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
// Records are omitted with ?records=false.
func GetRun(m *runs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := m.Get(c.Param("id"))
		if err != nil {
			runError(c, err)
			return
		}
		c.JSON(http.StatusOK, run.Status(c.Query("records") != "false"))
	}
}

// ResumeRun returns a handler for POST /api/v1/runs/:id/resume.
func ResumeRun(m *runs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := m.Resume(id); err != nil {
			runError(c, err)
			return
		}
		run, err := m.Get(id)
		if err != nil {
			runError(c, err)
			return
		}
		c.JSON(http.StatusOK, run.Status(false))
	}
}

// StopRun returns a handler for POST /api/v1/runs/:id/stop.
func StopRun(m *runs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := m.Stop(id); err != nil {
			runError(c, err)
			return
		}
		run, err := m.Get(id)
		if err != nil {
			runError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, run.Status(false))
	}
}

func runError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, runs.ErrNotFound):
		fail(c, http.StatusNotFound, models.ErrCodeNotFound, "run not found")
	case errors.Is(err, runs.ErrNoPending):
		fail(c, http.StatusConflict, models.ErrCodeInvalidInput, "run is not waiting for an operator")
	case errors.Is(err, runs.ErrFinished):
		fail(c, http.StatusConflict, models.ErrCodeInvalidInput, "run already finished")
	default:
		fail(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
	}
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: message},
	})
}
