package models

import "time"

// Run lifecycle states.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunAwaiting  = "awaiting_operator"
	RunCompleted = "completed"
	RunStopped   = "stopped"
)

// RunRequest is the payload for POST /api/v1/runs.
type RunRequest struct {
	// URLs is the ordered list of listing pages. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=200"`

	// Screenshots toggles evidence capture for this run; nil keeps the
	// server default.
	Screenshots *bool `json:"screenshots,omitempty"`
}

// RunResponse is the immediate response for POST /api/v1/runs.
type RunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// PendingIntervention describes the block a run is paused on.
type PendingIntervention struct {
	URL    string    `json:"url"`
	Site   string    `json:"site"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	ID        string               `json:"id"`
	Status    string               `json:"status"`
	Completed int                  `json:"completed"`
	Total     int                  `json:"total"`
	Pending   *PendingIntervention `json:"pending,omitempty"`
	Records   []*ListingRecord     `json:"records,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     int64  `json:"uptime_seconds"`
	QueuedRuns int    `json:"queued_runs"`
	ActiveRun  string `json:"active_run,omitempty"`
}

// ErrorResponse wraps an ErrorDetail for JSON error bodies.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
