package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/appraise/api/handler"
	"github.com/use-agent/appraise/api/middleware"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/runs"
	"github.com/use-agent/appraise/site"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, m *runs.Manager, reg *site.Registry, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		r.Use(gin.Logger())
	}

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(m, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Runs
	protected.POST("/runs", handler.PostRun(m, reg))
	protected.GET("/runs/:id", handler.GetRun(m))
	protected.POST("/runs/:id/resume", handler.ResumeRun(m))
	protected.POST("/runs/:id/stop", handler.StopRun(m))

	return r
}
