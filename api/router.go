// Package api exposes the HTTP intake surface: audit enqueue and
// status, health, and Prometheus metrics.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storelens/storelens/api/handler"
	"github.com/storelens/storelens/api/middleware"
	"github.com/storelens/storelens/config"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/store"
	"github.com/storelens/storelens/worker"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics are intentionally outside auth so monitoring
// probes always work.
func NewRouter(db *store.Store, queue worker.Queue, registry *policy.Registry, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(queue, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/audits", handler.PostAudit(db, queue, registry, cfg.Policy.Version, cfg.Locking.DisableLocks))
	protected.GET("/audits/:id", handler.GetAudit(db))

	return r
}
