package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vhvplatform/go-esign-delivery-service/internal/scheduler"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
)

const readyTimeout = 2 * time.Second

// JobRunner is the scheduler surface exposed to operators
type JobRunner interface {
	Status() scheduler.Status
	RunNow(ctx context.Context, name string) (any, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler serves health, readiness, scheduler status and manual job runs
type OpsHandler struct {
	jobs   JobRunner
	checks map[string]Pinger
	log    *logger.Logger
}

// NewOpsHandler creates a new ops handler. checks maps dependency names to
// their probes.
func NewOpsHandler(jobs JobRunner, checks map[string]Pinger, log *logger.Logger) *OpsHandler {
	return &OpsHandler{
		jobs:   jobs,
		checks: checks,
		log:    log,
	}
}

// Register mounts the ops routes on router
func (h *OpsHandler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/status", h.Status)
	router.POST("/jobs/:name/run", h.RunJob)
}

// Health reports liveness
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready pings every dependency and reports the ones that failed
func (h *OpsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		h.log.Warn("Readiness check failed", "dependencies", names)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failed": failed})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Status returns the scheduler mode and per-job mechanism
func (h *OpsHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Status())
}

// RunJob runs a job once and returns its summary
func (h *OpsHandler) RunJob(c *gin.Context) {
	name := c.Param("name")

	result, err := h.jobs.RunNow(context.WithoutCancel(c.Request.Context()), name)
	switch {
	case err == nil:
		h.log.Info("Job triggered manually", "job", name)
		c.JSON(http.StatusOK, gin.H{"job": name, "result": result})
	case errors.Is(err, scheduler.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_job", "message": err.Error()})
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "already_running", "message": err.Error()})
	default:
		h.log.Error("Manual job run failed", "job", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job_failed", "message": err.Error(), "result": result})
	}
}
