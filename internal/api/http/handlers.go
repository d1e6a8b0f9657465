package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/domain/registry"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
)

// Handlers exposes the application registry over HTTP.
type Handlers struct {
	registry *registry.Manager
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(reg *registry.Manager, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handlers{
		registry: reg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register attaches all routes to a router group.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/metrics/summary", h.MetricsSummary)

	apps := r.Group("/apps")
	apps.POST("", h.Mount)
	apps.GET("", h.List)
	apps.GET("/:name", h.Get)
	apps.DELETE("/:name", h.Unmount)
	apps.POST("/:name/exec", h.Exec)
	apps.POST("/:name/snapshot/record", h.RecordSnapshot)
	apps.POST("/:name/snapshot/rebuild", h.RebuildSnapshot)
}

type mountRequest struct {
	Name       string `json:"name" binding:"required"`
	URL        string `json:"url"`
	BaseRoute  string `json:"base_route"`
	PublicPath string `json:"public_path"`
	UMD        bool   `json:"umd"`
	Script     string `json:"script"`
}

type execRequest struct {
	Script string `json:"script" binding:"required"`
}

type execResponse struct {
	Value      interface{} `json:"value,omitempty"`
	Console    interface{} `json:"console,omitempty"`
	DurationMs float64     `json:"duration_ms"`
}

// Health reports service liveness and registry counts.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"total_apps":  stats.TotalApps,
		"active_apps": stats.ActiveApps,
	})
}

// MetricsSummary returns the JSON metric snapshot.
func (h *Handlers) MetricsSummary(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}

// Mount registers and starts an application.
func (h *Handlers) Mount(c *gin.Context) {
	var req mountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.registry.Mount(c.Request.Context(), registry.MountSpec{
		Name:       req.Name,
		URL:        req.URL,
		BaseRoute:  req.BaseRoute,
		PublicPath: req.PublicPath,
		UMD:        req.UMD,
		Script:     req.Script,
	})
	if err != nil {
		h.logger.Warn("Mount failed", zap.String("app", req.Name), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, app)
}

// List returns every registered application.
func (h *Handlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"apps": h.registry.List()})
}

// Get returns one application.
func (h *Handlers) Get(c *gin.Context) {
	app, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app)
}

// Unmount stops an application. Query parameters keep_route_state and
// destroy refine the teardown.
func (h *Handlers) Unmount(c *gin.Context) {
	name := c.Param("name")
	keep := c.Query("keep_route_state") == "true"
	destroy := c.Query("destroy") == "true"

	if err := h.registry.Unmount(name, keep, destroy); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unmounted": name})
}

// Exec runs a script inside an application's sandbox.
func (h *Handlers) Exec(c *gin.Context) {
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registry.Exec(c.Request.Context(), c.Param("name"), req.Script)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, execResponse{
		Value:      result.Value,
		Console:    result.Console,
		DurationMs: float64(result.Duration.Microseconds()) / 1000.0,
	})
}

// RecordSnapshot captures an application's singleton snapshot.
func (h *Handlers) RecordSnapshot(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.RecordSnapshot(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": name})
}

// RebuildSnapshot replays an application's recorded snapshot.
func (h *Handlers) RebuildSnapshot(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.RebuildSnapshot(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rebuilt": name})
}

// statusFor maps registry errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrAppNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAppActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
