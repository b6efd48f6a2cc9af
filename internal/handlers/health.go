package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/database"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker handles health check endpoints
type HealthChecker struct {
	db        database.DB
	redis     Pinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewHealthChecker creates a new health checker. redis may be nil when no
// distributed locking is configured.
func NewHealthChecker(db database.DB, redis Pinger, version string) *HealthChecker {
	return &HealthChecker{
		db:        db,
		redis:     redis,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Register registers health check endpoints
func (h *HealthChecker) Register(e *echo.Echo) {
	e.GET("/api/v1/health", h.Health)
	e.GET("/api/v1/health/live", h.Live)
	e.GET("/api/v1/health/ready", h.Ready)
}

// HealthStatus is the health check response
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult is an individual dependency check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status
func (h *HealthChecker) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now().UTC(),
	}

	if h.db != nil {
		start := time.Now()
		if err := h.db.PingContext(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks["database"] = &CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Checks["database"] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
		}
	} else {
		status.Status = "unhealthy"
		status.Checks["database"] = &CheckResult{Status: "unhealthy", Message: "database not configured"}
	}

	if h.redis != nil {
		start := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks["redis"] = &CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Checks["redis"] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, status)
}

// Live returns the liveness status
func (h *HealthChecker) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns whether the service is ready to accept traffic
func (h *HealthChecker) Ready(c echo.Context) error {
	if h.ready.Load() {
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
