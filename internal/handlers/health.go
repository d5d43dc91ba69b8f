package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependency is a backing service probed by the readiness check. A nil Ping
// means the service was never connected. Optional dependencies only degrade
// the report: the gallery keeps serving without redis or object storage.
type Dependency struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
}

type HealthHandler struct {
	dependencies []Dependency
	logger       *logrus.Logger
}

func NewHealthHandler(logger *logrus.Logger, dependencies ...Dependency) *HealthHandler {
	return &HealthHandler{
		dependencies: dependencies,
		logger:       logger,
	}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "studio-gallery-server",
	})
}

// ReadinessCheck probes every dependency. Only a failing required one makes
// the service not ready.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ready"
	checks := make(map[string]string, len(h.dependencies))
	for _, dep := range h.dependencies {
		result := "healthy"
		if dep.Ping == nil {
			result = "not connected"
		} else if err := dep.Ping(ctx); err != nil {
			h.logger.WithError(err).WithField("dependency", dep.Name).Warn("Readiness probe failed")
			result = "unhealthy"
		}
		checks[dep.Name] = result

		if result == "healthy" {
			continue
		}
		if dep.Required {
			status = "not ready"
		} else if status == "ready" {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "not ready" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// LivenessCheck checks if the service is alive
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}
