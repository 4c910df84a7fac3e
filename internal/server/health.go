package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   interface{}     `json:"details,omitempty"`
}

// HandleHealth provides a detailed health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleReady reports whether the database answers through the pool.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.cfg.DB == nil || s.cfg.DB.Ping(ctx) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "database unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleLive reports whether the process is running.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now(),
		Version:    s.cfg.Build.Version,
		Components: make(map[string]ComponentHealth),
	}

	health.Components["database"] = s.checkDatabaseHealth(ctx)
	if s.cfg.Assets != nil {
		health.Components["assets"] = s.checkAssetsHealth(ctx)
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

// checkDatabaseHealth pings through the pool and reports its counters.
func (s *Server) checkDatabaseHealth(ctx context.Context) ComponentHealth {
	if s.cfg.DB == nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: "database not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.cfg.DB.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "database ping failed: " + err.Error(),
		}
	}
	latency := time.Since(start).Milliseconds()

	stats := s.cfg.DB.Stats()
	status := ComponentStatusUp
	message := "database healthy"

	switch {
	case latency > 1000:
		status = ComponentStatusDegraded
		message = "database latency high"
	case stats.MaxConns > 0 && stats.AcquiredConns >= stats.MaxConns:
		status = ComponentStatusDegraded
		message = "connection pool exhausted"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency),
		Details:   stats,
	}
}

func (s *Server) checkAssetsHealth(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	details := map[string]string{"backend": s.cfg.Assets.Backend()}
	if err := s.cfg.Assets.Check(ctx); err != nil {
		// The page still renders without its splash image.
		return ComponentHealth{
			Status:  ComponentStatusDegraded,
			Message: "assets unavailable: " + err.Error(),
			Details: details,
		}
	}
	return ComponentHealth{Status: ComponentStatusUp, Message: "assets healthy", Details: details}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var downCount, degradedCount int

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
