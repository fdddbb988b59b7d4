package system

import (
	"context"
	"time"
)

type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// Pinger is the minimal readiness probe each backend exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service aggregates backend readiness into one health report. Backends
// register under the name the report shows them as.
type Service struct {
	components map[string]Pinger
}

func NewService(components map[string]Pinger) *Service {
	return &Service{components: components}
}

func (s *Service) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus, len(s.components)),
	}

	for name, pinger := range s.components {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := pinger.Ping(pingCtx); err != nil {
			status.Components[name] = StatusDown
			status.Status = "unhealthy"
		} else {
			status.Components[name] = StatusUp
		}
		cancel()
	}

	return status
}
