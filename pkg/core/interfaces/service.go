package interfaces

import (
	"context"
	"time"
)

// Service defines the basic contract for long-running components hosted by the daemon
type Service interface {
	// Service lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ServiceHealth

	// Service information
	Info() ServiceInfo
	Capabilities() []Capability
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ServiceInfo provides metadata about a service
type ServiceInfo struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Capability describes what a service can do
type Capability struct {
	Type      string                 `json:"type"`
	Supported bool                   `json:"supported"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
	StatusStopped HealthStatus = "stopped"
)

// Capability types reported by rotation services
const (
	CapabilityAutoRotate      = "auto_rotate"
	CapabilityPeriodicRefresh = "periodic_refresh"
	CapabilityPreload         = "preload"
)

// Worst returns the most severe status of statuses
func Worst(statuses ...HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{
		StatusHealthy: 0,
		StatusWarning: 1,
		StatusStopped: 2,
		StatusError:   3,
	}

	worst := StatusHealthy
	for _, status := range statuses {
		if rank[status] > rank[worst] {
			worst = status
		}
	}
	return worst
}
