package interfaces

import (
	"context"
	"testing"
	"time"
)

// TestServiceInterface tests the basic Service interface contract
func TestServiceInterface(t *testing.T) {
	ctx := context.Background()

	t.Run("Service lifecycle", func(t *testing.T) {
		var service Service = &MockService{}

		err := service.Start(ctx)
		if err != nil {
			t.Errorf("Start() should not return error for valid service, got: %v", err)
		}

		health := service.Health()
		if health.Status != StatusHealthy {
			t.Errorf("Health() should return healthy after successful start, got: %v", health.Status)
		}

		err = service.Stop(ctx)
		if err != nil {
			t.Errorf("Stop() should not return error for running service, got: %v", err)
		}

		health = service.Health()
		if health.Status != StatusStopped {
			t.Errorf("Health() should return stopped after stop, got: %v", health.Status)
		}
	})

	t.Run("Service info", func(t *testing.T) {
		service := &MockService{}

		info := service.Info()
		if info.Name == "" {
			t.Error("Info().Name should not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version should not be empty")
		}
		if info.Type == "" {
			t.Error("Info().Type should not be empty")
		}
	})

	t.Run("Service capabilities", func(t *testing.T) {
		service := &MockService{}

		capabilities := service.Capabilities()
		if len(capabilities) == 0 {
			t.Error("Capabilities() should return at least one capability")
		}

		for _, c := range capabilities {
			if c.Type == "" {
				t.Error("Capability.Type should not be empty")
			}
		}
	})
}

func TestWorst(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"No statuses", nil, StatusHealthy},
		{"All healthy", []HealthStatus{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"Warning wins over healthy", []HealthStatus{StatusHealthy, StatusWarning}, StatusWarning},
		{"Error wins over everything", []HealthStatus{StatusStopped, StatusError, StatusWarning}, StatusError},
		{"Stopped wins over warning", []HealthStatus{StatusWarning, StatusStopped}, StatusStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Worst(tt.statuses...); got != tt.want {
				t.Errorf("Worst() = %v, want %v", got, tt.want)
			}
		})
	}
}

type MockService struct {
	isRunning bool
}

func (m *MockService) Start(ctx context.Context) error {
	m.isRunning = true
	return nil
}

func (m *MockService) Stop(ctx context.Context) error {
	m.isRunning = false
	return nil
}

func (m *MockService) Health() ServiceHealth {
	status := StatusStopped
	message := "Mock service is stopped"

	if m.isRunning {
		status = StatusHealthy
		message = "Mock service is healthy"
	}

	return ServiceHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (m *MockService) Info() ServiceInfo {
	return ServiceInfo{
		Name:    "mock-rotator",
		Version: "0.1.0",
		Type:    "rotation",
	}
}

func (m *MockService) Capabilities() []Capability {
	return []Capability{
		{Type: CapabilityAutoRotate, Supported: true},
	}
}
