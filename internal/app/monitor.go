package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

// DefaultHealthInterval is how often the monitor polls every service
const DefaultHealthInterval = 30 * time.Second

// ServiceStatus is the last health observed for a service
type ServiceStatus struct {
	Status    interfaces.HealthStatus `json:"status"`
	Message   string                  `json:"message,omitempty"`
	Since     time.Time               `json:"since"`
	CheckedAt time.Time               `json:"checked_at"`
}

// HealthMonitor polls service health on a ticker and logs status transitions
type HealthMonitor struct {
	clock    clockwork.Clock
	interval time.Duration
	log      logrus.FieldLogger

	mu       sync.RWMutex
	services map[string]interfaces.Service
	status   map[string]ServiceStatus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a stopped monitor
func NewHealthMonitor(clock clockwork.Clock, interval time.Duration, log logrus.FieldLogger) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthMonitor{
		clock:    clock,
		interval: interval,
		log:      log,
		services: make(map[string]interfaces.Service),
		status:   make(map[string]ServiceStatus),
	}
}

// Register adds or replaces a monitored service
func (m *HealthMonitor) Register(name string, svc interfaces.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[name] = svc
}

// Unregister stops monitoring name and forgets its status
func (m *HealthMonitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, name)
	delete(m.status, name)
}

// Start polls every interval until Stop or ctx is done
func (m *HealthMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ticker := m.clock.NewTicker(m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.Check()
			}
		}
	}()
}

// Stop halts polling
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Check polls every service once
func (m *HealthMonitor) Check() {
	m.mu.RLock()
	names := make([]string, 0, len(m.services))
	services := make(map[string]interfaces.Service, len(m.services))
	for name, svc := range m.services {
		names = append(names, name)
		services[name] = svc
	}
	m.mu.RUnlock()
	sort.Strings(names)

	now := m.clock.Now()
	for _, name := range names {
		health := services[name].Health()
		m.record(name, health, now)
	}
}

func (m *HealthMonitor) record(name string, health interfaces.ServiceHealth, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, still := m.services[name]; !still {
		return
	}

	prev, seen := m.status[name]
	next := ServiceStatus{
		Status:    health.Status,
		Message:   health.Message,
		Since:     now,
		CheckedAt: now,
	}
	if seen && prev.Status == health.Status {
		next.Since = prev.Since
	}
	m.status[name] = next

	if seen && prev.Status == health.Status {
		return
	}

	entry := m.log.WithFields(logrus.Fields{
		"service": name,
		"status":  health.Status,
		"message": health.Message,
	})
	switch {
	case !seen:
		entry.Debug("Service health observed")
	case health.Status == interfaces.StatusHealthy:
		entry.WithField("previous", prev.Status).Info("Service recovered")
	default:
		entry.WithField("previous", prev.Status).Warn("Service health changed")
	}
}

// Statuses returns a copy of the last observed status of every service
func (m *HealthMonitor) Statuses() map[string]ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(m.status))
	for name, status := range m.status {
		out[name] = status
	}
	return out
}
