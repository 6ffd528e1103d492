package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

// switchableService reports whatever status it was last given
type switchableService struct {
	interfaces.Service
	mu     sync.Mutex
	status interfaces.HealthStatus
}

func (s *switchableService) set(status interfaces.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *switchableService) Health() interfaces.ServiceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return interfaces.ServiceHealth{Status: s.status, Message: string(s.status)}
}

func TestHealthMonitor_Check(t *testing.T) {
	clock := clockwork.NewFakeClockAt(winterDay)
	log, hook := test.NewNullLogger()
	m := NewHealthMonitor(clock, time.Minute, log)

	svc := &switchableService{status: interfaces.StatusHealthy}
	m.Register("about", svc)

	m.Check()
	first := m.Statuses()["about"]
	assert.Equal(t, interfaces.StatusHealthy, first.Status)
	assert.Equal(t, winterDay, first.Since)
	assert.Empty(t, hook.AllEntries(), "First observation is debug only")

	clock.Advance(time.Minute)
	m.Check()
	assert.Equal(t, winterDay, m.Statuses()["about"].Since, "Unchanged status keeps its start time")
	assert.Equal(t, winterDay.Add(time.Minute), m.Statuses()["about"].CheckedAt)

	svc.set(interfaces.StatusError)
	m.Check()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, interfaces.StatusHealthy, hook.LastEntry().Data["previous"])

	svc.set(interfaces.StatusHealthy)
	m.Check()
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "Service recovered", hook.LastEntry().Message)
	assert.Len(t, hook.AllEntries(), 2)

	m.Unregister("about")
	m.Check()
	assert.Empty(t, m.Statuses())
}

func TestHealthMonitor_Ticker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(winterDay)
	log, _ := test.NewNullLogger()
	m := NewHealthMonitor(clock, time.Minute, log)
	m.Register("products", &switchableService{status: interfaces.StatusWarning})

	m.Start(context.Background())
	defer m.Stop()

	assert.Empty(t, m.Statuses())
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		return m.Statuses()["products"].Status == interfaces.StatusWarning
	}, waitFor, tick)

	m.Stop()
	m.Register("hero", &switchableService{status: interfaces.StatusHealthy})
	clock.Advance(time.Minute)
	assert.Never(t, func() bool {
		_, ok := m.Statuses()["hero"]
		return ok
	}, 100*time.Millisecond, tick, "Stopped monitor does not poll")
}
