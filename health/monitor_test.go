package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyProber fails while failing is true.
type flakyProber struct {
	name    string
	failing atomic.Bool
	calls   atomic.Int64
}

func (p *flakyProber) Name() string { return p.name }

func (p *flakyProber) Probe(ctx context.Context) error {
	p.calls.Add(1)
	if p.failing.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	return NewMonitor(Config{
		Interval:         time.Hour, // driven manually via ReportResult
		ProbeTimeout:     time.Second,
		FailThreshold:    3,
		RecoverThreshold: 2,
	}, zap.NewNop())
}

func TestMonitor_HysteresisDown(t *testing.T) {
	m := newTestMonitor(t)
	p := &flakyProber{name: "inventory"}
	m.Register(p, true)

	// A single failure followed by a success never degrades (F_down=3).
	m.ReportResult("inventory", false)
	m.ReportResult("inventory", true)
	assert.Equal(t, Healthy, m.Mode())

	// Two failures are still below threshold.
	m.ReportResult("inventory", false)
	m.ReportResult("inventory", false)
	assert.Equal(t, Healthy, m.Mode())

	// A success resets the failure streak.
	m.ReportResult("inventory", true)
	m.ReportResult("inventory", false)
	m.ReportResult("inventory", false)
	assert.Equal(t, Healthy, m.Mode())

	// Three consecutive failures degrade.
	m.ReportResult("inventory", false)
	assert.Equal(t, Degraded, m.Mode())
}

func TestMonitor_HysteresisUp(t *testing.T) {
	m := newTestMonitor(t)
	m.Register(&flakyProber{name: "orders"}, true)

	for i := 0; i < 3; i++ {
		m.ReportResult("orders", false)
	}
	require.Equal(t, Degraded, m.Mode())

	// One success is not enough (F_up=2).
	m.ReportResult("orders", true)
	assert.Equal(t, Degraded, m.Mode())

	m.ReportResult("orders", true)
	assert.Equal(t, Healthy, m.Mode())
}

func TestMonitor_NonCriticalGroupNeverFlipsGlobal(t *testing.T) {
	m := newTestMonitor(t)
	m.Register(&flakyProber{name: "campaigns"}, false)

	for i := 0; i < 10; i++ {
		m.ReportResult("campaigns", false)
	}
	assert.Equal(t, Healthy, m.Mode())

	states := m.GroupStates()
	require.Len(t, states, 1)
	assert.Equal(t, "degraded", states[0].State)
}

func TestMonitor_SubscribeEdgeTriggered(t *testing.T) {
	m := newTestMonitor(t)
	m.Register(&flakyProber{name: "inventory"}, true)
	ch := m.Subscribe()

	for i := 0; i < 3; i++ {
		m.ReportResult("inventory", false)
	}
	select {
	case mode := <-ch:
		assert.Equal(t, Degraded, mode)
	case <-time.After(time.Second):
		t.Fatal("expected a degraded notification")
	}

	// Steady state produces no further notifications.
	m.ReportResult("inventory", false)
	select {
	case mode := <-ch:
		t.Fatalf("unexpected notification %v", mode)
	case <-time.After(50 * time.Millisecond):
	}

	m.ReportResult("inventory", true)
	m.ReportResult("inventory", true)
	select {
	case mode := <-ch:
		assert.Equal(t, Healthy, mode)
	case <-time.After(time.Second):
		t.Fatal("expected a recovery notification")
	}
}

func TestMonitor_ProbeLoop(t *testing.T) {
	m := NewMonitor(Config{
		Interval:         10 * time.Millisecond,
		ProbeTimeout:     time.Second,
		FailThreshold:    3,
		RecoverThreshold: 2,
	}, zap.NewNop())
	p := &flakyProber{name: "inventory"}
	p.failing.Store(true)
	m.Register(p, true)

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Mode() == Degraded
	}, 2*time.Second, 5*time.Millisecond)

	p.failing.Store(false)
	require.Eventually(t, func() bool {
		return m.Mode() == Healthy
	}, 2*time.Second, 5*time.Millisecond)

	assert.Greater(t, p.calls.Load(), int64(4))
}

func TestMonitor_ReportUnknownGroupIsNoop(t *testing.T) {
	m := newTestMonitor(t)
	m.ReportResult("ghost", false)
	assert.Equal(t, Healthy, m.Mode())
}
