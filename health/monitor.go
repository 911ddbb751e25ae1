package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mode is the operating mode of a capability group or the whole hub.
type Mode int32

const (
	Healthy Mode = iota
	Degraded
)

func (m Mode) String() string {
	if m == Degraded {
		return "degraded"
	}
	return "healthy"
}

// Prober is the liveness boundary a capability group exposes. Only the
// monitor calls it.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc struct {
	GroupName string
	Fn        func(ctx context.Context) error
}

func (p ProberFunc) Name() string                    { return p.GroupName }
func (p ProberFunc) Probe(ctx context.Context) error { return p.Fn(ctx) }

// Config configures the monitor.
type Config struct {
	// Interval between probe rounds.
	Interval time.Duration `yaml:"interval" json:"interval" env:"INTERVAL"`

	// ProbeTimeout bounds a single probe; a timed-out probe is a failure.
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout" env:"PROBE_TIMEOUT"`

	// FailThreshold is the consecutive-failure count that degrades a group.
	FailThreshold int `yaml:"fail_threshold" json:"fail_threshold" env:"FAIL_THRESHOLD"`

	// RecoverThreshold is the consecutive-success count that recovers one.
	RecoverThreshold int `yaml:"recover_threshold" json:"recover_threshold" env:"RECOVER_THRESHOLD"`
}

// DefaultConfig returns the monitor defaults. The 30s interval matches the
// reconnect cadence the hub's capabilities expect.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		ProbeTimeout:     5 * time.Second,
		FailThreshold:    3,
		RecoverThreshold: 2,
	}
}

type group struct {
	prober   Prober
	critical bool

	mu               sync.Mutex
	state            Mode
	failures         int
	successes        int
	lastTransitionAt time.Time
}

// GroupState is a point-in-time view of one group, for the status surface.
type GroupState struct {
	Name             string    `json:"name"`
	Critical         bool      `json:"critical"`
	State            string    `json:"state"`
	Failures         int       `json:"consecutive_failures"`
	Successes        int       `json:"consecutive_successes"`
	LastTransitionAt time.Time `json:"last_transition_at,omitempty"`
}

// Monitor probes registered groups and maintains the global mode.
type Monitor struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	groups map[string]*group
	subs   []chan Mode

	mode   atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. Register groups before Start.
func NewMonitor(config Config, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if config.FailThreshold <= 0 {
		config.FailThreshold = DefaultConfig().FailThreshold
	}
	if config.RecoverThreshold <= 0 {
		config.RecoverThreshold = DefaultConfig().RecoverThreshold
	}
	return &Monitor{
		config: config,
		logger: logger.With(zap.String("component", "health_monitor")),
		groups: make(map[string]*group),
	}
}

// Register adds a capability group. Critical groups degrade the global mode;
// non-critical groups are tracked but never flip it.
func (m *Monitor) Register(p Prober, critical bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[p.Name()] = &group{prober: p, critical: critical, state: Healthy}
	m.logger.Info("registered capability group",
		zap.String("group", p.Name()),
		zap.Bool("critical", critical))
}

// Start runs an immediate probe round and then probes on the configured
// interval until Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		// Startup round so the hub does not serve traffic on an
		// unverified assumption of health.
		m.probeAll(loopCtx)

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.probeAll(loopCtx)
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// Mode returns the current global mode. Non-blocking.
func (m *Monitor) Mode() Mode {
	return Mode(m.mode.Load())
}

// Subscribe returns a channel receiving the new global mode on every
// edge transition. The channel is buffered; a slow subscriber misses
// intermediate flips but always observes the latest state eventually.
func (m *Monitor) Subscribe() <-chan Mode {
	ch := make(chan Mode, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// ReportResult feeds a live-call outcome into a group's hysteresis
// accounting. The router calls this so that capability timeouts observed on
// the request path count the same as probe failures.
func (m *Monitor) ReportResult(groupName string, success bool) {
	m.mu.RLock()
	g, ok := m.groups[groupName]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.applyResult(g, success)
}

// GroupStates returns a snapshot of every registered group.
func (m *Monitor) GroupStates() []GroupState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]GroupState, 0, len(m.groups))
	for name, g := range m.groups {
		g.mu.Lock()
		states = append(states, GroupState{
			Name:             name,
			Critical:         g.critical,
			State:            g.state.String(),
			Failures:         g.failures,
			Successes:        g.successes,
			LastTransitionAt: g.lastTransitionAt,
		})
		g.mu.Unlock()
	}
	return states
}

func (m *Monitor) probeAll(ctx context.Context) {
	m.mu.RLock()
	groups := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	var eg errgroup.Group
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
			defer cancel()
			err := g.prober.Probe(probeCtx)
			m.applyResult(g, err == nil)
			return nil
		})
	}
	_ = eg.Wait()
}

func (m *Monitor) applyResult(g *group, success bool) {
	g.mu.Lock()
	if success {
		g.successes++
		g.failures = 0
		if g.state == Degraded && g.successes >= m.config.RecoverThreshold {
			g.state = Healthy
			g.lastTransitionAt = time.Now()
			m.logger.Info("capability group recovered",
				zap.String("group", g.prober.Name()),
				zap.Int("consecutive_successes", g.successes))
		}
	} else {
		g.failures++
		g.successes = 0
		if g.state == Healthy && g.failures >= m.config.FailThreshold {
			g.state = Degraded
			g.lastTransitionAt = time.Now()
			m.logger.Warn("capability group degraded",
				zap.String("group", g.prober.Name()),
				zap.Int("consecutive_failures", g.failures))
		}
	}
	g.mu.Unlock()

	m.recomputeGlobal()
}

// recomputeGlobal derives the aggregate mode and notifies subscribers on an
// edge. Subscribers read the current mode, never individual probe outcomes,
// so a probe landing mid-call cannot race a routing decision.
func (m *Monitor) recomputeGlobal() {
	next := Healthy
	m.mu.RLock()
	for _, g := range m.groups {
		g.mu.Lock()
		degraded := g.critical && g.state == Degraded
		g.mu.Unlock()
		if degraded {
			next = Degraded
			break
		}
	}
	subs := m.subs
	m.mu.RUnlock()

	prev := Mode(m.mode.Swap(int32(next)))
	if prev == next {
		return
	}

	m.logger.Warn("hub mode transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))

	for _, ch := range subs {
		select {
		case ch <- next:
		default:
		}
	}
}
