// Package connectivity reports whether the remote backend is reachable.
//
// The monitor is purely an observation service: it probes, records the
// current state and notifies subscribers of transitions. It never retries
// or queues work itself; the sync engine consumes it to branch its
// online/offline code paths.
package connectivity

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Config holds monitor configuration.
type Config struct {
	// ProbeAddr is the host:port dialed to decide reachability.
	ProbeAddr string

	// ProbeInterval is how often to re-probe.
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single dial attempt.
	ProbeTimeout time.Duration

	// Logger for state transitions.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 15 * time.Second,
		ProbeTimeout:  3 * time.Second,
		Logger:        log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor tracks online/offline state and fans transitions out to
// subscribers.
type Monitor struct {
	config *Config

	// probe is injectable for tests; defaults to a TCP dial.
	probe func() bool

	mu      sync.Mutex
	online  bool
	manual  bool
	subs    map[int]chan bool
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor. The initial state is offline until the first
// probe succeeds or SetOnline is called.
func New(config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}

	m := &Monitor{
		config: config,
		subs:   make(map[int]chan bool),
	}
	m.probe = m.dialProbe
	return m
}

// NewManual creates a monitor with a fixed state and no probing, used by
// the CLI's explicit offline mode and by tests.
func NewManual(online bool) *Monitor {
	m := New(DefaultConfig())
	m.manual = true
	m.online = online
	return m
}

// Start begins periodic probing. It returns immediately; probing runs in
// the background until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manual || m.ctx != nil {
		return
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.probeLoop()
}

// Stop ends probing and waits for the probe goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.ctx, m.cancel = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline overrides the state manually and notifies subscribers. Once
// called, periodic probing no longer updates the state.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	m.manual = true
	changed := m.online != online
	m.online = online
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if changed {
		m.notify(subs, online)
	}
}

// Subscribe returns a channel receiving the new state on every
// transition, and a cancel function that must be called when done. Slow
// subscribers miss intermediate transitions rather than blocking the
// monitor.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
	return ch, cancel
}

func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	// Probe once immediately so callers don't wait a full interval for
	// the initial state.
	m.record(m.probe())

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.record(m.probe())
		}
	}
}

func (m *Monitor) record(online bool) {
	m.mu.Lock()
	if m.manual {
		m.mu.Unlock()
		return
	}
	changed := m.online != online
	m.online = online
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if changed {
		m.config.Logger.Printf("Connectivity changed: online=%v", online)
		m.notify(subs, online)
	}
}

// snapshotSubs must be called with mu held.
func (m *Monitor) snapshotSubs() []chan bool {
	subs := make([]chan bool, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	return subs
}

func (m *Monitor) notify(subs []chan bool, online bool) {
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drop the stale value so the latest state wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

func (m *Monitor) dialProbe() bool {
	if m.config.ProbeAddr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", m.config.ProbeAddr, m.config.ProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
