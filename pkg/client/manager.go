// ABOUTME: Process-wide audio context
// ABOUTME: Owns device opener, session registry, scheduler, probe cache and metrics
package client

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-engine/internal/metrics"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/engine"
	"github.com/Resonate-Protocol/resonate-engine/pkg/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager is the audio subsystem context. It is created at startup, shared
// by every client and torn down with Close.
type Manager struct {
	mu sync.Mutex

	config    Config
	opener    device.Opener
	sessions  *session.Registry
	scheduler *engine.Scheduler
	probes    *negotiate.Cache
	metrics   *metrics.EngineMetrics

	clients map[*Client]struct{}
	closed  bool
}

// NewManager creates the subsystem context around a device opener
func NewManager(config Config, opener device.Opener) (*Manager, error) {
	if opener == nil {
		return nil, fmt.Errorf("%w: nil device opener", ErrInvalidArgument)
	}
	config = config.withDefaults()

	m, err := metrics.NewEngineMetrics(config.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Manager{
		config:    config,
		opener:    opener,
		sessions:  session.NewRegistry(),
		scheduler: engine.NewScheduler(),
		probes:    negotiate.NewCache(config.ProbeCacheTTL),
		metrics:   m,
		clients:   make(map[*Client]struct{}),
	}, nil
}

// Config returns the effective configuration
func (m *Manager) Config() Config { return m.config }

// Metrics returns the engine metrics
func (m *Manager) Metrics() *metrics.EngineMetrics { return m.metrics }

// Sessions returns the session registry
func (m *Manager) Sessions() *session.Registry { return m.sessions }

// NewClient opens a device handle for one stream
func (m *Manager) NewClient(deviceID string, dir device.Direction) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	dev, err := m.opener.Open(deviceID, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceInvalidated, deviceID, err)
	}

	c := &Client{
		id:       uuid.New(),
		manager:  m,
		dev:      dev,
		deviceID: deviceID,
		dir:      dir,
	}
	m.clients[c] = struct{}{}
	m.metrics.SetActiveClients(len(m.clients))

	logrus.WithFields(logrus.Fields{
		"client":    c.id,
		"device":    deviceID,
		"direction": dir,
	}).Debug("Audio client created")

	return c, nil
}

// Clients returns the number of open clients
func (m *Manager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Manager) forget(c *Client) {
	m.mu.Lock()
	delete(m.clients, c)
	n := len(m.clients)
	m.mu.Unlock()

	m.metrics.SetActiveClients(n)
	m.metrics.ForgetClient(c.id.String())
	m.metrics.SetActiveSessions(m.sessions.Len())
}

// probe runs a query-only negotiation on a fresh handle so running streams
// on the same device are not disturbed
func (m *Manager) probe(deviceID string, dir device.Direction, exclusive bool, f audio.Format) (negotiate.Result, error) {
	key := negotiate.Key(fmt.Sprintf("%s/%s", deviceID, dir), exclusive, f)
	return m.probes.Probe(key, func() (negotiate.Result, error) {
		dev, err := m.opener.Open(deviceID, dir)
		if err != nil {
			return negotiate.Result{Verdict: negotiate.Unsupported}, fmt.Errorf("%w: open %s: %v", ErrDeviceInvalidated, deviceID, err)
		}
		defer dev.Close()

		return negotiate.Propose(dev, f, true)
	})
}

// Close closes every client and shuts the subsystem down
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.scheduler.Close()
	m.sessions.Close()
	m.probes.Flush()

	logrus.WithField("clients", len(clients)).Debug("Audio manager closed")
	return firstErr
}
