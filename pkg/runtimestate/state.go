// Package runtimestate tracks the live state of a running gateway: connected
// clients, per-connector health, counters, and a heartbeat timestamp. One
// Manager is created at startup, updated continuously, and marked stopped
// (best-effort) at shutdown. It is the single answer to the control
// channel's status command.
package runtimestate

import (
	"sync"
	"time"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
)

// ClientState is a client's lifecycle state on the primary channel
type ClientState string

const (
	// ClientActive means the primary channel is open for this client
	ClientActive ClientState = "active"
	// ClientGone means the primary channel has closed
	ClientGone ClientState = "gone"
)

// ClientRecord tracks one client keyed by the name it reported at initialize
type ClientRecord struct {
	ProtocolVersion string      `json:"protocolVersion,omitempty"`
	State           ClientState `json:"state"`
	ToolCallCount   int         `json:"toolCallCount"`
}

// ClientPatch is a partial update merged into a client record
type ClientPatch struct {
	ProtocolVersion *string
	State           *ClientState
}

// ConnectorStatus is the per-connector summary held in runtime state
type ConnectorStatus struct {
	ID        string `json:"id"`
	ToolCount int    `json:"toolCount"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of the runtime state
type Snapshot struct {
	Clients    map[string]ClientRecord `json:"clients"`
	Connectors []ConnectorStatus       `json:"connectors"`
	LogLevel   string                  `json:"logLevel"`
	LogLines   int                     `json:"logLines"`
	Heartbeat  time.Time               `json:"heartbeat"`
	StartedAt  time.Time               `json:"startedAt"`
	Stopped    bool                    `json:"stopped"`
}

// DefaultHeartbeatInterval is the liveness refresh period.
const DefaultHeartbeatInterval = 15 * time.Second

// Manager owns the mutable runtime state. All access goes through explicit
// accessor and mutator operations; there is no global state.
type Manager struct {
	mu         sync.RWMutex
	clients    map[string]*ClientRecord
	connectors []ConnectorStatus
	logLevel   string
	logLines   int
	heartbeat  time.Time
	startedAt  time.Time
	stopped    bool

	interval time.Duration
	logger   logging.Logger

	hbMu   sync.Mutex
	hbStop chan struct{}
	hbDone chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithHeartbeatInterval overrides the heartbeat period
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty runtime state manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clients:   make(map[string]*ClientRecord),
		interval:  DefaultHeartbeatInterval,
		logger:    logging.New(nil, nil),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize seeds the per-connector entries and the log level. Called at
// startup and again after every successful reload.
func (m *Manager) Initialize(connectors []ConnectorStatus, logLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors = make([]ConnectorStatus, len(connectors))
	copy(m.connectors, connectors)
	m.logLevel = logLevel
	m.heartbeat = time.Now()
}

// UpdateClient merges a patch into the record for the named client,
// creating it on first sight.
func (m *Manager) UpdateClient(name string, patch ClientPatch) {
	if name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.clients[name]
	if !ok {
		record = &ClientRecord{State: ClientActive}
		m.clients[name] = record
	}
	if patch.ProtocolVersion != nil {
		record.ProtocolVersion = *patch.ProtocolVersion
	}
	if patch.State != nil {
		record.State = *patch.State
	}
}

// RecordToolCall increments the named client's tool call counter.
func (m *Manager) RecordToolCall(name string) {
	if name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.clients[name]
	if !ok {
		record = &ClientRecord{State: ClientActive}
		m.clients[name] = record
	}
	record.ToolCallCount++
}

// RecordLogLines stores the aggregate log line count. Registered as an
// observer on the logging capture buffer.
func (m *Manager) RecordLogLines(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logLines = total
}

// StartHeartbeat begins refreshing the liveness timestamp on a fixed
// interval. Calling it twice is a no-op until StopHeartbeat.
func (m *Manager) StartHeartbeat() {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()

	if m.hbStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.hbStop = stop
	m.hbDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				m.heartbeat = time.Now()
				m.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	m.mu.Lock()
	m.heartbeat = time.Now()
	m.mu.Unlock()
}

// StopHeartbeat halts the heartbeat goroutine and waits for it to exit.
func (m *Manager) StopHeartbeat() {
	m.hbMu.Lock()
	stop := m.hbStop
	done := m.hbDone
	m.hbStop = nil
	m.hbDone = nil
	m.hbMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// MarkStopped records the terminal transition. Best-effort: it never fails,
// and shutdown paths ignore whatever state it finds.
func (m *Manager) MarkStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for _, record := range m.clients {
		record.State = ClientGone
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make(map[string]ClientRecord, len(m.clients))
	for name, record := range m.clients {
		clients[name] = *record
	}
	connectors := make([]ConnectorStatus, len(m.connectors))
	copy(connectors, m.connectors)

	return Snapshot{
		Clients:    clients,
		Connectors: connectors,
		LogLevel:   m.logLevel,
		LogLines:   m.logLines,
		Heartbeat:  m.heartbeat,
		StartedAt:  m.startedAt,
		Stopped:    m.stopped,
	}
}
