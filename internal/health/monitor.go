package health

import (
	"sync"
	"time"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
)

// State represents the transport connection state.
type State string

const (
	// Starting means no poll has succeeded yet.
	Starting State = "STARTING"
	// Connected means the last poll succeeded.
	Connected State = "CONNECTED"
	// Retrying means polls are failing and backoff retries are in flight.
	// The connection still counts as up; short outages stay invisible.
	Retrying State = "RETRYING"
	// Degraded means retries were exhausted or the failure cannot heal on
	// its own. Reads fall back to the database until a reconnect.
	Degraded State = "DEGRADED"
)

// Decision tells the poll loop what to do after a failure.
type Decision struct {
	Degrade bool
	Delay   time.Duration
}

// Snapshot is a point-in-time view of connection health.
type Snapshot struct {
	State             State
	IsConnected       bool
	ConsecutiveErrors int
	LastSuccessAt     time.Time
	LastError         string
}

// Monitor tracks consecutive poll failures and decides between backoff and
// degradation. connection.changed events fire only when the observable
// connected flag actually flips, so a blip that recovers within the retry
// budget emits nothing.
type Monitor struct {
	mu          sync.RWMutex
	state       State
	connected   bool
	consecutive int
	lastSuccess time.Time
	lastErr     string

	base        time.Duration
	cap         time.Duration
	maxAttempts int
	bus         *bus.Bus
}

// NewMonitor creates a monitor in Starting state. base and cap bound the
// exponential backoff; maxAttempts is how many consecutive failures are
// retried before the connection degrades.
func NewMonitor(base, cap time.Duration, maxAttempts int, b *bus.Bus) *Monitor {
	return &Monitor{
		state:       Starting,
		base:        base,
		cap:         cap,
		maxAttempts: maxAttempts,
		bus:         b,
	}
}

// RecordSuccess resets the failure counter and marks the connection up.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Connected
	m.consecutive = 0
	m.lastSuccess = time.Now()
	m.lastErr = ""
	if !m.connected {
		m.connected = true
		m.publish(true)
	}
}

// RecordFailure counts one failed poll and returns what to do next. Fatal
// failures degrade immediately; transient ones retry with exponential
// backoff until the attempt budget runs out.
func (m *Monitor) RecordFailure(err error, fatal bool) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutive++
	if err != nil {
		m.lastErr = err.Error()
	}

	if fatal || m.consecutive > m.maxAttempts {
		m.state = Degraded
		if m.connected {
			m.connected = false
			m.publish(false)
		}
		return Decision{Degrade: true}
	}

	m.state = Retrying
	return Decision{Delay: m.backoff(m.consecutive)}
}

// Reset prepares the monitor for a fresh connection attempt. The connected
// flag is left alone so an operator-forced reconnect from a healthy state
// does not emit a spurious disconnect.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Starting
	m.consecutive = 0
	m.lastErr = ""
}

// Health returns the current snapshot.
func (m *Monitor) Health() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:             m.state,
		IsConnected:       m.connected,
		ConsecutiveErrors: m.consecutive,
		LastSuccessAt:     m.lastSuccess,
		LastError:         m.lastErr,
	}
}

// State returns the current state only.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// backoff returns base doubled per prior attempt, capped. Attempt numbers
// start at 1.
func (m *Monitor) backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := m.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cap {
			return m.cap
		}
	}
	if d > m.cap {
		return m.cap
	}
	return d
}

func (m *Monitor) publish(connected bool) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Kind:      bus.KindConnection,
		Timestamp: time.Now(),
		Payload:   bus.ConnectionChange{Connected: connected},
	})
}
