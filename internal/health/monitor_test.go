package health

import (
	"errors"
	"testing"
	"time"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
)

func testMonitor(b *bus.Bus) *Monitor {
	return NewMonitor(1000*time.Millisecond, 30000*time.Millisecond, 5, b)
}

func TestInitialState(t *testing.T) {
	m := testMonitor(nil)
	h := m.Health()
	if h.State != Starting {
		t.Errorf("state = %s, want STARTING", h.State)
	}
	if h.IsConnected {
		t.Error("IsConnected = true, want false before first success")
	}
}

func TestBackoffSchedule(t *testing.T) {
	m := testMonitor(nil)
	errPoll := errors.New("poll failed")

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for i, wantDelay := range want {
		d := m.RecordFailure(errPoll, false)
		if d.Degrade {
			t.Fatalf("failure %d: Degrade = true, want retry", i+1)
		}
		if d.Delay != wantDelay {
			t.Errorf("failure %d: delay = %v, want %v", i+1, d.Delay, wantDelay)
		}
		if m.State() != Retrying {
			t.Errorf("failure %d: state = %s, want RETRYING", i+1, m.State())
		}
	}

	// Sixth consecutive failure exhausts the budget.
	d := m.RecordFailure(errPoll, false)
	if !d.Degrade {
		t.Fatal("failure 6: Degrade = false, want true")
	}
	if m.State() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.State())
	}
}

func TestBackoffCap(t *testing.T) {
	m := NewMonitor(1000*time.Millisecond, 30000*time.Millisecond, 10, nil)
	errPoll := errors.New("poll failed")

	var last Decision
	for i := 0; i < 7; i++ {
		last = m.RecordFailure(errPoll, false)
	}
	// 1000 << 6 = 64000ms, clamped to the cap.
	if last.Delay != 30000*time.Millisecond {
		t.Errorf("delay = %v, want 30s cap", last.Delay)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	m := testMonitor(nil)
	errPoll := errors.New("poll failed")

	m.RecordFailure(errPoll, false)
	m.RecordFailure(errPoll, false)
	m.RecordSuccess()

	h := m.Health()
	if h.State != Connected {
		t.Errorf("state = %s, want CONNECTED", h.State)
	}
	if h.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", h.ConsecutiveErrors)
	}
	if h.LastError != "" {
		t.Errorf("LastError = %q, want empty", h.LastError)
	}
	if h.LastSuccessAt.IsZero() {
		t.Error("LastSuccessAt is zero after success")
	}

	// Counter restarts from the beginning.
	d := m.RecordFailure(errPoll, false)
	if d.Delay != 1000*time.Millisecond {
		t.Errorf("delay after reset = %v, want 1s", d.Delay)
	}
}

func TestFatalFailureDegradesImmediately(t *testing.T) {
	m := testMonitor(nil)

	d := m.RecordFailure(errors.New("conflict"), true)
	if !d.Degrade {
		t.Fatal("Degrade = false, want true on fatal failure")
	}
	if m.State() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.State())
	}
}

func TestConnectionEventsFlipOnly(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connection.", 16)
	defer unsub()

	m := testMonitor(b)
	errPoll := errors.New("poll failed")

	// First success flips up.
	m.RecordSuccess()
	evt := <-ch
	change, ok := evt.Payload.(bus.ConnectionChange)
	if !ok {
		t.Fatalf("payload type = %T, want ConnectionChange", evt.Payload)
	}
	if !change.Connected {
		t.Error("Connected = false, want true on first success")
	}

	// Failures within the retry budget emit nothing.
	m.RecordFailure(errPoll, false)
	m.RecordFailure(errPoll, false)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s during retries", evt.Kind)
	default:
	}

	// Recovery while still up emits nothing.
	m.RecordSuccess()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s on recovery within budget", evt.Kind)
	default:
	}

	// Degradation flips down exactly once.
	for i := 0; i < 6; i++ {
		m.RecordFailure(errPoll, false)
	}
	evt = <-ch
	if c := evt.Payload.(bus.ConnectionChange); c.Connected {
		t.Error("Connected = true, want false on degrade")
	}

	// Staying degraded emits nothing further.
	m.RecordFailure(errPoll, false)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s while already degraded", evt.Kind)
	default:
	}

	// Coming back up flips again.
	m.RecordSuccess()
	evt = <-ch
	if c := evt.Payload.(bus.ConnectionChange); !c.Connected {
		t.Error("Connected = false, want true on recovery from degraded")
	}
}

func TestResetKeepsConnectedFlag(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connection.", 16)
	defer unsub()

	m := testMonitor(b)
	m.RecordSuccess()
	<-ch // drain the flip-up

	m.Reset()
	h := m.Health()
	if h.State != Starting {
		t.Errorf("state = %s, want STARTING after reset", h.State)
	}
	if !h.IsConnected {
		t.Error("IsConnected = false, want true preserved across reset")
	}

	// Handshake success after a forced reconnect is not a flip.
	m.RecordSuccess()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s after reconnect from healthy state", evt.Kind)
	default:
	}
}
