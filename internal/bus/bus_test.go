package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageNew, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageNew {
			t.Errorf("got kind %q, want message.new", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connection.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageNew})
	b.Publish(Event{Kind: KindConnection})

	select {
	case evt := <-ch:
		if evt.Kind != KindConnection {
			t.Errorf("got kind %q, want connection.changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageNew})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()
	ui, unsubUI := b.Subscribe("message.", 10)
	defer unsubUI()
	audit, unsubAudit := b.Subscribe("", 10)
	defer unsubAudit()

	b.Publish(Event{Kind: KindMessageNew})

	for name, ch := range map[string]<-chan Event{"ui": ui, "audit": audit} {
		select {
		case evt := <-ch:
			if evt.Kind != KindMessageNew {
				t.Errorf("%s got kind %q, want message.new", name, evt.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber did not receive event", name)
		}
	}
}
