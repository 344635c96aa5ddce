package engine

import (
	"testing"
	"time"
)

func TestDeliverTerminalEventUnblocksOnClose(t *testing.T) {
	c := &Client{
		logger: newLogger(),
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}
	// Fill the buffer with nobody reading, as when the consumer has exited.
	c.deliver(Event{Kind: EventComplete}, false)
	c.Close()

	returned := make(chan struct{})
	go func() {
		c.deliver(Event{Kind: EventError, Message: "late"}, false)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal delivery blocked after close")
	}
}

func TestDeliverDropsProgressUnderBackpressure(t *testing.T) {
	c := &Client{
		logger: newLogger(),
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}
	c.deliver(Event{Kind: EventGenerateProgress, Progress: 0.1}, true)
	c.deliver(Event{Kind: EventGenerateProgress, Progress: 0.2}, true) // dropped, buffer full

	select {
	case evt := <-c.events:
		if evt.Progress != 0.1 {
			t.Fatalf("progress = %v, want first queued 0.1", evt.Progress)
		}
	default:
		t.Fatal("expected one queued event")
	}
	select {
	case evt := <-c.events:
		t.Fatalf("unexpected second event %+v", evt)
	default:
	}
}
