package engine

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sounderlabs/voxd/internal/bus"
	"github.com/sounderlabs/voxd/internal/protocol"
)

// EventKind discriminates worker events on the client side.
type EventKind int

const (
	EventLoadProgress EventKind = iota
	EventModelLoaded
	EventGenerateProgress
	EventComplete
	EventError
)

// Event is one worker-to-client protocol message, flattened for consumption
// by the orchestrator.
type Event struct {
	Kind       EventKind
	Progress   float64
	Status     string
	RequestID  string
	VoiceID    string
	SampleRate int
	PCM        []byte
	Message    string
}

// Worker is the client half of the generation protocol.
type Worker interface {
	// Init asks the worker to load its model. Idempotent.
	Init() error
	// Generate submits one synthesis request.
	Generate(req protocol.GenerateRequest) error
	// Events delivers worker events in the order the worker emitted them.
	Events() <-chan Event
	Close()
}

// Client talks to the engine service over the bus.
type Client struct {
	bus       *bus.Client
	logger    *slog.Logger
	events    chan Event
	subs      []*nats.Subscription
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(busClient *bus.Client, log *slog.Logger) (*Client, error) {
	c := &Client{
		bus:    busClient,
		logger: log.With(slog.String("component", "worker-client")),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	handlers := map[string]nats.MsgHandler{
		protocol.SubjectLoadProgress:     c.onLoadProgress,
		protocol.SubjectModelLoaded:      c.onModelLoaded,
		protocol.SubjectGenerateProgress: c.onGenerateProgress,
		protocol.SubjectComplete:         c.onComplete,
		protocol.SubjectError:            c.onError,
	}
	for subject, handler := range handlers {
		sub, err := busClient.Conn().Subscribe(subject, handler)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.subs = append(c.subs, sub)
	}
	return c, nil
}

func (c *Client) Init() error {
	data, err := json.Marshal(protocol.InitRequest{Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.bus.Conn().Publish(protocol.SubjectInit, data)
}

func (c *Client) Generate(req protocol.GenerateRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.bus.Conn().Publish(protocol.SubjectGenerate, data)
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		for _, sub := range c.subs {
			_ = sub.Drain()
		}
		close(c.done)
	})
}

func (c *Client) onLoadProgress(msg *nats.Msg) {
	var m protocol.LoadProgress
	if !c.decode(msg, &m) {
		return
	}
	c.deliver(Event{Kind: EventLoadProgress, Progress: m.Progress, Status: m.Status}, true)
}

func (c *Client) onModelLoaded(msg *nats.Msg) {
	var m protocol.ModelLoaded
	if !c.decode(msg, &m) {
		return
	}
	c.deliver(Event{Kind: EventModelLoaded, SampleRate: m.SampleRate}, false)
}

func (c *Client) onGenerateProgress(msg *nats.Msg) {
	var m protocol.GenerateProgress
	if !c.decode(msg, &m) {
		return
	}
	c.deliver(Event{Kind: EventGenerateProgress, RequestID: m.RequestID, Progress: m.Progress}, true)
}

func (c *Client) onComplete(msg *nats.Msg) {
	var m protocol.Complete
	if !c.decode(msg, &m) {
		return
	}
	c.deliver(Event{
		Kind:       EventComplete,
		RequestID:  m.RequestID,
		VoiceID:    m.VoiceID,
		SampleRate: m.SampleRate,
		PCM:        m.PCM,
	}, false)
}

func (c *Client) onError(msg *nats.Msg) {
	var m protocol.GenerateError
	if !c.decode(msg, &m) {
		return
	}
	c.deliver(Event{Kind: EventError, RequestID: m.RequestID, Message: m.Message}, false)
}

func (c *Client) decode(msg *nats.Msg, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.logger.Warn("failed to decode worker event", slog.String("subject", msg.Subject), slogError(err))
		return false
	}
	return true
}

// deliver queues an event for the orchestrator. Progress events are droppable
// under backpressure; terminal events block until consumed, but never past
// Close — a departed consumer must not wedge a bus handler goroutine.
func (c *Client) deliver(evt Event, droppable bool) {
	if droppable {
		select {
		case c.events <- evt:
		default:
		}
		return
	}
	select {
	case c.events <- evt:
	case <-c.done:
	}
}
