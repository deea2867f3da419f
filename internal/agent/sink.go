package agent

import (
	"sync"

	"github.com/agentif/agentif/pkg/models"
)

// Sink receives progress events. Emission is synchronous in the emitting
// goroutine, so sinks must not block for long and must not mutate event
// payloads.
type Sink interface {
	OnEvent(ev models.AgentEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev models.AgentEvent)

func (f SinkFunc) OnEvent(ev models.AgentEvent) { f(ev) }

// NopSink discards events.
var NopSink Sink = SinkFunc(func(models.AgentEvent) {})

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnEvent(ev models.AgentEvent) {
	for _, s := range m {
		if s != nil {
			s.OnEvent(ev)
		}
	}
}

// CollectorSink records every event it sees. Test helper.
type CollectorSink struct {
	mu     sync.Mutex
	events []models.AgentEvent
}

func (c *CollectorSink) OnEvent(ev models.AgentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a snapshot of the collected events.
func (c *CollectorSink) Events() []models.AgentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.AgentEvent(nil), c.events...)
}

// Types returns the collected event types in order.
func (c *CollectorSink) Types() []models.AgentEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.AgentEventType, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

// Deltas concatenates the deltas of all MessageUpdate events of one kind.
func (c *CollectorSink) Deltas(kind models.UpdateKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out string
	for _, ev := range c.events {
		if ev.Type == models.EventMessageUpdate && ev.Kind == kind {
			out += ev.Delta
		}
	}
	return out
}
