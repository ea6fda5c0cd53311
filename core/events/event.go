package events

import (
	"sync"

	"trustlend/core/types"
)

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Payloader is implemented by events that can render themselves into the
// generic attribute map used by subscribers and the event journal.
type Payloader interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the API stream,
// the event journal).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Render converts an event into its generic payload. Events that do not
// implement Payloader are rendered with their type and no attributes.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payloader); ok {
		if payload := p.Event(); payload != nil {
			return payload
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Buffer collects events emitted during an operation so they can be published
// only once the operation's state changes have been committed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Drain returns the buffered events and resets the buffer.
func (b *Buffer) Drain() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Reset discards any buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
