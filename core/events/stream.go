package events

import (
	"context"
	"sync"

	"trustlend/core/types"
)

const (
	defaultStreamHistory = 256
	subscriberBuffer     = 32
)

// Envelope is a committed event tagged with its position in the stream.
type Envelope struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Stream fans committed events out to live subscribers and keeps a bounded
// history so reconnecting clients can resume from a cursor.
type Stream struct {
	mu      sync.Mutex
	seq     uint64
	history []Envelope
	limit   int
	subs    map[uint64]chan Envelope
	nextID  uint64
	sinks   []Emitter
}

// NewStream constructs a stream retaining up to historyLimit envelopes.
func NewStream(historyLimit int) *Stream {
	if historyLimit <= 0 {
		historyLimit = defaultStreamHistory
	}
	return &Stream{limit: historyLimit, subs: make(map[uint64]chan Envelope)}
}

// AddSink registers an emitter that receives every published event
// synchronously, e.g. the persistent event journal.
func (s *Stream) AddSink(sink Emitter) {
	if s == nil || sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Emit implements the Emitter interface.
func (s *Stream) Emit(evt Event) {
	if s == nil || evt == nil {
		return
	}
	payload := Render(evt)
	s.mu.Lock()
	s.seq++
	env := Envelope{Sequence: s.seq, Event: payload}
	s.history = append(s.history, env)
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
	subs := make([]chan Envelope, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	sinks := append([]Emitter(nil), s.sinks...)
	for _, ch := range subs {
		select {
		case ch <- Envelope{Sequence: env.Sequence, Event: env.Event.Clone()}:
		default:
			// slow subscriber; it can resume from its cursor
		}
	}
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Emit(evt)
	}
}

// Sequence returns the sequence number of the most recent event.
func (s *Stream) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Subscribe registers a live subscriber. The backlog holds retained events
// newer than since. The subscription ends when ctx is cancelled or cancel is
// called.
func (s *Stream) Subscribe(ctx context.Context, since uint64) (<-chan Envelope, func(), []Envelope) {
	updates := make(chan Envelope, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]Envelope, 0, len(s.history))
	for _, env := range s.history {
		if env.Sequence > since {
			backlog = append(backlog, Envelope{Sequence: env.Sequence, Event: env.Event.Clone()})
		}
	}
	s.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return updates, cancel, backlog
}
