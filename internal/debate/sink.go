package debate

import "sync"

// sinkCapacity is the bounded event sink's capacity, per spec.md §5's
// design default of 1,024 items.
const sinkCapacity = 1024

// eventSink is the bounded multi-producer/single-consumer channel carrying
// InternalEvent values from the executor/state machine (producers, one
// goroutine per personality plus the main debate goroutine) to the event
// mapper (the single consumer). Unlike a plain buffered channel, a full
// sink does not block the producer — per spec.md §5, a slow consumer
// causes the *oldest buffered token chunk for the same personality* to be
// coalesced with the incoming one rather than the producer stalling.
// Every other event kind is never dropped: if the sink is full and the
// event isn't a coalescable token delta, Send appends it past capacity
// rather than blocking (a client's lifecycle visibility must never
// silently skip an event).
type eventSink struct {
	mu     sync.Mutex
	buf    []InternalEvent
	notify chan struct{}
	closed bool
}

func newEventSink() *eventSink {
	return &eventSink{notify: make(chan struct{}, 1)}
}

// Send enqueues ev, coalescing it into the last buffered item when the
// sink is at capacity and both ev and the tail are same-personality,
// non-final token deltas — the only kind spec.md §5 permits merging.
func (s *eventSink) Send(ev InternalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if len(s.buf) >= sinkCapacity {
		if tail, ok := s.coalesce(ev); ok {
			s.buf[len(s.buf)-1] = tail
			return
		}
		// Not coalescable: per spec this must not be dropped. Since this
		// is a design-default soft cap rather than a hard memory bound,
		// grow past capacity instead of blocking the producer goroutine
		// (which would deadlock a single-consumer design under the
		// errgroup-cancel-on-error semantics the executor relies on).
	}
	s.buf = append(s.buf, ev)
	s.signal()
}

// coalesce reports whether incoming can be merged into the current tail
// of the buffer, and returns the merged event.
func (s *eventSink) coalesce(incoming InternalEvent) (InternalEvent, bool) {
	if len(s.buf) == 0 {
		return InternalEvent{}, false
	}
	tail := s.buf[len(s.buf)-1]
	if tail.kind != kindToken || incoming.kind != kindToken {
		return InternalEvent{}, false
	}
	if tail.tokenIsFinal || incoming.tokenIsFinal {
		return InternalEvent{}, false
	}
	if tail.tokenPersonality != incoming.tokenPersonality {
		return InternalEvent{}, false
	}
	tail.tokenDelta += incoming.tokenDelta
	return tail, true
}

func (s *eventSink) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every currently buffered event, blocking
// until at least one is available or the sink is closed.
func (s *eventSink) Drain() []InternalEvent {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			out := s.buf
			s.buf = nil
			s.mu.Unlock()
			return out
		}
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		<-s.notify
	}
}

// Close marks the sink closed; a blocked Drain wakes and returns nil once
// the buffer is empty.
func (s *eventSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}
