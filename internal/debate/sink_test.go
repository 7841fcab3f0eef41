package debate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventSink_DrainReturnsSentEvents(t *testing.T) {
	s := newEventSink()
	s.Send(roundStartedEvent(1))
	s.Send(personalityStartedEvent("optimist"))

	got := s.Drain()
	require.Len(t, got, 2)
}

func TestEventSink_DrainBlocksUntilSend(t *testing.T) {
	s := newEventSink()
	done := make(chan []InternalEvent, 1)
	go func() { done <- s.Drain() }()

	select {
	case <-done:
		t.Fatal("Drain returned before any event was sent")
	case <-time.After(20 * time.Millisecond):
	}

	s.Send(roundStartedEvent(1))
	select {
	case got := <-done:
		require.Len(t, got, 1)
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after Send")
	}
}

func TestEventSink_CoalescesTokenDeltasAtCapacity(t *testing.T) {
	s := newEventSink()
	for i := 0; i < sinkCapacity; i++ {
		s.Send(tokenEvent("optimist", "x"))
	}
	s.Send(tokenEvent("optimist", "y"))

	got := s.Drain()
	require.Len(t, got, sinkCapacity, "coalesced send must not grow the buffer past capacity")
	last := got[len(got)-1]
	require.Equal(t, "xy", last.tokenDelta)
}

func TestEventSink_DoesNotCoalesceDifferentPersonalities(t *testing.T) {
	s := newEventSink()
	for i := 0; i < sinkCapacity; i++ {
		s.Send(tokenEvent("optimist", "x"))
	}
	s.Send(tokenEvent("skeptic", "z"))

	got := s.Drain()
	require.Len(t, got, sinkCapacity+1, "a different personality's delta must not be merged into the tail")
}

func TestEventSink_DoesNotCoalesceFinalTokens(t *testing.T) {
	s := newEventSink()
	for i := 0; i < sinkCapacity; i++ {
		s.Send(tokenEvent("optimist", "x"))
	}
	s.Send(tokenFinalEvent("optimist"))

	got := s.Drain()
	require.Len(t, got, sinkCapacity+1)
}

func TestEventSink_DoesNotCoalesceNonTokenEvents(t *testing.T) {
	s := newEventSink()
	for i := 0; i < sinkCapacity; i++ {
		s.Send(tokenEvent("optimist", "x"))
	}
	s.Send(roundCompletedEvent(1))

	got := s.Drain()
	require.Len(t, got, sinkCapacity+1)
}

func TestEventSink_CloseWakesBlockedDrain(t *testing.T) {
	s := newEventSink()
	done := make(chan []InternalEvent, 1)
	go func() { done <- s.Drain() }()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case got := <-done:
		require.Nil(t, got)
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after Close")
	}
}

func TestEventSink_SendAfterCloseIsNoop(t *testing.T) {
	s := newEventSink()
	s.Close()
	s.Send(roundStartedEvent(1))
	require.Nil(t, s.Drain())
}
