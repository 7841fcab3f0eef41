package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/debate"
)

func TestWrite_FramesEventsAndStopsOnClose(t *testing.T) {
	events := make(chan debate.Event, 2)
	id := uuid.New()
	events <- debate.Event{Type: debate.EventDebateStarted, DebateID: id, Timestamp: time.Now()}
	events <- debate.Event{Type: debate.EventDebateCompleted, DebateID: id, Timestamp: time.Now()}
	close(events)

	rec := httptest.NewRecorder()
	if err := Write(context.Background(), rec, events); err != nil {
		t.Fatalf("Write: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: debate_started\n") {
		t.Errorf("missing debate_started frame, got %q", body)
	}
	if !strings.Contains(body, "event: debate_completed\n") {
		t.Errorf("missing debate_completed frame, got %q", body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", rec.Header().Get("Content-Type"))
	}
}

func TestWrite_StopsOnContextCancel(t *testing.T) {
	events := make(chan debate.Event)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	err := Write(ctx, rec, events)
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}
