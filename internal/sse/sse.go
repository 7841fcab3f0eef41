// Package sse writes a debate.Event channel to an http.ResponseWriter as
// Server-Sent Events, replacing the teacher's OpenAI-chunk-shaped
// internal/stream package now that the wire payload is spec.md §6's flat
// envelope instead of an OpenAI chat-completion chunk.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arbiter-hq/arbiter/internal/debate"
)

// heartbeatInterval is spec.md §6's 15-second "ping" frame cadence, sent
// so intermediaries (load balancers, proxies) don't idle out a
// long-running debate stream that has gone quiet between personality
// turns.
const heartbeatInterval = 15 * time.Second

// Write reads debate.Events from events until the channel closes or ctx
// is cancelled (the client disconnected), framing each as "event:
// <type>\ndata: <json>\n\n" (the wire shape spec.md §6 describes) and
// flushing after every write. It returns an error if the ResponseWriter
// does not support flushing.
func Write(ctx context.Context, w http.ResponseWriter, events <-chan debate.Event) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, open := <-events:
			if !open {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, "event: ping\ndata: \n\n"); err != nil {
				return fmt.Errorf("writing heartbeat: %w", err)
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev debate.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, body); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}
