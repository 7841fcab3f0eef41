package provider

import (
	"context"
	"errors"
	"testing"
)

// drain reads every chunk off ch and returns them, mirroring how the round
// executor (C7) consumes a provider stream.
func drain(ch <-chan Chunk) []Chunk {
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestMockProvider_ScriptedDeltas(t *testing.T) {
	m := NewMockProvider("mock")
	m.Script("echo", MockScript{
		Deltas: []string{"fo", "ur"},
		Usage:  &Usage{InputTokens: 3, OutputTokens: 2},
	})

	ch, err := m.StreamChat(context.Background(), &Request{Model: "echo"})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	chunks := drain(ch)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Delta != "fo" || chunks[1].Delta != "ur" {
		t.Errorf("deltas = %q, %q; want fo, ur", chunks[0].Delta, chunks[1].Delta)
	}
	if !chunks[2].Done || chunks[2].Usage == nil || chunks[2].Usage.OutputTokens != 2 {
		t.Errorf("final chunk = %+v, want Done with usage", chunks[2])
	}
}

func TestMockProvider_FailAfter(t *testing.T) {
	wantErr := errors.New("upstream exploded")
	m := NewMockProvider("mock")
	m.Script("flaky", MockScript{
		Deltas:    []string{"fo", "ur"},
		FailAfter: 1,
		Err:       wantErr,
	})

	ch, err := m.StreamChat(context.Background(), &Request{Model: "flaky"})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	chunks := drain(ch)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (one delta + one error)", len(chunks))
	}
	if chunks[0].Delta != "fo" {
		t.Errorf("first delta = %q, want %q", chunks[0].Delta, "fo")
	}
	if !chunks[1].Done || chunks[1].Error != wantErr {
		t.Errorf("final chunk = %+v, want Done with %v", chunks[1], wantErr)
	}
}

func TestMockProvider_TracksCalls(t *testing.T) {
	m := NewMockProvider("mock")
	m.Script("a", MockScript{Deltas: []string{"x"}})
	m.Script("b", MockScript{Deltas: []string{"y"}})

	drain(mustStream(t, m, "a"))
	drain(mustStream(t, m, "b"))

	calls := m.Calls()
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("Calls() = %v, want [a b]", calls)
	}
}

func mustStream(t *testing.T, p Provider, model string) <-chan Chunk {
	t.Helper()
	ch, err := p.StreamChat(context.Background(), &Request{Model: model})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	return ch
}
