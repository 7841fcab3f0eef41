package provider

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a scripted Provider used by the debate package's
// end-to-end tests (spec scenarios 1-6): it never makes a network call,
// instead replaying a canned sequence of deltas (and, optionally, a
// mid-stream error) for each model it's asked about.
//
// Scripts are keyed by model name so a single MockProvider can stand in
// for several distinct personalities in one test (e.g. model "echo-a"
// always emits "four", model "echo-fail" errors after "fo").
type MockProvider struct {
	mu      sync.Mutex
	name    string
	scripts map[string]MockScript
	calls   []string // models called, in order — useful for assertions
}

// MockScript describes one scripted response.
type MockScript struct {
	Deltas []string // text fragments emitted in order
	Usage  *Usage   // usage reported on the final chunk; nil means "no usage reported"
	// FailAfter, if >= 0, makes the stream error out after emitting this
	// many deltas (0 errors before emitting anything).
	FailAfter int
	Err       error
	// Delay paces each delta, giving tests deterministic control over when
	// a stream is mid-flight (e.g. to land a cancellation inside it)
	// instead of racing real goroutine scheduling.
	Delay time.Duration
}

// NewMockProvider creates a MockProvider with the given name (e.g. "mock")
// and an initially empty script table.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name, scripts: make(map[string]MockScript)}
}

// Script registers the scripted response for a model name.
func (m *MockProvider) Script(model string, script MockScript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if script.FailAfter == 0 && script.Err == nil {
		script.FailAfter = -1 // default: never fail
	}
	m.scripts[model] = script
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return m.name }

// Calls returns the models this provider has been asked to stream, in
// call order — used by tests to assert per-provider-instance dispatch.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// StreamChat replays the script registered for req.Model. An unscripted
// model emits no deltas and closes immediately with zero usage, which is
// deliberate — tests that forget to register a script get an obviously
// empty response rather than a panic.
func (m *MockProvider) StreamChat(ctx context.Context, req *Request) (<-chan Chunk, error) {
	m.mu.Lock()
	script := m.scripts[req.Model]
	m.calls = append(m.calls, req.Model)
	m.mu.Unlock()

	ch := make(chan Chunk)

	go func() {
		defer close(ch)

		for i, delta := range script.Deltas {
			if script.Delay > 0 && i > 0 {
				select {
				case <-time.After(script.Delay):
				case <-ctx.Done():
					return
				}
			}

			if script.FailAfter >= 0 && i >= script.FailAfter {
				select {
				case ch <- Chunk{Done: true, Error: script.Err}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- Chunk{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- Chunk{Done: true, Usage: script.Usage}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}
