// Package provider defines the streaming chat abstraction that every LLM
// back-end implements, and the adapters that target specific wire
// protocols.
//
// A debate personality turn, the consensus judge, and the synthesizer all
// boil down to the same shape: one system prompt, one user message, a
// stream of text deltas back. Provider is that shape made concrete — the
// round executor (C7), consensus judge (C8), and synthesizer (C9) all call
// through this interface and never know whether they're talking to
// Anthropic, Gemini, or a local Ollama instance.
package provider

import "context"

// Provider is the interface every LLM back-end adapter satisfies. Go
// interfaces are implicit: any type with this one method automatically
// satisfies Provider — there's no "implements" keyword to write.
type Provider interface {
	// Name returns the provider identifier, e.g. "anthropic" or "google".
	// Used for logging, metrics labels, and ProviderError attribution.
	Name() string

	// StreamChat sends a single-turn request (system prompt + user
	// message) and returns a channel that delivers text deltas as they
	// arrive. The channel is closed when the stream ends, whether that's
	// a clean finish or a mid-stream error (reported via Chunk.Error on
	// the final value sent before close).
	//
	// ctx governs cancellation: when ctx is done, the adapter must stop
	// waiting on the upstream connection and close the channel promptly.
	StreamChat(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// Request is the unified single-turn chat request every adapter accepts.
// Unlike a general chat-completions API, a debate turn never carries
// message history in the request itself — the round executor (C7) folds
// the previous round's responses into UserMessage as formatted text before
// calling StreamChat, so every adapter only ever sees one exchange.
type Request struct {
	Model        string // e.g. "claude-sonnet-4-5-20250929", "gemini-2.0-flash"
	SystemPrompt string // the personality's system prompt; may be empty
	UserMessage  string // question + formatted prior-round context
	MaxTokens    int    // 0 means "use the adapter's default"
	Temperature  float64
}

// Usage holds normalized token counts. Every provider reports these in a
// different shape (input_tokens/output_tokens, promptTokenCount/
// candidatesTokenCount, ...); adapters translate into this one shape so the
// rest of the system — the usage recorder (C4), the event mapper (C10) —
// never has to know which provider produced a given count.
type Usage struct {
	InputTokens  int
	OutputTokens int
	// CachedInputTokens counts prompt tokens served from a provider-side
	// cache, when the provider reports it. Zero means "not reported" —
	// callers must not assume a real cache hit of zero.
	CachedInputTokens int
	// Estimated is true when these counts came from the token counter
	// (C3) fallback rather than the provider itself. The debate package
	// copies it into TurnUsage; usage.Record and the client Event carry no
	// such flag.
	Estimated bool
}

// Chunk is one piece of a streaming response.
type Chunk struct {
	Delta string // the new text fragment in this chunk; empty on the final chunk unless Done carries trailing text
	Done  bool   // true on the final chunk

	// Usage is populated only on the final chunk, and only when the
	// provider reports it inline. If nil after Done, the caller falls
	// back to the token counter (C3) per spec's usage-normalization
	// order: provider usage, then stream-completion usage, then C3.
	Usage *Usage

	// Error carries a mid-stream failure. When Error is non-nil, Done is
	// also true and this is the last value sent before the channel
	// closes — callers must check Error before trusting Usage or Delta.
	Error error
}
