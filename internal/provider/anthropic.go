package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
)

// ---------------------------------------------------------------------------
// AnthropicProvider struct + constructor
// ---------------------------------------------------------------------------

// AnthropicProvider implements Provider for Anthropic's Messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string // e.g. "https://api.anthropic.com/v1"
	client  *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API
// calls. Returns a ConfigError if apiKey is blank — Anthropic always
// requires a key, so there's no point deferring the failure to the first
// network call.
func NewAnthropicProvider(apiKey, baseURL string, client *http.Client) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, &apperrors.ConfigError{Reason: "anthropic: api key is required"}
	}
	return &AnthropicProvider{apiKey: apiKey, baseURL: baseURL, client: client}, nil
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string { return "anthropic" }

// ---------------------------------------------------------------------------
// Anthropic API types (unexported)
// ---------------------------------------------------------------------------

// anthropicRequest is the top-level request body for Anthropic's
// /v1/messages endpoint.
//
// Key differences from a unified Request:
//   - "system" is a top-level string, not a message with role "system"
//   - "max_tokens" is REQUIRED (Anthropic rejects requests without it)
//   - a debate turn is always exactly one user message — there is no
//     history array to translate, since the round executor (C7) has
//     already folded prior-round context into the user message text.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicUsage holds token counts using Anthropic's own field names.
type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// --- Streaming event types ---
//
// Anthropic sends NAMED SSE events, each with a different JSON payload
// shape:
//
//	event: message_start       → response id, model, input token count
//	event: content_block_delta → a text fragment
//	event: message_delta       → stop_reason, output token count
//	event: message_stop        → end of stream
//
// anthropicStreamEvent is a lightweight wrapper: we decode into this first
// to read "type", then interpret whichever of the optional fields the
// event actually populated.
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"`
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`
	Usage   *anthropicUsage        `json:"usage,omitempty"`
}

type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// anthropicAPIVersion pins the Anthropic API behavior. Required on every
// request; Anthropic versions the API with a date string header instead
// of a URL path segment.
const anthropicAPIVersion = "2023-06-01"

// defaultMaxTokens is used when the caller doesn't specify MaxTokens.
const defaultMaxTokens = 4096

// toAnthropicRequest translates a unified Request into Anthropic's format.
func toAnthropicRequest(req *Request, stream bool) *anthropicRequest {
	ar := &anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Stream:      stream,
		Temperature: req.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.UserMessage},
		},
	}
	if req.MaxTokens > 0 {
		ar.MaxTokens = req.MaxTokens
	} else {
		ar.MaxTokens = defaultMaxTokens
	}
	return ar
}

// ---------------------------------------------------------------------------
// Streaming: StreamChat
// ---------------------------------------------------------------------------

// StreamChat sends a streaming request to Anthropic's /v1/messages
// endpoint and returns a channel of Chunks.
//
// The goroutine accumulates metadata across events — message_start gives
// the input token count, message_delta (near the end) gives the output
// token count, message_stop is the final signal — then assembles the
// Done chunk's Usage from what it collected along the way.
func (a *AnthropicProvider) StreamChat(ctx context.Context, req *Request) (<-chan Chunk, error) {
	anthropicReq := toAnthropicRequest(req, true)

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/messages", a.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	// Do NOT defer Body.Close() here — the goroutine below owns the body
	// and closes it when the stream ends.
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &apperrors.ProviderError{Provider: a.Name(), Message: err.Error(), Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &apperrors.ProviderError{
			Provider: a.Name(),
			Message:  fmt.Sprintf("status %d: %v", httpResp.StatusCode, errBody),
		}
	}

	ch := make(chan Chunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		var (
			inputTokens  int
			outputTokens int
			cachedTokens int
		)

		scanner := bufio.NewScanner(httpResp.Body)
		// Anthropic SSE event bodies for large tool/thinking payloads can
		// exceed bufio.Scanner's default 64KB line buffer; raise it.
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			jsonData := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				ch <- Chunk{Done: true, Error: fmt.Errorf("decoding anthropic stream event: %w", err)}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					inputTokens = event.Message.Usage.InputTokens
					cachedTokens = event.Message.Usage.CacheReadInputTokens
				}

			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				select {
				case ch <- Chunk{Delta: event.Delta.Text}:
				case <-ctx.Done():
					return
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				chunk := Chunk{
					Done: true,
					Usage: &Usage{
						InputTokens:       inputTokens,
						OutputTokens:      outputTokens,
						CachedInputTokens: cachedTokens,
					},
				}
				select {
				case ch <- chunk:
				case <-ctx.Done():
				}
				return

			// content_block_start, content_block_stop, ping carry no data
			// we need.
			default:
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- Chunk{Done: true, Error: fmt.Errorf("reading anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
