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
// GoogleProvider struct + constructor
// ---------------------------------------------------------------------------

// GoogleProvider implements Provider for Google's Gemini API. It
// translates a unified Request into Gemini's format, makes the HTTP call,
// and translates the streamed response back.
type GoogleProvider struct {
	apiKey  string       // Gemini API key (sent as a query parameter, not a header)
	baseURL string       // e.g. "https://generativelanguage.googleapis.com/v1beta"
	client  *http.Client // reusable HTTP client (manages connection pooling)
}

// NewGoogleProvider creates a GoogleProvider ready to make API calls.
func NewGoogleProvider(apiKey, baseURL string, client *http.Client) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, &apperrors.ConfigError{Reason: "google: api key is required"}
	}
	return &GoogleProvider{apiKey: apiKey, baseURL: baseURL, client: client}, nil
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string { return "google" }

// ---------------------------------------------------------------------------
// Gemini API types (unexported — only this file uses them)
// ---------------------------------------------------------------------------

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiContent represents one message in the conversation. Gemini uses
// "parts" (an array) because it supports multimodal input; for text-only
// debate turns we always send a single part.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// geminiCandidate is one generated response. Gemini can return multiple
// candidates; a debate turn only ever uses the first one.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

// toGeminiRequest translates a unified Request into Gemini's format: the
// system prompt becomes systemInstruction, the single user message becomes
// one "user"-role content entry, and MaxTokens/Temperature move into
// generationConfig.
func toGeminiRequest(req *Request) *geminiRequest {
	gr := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.UserMessage}}},
		},
	}

	if req.SystemPrompt != "" {
		gr.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}

	if req.MaxTokens > 0 || req.Temperature > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	return gr
}

// ---------------------------------------------------------------------------
// Streaming: StreamChat
// ---------------------------------------------------------------------------

// StreamChat sends a streaming request to Gemini's streamGenerateContent
// endpoint and returns a channel of Chunks. The goroutine + channel
// pattern here mirrors AnthropicProvider.StreamChat — the caller gets
// deltas as they arrive rather than waiting for the full response.
func (g *GoogleProvider) StreamChat(ctx context.Context, req *Request) (<-chan Chunk, error) {
	geminiReq := toGeminiRequest(req)

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// ?alt=sse tells Gemini to return Server-Sent Events instead of one
	// JSON blob; the model goes in the URL path, not the body.
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.baseURL, req.Model, g.apiKey,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Do NOT defer Body.Close() here — the goroutine below owns the body
	// and closes it when the stream ends.
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &apperrors.ProviderError{Provider: g.Name(), Message: err.Error(), Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &apperrors.ProviderError{
			Provider: g.Name(),
			Message:  fmt.Sprintf("status %d: %v", httpResp.StatusCode, errBody),
		}
	}

	ch := make(chan Chunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			jsonData := strings.TrimPrefix(line, "data: ")

			var geminiResp geminiResponse
			if err := json.Unmarshal([]byte(jsonData), &geminiResp); err != nil {
				ch <- Chunk{Done: true, Error: fmt.Errorf("decoding gemini stream event: %w", err)}
				return
			}

			if len(geminiResp.Candidates) == 0 {
				continue
			}
			candidate := geminiResp.Candidates[0]

			var delta string
			if len(candidate.Content.Parts) > 0 {
				delta = candidate.Content.Parts[0].Text
			}

			chunk := Chunk{Delta: delta}

			// An empty finishReason means more chunks are coming; "STOP"
			// (or MAX_TOKENS, SAFETY, ...) marks the final event.
			if candidate.FinishReason != "" {
				chunk.Done = true
				if geminiResp.UsageMetadata != nil {
					chunk.Usage = &Usage{
						InputTokens:       geminiResp.UsageMetadata.PromptTokenCount,
						OutputTokens:      geminiResp.UsageMetadata.CandidatesTokenCount,
						CachedInputTokens: geminiResp.UsageMetadata.CachedContentTokenCount,
					}
				}
			}

			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- Chunk{Done: true, Error: fmt.Errorf("reading gemini stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
