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
// Family registry
// ---------------------------------------------------------------------------

// FamilyConfig describes one member of the OpenAI-compatible family. Six
// back-ends (OpenAI, xAI Grok, OpenRouter, Ollama, vLLM, LM Studio) all
// speak the same chat-completions wire shape and differ only in these
// five knobs — so one adapter parameterized by FamilyConfig covers all
// six instead of six nearly-identical structs.
type FamilyConfig struct {
	// DefaultBaseURL is used when the caller doesn't override it in
	// config. Empty means "use OpenAI's own default".
	DefaultBaseURL string
	// APIKeyRequired means a blank key is a ConfigError rather than a
	// silent "not-needed" placeholder.
	APIKeyRequired bool
	// APIKeyEnvName names the environment variable this provider expects
	// its key in, purely for ConfigError messages.
	APIKeyEnvName string
	// DefaultHeaders are sent on every request (OpenRouter's attribution
	// headers, for instance).
	DefaultHeaders map[string]string
	// SupportsInstanceSuffix means the round executor (C7) may ask for a
	// per-instance model suffix ("model:2") to run several calls against
	// the same local model in parallel. Only LM Studio needs this.
	SupportsInstanceSuffix bool
}

// Families is the registry of OpenAI-compatible back-ends, grounded on the
// original Python source's PROVIDER_CONFIGS table.
var Families = map[string]FamilyConfig{
	"openai": {
		APIKeyRequired: true,
		APIKeyEnvName:  "OPENAI_API_KEY",
	},
	"grok": {
		DefaultBaseURL: "https://api.x.ai/v1",
		APIKeyRequired: true,
		APIKeyEnvName:  "XAI_API_KEY",
	},
	"openrouter": {
		DefaultBaseURL: "https://openrouter.ai/api/v1",
		APIKeyRequired: true,
		APIKeyEnvName:  "OPENROUTER_API_KEY",
		DefaultHeaders: map[string]string{
			"HTTP-Referer": "https://arbiter.dev",
			"X-Title":      "arbiter",
		},
	},
	"ollama": {
		APIKeyRequired: false,
	},
	"vllm": {
		APIKeyRequired: false,
	},
	"lm_studio": {
		APIKeyRequired:         false,
		SupportsInstanceSuffix: true,
	},
}

// ---------------------------------------------------------------------------
// OpenAICompatibleProvider
// ---------------------------------------------------------------------------

// OpenAICompatibleProvider implements Provider against any back-end that
// speaks the OpenAI chat-completions SSE wire format. FamilyType selects
// which entry of Families governs its key/URL/header/suffix behavior.
type OpenAICompatibleProvider struct {
	familyType string
	config     FamilyConfig
	apiKey     string
	baseURL    string
	client     *http.Client

	// instance is the per-provider-type suffix index assigned by the round
	// executor (C7) for this adapter instance. 0 means "no suffix" even
	// when the family supports suffixes.
	instance int
}

// NewOpenAICompatibleProvider builds an adapter for familyType (one of the
// Families keys), applying baseURLOverride when non-empty. Returns a
// ConfigError immediately if the family requires a key and apiKey is
// blank, and if familyType is unrecognized.
func NewOpenAICompatibleProvider(familyType, apiKey, baseURLOverride string, instance int, client *http.Client) (*OpenAICompatibleProvider, error) {
	cfg, ok := Families[familyType]
	if !ok {
		return nil, &apperrors.ConfigError{Reason: fmt.Sprintf("unknown openai-compatible family: %q", familyType)}
	}
	if cfg.APIKeyRequired && apiKey == "" {
		return nil, &apperrors.ConfigError{
			Reason: fmt.Sprintf("%s: api key is required (set %s)", familyType, cfg.APIKeyEnvName),
		}
	}

	baseURL := baseURLOverride
	if baseURL == "" {
		baseURL = cfg.DefaultBaseURL
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAICompatibleProvider{
		familyType: familyType,
		config:     cfg,
		apiKey:     apiKey,
		baseURL:    baseURL,
		instance:   instance,
		client:     client,
	}, nil
}

// Name returns the family identifier, e.g. "openai" or "lm_studio".
func (o *OpenAICompatibleProvider) Name() string { return o.familyType }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

// openAIStreamChunk mirrors one SSE "data:" payload from a
// chat-completions stream. finish_reason/usage only appear on later
// chunks; delta.content is empty once finish_reason is set.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// instanceModel appends the ":N" suffix LM Studio uses to route parallel
// calls to distinct loaded instances of the same model. N is instance+1,
// matching the original source's "instance and instance > 0" check: an
// instance of 0 never gets a suffix, matching the single-call case.
func (o *OpenAICompatibleProvider) instanceModel(model string) string {
	if o.config.SupportsInstanceSuffix && o.instance > 0 {
		return fmt.Sprintf("%s:%d", model, o.instance+1)
	}
	return model
}

// ---------------------------------------------------------------------------
// Streaming: StreamChat
// ---------------------------------------------------------------------------

// StreamChat sends a streaming chat-completions request and returns a
// channel of Chunks. The wire format here is shared by all six families in
// Families — only the URL, key, headers, and model suffix vary, and those
// were all resolved at construction time.
func (o *OpenAICompatibleProvider) StreamChat(ctx context.Context, req *Request) (<-chan Chunk, error) {
	oreq := openAIRequest{
		Model:       o.instanceModel(req.Model),
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.SystemPrompt != "" {
		oreq.Messages = append(oreq.Messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	oreq.Messages = append(oreq.Messages, openAIMessage{Role: "user", Content: req.UserMessage})

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(o.baseURL, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	for k, v := range o.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}

	// Do NOT defer Body.Close() here — the goroutine below owns the body.
	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &apperrors.ProviderError{Provider: o.Name(), Message: err.Error(), Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &apperrors.ProviderError{
			Provider: o.Name(),
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

			// OpenAI's SSE stream ends with a literal "[DONE]" sentinel,
			// not a JSON object — check for it before trying to decode.
			if jsonData == "[DONE]" {
				return
			}

			var event openAIStreamChunk
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				ch <- Chunk{Done: true, Error: fmt.Errorf("decoding stream event: %w", err)}
				return
			}

			var chunk Chunk
			if len(event.Choices) > 0 {
				chunk.Delta = event.Choices[0].Delta.Content
				if event.Choices[0].FinishReason != nil {
					chunk.Done = true
				}
			}
			if event.Usage != nil {
				chunk.Usage = &Usage{
					InputTokens:  event.Usage.PromptTokens,
					OutputTokens: event.Usage.CompletionTokens,
				}
			}

			if chunk.Delta == "" && !chunk.Done && chunk.Usage == nil {
				continue
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
			case ch <- Chunk{Done: true, Error: fmt.Errorf("reading stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
