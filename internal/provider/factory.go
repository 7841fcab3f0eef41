package provider

import (
	"fmt"
	"net/http"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/config"
)

// NewFactory builds the (provider name, instance) -> Provider resolver C11
// calls through debate.ProviderFactory — kept here, not in internal/debate,
// since it is the one place that needs to know about every concrete
// Provider implementation (Anthropic, Google, the six-way OpenAI-compatible
// family) and their config wiring; internal/debate only ever sees the
// resulting closure, never these concrete types, matching spec.md §9's
// "single adapter, no duplicated per-consumer config wiring" guidance.
//
// The returned function's signature matches debate.ProviderFactory
// structurally (Go function types match by shape, not declaration site),
// so it needs no import of internal/debate and creates no import cycle.
func NewFactory(providers map[string]config.ProviderConfig, httpClient *http.Client) func(name string, instance int) (Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return func(name string, instance int) (Provider, error) {
		cfg, ok := providers[name]
		if !ok {
			return nil, &apperrors.ConfigError{Reason: fmt.Sprintf("no configuration for provider %q", name)}
		}

		switch name {
		case "anthropic":
			return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, httpClient)
		case "google":
			return NewGoogleProvider(cfg.APIKey, cfg.BaseURL, httpClient)
		default:
			if _, known := Families[name]; !known {
				return nil, &apperrors.ConfigError{Reason: fmt.Sprintf("unknown provider family %q", name)}
			}
			return NewOpenAICompatibleProvider(name, cfg.APIKey, cfg.BaseURL, instance, httpClient)
		}
	}
}
