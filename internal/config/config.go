// Package config handles loading and validating the arbiter service's
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
)

// knownProviders is the set of provider names buildPipeline/ProviderFactory
// can resolve — anthropic and google each get a dedicated adapter, the rest
// share provider.OpenAICompatibleProvider keyed by family name.
var knownProviders = map[string]bool{
	"anthropic":  true,
	"google":     true,
	"openai":     true,
	"grok":       true,
	"openrouter": true,
	"ollama":     true,
	"vllm":       true,
	"lm_studio":  true,
}

// Config is the top-level configuration for the arbiter service.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Database  DatabaseConfig            `koanf:"database"`
	Auth      AuthConfig                `koanf:"auth"`
	Pricing   PricingConfig             `koanf:"pricing"`
	Log       LogConfig                 `koanf:"log"`
	Telemetry TelemetryConfig           `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// CORSOrigins lists the origins the SSE/REST surface answers
	// Access-Control-Allow-Origin for. Empty means same-origin only.
	CORSOrigins []string `koanf:"cors_origins"`
}

// ProviderConfig holds the settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string   `koanf:"api_key"`
	BaseURL string   `koanf:"base_url"`
	Models  []string `koanf:"models"`
}

// DatabaseConfig holds the persistence backend's connection settings. A
// blank DSN means the service falls back to an in-memory Store — fine for
// local development and the CLI variant, never for production.
type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

// AuthConfig holds the shared secret the HS256 bearer-token authenticator
// (C13) verifies against. See internal/server's Authenticator interface —
// issuance and the trust chain around this secret are out of scope here.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

// PricingConfig points at the static pricing table C2 falls back to below
// the dynamic OpenRouter catalog.
type PricingConfig struct {
	StaticTablePath  string `koanf:"static_table_path"`
	OpenRouterAPIKey string `koanf:"openrouter_api_key"`
}

// LogConfig controls the zap logger's verbosity.
type LogConfig struct {
	Level string `koanf:"level"`
}

// TelemetryConfig holds an OTLP collector endpoint for metrics (C14). It
// is loaded but not read anywhere: no OTLP exporter is wired, and metrics
// are exposed only through the Prometheus exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config. Load fails fast
// with a ConfigError if any configured provider name isn't one arbiter
// knows how to dial — a typo in providers.* would otherwise surface only
// once a debate tries to use it.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "ARBITER_" can override a config value:
	//   ARBITER_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("ARBITER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "ARBITER_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys.
	for name, p := range cfg.Providers {
		p.APIKey = expandEnvPlaceholder(p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Auth.JWTSecret = expandEnvPlaceholder(cfg.Auth.JWTSecret)
	cfg.Pricing.OpenRouterAPIKey = expandEnvPlaceholder(cfg.Pricing.OpenRouterAPIKey)

	for name := range cfg.Providers {
		if !knownProviders[name] {
			return nil, &apperrors.ConfigError{Reason: fmt.Sprintf("unknown provider %q in config", name)}
		}
	}

	return &cfg, nil
}

// expandEnvPlaceholder resolves a "${VAR_NAME}" value against the process
// environment; any other value (including blank) passes through unchanged.
func expandEnvPlaceholder(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}
