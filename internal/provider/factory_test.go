package provider

import (
	"testing"

	"github.com/arbiter-hq/arbiter/internal/config"
)

func TestNewFactory_DedicatedProviders(t *testing.T) {
	factory := NewFactory(map[string]config.ProviderConfig{
		"anthropic": {APIKey: "sk-ant-test"},
		"google":    {APIKey: "gk-test"},
	}, nil)

	p, err := factory("anthropic", 0)
	if err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}

	p, err = factory("google", 0)
	if err != nil {
		t.Fatalf("google: %v", err)
	}
	if p.Name() != "google" {
		t.Errorf("Name() = %q, want google", p.Name())
	}
}

func TestNewFactory_OpenAICompatibleFamily(t *testing.T) {
	factory := NewFactory(map[string]config.ProviderConfig{
		"lm_studio": {},
	}, nil)

	p, err := factory("lm_studio", 2)
	if err != nil {
		t.Fatalf("lm_studio: %v", err)
	}
	if p.Name() != "lm_studio" {
		t.Errorf("Name() = %q, want lm_studio", p.Name())
	}
}

func TestNewFactory_UnconfiguredProviderIsConfigError(t *testing.T) {
	factory := NewFactory(map[string]config.ProviderConfig{}, nil)

	_, err := factory("openai", 0)
	if err == nil {
		t.Fatal("expected an error for an unconfigured provider")
	}
	if _, ok := err.(interface{ Code() string }); !ok {
		t.Fatalf("expected a coded error, got %T", err)
	}
}

func TestNewFactory_MissingRequiredKeyPropagatesConfigError(t *testing.T) {
	factory := NewFactory(map[string]config.ProviderConfig{
		"anthropic": {},
	}, nil)

	_, err := factory("anthropic", 0)
	if err == nil {
		t.Fatal("expected an error for a missing api key")
	}
}
