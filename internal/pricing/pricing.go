// Package pricing resolves (provider, model) pairs to per-token USD
// prices, combining an in-process TTL cache, a dynamic OpenRouter-style
// catalog, a static table, and a conservative fallback — in that order,
// grounded on the original source's StaticPricingProvider,
// OpenRouterPricingProvider, and HybridPricingProvider, simplified to the
// single resolution order the specification requires (cache, then
// dynamic, then static, then fallback) rather than the original's
// per-provider branching.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/arbiter-hq/arbiter/internal/money"
)

// Pricing is an immutable (provider, model) price tuple. CachedPerMillion
// is nil when the provider doesn't report a separate cached-token rate.
type Pricing struct {
	Provider         string
	Model            string
	InputPerMillion  money.Micros
	OutputPerMillion money.Micros
	CachedPerMillion *money.Micros
}

// Cost computes the cost of a turn per spec.md's formula:
// input/1e6*in + output/1e6*out + cached/1e6*cached, with the cached term
// omitted whenever cachedTokens is 0 or no cached price is configured.
func (p Pricing) Cost(inputTokens, outputTokens, cachedTokens int64) money.Micros {
	total := money.PerMillionTokens(p.InputPerMillion, inputTokens)
	total = total.Add(money.PerMillionTokens(p.OutputPerMillion, outputTokens))
	if cachedTokens > 0 && p.CachedPerMillion != nil {
		total = total.Add(money.PerMillionTokens(*p.CachedPerMillion, cachedTokens))
	}
	return total
}

// DefaultFallback is the conservative pricing used when no other source
// has an entry: $5.00 input / $15.00 output per 1M tokens.
var DefaultFallback = Pricing{
	Provider:         "unknown",
	Model:            "unknown",
	InputPerMillion:  money.FromDollars(5.00),
	OutputPerMillion: money.FromDollars(15.00),
}

// DefaultTTL is the in-process cache lifetime for a resolved price.
const DefaultTTL = time.Hour

// DynamicSource fetches a full model price catalog from a remote endpoint
// (an OpenRouter-style /models listing). Implementations should return a
// map keyed by the source's own model-id format (e.g. "anthropic/claude-
// sonnet-4-5") so Resolver can apply the provider/model composite match.
type DynamicSource interface {
	FetchCatalog(ctx context.Context) (map[string]Pricing, error)
}

// Warner receives a one-line notice the first time a (provider, model)
// pair falls through to DefaultFallback, so operators can see it without
// every subsequent call re-logging the same warning.
type Warner interface {
	Warn(provider, model string)
}

type cacheEntry struct {
	pricing   Pricing
	expiresAt time.Time
}

// Resolver implements C2: price(provider, model) -> Pricing with the
// resolution order cache -> dynamic -> static -> fallback.
type Resolver struct {
	ttl    time.Duration
	static map[string]map[string]Pricing // provider -> model -> Pricing
	source DynamicSource                 // nil means "no dynamic source configured"
	warner Warner

	mu          sync.RWMutex
	cache       map[string]cacheEntry // "provider/model" -> entry
	catalog     map[string]Pricing    // dynamic catalog, refreshed wholesale
	catalogAt   time.Time
	warnedKeys  map[string]bool
	refreshFlag singleflight.Group
}

// NewResolver builds a Resolver. static may be nil (no static table
// configured); source may be nil (no dynamic catalog configured).
func NewResolver(static map[string]map[string]Pricing, source DynamicSource, warner Warner) *Resolver {
	if static == nil {
		static = make(map[string]map[string]Pricing)
	}
	return &Resolver{
		ttl:        DefaultTTL,
		static:     static,
		source:     source,
		warner:     warner,
		cache:      make(map[string]cacheEntry),
		catalog:    make(map[string]Pricing),
		warnedKeys: make(map[string]bool),
	}
}

func cacheKey(provider, model string) string { return provider + "/" + model }

// Price resolves pricing for (provider, model) per the four-step order in
// spec.md §4.2.
func (r *Resolver) Price(ctx context.Context, provider, model string) (Pricing, error) {
	key := cacheKey(provider, model)

	// Step 1: in-process TTL cache.
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.pricing, nil
	}

	// Step 2: dynamic source, refreshing the catalog if stale. Refresh
	// failures never propagate — they just leave us falling through to
	// static/fallback for this call.
	if r.source != nil {
		r.maybeRefreshCatalog(ctx)
		if p, ok := r.matchCatalog(provider, model); ok {
			r.store(key, p)
			return p, nil
		}
	}

	// Step 3: static table, exact then prefix match.
	if p, ok := matchTable(r.static[provider], model); ok {
		r.store(key, p)
		return p, nil
	}

	// Step 4: conservative fallback, with a once-per-key warning.
	r.warnOnce(provider, model)
	fallback := DefaultFallback
	fallback.Provider = provider
	fallback.Model = model
	r.store(key, fallback)
	return fallback, nil
}

func (r *Resolver) store(key string, p Pricing) {
	r.mu.Lock()
	r.cache[key] = cacheEntry{pricing: p, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) warnOnce(provider, model string) {
	key := cacheKey(provider, model)
	r.mu.Lock()
	already := r.warnedKeys[key]
	r.warnedKeys[key] = true
	r.mu.Unlock()
	if !already && r.warner != nil {
		r.warner.Warn(provider, model)
	}
}

// maybeRefreshCatalog refreshes the dynamic catalog if it's past its TTL.
// Concurrent callers collapse onto a single network call via singleflight.
func (r *Resolver) maybeRefreshCatalog(ctx context.Context) {
	r.mu.RLock()
	stale := time.Since(r.catalogAt) >= r.ttl
	r.mu.RUnlock()
	if !stale {
		return
	}

	_, _, _ = r.refreshFlag.Do("refresh", func() (any, error) {
		catalog, err := r.source.FetchCatalog(ctx)
		if err != nil {
			// Dynamic source failures degrade silently to the static
			// table / fallback — never propagated to the caller.
			return nil, nil
		}
		r.mu.Lock()
		r.catalog = catalog
		r.catalogAt = time.Now()
		r.mu.Unlock()
		return nil, nil
	})
}

// matchCatalog applies exact match, then the "provider/model" composite
// key an OpenRouter-style catalog uses, then a loose prefix match.
func (r *Resolver) matchCatalog(provider, model string) (Pricing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.catalog[model]; ok {
		return p, true
	}
	composite := provider + "/" + model
	if p, ok := r.catalog[composite]; ok {
		return p, true
	}
	for key, p := range r.catalog {
		if strings.Contains(key, model) || strings.HasSuffix(key, "/"+model) {
			return p, true
		}
	}
	return Pricing{}, false
}

// matchTable applies spec.md's matching rule to a single provider's static
// table: exact match, then prefix match in either direction.
func matchTable(table map[string]Pricing, model string) (Pricing, bool) {
	if table == nil {
		return Pricing{}, false
	}
	if p, ok := table[model]; ok {
		return p, true
	}
	for key, p := range table {
		if strings.HasPrefix(key, model) || strings.HasPrefix(model, key) {
			return p, true
		}
	}
	return Pricing{}, false
}

// ---------------------------------------------------------------------------
// OpenRouter dynamic source
// ---------------------------------------------------------------------------

const openRouterModelsURL = "https://openrouter.ai/api/v1/models"

// OpenRouterSource implements DynamicSource against OpenRouter's public
// model catalog. Grounded on the original source's
// OpenRouterPricingProvider._fetch_models / _parse_model_pricing.
type OpenRouterSource struct {
	APIKey string
	Client *http.Client
}

type openRouterModelsResponse struct {
	Data []openRouterModel `json:"data"`
}

type openRouterModel struct {
	ID      string `json:"id"`
	Pricing struct {
		Prompt          string `json:"prompt"`
		Completion      string `json:"completion"`
		InputCacheRead  string `json:"input_cache_read"`
	} `json:"pricing"`
}

// FetchCatalog fetches and parses OpenRouter's full model list. A blank
// APIKey is a no-op that returns an empty catalog rather than an error —
// the resolver treats "not configured" the same as "fetch failed": fall
// through to static/fallback pricing.
func (s *OpenRouterSource) FetchCatalog(ctx context.Context) (map[string]Pricing, error) {
	if s.APIKey == "" {
		return map[string]Pricing{}, nil
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openRouterModelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building openrouter request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching openrouter models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter models endpoint returned status %d", resp.StatusCode)
	}

	var parsed openRouterModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding openrouter models: %w", err)
	}

	catalog := make(map[string]Pricing, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID == "" {
			continue
		}
		provider := "openrouter"
		if idx := strings.Index(m.ID, "/"); idx >= 0 {
			provider = m.ID[:idx]
		}

		promptPerToken, _ := strconv.ParseFloat(m.Pricing.Prompt, 64)
		completionPerToken, _ := strconv.ParseFloat(m.Pricing.Completion, 64)

		p := Pricing{
			Provider:         provider,
			Model:            m.ID,
			InputPerMillion:  money.FromDollars(promptPerToken * 1_000_000),
			OutputPerMillion: money.FromDollars(completionPerToken * 1_000_000),
		}
		if m.Pricing.InputCacheRead != "" {
			cachedPerToken, err := strconv.ParseFloat(m.Pricing.InputCacheRead, 64)
			if err == nil {
				cached := money.FromDollars(cachedPerToken * 1_000_000)
				p.CachedPerMillion = &cached
			}
		}
		catalog[m.ID] = p
	}

	return catalog, nil
}

// staticTableEntry mirrors the YAML shape of the static pricing table:
// a flat list of per-(provider, model) rates in dollars per million
// tokens, the unit operators actually think in.
type staticTableEntry struct {
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	InputPerMillion  float64  `yaml:"input_per_million"`
	OutputPerMillion float64  `yaml:"output_per_million"`
	CachedPerMillion *float64 `yaml:"cached_per_million"`
}

// LoadStaticTable reads the fallback pricing table from a YAML file and
// shapes it into the provider -> model -> Pricing map NewResolver expects.
// A blank path is a no-op: the resolver still works off its dynamic
// source and DefaultFallback.
func LoadStaticTable(path string) (map[string]map[string]Pricing, error) {
	table := make(map[string]map[string]Pricing)
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading static pricing table %q: %w", path, err)
	}

	var entries []staticTableEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing static pricing table %q: %w", path, err)
	}

	for _, e := range entries {
		p := Pricing{
			Provider:         e.Provider,
			Model:            e.Model,
			InputPerMillion:  money.FromDollars(e.InputPerMillion),
			OutputPerMillion: money.FromDollars(e.OutputPerMillion),
		}
		if e.CachedPerMillion != nil {
			cached := money.FromDollars(*e.CachedPerMillion)
			p.CachedPerMillion = &cached
		}
		if table[e.Provider] == nil {
			table[e.Provider] = make(map[string]Pricing)
		}
		table[e.Provider][e.Model] = p
	}

	return table, nil
}

// zapWarner adapts a *zap.SugaredLogger-shaped logger (anything with
// Warnf) to the Warner interface so Resolver can
// log fallback-pricing notices through the service's structured logger
// instead of the standard library's log package.
type zapWarner struct {
	logger zapSugaredLogger
}

// zapSugaredLogger is the subset of *zap.SugaredLogger's API LogWarner
// needs, kept narrow so this package doesn't import zap just to define an
// adapter around it.
type zapSugaredLogger interface {
	Warnf(template string, args ...any)
}

// LogWarner adapts any zap.SugaredLogger-shaped logger into a Warner.
func LogWarner(logger zapSugaredLogger) Warner {
	return zapWarner{logger: logger}
}

func (w zapWarner) Warn(provider, model string) {
	w.logger.Warnf("pricing: no rate configured for %s/%s, using DefaultFallback", provider, model)
}
