package debate

import (
	"context"
	"testing"
	"time"

	"github.com/arbiter-hq/arbiter/internal/billing"
	"github.com/arbiter-hq/arbiter/internal/money"
	"github.com/arbiter-hq/arbiter/internal/pricing"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

// stubPrompts is a PromptLoader that always falls back to the
// package-level defaults (empty system prompt for debate personalities,
// the built-in fallback text for the judge/synthesizer).
type stubPrompts struct{}

func (stubPrompts) Prompt(personality string) (string, bool) { return "", false }

func testHarness(t *testing.T) (*Service, func(model string, instance int, script provider.MockScript)) {
	t.Helper()

	static := map[string]map[string]pricing.Pricing{
		"mock": {
			"echo": {Provider: "mock", Model: "echo", InputPerMillion: money.FromDollars(1), OutputPerMillion: money.FromDollars(1)},
		},
	}
	resolver := pricing.NewResolver(static, nil, nil)
	recorder := usage.NewRecorder(usage.NewMemoryStore(), resolver)
	counter := tokencount.NewCounter()
	ledger := billing.NewMemoryLedger()
	store := NewMemoryStore()

	// One MockProvider per (provider, instance) pair, so personalities
	// sharing a model name can still be scripted independently — the
	// factory is the seam a real deployment would use to hand back
	// distinct OpenAICompatibleProvider instances for LM Studio's
	// per-instance suffixing (see internal/provider/openai_compatible.go).
	instances := make(map[int]*provider.MockProvider)
	factory := func(providerName string, instance int) (provider.Provider, error) {
		if p, ok := instances[instance]; ok {
			return p, nil
		}
		p := provider.NewMockProvider(providerName)
		instances[instance] = p
		return p, nil
	}

	svc := NewService(store, ledger, recorder, counter, factory, stubPrompts{})

	script := func(model string, instance int, s provider.MockScript) {
		p, ok := instances[instance]
		if !ok {
			p = provider.NewMockProvider("mock")
			instances[instance] = p
		}
		p.Script(model, s)
	}

	return svc, script
}

func drainEvents(ch <-chan Event, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func contains(types []EventType, want EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// TestHappyPath_RoundLimitThenSynthesis is spec scenario 1: two
// personalities run for two rounds (consensus is always skipped on round
// 1; at round 2 the judge runs on instance 2, which is unscripted, so its
// empty reply parses as no consensus and max_rounds=2 ends the loop),
// then synthesis runs.
func TestHappyPath_RoundLimitThenSynthesis(t *testing.T) {
	svc, script := testHarness(t)
	ctx := context.Background()

	settings, err := NewSettings(2, 0.7, []string{"a", "b"}, true)
	if err != nil {
		t.Fatalf("NewSettings: %v", err)
	}

	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "What is 2+2?", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// instance 0 -> personality "a", instance 1 -> "b", instance 2 ->
	// consensus judge, instance 3 -> synthesizer (see buildPipeline).
	script("echo", 0, provider.MockScript{Deltas: []string{"four"}, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 1}})
	script("echo", 1, provider.MockScript{Deltas: []string{"four"}, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 1}})
	script("echo", 3, provider.MockScript{Deltas: []string{"synthesis"}, Usage: &provider.Usage{InputTokens: 20, OutputTokens: 1}})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(ch, 5*time.Second)
	types := eventTypes(events)

	if !contains(types, EventDebateStarted) || !contains(types, EventDebateCompleted) {
		t.Fatalf("expected debate_started and debate_completed, got %v", types)
	}
	if !contains(types, EventSynthesisCompleted) {
		t.Fatalf("expected synthesis_completed, got %v", types)
	}

	final, err := svc.Get(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Errorf("Status = %v, want completed", final.Status)
	}
	if len(final.Rounds) != 2 {
		t.Errorf("len(Rounds) = %d, want 2", len(final.Rounds))
	}
	for _, r := range final.Rounds {
		if len(r.Responses) != 2 {
			t.Errorf("round %d has %d responses, want 2", r.Number, len(r.Responses))
		}
	}
	if final.Synthesis == nil {
		t.Fatal("expected synthesis to be persisted")
	}
	if final.TotalCost <= 0 {
		t.Error("expected non-zero total cost")
	}
}

// TestProviderFailure is spec scenario 4: one personality's stream errors
// mid-response; the debate must transition to failed.
func TestProviderFailure(t *testing.T) {
	svc, script := testHarness(t)
	ctx := context.Background()

	settings, _ := NewSettings(3, 0.7, []string{"a", "b"}, false)
	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "Q", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	script("echo", 0, provider.MockScript{Deltas: []string{"fo"}, FailAfter: 1, Err: errBoom})
	script("echo", 1, provider.MockScript{Deltas: []string{"four"}, Usage: &provider.Usage{InputTokens: 1, OutputTokens: 1}})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	events := drainEvents(ch, 5*time.Second)
	types := eventTypes(events)

	if !contains(types, EventDebateFailed) {
		t.Fatalf("expected debate_failed, got %v", types)
	}

	final, err := svc.Get(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != StatusFailed {
		t.Errorf("Status = %v, want failed", final.Status)
	}
}

// TestUnknownModelPricing is spec scenario 5: an unconfigured model falls
// back to DefaultFallback pricing but still produces monotonically
// increasing costs.
func TestUnknownModelPricing(t *testing.T) {
	svc, script := testHarness(t)
	ctx := context.Background()

	settings, _ := NewSettings(1, 0.7, []string{"a"}, false)
	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "Q", Provider: "anthropic", Model: "claude-future-9", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	script("claude-future-9", 0, provider.MockScript{Deltas: []string{"hi"}, Usage: &provider.Usage{InputTokens: 5, OutputTokens: 1}})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	events := drainEvents(ch, 5*time.Second)

	var sawCost bool
	for _, e := range events {
		if e.Type == EventCostUpdate && e.Cost != nil && *e.Cost > 0 {
			sawCost = true
		}
	}
	if !sawCost {
		t.Error("expected at least one positive cost_update via fallback pricing")
	}
}

// TestGet_CrossOwnerIsNotFound enforces the NotFound-not-AccessDenied
// ownership rule from spec.md §4.11.
func TestGet_CrossOwnerIsNotFound(t *testing.T) {
	svc, _ := testHarness(t)
	ctx := context.Background()

	settings, _ := NewSettings(1, 0.5, []string{"a"}, false)
	d, err := svc.Create(ctx, Draft{Owner: "owner", Question: "Q", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Get(ctx, "someone-else", d.ID)
	if err == nil {
		t.Fatal("expected an error for cross-owner access")
	}
	coded, ok := err.(interface{ Code() string })
	if !ok {
		t.Fatalf("expected a coded error, got %T", err)
	}
	if coded.Code() != "not_found" {
		t.Fatalf("Code() = %q, want not_found", coded.Code())
	}
}

// TestEarlyConsensus_StopsBeforeMaxRounds is spec scenario 2: the judge
// reports consensus at round 2 even though max_rounds allows a third, and
// the debate must synthesize and complete without ever running round 3.
func TestEarlyConsensus_StopsBeforeMaxRounds(t *testing.T) {
	svc, script := testHarness(t)
	ctx := context.Background()

	settings, _ := NewSettings(5, 0.7, []string{"a"}, true)
	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "Q", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// instance 0 -> personality "a" (called once per round), instance 1 ->
	// consensus judge, instance 2 -> synthesizer.
	script("echo", 0, provider.MockScript{Deltas: []string{"answer"}, Usage: &provider.Usage{InputTokens: 5, OutputTokens: 1}})
	script("echo", 1, provider.MockScript{Deltas: []string{`{"consensus": true, "reasoning": "agreed"}`}, Usage: &provider.Usage{InputTokens: 5, OutputTokens: 1}})
	script("echo", 2, provider.MockScript{Deltas: []string{"final synthesis"}, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 1}})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	events := drainEvents(ch, 5*time.Second)
	types := eventTypes(events)

	if !contains(types, EventDebateCompleted) {
		t.Fatalf("expected debate_completed, got %v", types)
	}

	final, err := svc.Get(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Consensus reached at round 2 means exactly 2 rounds ran, not 5.
	if len(final.Rounds) != 2 {
		t.Errorf("len(Rounds) = %d, want 2 (early consensus should skip remaining rounds)", len(final.Rounds))
	}
	if final.Synthesis == nil {
		t.Fatal("expected synthesis after early consensus")
	}
}

// TestCancellation_MidRound is spec scenario 3: cancelling a debate whose
// stream is in flight must surface a cancelled-not-failed terminal state
// and stop the round loop rather than running to completion.
func TestCancellation_MidRound(t *testing.T) {
	svc, script := testHarness(t)
	ctx := context.Background()

	settings, _ := NewSettings(10, 0.7, []string{"a"}, false)
	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "Q", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Paced deltas give the test a deterministic window to cancel inside
	// the first round's stream, rather than racing goroutine scheduling.
	script("echo", 0, provider.MockScript{
		Deltas: []string{"thinking", "still thinking", "more", "even more", "final"},
		Delay:  50 * time.Millisecond,
		Usage:  &provider.Usage{InputTokens: 1, OutputTokens: 1},
	})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	// Let the first round's stream get underway, then cancel mid-flight.
	time.Sleep(75 * time.Millisecond)
	if _, err := svc.Cancel(ctx, "u1", d.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	events := drainEvents(ch, 5*time.Second)
	types := eventTypes(events)
	if !contains(types, EventDebateFailed) {
		t.Fatalf("expected a terminal debate_failed envelope after cancellation, got %v", types)
	}

	final, err := svc.Get(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != StatusCancelled {
		t.Errorf("Status = %v, want cancelled", final.Status)
	}
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
