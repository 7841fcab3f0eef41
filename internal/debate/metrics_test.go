package debate

import (
	"context"
	"testing"
	"time"

	"github.com/arbiter-hq/arbiter/internal/provider"
)

type recordingMetrics struct {
	outcomes  []string
	responses int
}

func (m *recordingMetrics) RecordDebateOutcome(ctx context.Context, status string) {
	m.outcomes = append(m.outcomes, status)
}

func (m *recordingMetrics) RecordResponse(ctx context.Context, provider, personality string, totalTokens int, costMicros int64) {
	m.responses++
}

func TestService_RecordsMetricsOnCreateAndOutcome(t *testing.T) {
	svc, script := testHarness(t)
	metrics := &recordingMetrics{}
	svc.SetMetrics(metrics)
	ctx := context.Background()

	settings, _ := NewSettings(1, 0.7, []string{"a"}, false)
	d, err := svc.Create(ctx, Draft{Owner: "u1", Question: "Q", Provider: "mock", Model: "echo", Settings: settings})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	script("echo", 0, provider.MockScript{Deltas: []string{"hi"}, Usage: &provider.Usage{InputTokens: 1, OutputTokens: 1}})

	ch, err := svc.StartStream(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	drainEvents(ch, 5*time.Second)

	if !containsString(metrics.outcomes, "created") {
		t.Errorf("outcomes = %v, want to contain created", metrics.outcomes)
	}
	if !containsString(metrics.outcomes, "completed") {
		t.Errorf("outcomes = %v, want to contain completed", metrics.outcomes)
	}
	if metrics.responses == 0 {
		t.Error("expected at least one recorded response")
	}
}

func containsString(got []string, want string) bool {
	for _, g := range got {
		if g == want {
			return true
		}
	}
	return false
}
