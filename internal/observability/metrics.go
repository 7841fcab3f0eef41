package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/arbiter-hq/arbiter"

// Metrics holds every OpenTelemetry instrument SPEC_FULL.md §4.14 names:
// counters for debate lifecycle transitions and cost accrued, plus
// histograms for round duration and tokens per response.
type Metrics struct {
	DebatesCreated   metric.Int64Counter
	DebatesCompleted metric.Int64Counter
	DebatesFailed    metric.Int64Counter
	DebatesCancelled metric.Int64Counter

	RoundDuration      metric.Float64Histogram
	TokensPerResponse  metric.Int64Histogram
	CostAccruedMicros  metric.Int64Counter
}

// Provider bundles the MeterProvider that backs Metrics, read by the
// Prometheus exporter, so main can defer Shutdown. It holds no HTTP
// handler; the /metrics route is served separately.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics
}

// NewProvider builds a MeterProvider backed by a Prometheus exporter
// bridge (so metrics remain scrapeable via the standard /metrics
// convention) and the Metrics instrument set.
func NewProvider() (*Provider, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := newMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(context.Background()))
	}
	return &Provider{MeterProvider: mp, Metrics: m}, nil
}

// Shutdown flushes and closes the underlying MeterProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}

func newMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var err error
	m := &Metrics{}

	if m.DebatesCreated, err = meter.Int64Counter("arbiter.debates.created",
		metric.WithDescription("Total debates created.")); err != nil {
		return nil, err
	}
	if m.DebatesCompleted, err = meter.Int64Counter("arbiter.debates.completed",
		metric.WithDescription("Total debates that reached the completed state.")); err != nil {
		return nil, err
	}
	if m.DebatesFailed, err = meter.Int64Counter("arbiter.debates.failed",
		metric.WithDescription("Total debates that reached the failed state.")); err != nil {
		return nil, err
	}
	if m.DebatesCancelled, err = meter.Int64Counter("arbiter.debates.cancelled",
		metric.WithDescription("Total debates that reached the cancelled state.")); err != nil {
		return nil, err
	}
	if m.RoundDuration, err = meter.Float64Histogram("arbiter.round.duration",
		metric.WithDescription("Wall-clock duration of one debate round."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.TokensPerResponse, err = meter.Int64Histogram("arbiter.response.tokens",
		metric.WithDescription("Input+output tokens per personality response.")); err != nil {
		return nil, err
	}
	if m.CostAccruedMicros, err = meter.Int64Counter("arbiter.cost.accrued_micros",
		metric.WithDescription("Total cost accrued, in micro-dollars.")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDebateOutcome increments the counter matching a debate's terminal
// status.
func (m *Metrics) RecordDebateOutcome(ctx context.Context, status string) {
	switch status {
	case "created":
		m.DebatesCreated.Add(ctx, 1)
	case "completed":
		m.DebatesCompleted.Add(ctx, 1)
	case "failed":
		m.DebatesFailed.Add(ctx, 1)
	case "cancelled":
		m.DebatesCancelled.Add(ctx, 1)
	}
}

// RecordResponse records one personality response's token count and cost.
func (m *Metrics) RecordResponse(ctx context.Context, provider, personality string, totalTokens int, costMicros int64) {
	attrs := metric.WithAttributes(attribute.String("provider", provider), attribute.String("personality", personality))
	m.TokensPerResponse.Record(ctx, int64(totalTokens), attrs)
	m.CostAccruedMicros.Add(ctx, costMicros, attrs)
}
