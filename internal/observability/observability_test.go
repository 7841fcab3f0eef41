package observability

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_DefaultsToInfoOnUnknownLevel(t *testing.T) {
	logger, err := NewLogger("not-a-real-level")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Sync()
	if !logger.Core().Enabled(zapcore.InfoLevel) || logger.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("logger level is not info for an unknown level string")
	}
}

func TestNewProvider_BuildsInstrumentsWithoutError(t *testing.T) {
	p, err := NewProvider()
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	ctx := context.Background()
	p.Metrics.RecordDebateOutcome(ctx, "created")
	p.Metrics.RecordDebateOutcome(ctx, "completed")
	p.Metrics.RecordResponse(ctx, "mock", "optimist", 42, 1000)
}
