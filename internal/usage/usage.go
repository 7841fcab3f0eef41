// Package usage implements the usage recorder (C4): it turns raw token
// counts into priced, persisted UsageRecord rows and answers summary and
// history queries over them.
package usage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/money"
	"github.com/arbiter-hq/arbiter/internal/pricing"
)

// Operation classifies what a UsageRecord paid for.
type Operation string

const (
	OperationDebateResponse Operation = "debate_response"
	OperationSynthesis      Operation = "synthesis"
	OperationConsensusCheck Operation = "consensus_check"
)

// Record is an immutable, append-only usage entry.
type Record struct {
	ID              uuid.UUID
	User            string
	DebateID        uuid.UUID
	Provider        string
	Model           string
	InputTokens     int
	OutputTokens    int
	CachedTokens    int
	Cost            money.Micros
	Operation       Operation
	Personality     string // empty for synthesis/consensus_check
	RoundNumber     int    // 0 for synthesis/consensus_check
	CreatedAt       time.Time
}

// TotalTokens is a derived invariant: input + output.
func (r Record) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// PartialRecord is the input to Recorder.Record — everything except the
// fields the recorder itself fills in (id, cost, timestamps).
type PartialRecord struct {
	User         string
	DebateID     uuid.UUID
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Operation    Operation
	Personality  string
	RoundNumber  int
}

// CostEstimate is the breakdown returned by Estimate, with no side effects.
type CostEstimate struct {
	InputCost        money.Micros
	OutputCost       money.Micros
	TotalCost        money.Micros
	InputPerMillion  money.Micros
	OutputPerMillion money.Micros
}

// Summary aggregates a user's usage over a period.
type Summary struct {
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         money.Micros
	ByProvider        map[string]money.Micros
	ByOperation       map[Operation]money.Micros
}

// Store is the persistence contract Recorder needs. MemoryStore is the
// only implementation in this repository; there is no database-backed
// Store, so usage records do not survive a restart.
type Store interface {
	Append(ctx context.Context, r Record) error
	ListByUser(ctx context.Context, user string, from, to time.Time) ([]Record, error)
}

// Recorder implements C4.
type Recorder struct {
	store    Store
	resolver *pricing.Resolver
}

// NewRecorder builds a Recorder over store, pricing via resolver.
func NewRecorder(store Store, resolver *pricing.Resolver) *Recorder {
	return &Recorder{store: store, resolver: resolver}
}

// Record fills in id, cost (via the pricing resolver), and a creation
// timestamp, appends the row, and returns the materialized Record.
func (r *Recorder) Record(ctx context.Context, p PartialRecord) (Record, error) {
	price, err := r.resolver.Price(ctx, p.Provider, p.Model)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:           uuid.New(),
		User:         p.User,
		DebateID:     p.DebateID,
		Provider:     p.Provider,
		Model:        p.Model,
		InputTokens:  p.InputTokens,
		OutputTokens: p.OutputTokens,
		CachedTokens: p.CachedTokens,
		Cost:         price.Cost(int64(p.InputTokens), int64(p.OutputTokens), int64(p.CachedTokens)),
		Operation:    p.Operation,
		Personality:  p.Personality,
		RoundNumber:  p.RoundNumber,
		CreatedAt:    now(),
	}

	if err := r.store.Append(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Estimate computes a cost breakdown for the given token counts without
// recording anything — used for the credit pre-check at debate creation.
func (r *Recorder) Estimate(ctx context.Context, provider, model string, in, out int64) (CostEstimate, error) {
	price, err := r.resolver.Price(ctx, provider, model)
	if err != nil {
		return CostEstimate{}, err
	}
	inputCost := money.PerMillionTokens(price.InputPerMillion, in)
	outputCost := money.PerMillionTokens(price.OutputPerMillion, out)
	return CostEstimate{
		InputCost:        inputCost,
		OutputCost:       outputCost,
		TotalCost:        inputCost.Add(outputCost),
		InputPerMillion:  price.InputPerMillion,
		OutputPerMillion: price.OutputPerMillion,
	}, nil
}

// CurrentCalendarMonthUTC returns the [start, end) bounds of the current
// UTC calendar month, the default period boundary for Summary and History.
func CurrentCalendarMonthUTC() (time.Time, time.Time) {
	n := now().UTC()
	start := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end
}

// Summary aggregates totals and breakdowns by provider and operation for
// user over [from, to). A zero from/to pair means "current calendar month
// UTC".
func (r *Recorder) Summary(ctx context.Context, user string, from, to time.Time) (Summary, error) {
	if from.IsZero() && to.IsZero() {
		from, to = CurrentCalendarMonthUTC()
	}

	records, err := r.store.ListByUser(ctx, user, from, to)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		PeriodStart: from,
		PeriodEnd:   to,
		ByProvider:  make(map[string]money.Micros),
		ByOperation: make(map[Operation]money.Micros),
	}
	for _, rec := range records {
		s.TotalInputTokens += rec.InputTokens
		s.TotalOutputTokens += rec.OutputTokens
		s.TotalCost = s.TotalCost.Add(rec.Cost)
		s.ByProvider[rec.Provider] = s.ByProvider[rec.Provider].Add(rec.Cost)
		s.ByOperation[rec.Operation] = s.ByOperation[rec.Operation].Add(rec.Cost)
	}
	return s, nil
}

// History returns a user's usage records, most-recent-first, with
// offset/limit pagination over [from, to).
func (r *Recorder) History(ctx context.Context, user string, limit, offset int, from, to time.Time) ([]Record, error) {
	if from.IsZero() && to.IsZero() {
		from = time.Unix(0, 0).UTC()
		to = now().UTC().Add(time.Hour)
	}

	records, err := r.store.ListByUser(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if offset >= len(records) {
		return []Record{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

// now is a seam for tests that need deterministic timestamps; production
// code always calls time.Now via this indirection point so a future test
// helper can override it without reaching into package internals.
var now = time.Now
