package debate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/billing"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

// averageResponseTokens is the per-personality-per-round token estimate
// used for the pre-flight credit check — a deliberately coarse number
// since the real cost is only known after the model responds; spec.md
// §4.11 calls for "max_rounds × #personalities × average-response
// tokens" without specifying the constant, so this is a design default
// calibrated to a few paragraphs of prose.
const averageResponseTokens = 600

// consumerStallDeadline is how long StartStream waits for a caller to
// drain the next batch of events before deciding the client has gone away
// and cancelling the debate, per spec.md §5.
const consumerStallDeadline = 30 * time.Second

// ProviderFactory resolves a (provider name, per-provider-type instance
// number) pair to a ready-to-use Provider — instance only matters for
// families that need parallel-call suffixes (LM Studio; see
// internal/provider/openai_compatible.go).
type ProviderFactory func(providerName string, instance int) (provider.Provider, error)

// PromptLoader resolves a personality name to its system prompt text.
type PromptLoader interface {
	Prompt(personality string) (string, bool)
}

// MetricsRecorder receives debate lifecycle and per-response observations.
// Defined here (not imported from internal/observability) so the domain
// package stays independent of the ambient metrics stack; the concrete
// implementation lives in internal/observability and is wired in by main.
type MetricsRecorder interface {
	RecordDebateOutcome(ctx context.Context, status string)
	RecordResponse(ctx context.Context, provider, personality string, totalTokens int, costMicros int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordDebateOutcome(context.Context, string)                        {}
func (noopMetrics) RecordResponse(context.Context, string, string, int, int64) {}

// Service implements C11: the debate lifecycle façade that the HTTP layer
// (C13) drives. It owns no business rule beyond orchestration — the state
// machine (C6), executor (C7), consensus judge (C8), and synthesizer (C9)
// hold the actual debate logic.
type Service struct {
	store    Store
	ledger   billing.Ledger
	recorder *usage.Recorder
	counter  *tokencount.Counter
	provide  ProviderFactory
	prompts  PromptLoader
	metrics  MetricsRecorder

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

// NewService wires C11's dependencies. Metrics defaults to a no-op
// recorder — call SetMetrics to attach the production observability
// stack once it is constructed in main.
func NewService(store Store, ledger billing.Ledger, recorder *usage.Recorder, counter *tokencount.Counter, provide ProviderFactory, prompts PromptLoader) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		recorder: recorder,
		counter:  counter,
		provide:  provide,
		prompts:  prompts,
		metrics:  noopMetrics{},
		active:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// SetMetrics attaches a MetricsRecorder; passing nil restores the no-op
// default.
func (s *Service) SetMetrics(m MetricsRecorder) {
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

// Create validates the draft, pre-checks the owner's credit balance
// against a coarse cost estimate, and persists a pending debate.
func (s *Service) Create(ctx context.Context, draft Draft) (Debate, error) {
	if err := ValidateQuestion(draft.Question); err != nil {
		return Debate{}, err
	}

	estimatedTokens := int64(draft.Settings.MaxRounds) * int64(len(draft.Settings.Personalities)) * averageResponseTokens
	estimate, err := s.recorder.Estimate(ctx, draft.Provider, draft.Model, estimatedTokens, estimatedTokens)
	if err != nil {
		return Debate{}, err
	}

	sufficient, available, err := s.ledger.CheckSufficientCredits(ctx, draft.Owner, estimate.TotalCost)
	if err != nil {
		return Debate{}, err
	}
	if !sufficient {
		return Debate{}, &apperrors.InsufficientCreditsError{RequiredMicros: estimate.TotalCost, AvailableMicros: available}
	}

	d, err := s.store.CreateDebate(ctx, draft)
	if err != nil {
		return Debate{}, err
	}
	s.metrics.RecordDebateOutcome(ctx, "created")
	return d, nil
}

// Get loads a debate, enforcing ownership. A debate owned by a different
// user is reported as NotFound, never AccessDenied, per spec.md §4.11's
// existence-disclosure note — overriding the original source's distinct
// DebateAccessDeniedError.
func (s *Service) Get(ctx context.Context, user string, id uuid.UUID) (Debate, error) {
	d, err := s.store.GetByID(ctx, id, true, true)
	if err != nil {
		return Debate{}, err
	}
	if d.Owner != user {
		return Debate{}, &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	return d, nil
}

// List returns a page of the user's debates, most-recent-first.
func (s *Service) List(ctx context.Context, user string, page, pageSize int, status *Status) (PagedList, error) {
	return s.store.ListByUser(ctx, user, page, pageSize, status)
}

// Cancel transitions a pending or active debate to cancelled and
// interrupts any in-flight stream cooperatively.
func (s *Service) Cancel(ctx context.Context, user string, id uuid.UUID) (Debate, error) {
	d, err := s.Get(ctx, user, id)
	if err != nil {
		return Debate{}, err
	}
	if d.Status != StatusPending && d.Status != StatusActive {
		return Debate{}, &apperrors.ValidationError{Field: "status", Reason: "debate is not pending or active"}
	}

	s.mu.Lock()
	if cancel, ok := s.active[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	if err := s.store.UpdateStatus(ctx, id, StatusCancelled, nil, ""); err != nil {
		return Debate{}, err
	}
	return s.Get(ctx, user, id)
}

// Delete removes a debate in any terminal state, cascading via Store.
func (s *Service) Delete(ctx context.Context, user string, id uuid.UUID) error {
	d, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}
	if !d.Status.Terminal() {
		return &apperrors.ValidationError{Field: "status", Reason: "debate must be in a terminal state to delete"}
	}
	return s.store.Delete(ctx, id)
}

// StartStream transitions a pending debate to active, drives the state
// machine, and forwards client-shaped Events to the returned channel. The
// channel is closed when the debate reaches a terminal state; a
// debate_completed or debate_failed envelope is the final value sent
// before close, unless the consumer stalled past consumerStallDeadline,
// in which case the channel closes without one.
func (s *Service) StartStream(ctx context.Context, user string, id uuid.UUID) (<-chan Event, error) {
	d, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return nil, &apperrors.ValidationError{Field: "status", Reason: "debate is not pending"}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()

	turns, judge, synth, err := s.buildPipeline(d)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, id, StatusActive, nil, ""); err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Event, 1)
	go s.drive(runCtx, cancel, d, turns, judge, synth, out)
	return out, nil
}

func (s *Service) drive(ctx context.Context, cancel context.CancelFunc, d Debate, turns []personalityTurn, judge *consensusJudge, synth *synthesizer, out chan<- Event) {
	defer close(out)
	defer func() {
		s.mu.Lock()
		delete(s.active, d.ID)
		s.mu.Unlock()
		cancel()
	}()

	sink := newEventSink()
	mapper := newEventMapper(d.ID, d.Owner, d.Question, d.Provider, d.Model, s.store, s.recorder)

	var synthPtr *synthesizer
	if d.Settings.IncludeSynthesis {
		synthPtr = synth
	}
	r := newRunner(newRoundExecutor(turns, s.counter), judge, synthPtr, d.Settings.MaxRounds, d.Question)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-time.After(consumerStallDeadline):
			cancel()
			return false
		}
	}

	send(Event{Type: EventDebateStarted, DebateID: d.ID, Timestamp: time.Now().UTC()})

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		defer sink.Close()
		_, runErr = r.Run(ctx, sink.Send)
	}()

	for {
		batch := sink.Drain()
		if batch == nil {
			break
		}
		for _, ev := range batch {
			mapped, err := mapper.Map(ctx, ev)
			if err != nil {
				runErr = err
				cancel()
				continue
			}
			for _, e := range mapped {
				if e.Type == EventPersonalityCompleted && e.Response != nil {
					s.metrics.RecordResponse(ctx, d.Provider, e.Response.Personality,
						e.Response.InputTokens+e.Response.OutputTokens, int64(e.Response.Cost))
				}
				if !send(e) {
					return
				}
			}
		}
	}
	<-done

	s.finish(ctx, d.ID, runErr, send)
}

// finish writes the terminal status and sends the terminal envelope. When
// a Cancel races with normal completion, the client is told whichever
// terminal envelope it receives first, while the stored status is
// whichever UpdateStatus call ran last.
func (s *Service) finish(ctx context.Context, id uuid.UUID, runErr error, send func(Event) bool) {
	if runErr != nil {
		if cancelled, ok := runErr.(*apperrors.CancelledError); ok {
			send(Event{Type: EventError, DebateID: id, Timestamp: time.Now().UTC(), Error: cancelled.Error()})
			_ = s.store.UpdateStatus(ctx, id, StatusCancelled, nil, cancelled.Error())
			s.metrics.RecordDebateOutcome(ctx, string(StatusCancelled))
			send(Event{Type: EventDebateFailed, DebateID: id, Timestamp: time.Now().UTC(), Error: cancelled.Error()})
			return
		}
		send(Event{Type: EventError, DebateID: id, Timestamp: time.Now().UTC(), Error: runErr.Error()})
		_ = s.store.UpdateStatus(ctx, id, StatusFailed, nil, runErr.Error())
		s.metrics.RecordDebateOutcome(ctx, string(StatusFailed))
		send(Event{Type: EventDebateFailed, DebateID: id, Timestamp: time.Now().UTC(), Error: runErr.Error()})
		return
	}

	_ = s.store.UpdateStatus(ctx, id, StatusCompleted, nil, "")
	s.metrics.RecordDebateOutcome(ctx, string(StatusCompleted))
	send(Event{Type: EventDebateCompleted, DebateID: id, Timestamp: time.Now().UTC()})
}

// buildPipeline resolves each personality's provider/prompt and assigns
// per-provider-type instance numbers, mirroring core/nodes.py's
// _compute_provider_instances — every personality in a debate shares the
// same provider/model tag, so instance numbering here degenerates to "0,
// 1, 2, ..." for a single-provider debate, but stays correct if the
// provider factory is later extended to mix provider types per
// personality.
func (s *Service) buildPipeline(d Debate) ([]personalityTurn, *consensusJudge, *synthesizer, error) {
	instance := 0
	turns := make([]personalityTurn, 0, len(d.Settings.Personalities))
	for _, name := range d.Settings.Personalities {
		p, err := s.provide(d.Provider, instance)
		if err != nil {
			return nil, nil, nil, err
		}
		instance++

		prompt, _ := s.prompts.Prompt(name)
		turns = append(turns, personalityTurn{
			Personality:  name,
			Provider:     p,
			Model:        d.Model,
			SystemPrompt: prompt,
			Temperature:  d.Settings.Temperature,
		})
	}

	judgeProvider, err := s.provide(d.Provider, instance)
	if err != nil {
		return nil, nil, nil, err
	}
	judge := newConsensusJudge(judgeProvider, d.Model, func() (string, bool) { return s.prompts.Prompt(PersonalityConsensusCheck) })
	instance++

	synthProvider, err := s.provide(d.Provider, instance)
	if err != nil {
		return nil, nil, nil, err
	}
	synth := newSynthesizer(synthProvider, d.Model, func() (string, bool) { return s.prompts.Prompt(PersonalitySynthesizer) })

	return turns, judge, synth, nil
}
