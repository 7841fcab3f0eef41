package debate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/money"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

// eventMapper translates the InternalEvent stream the state machine (C6)
// and executor (C7) produce into the client-facing Event envelope,
// persisting as it goes — grounded on modules/debates/event_mapper.py's
// EventMapper. InternalEvent has two kinds, token and lifecycle marker;
// there is no state-update kind, so nothing here maps node-level state
// deltas.
//
// Persistence happens before the corresponding event is emitted: a client
// that sees personality_completed is guaranteed the response row already
// exists in Store, matching the original's ordering (save then yield).
type eventMapper struct {
	debateID uuid.UUID
	owner    string
	question string
	provider string
	model    string

	store    Store
	recorder *usage.Recorder

	currentRoundNum int
	currentRoundID  uuid.UUID
	roundResponses  []PersonalityResponse

	runningCost money.Micros
}

func newEventMapper(debateID uuid.UUID, owner, question, provider, model string, store Store, recorder *usage.Recorder) *eventMapper {
	return &eventMapper{
		debateID: debateID,
		owner:    owner,
		question: question,
		provider: provider,
		model:    model,
		store:    store,
		recorder: recorder,
	}
}

// Map handles one InternalEvent and returns zero or more client Events —
// zero for token deltas that carry no persistable content (the final
// per-personality token marker) and for internal-only lifecycle markers
// that have no client-facing analogue, one or more otherwise (e.g.
// personality_completed is always followed by a cost_update, exactly as
// _on_personality_completed does in the original).
func (m *eventMapper) Map(ctx context.Context, ev InternalEvent) ([]Event, error) {
	switch ev.kind {
	case kindToken:
		return m.mapToken(ev), nil
	case kindLifecycle:
		return m.mapLifecycle(ctx, ev)
	default:
		return nil, nil
	}
}

func (m *eventMapper) mapToken(ev InternalEvent) []Event {
	if ev.tokenIsFinal {
		// The final per-personality marker carries neither text nor
		// usage (usage travels on personality_completed's response); it
		// only marks the end of a personality's tokens and has no
		// client-facing shape of its own.
		return nil
	}

	eventType := EventAnswerChunk
	if ev.tokenPersonality == PersonalitySynthesizer {
		eventType = EventSynthesisChunk
	}

	round := m.currentRoundNum
	return []Event{{
		Type:        eventType,
		DebateID:    m.debateID,
		Timestamp:   time.Now().UTC(),
		RoundNumber: &round,
		Personality: ev.tokenPersonality,
		Content:     ev.tokenDelta,
	}}
}

func (m *eventMapper) mapLifecycle(ctx context.Context, ev InternalEvent) ([]Event, error) {
	switch ev.lifecycle {
	case lifecycleRoundStarted:
		return m.onRoundStarted(ctx, ev)
	case lifecyclePersonalityStarted:
		return m.onPersonalityStarted(ev), nil
	case lifecyclePersonalityComplete:
		return m.onPersonalityCompleted(ctx, ev)
	case lifecycleRoundCompleted:
		return m.onRoundCompleted(ctx, ev)
	case lifecycleConsensusCheck:
		return m.onConsensusCheck(ev), nil
	case lifecycleConsensusResult:
		return m.onConsensusResult(ev), nil
	case lifecycleSynthesisStarted:
		return m.onSynthesisStarted(), nil
	case lifecycleSynthesisCompleted:
		return m.onSynthesisCompleted(ctx, ev)
	default:
		return nil, nil
	}
}

func (m *eventMapper) onRoundStarted(ctx context.Context, ev InternalEvent) ([]Event, error) {
	m.currentRoundNum = ev.roundNumber
	m.roundResponses = nil

	roundID, err := m.store.SaveRound(ctx, m.debateID, m.currentRoundNum)
	if err != nil {
		return nil, err
	}
	m.currentRoundID = roundID

	round := m.currentRoundNum
	return []Event{{
		Type:        EventRoundStarted,
		DebateID:    m.debateID,
		Timestamp:   time.Now().UTC(),
		RoundNumber: &round,
	}}, nil
}

func (m *eventMapper) onPersonalityStarted(ev InternalEvent) []Event {
	round := m.currentRoundNum
	return []Event{{
		Type:        EventPersonalityStarted,
		DebateID:    m.debateID,
		Timestamp:   time.Now().UTC(),
		RoundNumber: &round,
		Personality: ev.personality,
	}}
}

func (m *eventMapper) onPersonalityCompleted(ctx context.Context, ev InternalEvent) ([]Event, error) {
	resp := *ev.response

	rec, err := m.recorder.Record(ctx, usage.PartialRecord{
		User: m.owner, DebateID: m.debateID, Provider: m.provider, Model: m.model,
		InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
		Operation: usage.OperationDebateResponse, Personality: resp.Personality, RoundNumber: m.currentRoundNum,
	})
	if err != nil {
		return nil, err
	}
	resp.Cost = rec.Cost
	resp.CreatedAt = rec.CreatedAt

	respID, err := m.store.SaveResponse(ctx, m.currentRoundID, resp)
	if err != nil {
		return nil, err
	}
	resp.ID = respID

	if err := m.store.UpdateTotals(ctx, m.debateID, resp.InputTokens, resp.OutputTokens, resp.Cost); err != nil {
		return nil, err
	}
	m.runningCost = m.runningCost.Add(resp.Cost)
	m.roundResponses = append(m.roundResponses, resp)

	round := m.currentRoundNum
	cost := m.runningCost
	return []Event{
		{
			Type:        EventPersonalityCompleted,
			DebateID:    m.debateID,
			Timestamp:   time.Now().UTC(),
			RoundNumber: &round,
			Personality: resp.Personality,
			Response:    &resp,
		},
		{
			Type:      EventCostUpdate,
			DebateID:  m.debateID,
			Timestamp: time.Now().UTC(),
			Cost:      &cost,
		},
	}, nil
}

func (m *eventMapper) onRoundCompleted(ctx context.Context, ev InternalEvent) ([]Event, error) {
	if err := m.store.UpdateStatus(ctx, m.debateID, StatusActive, &m.currentRoundNum, ""); err != nil {
		return nil, err
	}

	round := m.currentRoundNum
	return []Event{{
		Type:        EventRoundCompleted,
		DebateID:    m.debateID,
		Timestamp:   time.Now().UTC(),
		RoundNumber: &round,
		Progress:    map[string]any{"response_count": len(m.roundResponses)},
	}}, nil
}

func (m *eventMapper) onConsensusCheck(ev InternalEvent) []Event {
	return []Event{{
		Type:      EventProgressUpdate,
		DebateID:  m.debateID,
		Timestamp: time.Now().UTC(),
		Progress:  map[string]any{"phase": "consensus_check", "round_number": m.currentRoundNum},
	}}
}

func (m *eventMapper) onConsensusResult(ev InternalEvent) []Event {
	return []Event{{
		Type:      EventProgressUpdate,
		DebateID:  m.debateID,
		Timestamp: time.Now().UTC(),
		Progress: map[string]any{
			"phase":             "consensus_result",
			"consensus_reached": ev.consensus.Reached,
			"reasoning":         ev.consensus.Reasoning,
		},
	}}
}

func (m *eventMapper) onSynthesisStarted() []Event {
	return []Event{{
		Type:      EventSynthesisStarted,
		DebateID:  m.debateID,
		Timestamp: time.Now().UTC(),
	}}
}

func (m *eventMapper) onSynthesisCompleted(ctx context.Context, ev InternalEvent) ([]Event, error) {
	syn := *ev.synthesisResult

	rec, err := m.recorder.Record(ctx, usage.PartialRecord{
		User: m.owner, DebateID: m.debateID, Provider: m.provider, Model: m.model,
		InputTokens: syn.InputTokens, OutputTokens: syn.OutputTokens, Operation: usage.OperationSynthesis,
	})
	if err != nil {
		return nil, err
	}
	syn.InputTokens = rec.InputTokens
	syn.OutputTokens = rec.OutputTokens
	syn.Cost = rec.Cost
	syn.CreatedAt = rec.CreatedAt

	synID, err := m.store.SaveSynthesis(ctx, m.debateID, syn.Content, syn.InputTokens, syn.OutputTokens, syn.Cost)
	if err != nil {
		return nil, err
	}
	syn.ID = synID

	return []Event{{
		Type:      EventSynthesisCompleted,
		DebateID:  m.debateID,
		Timestamp: time.Now().UTC(),
		Synthesis: &syn,
	}}, nil
}
