package debate

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/money"
)

// ---------------------------------------------------------------------------
// Internal event stream (C6/C7 -> C10)
// ---------------------------------------------------------------------------

// internalKind discriminates InternalEvent. There are two kinds: message
// token and lifecycle marker; state updates are not carried as events.
type internalKind int

const (
	kindToken internalKind = iota
	kindLifecycle
)

// lifecycleKind enumerates the custom lifecycle markers C6/C7 emit.
type lifecycleKind string

const (
	lifecycleRoundStarted        lifecycleKind = "round_started"
	lifecyclePersonalityStarted  lifecycleKind = "personality_started"
	lifecyclePersonalityComplete lifecycleKind = "personality_completed"
	lifecycleRoundCompleted      lifecycleKind = "round_completed"
	lifecycleConsensusCheck      lifecycleKind = "consensus_check"
	lifecycleConsensusResult     lifecycleKind = "consensus_result"
	lifecycleSynthesisStarted    lifecycleKind = "synthesis_started"
	lifecycleSynthesisCompleted  lifecycleKind = "synthesis_completed"
)

// InternalEvent is the tagged-sum record C6/C7 produce and C10 consumes.
// Exactly one of the kind-specific field groups is populated, selected by
// Kind — modeling spec.md §9's "model as a tagged sum of variants" note
// for the Python source's single do-everything event record.
type InternalEvent struct {
	kind internalKind

	// populated when kind == kindToken
	tokenPersonality string
	tokenDelta       string
	tokenIsFinal     bool

	// populated when kind == kindLifecycle
	lifecycle       lifecycleKind
	roundNumber     int
	personality     string
	response        *PersonalityResponse
	synthesisResult *Synthesis
	consensus       *ConsensusVerdict
}

// TurnUsage carries the normalized usage for a single personality turn —
// the provider.Usage shape, copied here so the debate package doesn't
// import provider types into its event model.
type TurnUsage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	Estimated         bool
}

// ConsensusVerdict is the consensus judge's (C8) output.
type ConsensusVerdict struct {
	Reached   bool
	Reasoning string
}

func tokenEvent(personality, delta string) InternalEvent {
	return InternalEvent{kind: kindToken, tokenPersonality: personality, tokenDelta: delta}
}

// tokenFinalEvent marks the end of a personality's token stream. It
// carries no text — the executor has already folded the stream's usage
// into the PersonalityResponse passed to personalityCompletedEvent — so
// its only job is to let a consumer know no more tokenEvent values are
// coming for this personality.
func tokenFinalEvent(personality string) InternalEvent {
	return InternalEvent{kind: kindToken, tokenPersonality: personality, tokenIsFinal: true}
}

func lifecycleEvent(k lifecycleKind) InternalEvent {
	return InternalEvent{kind: kindLifecycle, lifecycle: k}
}

func roundStartedEvent(n int) InternalEvent {
	e := lifecycleEvent(lifecycleRoundStarted)
	e.roundNumber = n
	return e
}

func roundCompletedEvent(n int) InternalEvent {
	e := lifecycleEvent(lifecycleRoundCompleted)
	e.roundNumber = n
	return e
}

func personalityStartedEvent(personality string) InternalEvent {
	e := lifecycleEvent(lifecyclePersonalityStarted)
	e.personality = personality
	return e
}

func personalityCompletedEvent(resp PersonalityResponse) InternalEvent {
	e := lifecycleEvent(lifecyclePersonalityComplete)
	e.personality = resp.Personality
	e.response = &resp
	return e
}

func consensusCheckEvent() InternalEvent {
	return lifecycleEvent(lifecycleConsensusCheck)
}

func consensusResultEvent(v ConsensusVerdict) InternalEvent {
	e := lifecycleEvent(lifecycleConsensusResult)
	e.consensus = &v
	return e
}

func synthesisStartedEvent() InternalEvent {
	return lifecycleEvent(lifecycleSynthesisStarted)
}

func synthesisCompletedEvent(s Synthesis) InternalEvent {
	e := lifecycleEvent(lifecycleSynthesisCompleted)
	e.synthesisResult = &s
	return e
}

// ---------------------------------------------------------------------------
// Client-facing envelope (the flat DTO carried by SSE)
// ---------------------------------------------------------------------------

// EventType enumerates every envelope type a client may receive, per
// spec.md §3.
type EventType string

const (
	EventDebateStarted        EventType = "debate_started"
	EventDebateCompleted      EventType = "debate_completed"
	EventDebateFailed         EventType = "debate_failed"
	EventRoundStarted         EventType = "round_started"
	EventRoundCompleted       EventType = "round_completed"
	EventPersonalityStarted   EventType = "personality_started"
	EventThinkingChunk        EventType = "thinking_chunk"
	EventAnswerChunk          EventType = "answer_chunk"
	EventPersonalityCompleted EventType = "personality_completed"
	EventSynthesisStarted     EventType = "synthesis_started"
	EventSynthesisChunk       EventType = "synthesis_chunk"
	EventSynthesisCompleted   EventType = "synthesis_completed"
	EventProgressUpdate       EventType = "progress_update"
	EventCostUpdate           EventType = "cost_update"
	EventError                EventType = "error"
)

// Event is the transport DTO delivered over SSE. Optional fields are
// pointers so encoding/json omits them (via omitempty) when unset, giving
// the flat envelope shape spec.md §3 describes rather than the tagged-sum
// shape used internally.
type Event struct {
	Type        EventType  `json:"type"`
	DebateID    uuid.UUID  `json:"debate_id"`
	Timestamp   time.Time  `json:"timestamp"`
	RoundNumber *int       `json:"round_number,omitempty"`
	Personality string     `json:"personality,omitempty"`
	Content     string     `json:"content,omitempty"`

	Response  *PersonalityResponse `json:"response,omitempty"`
	Synthesis *Synthesis           `json:"synthesis,omitempty"`

	Progress map[string]any `json:"progress,omitempty"`
	Cost     *money.Micros  `json:"cost,omitempty"`
	Error    string         `json:"error,omitempty"`
}
