package debate

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
)

// previousRoundTruncation bounds how much of each personality's prior
// answer is folded into the next round's prompt — 2000 chars, grounded on
// core/nodes.py's format_previous_round.
const previousRoundTruncation = 2000

// personalityTurnTimeout is the wall-clock cap on a single personality's
// turn, per spec.md §5 — a turn that never finishes is a ProviderError,
// not a hang.
const personalityTurnTimeout = 120 * time.Second

// personalityTurn is everything the executor needs to run one
// personality's turn: its provider (already resolved to the right
// family/instance), the model identifier, and its system prompt.
type personalityTurn struct {
	Personality  string
	Provider     provider.Provider
	Model        string
	SystemPrompt string
	Temperature  float64
}

// roundExecutor runs every personality turn of a round concurrently and
// reports progress through an event sink, mirroring core/nodes.py's
// debate_round — one Rich Live display per round there, one InternalEvent
// channel here.
type roundExecutor struct {
	turns   []personalityTurn
	counter *tokencount.Counter
}

func newRoundExecutor(turns []personalityTurn, counter *tokencount.Counter) *roundExecutor {
	return &roundExecutor{turns: turns, counter: counter}
}

// formatPreviousRound renders the prior round's responses as the
// "## Previous Round Responses" block the original appends to the user
// message — empty for round 1, where previous is nil.
func formatPreviousRound(previous *Round) string {
	if previous == nil || len(previous.Responses) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n## Previous Round Responses\n")
	for _, resp := range previous.Responses {
		sb.WriteString("**")
		sb.WriteString(displayName(resp.Personality))
		sb.WriteString("**: ")
		sb.WriteString(truncateWithEllipsis(resp.Answer, previousRoundTruncation))
		sb.WriteString("\n")
	}
	sb.WriteString("\n---\n\nNow provide your response, considering the above perspectives.")
	return sb.String()
}

// Run fans every turn out concurrently via errgroup — the Go analogue of
// the original's asyncio.gather(*tasks) — and feeds the caller an
// InternalEvent per token plus per-personality lifecycle markers. Events
// from different personalities interleave in whatever order their
// goroutines emit them; the returned responses are in declared-personality
// order. Run returns once every personality has either completed or the
// group's context has been cancelled by the first error — a StreamChat
// failure or a per-chunk Chunk.Error, both returned as a ProviderError.
//
// sink receives events from multiple goroutines concurrently — callers
// must synchronize their own consumption if the sink forwards to a
// single-consumer channel; emit itself is expected to be goroutine-safe
// (the caller's sink is typically a channel send, which is inherently
// safe for concurrent senders).
func (e *roundExecutor) Run(ctx context.Context, previous *Round, question string, emit func(InternalEvent)) ([]PersonalityResponse, error) {
	// Each goroutine below owns a distinct index, so writing into responses
	// concurrently needs no lock — slice elements are independent memory.
	responses := make([]PersonalityResponse, len(e.turns))

	g, gctx := errgroup.WithContext(ctx)
	for i, turn := range e.turns {
		i, turn := i, turn
		g.Go(func() error {
			emit(personalityStartedEvent(turn.Personality))

			turnCtx, cancel := context.WithTimeout(gctx, personalityTurnTimeout)
			defer cancel()

			req := &provider.Request{
				Model:        turn.Model,
				SystemPrompt: turn.SystemPrompt,
				UserMessage:  question + formatPreviousRound(previous),
				Temperature:  turn.Temperature,
			}

			ch, err := turn.Provider.StreamChat(turnCtx, req)
			if err != nil {
				return &apperrors.ProviderError{Provider: turn.Personality, Message: err.Error(), Err: err, Source: "provider"}
			}

			var body strings.Builder
			var usage *TurnUsage
			for chunk := range ch {
				if chunk.Error != nil {
					return &apperrors.ProviderError{Provider: turn.Personality, Message: chunk.Error.Error(), Err: chunk.Error, Source: "provider"}
				}
				if chunk.Delta != "" {
					body.WriteString(chunk.Delta)
					emit(tokenEvent(turn.Personality, chunk.Delta))
				}
				if chunk.Done && chunk.Usage != nil {
					usage = &TurnUsage{
						InputTokens:       chunk.Usage.InputTokens,
						OutputTokens:      chunk.Usage.OutputTokens,
						CachedInputTokens: chunk.Usage.CachedInputTokens,
						Estimated:         chunk.Usage.Estimated,
					}
				}
			}
			emit(tokenFinalEvent(turn.Personality))

			// The provider never reported usage inline: fall back to the
			// token counter (C3), per spec.md §4.3's "last resort when
			// providers omit usage" rule — never the forbidden
			// len(text)/4 heuristic.
			if usage == nil && e.counter != nil {
				usage = &TurnUsage{
					InputTokens:  e.counter.CountMessages(req.SystemPrompt, req.UserMessage),
					OutputTokens: e.counter.Count(body.String()),
					Estimated:    true,
				}
			}

			thinking, answer := splitThinking(body.String())
			resp := PersonalityResponse{
				Personality: turn.Personality,
				Thinking:    thinking,
				Answer:      answer,
			}
			if usage != nil {
				resp.InputTokens = usage.InputTokens
				resp.OutputTokens = usage.OutputTokens
			}

			responses[i] = resp

			emit(personalityCompletedEvent(resp))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
