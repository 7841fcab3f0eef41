package debate

import (
	"context"
	"strconv"
	"strings"

	"github.com/arbiter-hq/arbiter/internal/provider"
)

// perResponseTruncation bounds each individual response's contribution to
// the synthesizer's context window — 1500 chars, grounded on
// core/nodes.py's synthesize(), which truncates differently (1500) than
// format_previous_round's per-round truncation (2000) since the
// synthesizer sees every round at once.
const perResponseTruncation = 1500

const defaultSynthesizerPrompt = "You are a rational, dispassionate synthesizer of multiple perspectives."

// synthesizer streams the final integrated answer once the debate ends,
// either by consensus or by exhausting max_rounds.
type synthesizer struct {
	provider     provider.Provider
	promptLoader func() (string, bool)
	model        string
	maxTokens    int
}

func newSynthesizer(p provider.Provider, model string, promptLoader func() (string, bool)) *synthesizer {
	return &synthesizer{provider: p, model: model, promptLoader: promptLoader, maxTokens: 4096}
}

// Stream builds the full cross-round context and returns a channel of
// provider.Chunk exactly like a personality turn — the caller (the state
// machine's synthesis step) consumes it the same way it consumes a
// personality's stream, so the event-mapping logic doesn't need a special
// case for the synthesis turn beyond its different lifecycle markers.
func (s *synthesizer) Stream(ctx context.Context, question string, rounds []Round, verdict ConsensusVerdict) (<-chan provider.Chunk, error) {
	systemPrompt := defaultSynthesizerPrompt
	if s.promptLoader != nil {
		if custom, ok := s.promptLoader(); ok {
			systemPrompt = custom
		}
	}

	var sb strings.Builder
	sb.WriteString("Original Question: ")
	sb.WriteString(question)
	sb.WriteString("\n")

	for _, round := range rounds {
		sb.WriteString("\n## Round ")
		sb.WriteString(strconv.Itoa(round.Number))
		sb.WriteString(" Responses\n")
		for _, resp := range round.Responses {
			sb.WriteString("**")
			sb.WriteString(displayName(resp.Personality))
			sb.WriteString("**: ")
			sb.WriteString(truncateWithEllipsis(resp.Answer, perResponseTruncation))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n## Debate Status\n")
	sb.WriteString(verdict.Reasoning)
	sb.WriteString("\n\n---\n\nProvide a final integrated perspective that captures the key insights from all viewpoints and rounds of debate.")

	req := &provider.Request{
		Model:        s.model,
		SystemPrompt: systemPrompt,
		UserMessage:  sb.String(),
		MaxTokens:    s.maxTokens,
		Temperature:  0.7,
	}
	return s.provider.StreamChat(ctx, req)
}

// truncateWithEllipsis mirrors format_previous_round/synthesize's
// "response[:n] + '...'" truncation: only past the limit is an ellipsis
// appended, so a response exactly at the limit is left untouched.
func truncateWithEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
