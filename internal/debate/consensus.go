package debate

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/arbiter-hq/arbiter/internal/provider"
)

// defaultConsensusPrompt is used when no dedicated consensus_check
// personality prompt is configured, mirroring the original's inline
// fallback in core/nodes.py's check_consensus.
const defaultConsensusPrompt = `You are analyzing a multi-perspective debate. Review the responses below ` +
	`and determine if the participants have reached substantial agreement on ` +
	`the core points, even if they differ in emphasis or framing.

Respond with JSON only: {"consensus": true/false, "reasoning": "brief explanation"}`

// jsonObjectPattern extracts the first brace-delimited object from a judge
// response — the judge is asked for JSON-only output but models routinely
// wrap it in prose or a markdown fence, so this is a best-effort scrape
// rather than a strict parse.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// consensusJudge invokes the consensus_check personality against the most
// recent round's responses and reports whether the debate has converged.
//
// Round 1 is always skipped — spec.md §4 and the original source both
// require at least two rounds before a debate can end early — so callers
// should not invoke consensusJudge.Check for round 1 at all; the state
// machine enforces this (see statemachine.go).
type consensusJudge struct {
	provider     provider.Provider
	promptLoader func() (string, bool) // returns (prompt, ok); ok=false falls back to defaultConsensusPrompt
	model        string
	maxTokens    int
}

func newConsensusJudge(p provider.Provider, model string, promptLoader func() (string, bool)) *consensusJudge {
	return &consensusJudge{provider: p, model: model, promptLoader: promptLoader, maxTokens: 512}
}

// Check never returns an error for a malformed judge response — per
// spec.md §9 and the original's try/except around json.loads, a parse
// failure downgrades to {false, reason} rather than failing the debate.
// Check only returns an error when the underlying provider call itself
// fails (network error, auth failure, etc.); the state machine turns that
// error into a no-consensus verdict as well, so a judge failure never
// fails the debate (see statemachine.go).
func (j *consensusJudge) Check(ctx context.Context, responses []PersonalityResponse) (ConsensusVerdict, error) {
	systemPrompt := defaultConsensusPrompt
	if j.promptLoader != nil {
		if custom, ok := j.promptLoader(); ok {
			systemPrompt = custom
		}
	}

	var sb strings.Builder
	sb.WriteString("Analyze these responses for consensus:\n\n")
	for _, r := range responses {
		sb.WriteString("**")
		sb.WriteString(displayName(r.Personality))
		sb.WriteString("**: ")
		sb.WriteString(r.Answer)
		sb.WriteString("\n\n")
	}

	req := &provider.Request{
		Model:        j.model,
		SystemPrompt: systemPrompt,
		UserMessage:  sb.String(),
		MaxTokens:    j.maxTokens,
		Temperature:  0, // a judge should be deterministic, not creative
	}

	ch, err := j.provider.StreamChat(ctx, req)
	if err != nil {
		return ConsensusVerdict{}, err
	}

	var content strings.Builder
	for chunk := range ch {
		if chunk.Error != nil {
			return ConsensusVerdict{}, chunk.Error
		}
		content.WriteString(chunk.Delta)
	}

	return parseConsensusVerdict(content.String()), nil
}

// parseConsensusVerdict never raises: an unparseable body is reported as
// "no consensus" with the raw text (truncated) as the reasoning, exactly
// as core/nodes.py's check_consensus does for both the no-match and
// invalid-JSON cases.
func parseConsensusVerdict(content string) ConsensusVerdict {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return ConsensusVerdict{Reached: false, Reasoning: "could not parse response: " + truncate(content, 200)}
	}

	var parsed struct {
		Consensus bool   `json:"consensus"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return ConsensusVerdict{Reached: false, Reasoning: "invalid JSON in response: " + truncate(content, 200)}
	}
	if parsed.Reasoning == "" {
		parsed.Reasoning = "no reasoning provided"
	}
	return ConsensusVerdict{Reached: parsed.Consensus, Reasoning: parsed.Reasoning}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// displayName renders a snake_case personality name the way the original
// renders it for prompts and logs: "first_responder" -> "First Responder".
func displayName(personality string) string {
	parts := strings.Split(personality, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
