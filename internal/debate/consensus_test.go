package debate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbiter-hq/arbiter/internal/provider"
)

func TestConsensusJudge_Check_AgreesOnValidJSON(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{Deltas: []string{`{"consensus": true, `, `"reasoning": "all agree"}`}})

	judge := newConsensusJudge(p, "judge-model", nil)
	verdict, err := judge.Check(context.Background(), []PersonalityResponse{
		{Personality: "optimist", Answer: "yes"},
		{Personality: "skeptic", Answer: "also yes"},
	})
	require.NoError(t, err)
	require.True(t, verdict.Reached)
	require.Equal(t, "all agree", verdict.Reasoning)
}

func TestConsensusJudge_Check_ScrapesJSONWrappedInProse(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{
		Deltas: []string{"Sure thing, here you go:\n```json\n", `{"consensus": false, "reasoning": "disagreement on scope"}`, "\n```"},
	})

	judge := newConsensusJudge(p, "judge-model", nil)
	verdict, err := judge.Check(context.Background(), []PersonalityResponse{{Personality: "a", Answer: "x"}})
	require.NoError(t, err)
	require.False(t, verdict.Reached)
	require.Equal(t, "disagreement on scope", verdict.Reasoning)
}

func TestConsensusJudge_Check_MalformedJSONDowngradesToNoConsensus(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{Deltas: []string{"not json at all, just rambling prose"}})

	judge := newConsensusJudge(p, "judge-model", nil)
	verdict, err := judge.Check(context.Background(), []PersonalityResponse{{Personality: "a", Answer: "x"}})
	require.NoError(t, err)
	require.False(t, verdict.Reached)
	require.Contains(t, verdict.Reasoning, "could not parse response")
}

func TestConsensusJudge_Check_InvalidJSONInBracesDowngrades(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{Deltas: []string{`{not: "valid json"}`}})

	judge := newConsensusJudge(p, "judge-model", nil)
	verdict, err := judge.Check(context.Background(), []PersonalityResponse{{Personality: "a", Answer: "x"}})
	require.NoError(t, err)
	require.False(t, verdict.Reached)
	require.Contains(t, verdict.Reasoning, "invalid JSON")
}

func TestConsensusJudge_Check_ProviderErrorPropagates(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{Deltas: []string{"partial"}, FailAfter: 0, Err: errors.New("upstream stream failure")})

	judge := newConsensusJudge(p, "judge-model", nil)
	_, err := judge.Check(context.Background(), []PersonalityResponse{{Personality: "a", Answer: "x"}})
	require.Error(t, err)
}

func TestConsensusJudge_Check_UsesCustomPromptWhenLoaderOK(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("judge-model", provider.MockScript{Deltas: []string{`{"consensus": true, "reasoning": "ok"}`}})

	var usedPrompt string
	judge := newConsensusJudge(p, "judge-model", func() (string, bool) { usedPrompt = "custom"; return "custom prompt", true })
	_, err := judge.Check(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "custom", usedPrompt)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "First Responder", displayName("first_responder"))
	require.Equal(t, "Optimist", displayName("optimist"))
}
