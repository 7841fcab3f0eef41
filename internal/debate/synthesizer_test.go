package debate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbiter-hq/arbiter/internal/provider"
)

func TestSynthesizer_Stream_DrainsAllDeltas(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("synth-model", provider.MockScript{Deltas: []string{"final ", "integrated ", "answer"}})

	synth := newSynthesizer(p, "synth-model", nil)
	rounds := []Round{
		{Number: 1, Responses: []PersonalityResponse{{Personality: "optimist", Answer: "yes"}}},
	}
	ch, err := synth.Stream(context.Background(), "Is this a good idea?", rounds, ConsensusVerdict{Reached: true, Reasoning: "agreement"})
	require.NoError(t, err)

	var out strings.Builder
	for chunk := range ch {
		out.WriteString(chunk.Delta)
	}
	require.Equal(t, "final integrated answer", out.String())
}

func TestTruncateWithEllipsis_BoundaryIsExact(t *testing.T) {
	require.Equal(t, "abc", truncateWithEllipsis("abc", 3))
	require.Equal(t, "ab...", truncateWithEllipsis("abcd", 2))
	require.Equal(t, "", truncateWithEllipsis("", 3))
}

func TestSynthesizer_Stream_UsesCustomPromptWhenLoaderOK(t *testing.T) {
	p := provider.NewMockProvider("mock")
	p.Script("synth-model", provider.MockScript{Deltas: []string{"ok"}})

	synth := newSynthesizer(p, "synth-model", func() (string, bool) { return "be terse", true })
	ch, err := synth.Stream(context.Background(), "Q", nil, ConsensusVerdict{})
	require.NoError(t, err)
	for range ch {
	}
	require.Equal(t, []string{"synth-model"}, p.Calls())
}
