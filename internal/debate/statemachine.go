package debate

import (
	"context"
	"strconv"
	"time"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
)

// minRoundsBeforeConsensusCheck mirrors core/graph.py's should_continue:
// the consensus judge is first consulted after round 2 — round 1 never
// runs the check. A debate with max_rounds=1 ends after round 1 without
// consulting the judge at all.
const minRoundsBeforeConsensusCheck = 2

// synthesisTimeout is the wall-clock cap on the synthesis turn — longer
// than a single personality's since it reads the whole transcript.
const synthesisTimeout = 240 * time.Second

// runner drives one debate from round 1 through either early consensus or
// max_rounds exhaustion, optionally followed by synthesis — the Go
// equivalent of core/graph.py's compiled StateGraph, expressed as an
// explicit loop instead of a graph library, since the debate's state
// machine here is a fixed three-node cycle with one conditional exit
// rather than an arbitrary DAG.
type runner struct {
	executor  *roundExecutor
	judge     *consensusJudge
	synth     *synthesizer
	maxRounds int
	question  string
}

func newRunner(executor *roundExecutor, judge *consensusJudge, synth *synthesizer, maxRounds int, question string) *runner {
	return &runner{executor: executor, judge: judge, synth: synth, maxRounds: maxRounds, question: question}
}

// outcome is everything the state machine produced, handed back to the
// service façade (C11) for final persistence and the terminal event.
type outcome struct {
	Rounds    []Round
	Verdict   ConsensusVerdict
	Synthesis *synthesisResult // nil when IncludeSynthesis is false
}

type synthesisResult struct {
	Content string
	Usage   *TurnUsage
}

// Run executes the full state machine. emit is called with every
// InternalEvent produced along the way — round/personality lifecycle
// markers, token deltas, and the consensus/synthesis markers — in the
// order the original graph's custom stream-writer events occur.
//
// Run returns a non-nil error for a failed personality turn or synthesis
// call, or for a cancellation; a consensus judge whose call fails or whose
// output can't be parsed yields a no-consensus verdict instead of an error
// (see consensus.go).
func (r *runner) Run(ctx context.Context, emit func(InternalEvent)) (outcome, error) {
	var rounds []Round
	var verdict ConsensusVerdict

	for roundNum := 1; ; roundNum++ {
		select {
		case <-ctx.Done():
			return outcome{}, &apperrors.CancelledError{Reason: "debate cancelled before round " + strconv.Itoa(roundNum)}
		default:
		}

		emit(roundStartedEvent(roundNum))

		var previous *Round
		if len(rounds) > 0 {
			previous = &rounds[len(rounds)-1]
		}

		responses, err := r.executor.Run(ctx, previous, r.question, emit)
		if err != nil {
			return outcome{}, err
		}

		round := Round{Number: roundNum, Responses: responses}
		rounds = append(rounds, round)

		emit(roundCompletedEvent(roundNum))

		if roundNum < minRoundsBeforeConsensusCheck {
			verdict = ConsensusVerdict{Reached: false, Reasoning: "first round - continuing debate"}
		} else if r.judge != nil {
			emit(consensusCheckEvent())
			judgeCtx, cancel := context.WithTimeout(ctx, personalityTurnTimeout)
			verdict, err = r.judge.Check(judgeCtx, responses)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return outcome{}, err
				}
				verdict = ConsensusVerdict{Reached: false, Reasoning: "consensus check failed: " + err.Error()}
			}
			emit(consensusResultEvent(verdict))
		}

		if verdict.Reached || roundNum >= r.maxRounds {
			break
		}
	}

	result := outcome{Rounds: rounds, Verdict: verdict}

	if r.synth == nil {
		return result, nil
	}

	emit(synthesisStartedEvent())
	synCtx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	ch, err := r.synth.Stream(synCtx, r.question, rounds, verdict)
	if err != nil {
		return outcome{}, err
	}

	var content string
	var usage *TurnUsage
	for chunk := range ch {
		if chunk.Error != nil {
			return outcome{}, &apperrors.ProviderError{Provider: PersonalitySynthesizer, Message: chunk.Error.Error(), Err: chunk.Error, Source: "provider"}
		}
		if chunk.Delta != "" {
			content += chunk.Delta
			emit(tokenEvent(PersonalitySynthesizer, chunk.Delta))
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

	synResult := &synthesisResult{Content: content, Usage: usage}
	result.Synthesis = synResult

	syn := Synthesis{Content: content}
	if usage != nil {
		syn.InputTokens = usage.InputTokens
		syn.OutputTokens = usage.OutputTokens
	}
	emit(synthesisCompletedEvent(syn))

	return result, nil
}
