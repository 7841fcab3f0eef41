// Package debate implements the debate orchestration engine: the data
// model (C5's entities), the round-by-round state machine (C6), the
// per-round fan-out executor (C7), the consensus judge (C8), the
// synthesizer (C9), the event mapper (C10), and the service façade (C11).
package debate

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/money"
)

// Status is a Debate's lifecycle state. Terminal states are Completed,
// Failed, and Cancelled; the only legal transitions form the DAG
// Pending -> Active -> {Completed | Failed | Cancelled}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the three terminal states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// maxQuestionLength bounds a debate's question and the other constants
// bound Settings, per spec.md §8's boundary tests: a 10,000-char question
// is accepted, 10,001 is rejected.
const (
	maxQuestionLength = 10_000
	minRounds         = 1
	maxRoundsLimit    = 10
	minTemperature    = 0.0
	maxTemperature    = 2.0
)

// systemPersonalities are never debate participants — they back the
// consensus judge (C8) and the synthesizer (C9) respectively, and are
// excluded from GET /personalities/debate per spec.md §6.
const (
	PersonalityConsensusCheck = "consensus_check"
	PersonalitySynthesizer    = "synthesizer"
)

// Settings captures the per-debate configuration a caller supplies at
// create time. The zero value is never valid — always build Settings
// through NewSettings, which performs the explicit validation step
// spec.md §9 calls for in place of field validators.
type Settings struct {
	MaxRounds        int      `json:"max_rounds"`
	Temperature      float64  `json:"temperature"`
	Personalities    []string `json:"personalities"` // ordered, non-system personality names
	IncludeSynthesis bool     `json:"include_synthesis"`
}

// NewSettings validates and constructs Settings, returning a
// ValidationError describing the first violated constraint.
func NewSettings(maxRounds int, temperature float64, personalities []string, includeSynthesis bool) (Settings, error) {
	if maxRounds < minRounds || maxRounds > maxRoundsLimit {
		return Settings{}, &apperrors.ValidationError{
			Field: "max_rounds", Reason: "must be between 1 and 10",
		}
	}
	if temperature < minTemperature || temperature > maxTemperature {
		return Settings{}, &apperrors.ValidationError{
			Field: "temperature", Reason: "must be between 0.0 and 2.0",
		}
	}
	if len(personalities) == 0 {
		return Settings{}, &apperrors.ValidationError{
			Field: "personalities", Reason: "at least one personality is required",
		}
	}
	for _, p := range personalities {
		if p == PersonalityConsensusCheck || p == PersonalitySynthesizer {
			return Settings{}, &apperrors.ValidationError{
				Field: "personalities", Reason: "system personality " + p + " cannot be a debate participant",
			}
		}
	}

	cp := make([]string, len(personalities))
	copy(cp, personalities)
	return Settings{
		MaxRounds:        maxRounds,
		Temperature:      temperature,
		Personalities:    cp,
		IncludeSynthesis: includeSynthesis,
	}, nil
}

// ValidateQuestion enforces the 1..10,000 char bound spec.md §3 places on
// a debate's question.
func ValidateQuestion(question string) error {
	if len(question) == 0 {
		return &apperrors.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if len(question) > maxQuestionLength {
		return &apperrors.ValidationError{Field: "question", Reason: "must be at most 10000 characters"}
	}
	return nil
}

// Debate is the root entity.
type Debate struct {
	ID           uuid.UUID `json:"id"`
	Owner        string    `json:"-"`
	Question     string    `json:"question"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Settings     Settings  `json:"settings"`
	Status       Status    `json:"status"`
	CurrentRound int       `json:"current_round"`

	TotalInputTokens  int          `json:"total_input_tokens"`
	TotalOutputTokens int          `json:"total_output_tokens"`
	TotalCost         money.Micros `json:"total_cost_micros"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	Rounds    []Round    `json:"rounds,omitempty"`
	Synthesis *Synthesis `json:"synthesis,omitempty"`
}

// PersonalityResponse is one personality's answer within a Round.
type PersonalityResponse struct {
	ID           uuid.UUID    `json:"id"`
	Personality  string       `json:"personality"`
	Thinking     string       `json:"thinking,omitempty"`
	Answer       string       `json:"answer"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Cost         money.Micros `json:"cost_micros"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Round is a child of Debate, keyed by (DebateID, Number).
type Round struct {
	ID        uuid.UUID             `json:"id"`
	DebateID  uuid.UUID             `json:"debate_id"`
	Number    int                   `json:"number"` // 1-indexed, strictly monotone per debate
	Responses []PersonalityResponse `json:"responses"`
	CreatedAt time.Time             `json:"created_at"`
}

// Synthesis is at most one per debate.
type Synthesis struct {
	ID           uuid.UUID    `json:"id"`
	DebateID     uuid.UUID    `json:"debate_id"`
	Content      string       `json:"content"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Cost         money.Micros `json:"cost_micros"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Draft is the input to Store.CreateDebate — everything about a new
// debate except the fields the store itself generates (ID, timestamps).
type Draft struct {
	Owner    string
	Question string
	Provider string
	Model    string
	Settings Settings
}

// PagedList is the result of Store.ListByUser.
type PagedList struct {
	Debates    []Debate `json:"debates"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalCount int      `json:"total_count"`
}
