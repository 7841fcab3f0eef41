package debate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/money"
)

// Store is C5's persistence contract. Every operation returns a typed
// entity or an apperrors.NotFoundError; authorization is deliberately not
// performed here — that is C11's job — so Store never needs to know about
// the requesting user except as an opaque column to filter or stamp.
type Store interface {
	CreateDebate(ctx context.Context, d Draft) (Debate, error)
	GetByID(ctx context.Context, id uuid.UUID, includeRounds, includeSynthesis bool) (Debate, error)
	ListByUser(ctx context.Context, owner string, page, pageSize int, status *Status) (PagedList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, currentRound *int, errText string) error
	UpdateTotals(ctx context.Context, id uuid.UUID, inTokens, outTokens int, cost money.Micros) error
	SaveRound(ctx context.Context, debateID uuid.UUID, number int) (uuid.UUID, error)
	SaveResponse(ctx context.Context, roundID uuid.UUID, resp PersonalityResponse) (uuid.UUID, error)
	SaveSynthesis(ctx context.Context, debateID uuid.UUID, content string, in, out int, cost money.Micros) (uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore is an in-memory Store used by tests and the CLI variant.
// It is intentionally the reference implementation for the ordering and
// cascading invariants in spec.md §3/§4.5 — a GORM-backed SQLStore
// (see sqlstore.go) implements the same contract against Postgres/SQLite.
type MemoryStore struct {
	mu            sync.Mutex
	debates       map[uuid.UUID]*Debate
	roundsByID    map[uuid.UUID]*Round // round id -> round, for SaveResponse lookups
	roundOwner    map[uuid.UUID]uuid.UUID // round id -> debate id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		debates:    make(map[uuid.UUID]*Debate),
		roundsByID: make(map[uuid.UUID]*Round),
		roundOwner: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) CreateDebate(ctx context.Context, d Draft) (Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	debate := &Debate{
		ID:        uuid.New(),
		Owner:     d.Owner,
		Question:  d.Question,
		Provider:  d.Provider,
		Model:     d.Model,
		Settings:  d.Settings,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.debates[debate.ID] = debate
	return *debate, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID, includeRounds, includeSynthesis bool) (Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[id]
	if !ok {
		return Debate{}, &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	cp := *d
	if !includeRounds {
		cp.Rounds = nil
	}
	if !includeSynthesis {
		cp.Synthesis = nil
	}
	return cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, owner string, page, pageSize int, status *Status) (PagedList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Debate
	for _, d := range s.debates {
		if d.Owner != owner {
			continue
		}
		if status != nil && d.Status != *status {
			continue
		}
		cp := *d
		cp.Rounds = nil
		cp.Synthesis = nil
		matches = append(matches, cp)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return PagedList{
		Debates:    matches[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, currentRound *int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[id]
	if !ok {
		return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}

	now := time.Now().UTC()
	if d.Status != StatusActive && status == StatusActive {
		d.StartedAt = &now
	}
	if status == StatusCompleted {
		d.CompletedAt = &now
	}
	d.Status = status
	if currentRound != nil {
		d.CurrentRound = *currentRound
	}
	if errText != "" {
		d.Error = errText
	}
	d.UpdatedAt = now
	return nil
}

func (s *MemoryStore) UpdateTotals(ctx context.Context, id uuid.UUID, inTokens, outTokens int, cost money.Micros) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[id]
	if !ok {
		return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	d.TotalInputTokens += inTokens
	d.TotalOutputTokens += outTokens
	d.TotalCost = d.TotalCost.Add(cost)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SaveRound(ctx context.Context, debateID uuid.UUID, number int) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[debateID]
	if !ok {
		return uuid.Nil, &apperrors.NotFoundError{Kind: "debate", ID: debateID.String()}
	}

	round := Round{
		ID:        uuid.New(),
		DebateID:  debateID,
		Number:    number,
		CreatedAt: time.Now().UTC(),
	}
	d.Rounds = append(d.Rounds, round)
	stored := &d.Rounds[len(d.Rounds)-1]
	s.roundsByID[round.ID] = stored
	s.roundOwner[round.ID] = debateID
	return round.ID, nil
}

func (s *MemoryStore) SaveResponse(ctx context.Context, roundID uuid.UUID, resp PersonalityResponse) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.roundsByID[roundID]
	if !ok {
		return uuid.Nil, &apperrors.NotFoundError{Kind: "round", ID: roundID.String()}
	}
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	round.Responses = append(round.Responses, resp)
	return resp.ID, nil
}

func (s *MemoryStore) SaveSynthesis(ctx context.Context, debateID uuid.UUID, content string, in, out int, cost money.Micros) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[debateID]
	if !ok {
		return uuid.Nil, &apperrors.NotFoundError{Kind: "debate", ID: debateID.String()}
	}
	syn := Synthesis{
		ID:           uuid.New(),
		DebateID:     debateID,
		Content:      content,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         cost,
		CreatedAt:    time.Now().UTC(),
	}
	d.Synthesis = &syn
	return syn.ID, nil
}

// Delete hard-deletes a debate and cascades to its rounds, responses, and
// synthesis, per spec.md §4.5 — see DESIGN.md's Open Question 2 for why
// this overrides the original source's soft-delete comment. UsageRecords
// are untouched: they are independently owned by the user (spec.md §3)
// and outlive debate deletion for auditing.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debates[id]
	if !ok {
		return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	for _, r := range d.Rounds {
		delete(s.roundsByID, r.ID)
		delete(s.roundOwner, r.ID)
	}
	delete(s.debates, id)
	return nil
}
