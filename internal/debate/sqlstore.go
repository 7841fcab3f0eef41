package debate

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
	"github.com/arbiter-hq/arbiter/internal/money"
)

// settingsColumn adapts Settings to a single jsonb column via the
// database/sql Scanner/Valuer interfaces, the persisted shape spec.md
// §6's "Persisted schema" note calls for ("settings jsonb").
type settingsColumn Settings

func (c settingsColumn) Value() (driver.Value, error) {
	return json.Marshal(Settings(c))
}

func (c *settingsColumn) Scan(v any) error {
	if v == nil {
		return nil
	}
	raw, ok := v.([]byte)
	if !ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("settingsColumn.Scan: unsupported type %T", v)
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, (*Settings)(c))
}

// debateRow, roundRow, responseRow, and synthesisRow are the four tables
// spec.md §6 names: debates, debate_rounds, debate_responses,
// debate_synthesis.
type debateRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner             string    `gorm:"index"`
	Question          string
	Provider          string
	Model             string
	Settings          settingsColumn `gorm:"type:jsonb"`
	Status            Status         `gorm:"index"`
	CurrentRound      int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         money.Micros
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	Error             string

	Rounds    []roundRow    `gorm:"foreignKey:DebateID;constraint:OnDelete:CASCADE"`
	Synthesis *synthesisRow `gorm:"foreignKey:DebateID;constraint:OnDelete:CASCADE"`
}

func (debateRow) TableName() string { return "debates" }

type roundRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DebateID  uuid.UUID `gorm:"type:uuid;index:idx_round_debate_number,unique,priority:1"`
	Number    int       `gorm:"index:idx_round_debate_number,unique,priority:2"`
	CreatedAt time.Time

	Responses []responseRow `gorm:"foreignKey:RoundID;constraint:OnDelete:CASCADE"`
}

func (roundRow) TableName() string { return "debate_rounds" }

type responseRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoundID      uuid.UUID `gorm:"type:uuid;index"`
	Personality  string
	Thinking     string
	Answer       string
	InputTokens  int
	OutputTokens int
	Cost         money.Micros
	CreatedAt    time.Time
}

func (responseRow) TableName() string { return "debate_responses" }

type synthesisRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	DebateID     uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Content      string
	InputTokens  int
	OutputTokens int
	Cost         money.Micros
	CreatedAt    time.Time
}

func (synthesisRow) TableName() string { return "debate_synthesis" }

// SQLStore implements Store against Postgres or SQLite through GORM,
// grounded on BaSui01-agentflow's internal/database pool wrapper: a
// single *gorm.DB held behind a small typed wrapper, context threaded
// through via WithContext, and db.Transaction around UpdateStatus's
// read-then-update. SaveRound, SaveResponse and Delete do not open a
// transaction.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an already-opened *gorm.DB (built by the caller with
// gorm.io/driver/postgres or gorm.io/driver/sqlite) and runs AutoMigrate
// for the four debate tables.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&debateRow{}, &roundRow{}, &responseRow{}, &synthesisRow{}); err != nil {
		return nil, fmt.Errorf("migrating debate schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreateDebate(ctx context.Context, d Draft) (Debate, error) {
	now := time.Now().UTC()
	row := debateRow{
		ID:        uuid.New(),
		Owner:     d.Owner,
		Question:  d.Question,
		Provider:  d.Provider,
		Model:     d.Model,
		Settings:  settingsColumn(d.Settings),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Debate{}, fmt.Errorf("creating debate: %w", err)
	}
	return rowToDebate(row, nil, nil), nil
}

func (s *SQLStore) GetByID(ctx context.Context, id uuid.UUID, includeRounds, includeSynthesis bool) (Debate, error) {
	q := s.db.WithContext(ctx)
	if includeRounds {
		q = q.Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
			Preload("Rounds.Responses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
	}
	if includeSynthesis {
		q = q.Preload("Synthesis")
	}

	var row debateRow
	if err := q.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Debate{}, &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
		}
		return Debate{}, fmt.Errorf("loading debate %s: %w", id, err)
	}

	var rounds []Round
	if includeRounds {
		rounds = make([]Round, 0, len(row.Rounds))
		for _, r := range row.Rounds {
			rounds = append(rounds, rowToRound(r))
		}
	}
	var synth *Synthesis
	if includeSynthesis && row.Synthesis != nil {
		s := rowToSynthesis(*row.Synthesis)
		synth = &s
	}
	return rowToDebate(row, rounds, synth), nil
}

func (s *SQLStore) ListByUser(ctx context.Context, owner string, page, pageSize int, status *Status) (PagedList, error) {
	q := s.db.WithContext(ctx).Model(&debateRow{}).Where("owner = ?", owner)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return PagedList{}, fmt.Errorf("counting debates: %w", err)
	}

	var rows []debateRow
	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}
	if err := q.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&rows).Error; err != nil {
		return PagedList{}, fmt.Errorf("listing debates: %w", err)
	}

	debates := make([]Debate, 0, len(rows))
	for _, row := range rows {
		debates = append(debates, rowToDebate(row, nil, nil))
	}
	return PagedList{Debates: debates, Page: page, PageSize: pageSize, TotalCount: int(total)}, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, currentRound *int, errText string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row debateRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
			}
			return fmt.Errorf("loading debate %s: %w", id, err)
		}

		now := time.Now().UTC()
		updates := map[string]any{"status": status, "updated_at": now}
		if row.Status != StatusActive && status == StatusActive {
			updates["started_at"] = now
		}
		if status == StatusCompleted {
			updates["completed_at"] = now
		}
		if currentRound != nil {
			updates["current_round"] = *currentRound
		}
		if errText != "" {
			updates["error"] = errText
		}
		return tx.Model(&debateRow{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (s *SQLStore) UpdateTotals(ctx context.Context, id uuid.UUID, inTokens, outTokens int, cost money.Micros) error {
	res := s.db.WithContext(ctx).Model(&debateRow{}).Where("id = ?", id).Updates(map[string]any{
		"total_input_tokens":  gorm.Expr("total_input_tokens + ?", inTokens),
		"total_output_tokens": gorm.Expr("total_output_tokens + ?", outTokens),
		"total_cost":          gorm.Expr("total_cost + ?", cost),
		"updated_at":          time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("updating totals for debate %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	return nil
}

func (s *SQLStore) SaveRound(ctx context.Context, debateID uuid.UUID, number int) (uuid.UUID, error) {
	var exists bool
	if err := s.db.WithContext(ctx).Model(&debateRow{}).Select("count(*) > 0").Where("id = ?", debateID).Find(&exists).Error; err != nil {
		return uuid.Nil, fmt.Errorf("checking debate %s exists: %w", debateID, err)
	}
	if !exists {
		return uuid.Nil, &apperrors.NotFoundError{Kind: "debate", ID: debateID.String()}
	}

	row := roundRow{ID: uuid.New(), DebateID: debateID, Number: number, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("saving round %d for debate %s: %w", number, debateID, err)
	}
	return row.ID, nil
}

func (s *SQLStore) SaveResponse(ctx context.Context, roundID uuid.UUID, resp PersonalityResponse) (uuid.UUID, error) {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	row := responseRow{
		ID:           resp.ID,
		RoundID:      roundID,
		Personality:  resp.Personality,
		Thinking:     resp.Thinking,
		Answer:       resp.Answer,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         resp.Cost,
		CreatedAt:    resp.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("saving response for round %s: %w", roundID, err)
	}
	return row.ID, nil
}

func (s *SQLStore) SaveSynthesis(ctx context.Context, debateID uuid.UUID, content string, in, out int, cost money.Micros) (uuid.UUID, error) {
	row := synthesisRow{
		ID:           uuid.New(),
		DebateID:     debateID,
		Content:      content,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         cost,
		CreatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "debate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "input_tokens", "output_tokens", "cost", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("saving synthesis for debate %s: %w", debateID, err)
	}
	return row.ID, nil
}

// Delete hard-deletes a debate; the foreign-key CASCADE constraints on
// roundRow/responseRow/synthesisRow do the cascading, matching
// MemoryStore's cascade semantics (spec.md §4.5).
func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&debateRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting debate %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperrors.NotFoundError{Kind: "debate", ID: id.String()}
	}
	return nil
}

func rowToDebate(row debateRow, rounds []Round, synth *Synthesis) Debate {
	return Debate{
		ID:                row.ID,
		Owner:             row.Owner,
		Question:          row.Question,
		Provider:          row.Provider,
		Model:             row.Model,
		Settings:          Settings(row.Settings),
		Status:            row.Status,
		CurrentRound:      row.CurrentRound,
		TotalInputTokens:  row.TotalInputTokens,
		TotalOutputTokens: row.TotalOutputTokens,
		TotalCost:         row.TotalCost,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		StartedAt:         row.StartedAt,
		CompletedAt:       row.CompletedAt,
		Error:             row.Error,
		Rounds:            rounds,
		Synthesis:         synth,
	}
}

func rowToRound(row roundRow) Round {
	responses := make([]PersonalityResponse, 0, len(row.Responses))
	for _, r := range row.Responses {
		responses = append(responses, PersonalityResponse{
			ID:           r.ID,
			Personality:  r.Personality,
			Thinking:     r.Thinking,
			Answer:       r.Answer,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			Cost:         r.Cost,
			CreatedAt:    r.CreatedAt,
		})
	}
	return Round{ID: row.ID, DebateID: row.DebateID, Number: row.Number, Responses: responses, CreatedAt: row.CreatedAt}
}

func rowToSynthesis(row synthesisRow) Synthesis {
	return Synthesis{
		ID:           row.ID,
		DebateID:     row.DebateID,
		Content:      row.Content,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		Cost:         row.Cost,
		CreatedAt:    row.CreatedAt,
	}
}
