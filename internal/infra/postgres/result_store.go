package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"quiz-arena/internal/domain"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// historyRow maps the quiz_history table. A NULL created_at scans to the zero time.
type historyRow struct {
	bun.BaseModel `bun:"table:quiz_history,alias:h"`

	ID             string                    `bun:"id,pk,type:uuid"`
	UserID         string                    `bun:"user_id,notnull"`
	Score          int                       `bun:"score,notnull"`
	TotalQuestions int                       `bun:"total_questions,notnull"`
	TimeTaken      int                       `bun:"time_taken,notnull"`
	Difficulty     string                    `bun:"difficulty,notnull"`
	Topic          string                    `bun:"topic,notnull"`
	Category       string                    `bun:"category,notnull"`
	Questions      []domain.AnsweredQuestion `bun:"questions,type:jsonb"`
	CreatedAt      time.Time                 `bun:"created_at,nullzero"`
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles"`

	UserID      string    `bun:"user_id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type aggregateRow struct {
	Count    int   `bun:"count"`
	SumScore int64 `bun:"sum_score"`
	SumTotal int64 `bun:"sum_total"`
	SumTime  int64 `bun:"sum_time"`
}

// ResultStore persists quiz records in Postgres through bun.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) Insert(ctx context.Context, record domain.QuizRecord) (domain.QuizRecord, error) {
	record.ID = uuid.NewString()
	row := toRow(record)
	if row.Questions == nil {
		row.Questions = []domain.AnsweredQuestion{}
	}
	if _, err := s.db.NewInsert().Model(row).Returning("created_at").Exec(ctx); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("insert quiz record: %w", err)
	}
	record.CreatedAt = row.CreatedAt
	return record, nil
}

func (s *ResultStore) Get(ctx context.Context, userID, recordID string) (domain.QuizRecord, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return domain.QuizRecord{}, domain.ErrRecordNotFound
	}
	row := new(historyRow)
	err := s.db.NewSelect().Model(row).
		Where("h.id = ?", recordID).
		Where("h.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("get quiz record: %w", err)
	}
	return row.toRecord(), nil
}

func (s *ResultStore) Query(ctx context.Context, criteria domain.HistoryCriteria, sortKey domain.SortKey, page domain.PageRequest) ([]domain.QuizRecord, int, error) {
	var rows []historyRow
	q := s.db.NewSelect().Model(&rows)
	applyCriteria(q, criteria)
	for _, order := range orderBy(sortKey) {
		q = q.OrderExpr(order)
	}
	total, err := q.Limit(page.PageSize).Offset(page.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("query quiz history: %w", err)
	}

	records := make([]domain.QuizRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, total, nil
}

func (s *ResultStore) Aggregate(ctx context.Context, criteria domain.HistoryCriteria) (domain.HistoryAggregates, error) {
	var agg aggregateRow
	q := s.db.NewSelect().Model((*historyRow)(nil)).
		ColumnExpr("COUNT(*) AS count").
		ColumnExpr("COALESCE(SUM(h.score), 0) AS sum_score").
		ColumnExpr("COALESCE(SUM(h.total_questions), 0) AS sum_total").
		ColumnExpr("COALESCE(SUM(h.time_taken), 0) AS sum_time")
	applyCriteria(q, criteria)
	if err := q.Scan(ctx, &agg); err != nil {
		return domain.HistoryAggregates{}, fmt.Errorf("aggregate quiz history: %w", err)
	}
	return domain.ComputeAggregates(agg.Count, agg.SumScore, agg.SumTotal, agg.SumTime), nil
}

func (s *ResultStore) SaveDisplayName(ctx context.Context, userID, displayName string) error {
	row := &profileRow{UserID: userID, DisplayName: displayName, UpdatedAt: time.Now()}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save display name: %w", err)
	}
	return nil
}

// applyCriteria is shared by the paged and the aggregate query so both always
// see the same set of records.
func applyCriteria(q *bun.SelectQuery, c domain.HistoryCriteria) {
	q.Where("h.user_id = ?", c.UserID)
	if c.Difficulty != "" {
		q.Where("h.difficulty = ?", c.Difficulty)
	}
	if c.Topic != "" {
		q.Where("h.topic ILIKE ?", likePattern(c.Topic))
	}
	if c.Search != "" {
		pattern := likePattern(c.Search)
		q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("h.topic ILIKE ?", pattern).WhereOr("h.category ILIKE ?", pattern)
		})
	}
	if !c.Since.IsZero() {
		q.Where("h.created_at >= ?", c.Since)
	}
}

func orderBy(key domain.SortKey) []string {
	switch key {
	case domain.SortOldest:
		return []string{"h.created_at ASC NULLS LAST", "h.id"}
	case domain.SortHighest:
		return []string{"h.score DESC", "h.created_at DESC NULLS LAST", "h.id"}
	case domain.SortLowest:
		return []string{"h.score ASC", "h.created_at DESC NULLS LAST", "h.id"}
	default:
		return []string{"h.created_at DESC NULLS LAST", "h.id"}
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func toRow(r domain.QuizRecord) *historyRow {
	return &historyRow{
		ID:             r.ID,
		UserID:         r.UserID,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		TimeTaken:      r.TimeTaken,
		Difficulty:     string(r.Difficulty),
		Topic:          r.Topic,
		Category:       r.Category,
		Questions:      r.Questions,
		CreatedAt:      r.CreatedAt,
	}
}

func (row historyRow) toRecord() domain.QuizRecord {
	return domain.QuizRecord{
		ID:        row.ID,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		QuizResult: domain.QuizResult{
			Score:          row.Score,
			TotalQuestions: row.TotalQuestions,
			TimeTaken:      row.TimeTaken,
			Difficulty:     domain.Difficulty(row.Difficulty),
			Topic:          row.Topic,
			Category:       row.Category,
			Questions:      row.Questions,
		},
	}
}
