package postgres

import (
	"context"
	"fmt"

	"quiz-arena/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

const leaderboardSQL = `
SELECT h.user_id,
       COALESCE(NULLIF(p.display_name, ''), 'Anonymous') AS display_name,
       COUNT(*)                                          AS quiz_count,
       COALESCE(SUM(h.score), 0)                         AS sum_score,
       COALESCE(SUM(h.total_questions), 0)               AS sum_total
FROM quiz_history h
LEFT JOIN profiles p ON p.user_id = h.user_id
WHERE ($1::text = '' OR h.topic = $1)
  AND ($2::text = '' OR h.category = $2)
  AND ($3::text = '' OR h.difficulty = $3)
GROUP BY h.user_id, p.display_name
ORDER BY CASE WHEN SUM(h.total_questions) > 0
              THEN SUM(h.score)::float8 / SUM(h.total_questions)
              ELSE 0 END DESC,
         COUNT(*) DESC,
         display_name
LIMIT $4`

// LeaderboardStore ranks users straight from quiz_history over a pgx pool.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) Leaderboard(ctx context.Context, query domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, leaderboardSQL, query.Topic, query.Category, query.Difficulty, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var (
			entry              domain.LeaderboardEntry
			count              int64
			sumScore, sumTotal int64
		)
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &count, &sumScore, &sumTotal); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entry.QuizCount = int(count)
		entry.TotalQuestionsAnswered = int(sumTotal)
		if sumTotal > 0 {
			entry.AvgPercentage = float64(sumScore) / float64(sumTotal) * 100
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return domain.RankEntries(entries, query.Limit), nil
}
