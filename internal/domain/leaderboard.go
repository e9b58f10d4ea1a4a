package domain

import "sort"

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardQuery filters the ranking. Empty strings mean "no filter", unlike
// the AllSelector sentinel of history filters.
type LeaderboardQuery struct {
	Topic      string `json:"topic"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Limit      int    `json:"limit"`
}

// NewLeaderboardQuery translates history-style selectors ("all" or a value) into a query.
func NewLeaderboardQuery(topic, category, difficulty string, limit int) LeaderboardQuery {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return LeaderboardQuery{
		Topic:      noFilter(topic),
		Category:   noFilter(category),
		Difficulty: noFilter(difficulty),
		Limit:      limit,
	}
}

func noFilter(v string) string {
	if v == AllSelector {
		return ""
	}
	return v
}

// Matches reports whether a record counts towards this ranking.
func (q LeaderboardQuery) Matches(r QuizRecord) bool {
	if q.Topic != "" && r.Topic != q.Topic {
		return false
	}
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	if q.Difficulty != "" && string(r.Difficulty) != q.Difficulty {
		return false
	}
	return true
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank                   int     `json:"rank"`
	DisplayName            string  `json:"display_name"`
	AvgPercentage          float64 `json:"avg_percentage"`
	QuizCount              int     `json:"quiz_count"`
	TotalQuestionsAnswered int     `json:"total_questions_answered"`
	UserID                 string  `json:"user_id"`
}

// RankEntries orders entries by average percentage, then quiz count, then name,
// assigns 1-based ranks and truncates to limit.
func RankEntries(entries []LeaderboardEntry, limit int) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AvgPercentage != entries[j].AvgPercentage {
			return entries[i].AvgPercentage > entries[j].AvgPercentage
		}
		if entries[i].QuizCount != entries[j].QuizCount {
			return entries[i].QuizCount > entries[j].QuizCount
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
