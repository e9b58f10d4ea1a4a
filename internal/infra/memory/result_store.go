package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-arena/internal/domain"

	"github.com/google/uuid"
)

// AnonymousName is shown on the leaderboard for users without a profile.
const AnonymousName = "Anonymous"

// ResultStore keeps quiz records and display names in memory. It implements
// app.ResultStore, app.ProfileStore and app.LeaderboardStore, and is used for
// local runs and tests.
type ResultStore struct {
	mu       sync.RWMutex
	records  []domain.QuizRecord
	profiles map[string]string
	clock    func() time.Time
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		profiles: make(map[string]string),
		clock:    time.Now,
	}
}

// Insert assigns an id, and a timestamp when the record has none.
func (s *ResultStore) Insert(_ context.Context, record domain.QuizRecord) (domain.QuizRecord, error) {
	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock()
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return record, nil
}

// Seed stores records as given, including missing timestamps. Records without
// an id get one.
func (s *ResultStore) Seed(records ...domain.QuizRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.records = append(s.records, r)
	}
}

func (s *ResultStore) Get(_ context.Context, userID, recordID string) (domain.QuizRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == recordID && r.UserID == userID {
			return r, nil
		}
	}
	return domain.QuizRecord{}, domain.ErrRecordNotFound
}

func (s *ResultStore) Query(_ context.Context, criteria domain.HistoryCriteria, sortKey domain.SortKey, page domain.PageRequest) ([]domain.QuizRecord, int, error) {
	matched := s.match(criteria)
	domain.SortRecords(matched, sortKey)

	total := len(matched)
	start := page.Offset()
	if start >= total {
		return []domain.QuizRecord{}, total, nil
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *ResultStore) Aggregate(_ context.Context, criteria domain.HistoryCriteria) (domain.HistoryAggregates, error) {
	return domain.AggregateRecords(s.match(criteria)), nil
}

func (s *ResultStore) match(criteria domain.HistoryCriteria) []domain.QuizRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.QuizRecord, 0, len(s.records))
	for _, r := range s.records {
		if criteria.Matches(r) {
			matched = append(matched, r)
		}
	}
	return matched
}

func (s *ResultStore) SaveDisplayName(_ context.Context, userID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = displayName
	return nil
}

// Leaderboard ranks users by sum(score)/sum(total_questions) over the matching records.
func (s *ResultStore) Leaderboard(_ context.Context, query domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	type tally struct {
		count, score, total int
	}
	s.mu.RLock()
	byUser := make(map[string]*tally)
	for _, r := range s.records {
		if !query.Matches(r) {
			continue
		}
		t, ok := byUser[r.UserID]
		if !ok {
			t = &tally{}
			byUser[r.UserID] = t
		}
		t.count++
		t.score += r.Score
		t.total += r.TotalQuestions
	}
	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for userID, t := range byUser {
		name := s.profiles[userID]
		if name == "" {
			name = AnonymousName
		}
		var pct float64
		if t.total > 0 {
			pct = float64(t.score) / float64(t.total) * 100
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:                 userID,
			DisplayName:            name,
			AvgPercentage:          pct,
			QuizCount:              t.count,
			TotalQuestionsAnswered: t.total,
		})
	}
	s.mu.RUnlock()

	// map iteration order is random; fix it before the stable rank sort
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return domain.RankEntries(entries, query.Limit), nil
}
