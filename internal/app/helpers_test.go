package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

// threeQuestions returns q1..q3 where option a1 is always correct.
func threeQuestions() []domain.Question {
	return makeQuestions(3)
}

func makeQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		q := domain.Question{
			ID:         fmt.Sprintf("q%d", i),
			Text:       fmt.Sprintf("Question %d", i),
			Category:   "Kubernetes",
			Difficulty: domain.DifficultyMedium,
		}
		for j := 1; j <= domain.OptionsPerQuestion; j++ {
			q.Options = append(q.Options, domain.Option{
				ID:        fmt.Sprintf("a%d", j),
				Text:      fmt.Sprintf("Answer %d.%d", i, j),
				IsCorrect: j == 1,
			})
		}
		questions = append(questions, q)
	}
	return questions
}

func quizSettings(n, timeLimit int) domain.QuizSettings {
	return domain.QuizSettings{
		Topic:             "cloud-native",
		Category:          "Kubernetes",
		Difficulty:        domain.DifficultyMedium,
		NumberOfQuestions: n,
		TimeLimit:         timeLimit,
	}
}

type stubGenerator struct {
	questions []domain.Question
	err       error
}

func (g stubGenerator) Generate(context.Context, domain.QuizSettings) ([]domain.Question, error) {
	return g.questions, g.err
}

func (g stubGenerator) Explain(_ context.Context, question, answer string) (string, error) {
	return answer + " answers " + question, nil
}

// failingResults wraps a ResultStore and fails the selected operations.
type failingResults struct {
	mu           sync.Mutex
	insertErr    error
	queryErr     error
	aggregateErr error
	inner        app.ResultStore
}

var errStoreDown = errors.New("store unavailable")

func (f *failingResults) Insert(ctx context.Context, record domain.QuizRecord) (domain.QuizRecord, error) {
	f.mu.Lock()
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return domain.QuizRecord{}, err
	}
	return f.inner.Insert(ctx, record)
}

func (f *failingResults) Get(ctx context.Context, userID, recordID string) (domain.QuizRecord, error) {
	return f.inner.Get(ctx, userID, recordID)
}

func (f *failingResults) Query(ctx context.Context, criteria domain.HistoryCriteria, sortKey domain.SortKey, page domain.PageRequest) ([]domain.QuizRecord, int, error) {
	f.mu.Lock()
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	return f.inner.Query(ctx, criteria, sortKey, page)
}

func (f *failingResults) Aggregate(ctx context.Context, criteria domain.HistoryCriteria) (domain.HistoryAggregates, error) {
	f.mu.Lock()
	err := f.aggregateErr
	f.mu.Unlock()
	if err != nil {
		return domain.HistoryAggregates{}, err
	}
	return f.inner.Aggregate(ctx, criteria)
}

func (f *failingResults) set(insertErr, queryErr, aggregateErr error) {
	f.mu.Lock()
	f.insertErr, f.queryErr, f.aggregateErr = insertErr, queryErr, aggregateErr
	f.mu.Unlock()
}
