package generator

import (
	"context"
	"fmt"

	"quiz-arena/internal/domain"
)

// Static serves questions from a fixed bank. It stands in for the AI service
// in local runs and tests.
type Static struct {
	bank []domain.Question
}

// NewStatic returns a generator over bank, or over the built-in sample bank when bank is empty.
func NewStatic(bank []domain.Question) *Static {
	if len(bank) == 0 {
		bank = SampleBank()
	}
	return &Static{bank: bank}
}

// Generate returns up to settings.NumberOfQuestions questions from the bank,
// renumbered q1..qN and stamped with the requested category and difficulty.
func (s *Static) Generate(_ context.Context, settings domain.QuizSettings) ([]domain.Question, error) {
	n := settings.NumberOfQuestions
	if n <= 0 || n > len(s.bank) {
		n = len(s.bank)
	}
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		q := s.bank[i]
		q.ID = fmt.Sprintf("q%d", i+1)
		q.Options = append([]domain.Option(nil), q.Options...)
		if settings.Category != "" {
			q.Category = settings.Category
		}
		if settings.Difficulty != "" {
			q.Difficulty = settings.Difficulty
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (s *Static) Explain(_ context.Context, question, answer string) (string, error) {
	return fmt.Sprintf("%q is the accepted answer to %q.", answer, question), nil
}

// SampleBank is a small general-knowledge bank.
func SampleBank() []domain.Question {
	mk := func(text, category string, difficulty domain.Difficulty, correct int, options ...string) domain.Question {
		q := domain.Question{Text: text, Category: category, Difficulty: difficulty}
		for i, opt := range options {
			q.Options = append(q.Options, domain.Option{ID: fmt.Sprintf("a%d", i+1), Text: opt, IsCorrect: i == correct})
		}
		return q
	}
	return []domain.Question{
		mk("Which command prints the current working directory?", "Command Line", domain.DifficultyEasy, 2, "ls", "cd", "pwd", "whoami"),
		mk("Which data structure is Last-In-First-Out?", "General", domain.DifficultyEasy, 1, "Queue", "Stack", "Heap", "Tree"),
		mk("What is the default port of PostgreSQL?", "PostgreSQL", domain.DifficultyMedium, 0, "5432", "3306", "6379", "27017"),
		mk("Which Kubernetes object keeps a set of identical pods running?", "Kubernetes", domain.DifficultyMedium, 3, "Service", "ConfigMap", "Ingress", "ReplicaSet"),
		mk("Which keyword starts a goroutine in Go?", "Go", domain.DifficultyEasy, 1, "async", "go", "spawn", "thread"),
		mk("Which layer of the OSI model does IP belong to?", "Protocols", domain.DifficultyMedium, 2, "Data link", "Transport", "Network", "Session"),
		mk("What is the smallest prime number?", "Mathematics", domain.DifficultyEasy, 0, "2", "1", "3", "0"),
		mk("Which SQL clause filters groups after aggregation?", "SQL", domain.DifficultyHard, 3, "WHERE", "ORDER BY", "LIMIT", "HAVING"),
	}
}
