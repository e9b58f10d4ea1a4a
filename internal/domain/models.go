package domain

import (
	"fmt"
	"time"
)

// Difficulty is the generator difficulty level of a question or quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the valid difficulties in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty rejects anything outside easy|medium|hard.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch d := Difficulty(raw); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", fmt.Errorf("%w: difficulty %q", ErrInvalidFilter, raw)
}

// OptionsPerQuestion is the number of answer options every generated question carries.
const OptionsPerQuestion = 4

// Option represents a possible answer for a question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	Options    []Option   `json:"options"`
}

// Validate checks the generated-question invariants.
func (q Question) Validate() error {
	if q.ID == "" || q.Text == "" {
		return fmt.Errorf("%w: missing id or text", ErrInvalidQuestion)
	}
	if len(q.Options) != OptionsPerQuestion {
		return fmt.Errorf("%w: question %s has %d options", ErrInvalidQuestion, q.ID, len(q.Options))
	}
	correct := 0
	ids := make(map[string]struct{}, len(q.Options))
	texts := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := ids[opt.ID]; dup || opt.ID == "" {
			return fmt.Errorf("%w: question %s has duplicate or empty option id", ErrInvalidQuestion, q.ID)
		}
		// Answers are stored by text, so texts must be unique too.
		if _, dup := texts[opt.Text]; dup {
			return fmt.Errorf("%w: question %s has duplicate option text %q", ErrInvalidQuestion, q.ID, opt.Text)
		}
		ids[opt.ID] = struct{}{}
		texts[opt.Text] = struct{}{}
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: question %s has %d correct options", ErrInvalidQuestion, q.ID, correct)
	}
	return nil
}

// Option returns the option with the given id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectOption returns the option flagged correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// AnsweredQuestion pairs a question with what the user picked and the right answer.
type AnsweredQuestion struct {
	Question
	UserAnswer    *string `json:"userAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
}

// IsCorrect reports whether the recorded answer matches the correct one.
func (a AnsweredQuestion) IsCorrect() bool {
	return a.UserAnswer != nil && *a.UserAnswer == a.CorrectAnswer
}

// Malformed reports whether a stored answered question lacks the data needed to render it.
func (a AnsweredQuestion) Malformed() bool {
	return a.ID == "" || a.Text == "" || a.CorrectAnswer == "" || len(a.Options) == 0
}

// QuizSettings is the configuration a user picks before a session.
type QuizSettings struct {
	Topic             string     `json:"topic"`
	Category          string     `json:"category"`
	Difficulty        Difficulty `json:"difficulty"`
	NumberOfQuestions int        `json:"numberOfQuestions"`
	TimeLimit         int        `json:"timeLimit"` // seconds per question
}

const (
	MinQuestions = 1
	MaxQuestions = 30
	MinTimeLimit = 10
	MaxTimeLimit = 120
)

// Validate checks the settings against the topic catalog and the numeric bounds.
// An empty category means the whole topic.
func (s QuizSettings) Validate(catalog Catalog) error {
	categories, ok := catalog[s.Topic]
	if !ok {
		return fmt.Errorf("%w: unknown topic %q", ErrInvalidSettings, s.Topic)
	}
	if s.Category != "" && !contains(categories, s.Category) {
		return fmt.Errorf("%w: category %q does not belong to topic %q", ErrInvalidSettings, s.Category, s.Topic)
	}
	if _, err := ParseDifficulty(string(s.Difficulty)); err != nil {
		return fmt.Errorf("%w: difficulty %q", ErrInvalidSettings, s.Difficulty)
	}
	if s.NumberOfQuestions < MinQuestions || s.NumberOfQuestions > MaxQuestions {
		return fmt.Errorf("%w: number of questions must be between %d and %d", ErrInvalidSettings, MinQuestions, MaxQuestions)
	}
	if s.TimeLimit < MinTimeLimit || s.TimeLimit > MaxTimeLimit {
		return fmt.Errorf("%w: time limit must be between %d and %d seconds", ErrInvalidSettings, MinTimeLimit, MaxTimeLimit)
	}
	return nil
}

// QuizResult is the finalized output of one session.
type QuizResult struct {
	Score          int                `json:"score"`
	TotalQuestions int                `json:"totalQuestions"`
	TimeTaken      int                `json:"timeTaken"` // seconds
	Difficulty     Difficulty         `json:"difficulty"`
	Topic          string             `json:"topic"`
	Category       string             `json:"category"`
	Questions      []AnsweredQuestion `json:"questions"`
}

// QuizRecord is a stored QuizResult. A zero CreatedAt means the timestamp is missing.
type QuizRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	QuizResult
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
