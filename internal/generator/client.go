package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quiz-arena/internal/domain"
)

// Client calls the question generator and explainer endpoints.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests inject a transport).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// WithModel asks the generator for a specific model.
func WithModel(model string) Option {
	return func(cl *Client) { cl.model = model }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is returned when the generator fails so callers can tell "the service
// was unreachable" apart from "the service answered with something unusable".
type Error struct {
	Reason  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("generator: %s: %v", e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("generator: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// maxResponseBytes caps how much of a generator response is read.
const maxResponseBytes = 1 << 20

type generateRequest struct {
	Topic             string `json:"topic"`
	Category          string `json:"category,omitempty"`
	Difficulty        string `json:"difficulty"`
	NumberOfQuestions int    `json:"numberOfQuestions"`
	Model             string `json:"model,omitempty"`
}

// rawQuestion is the unformatted model output: options as plain strings and the
// correct answer by text.
type rawQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
}

type objectResponse struct {
	Questions []rawQuestion `json:"questions"`
	Error     string        `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generate requests settings.NumberOfQuestions questions. Questions that break
// the MCQ invariants are dropped with a warning; if none survive the call fails.
func (c *Client) Generate(ctx context.Context, settings domain.QuizSettings) ([]domain.Question, error) {
	body, err := c.post(ctx, "/generate-quiz", generateRequest{
		Topic:             settings.Topic,
		Category:          settings.Category,
		Difficulty:        string(settings.Difficulty),
		NumberOfQuestions: settings.NumberOfQuestions,
		Model:             c.model,
	})
	if err != nil {
		return nil, err
	}

	questions, err := decodeQuestions(body)
	if err != nil {
		return nil, err
	}

	valid := make([]domain.Question, 0, len(questions))
	for i, q := range questions {
		if q.Category == "" {
			q.Category = settings.Category
		}
		if q.Difficulty == "" {
			q.Difficulty = settings.Difficulty
		}
		if err := q.Validate(); err != nil {
			c.logger.WarnContext(ctx, "dropping generated question", "position", i, "error", err)
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, &Error{Reason: "no usable questions", Wrapped: domain.ErrNoQuestions}
	}
	if settings.NumberOfQuestions > 0 && len(valid) > settings.NumberOfQuestions {
		valid = valid[:settings.NumberOfQuestions]
	}
	return valid, nil
}

// decodeQuestions accepts the formatted question list or the raw
// {"questions": [...]} object and normalises both.
func decodeQuestions(body []byte) ([]domain.Question, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &Error{Reason: "empty response"}
	}

	if trimmed[0] == '[' {
		var questions []domain.Question
		if err := json.Unmarshal(trimmed, &questions); err != nil {
			return nil, &Error{Reason: "invalid question list", Wrapped: err}
		}
		for i := range questions {
			if questions[i].ID == "" {
				questions[i].ID = fmt.Sprintf("q%d", i+1)
			}
			for j := range questions[i].Options {
				if questions[i].Options[j].ID == "" {
					questions[i].Options[j].ID = fmt.Sprintf("a%d", j+1)
				}
			}
		}
		return questions, nil
	}

	var obj objectResponse
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &Error{Reason: "invalid JSON", Wrapped: err}
	}
	if obj.Error != "" {
		return nil, &Error{Reason: obj.Error}
	}
	return formatRaw(obj.Questions), nil
}

func formatRaw(raw []rawQuestion) []domain.Question {
	questions := make([]domain.Question, 0, len(raw))
	for i, r := range raw {
		q := domain.Question{
			ID:         fmt.Sprintf("q%d", i+1),
			Text:       r.Question,
			Category:   r.Category,
			Difficulty: domain.Difficulty(r.Difficulty),
		}
		for j, text := range r.Options {
			q.Options = append(q.Options, domain.Option{
				ID:        fmt.Sprintf("a%d", j+1),
				Text:      text,
				IsCorrect: text == r.CorrectAnswer,
			})
		}
		questions = append(questions, q)
	}
	return questions
}

type explainRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type explainResponse struct {
	Explanation string `json:"explanation"`
	Error       string `json:"error"`
}

// Explain asks why answer is the correct answer to question.
func (c *Client) Explain(ctx context.Context, question, answer string) (string, error) {
	body, err := c.post(ctx, "/explain-question", explainRequest{Question: question, Answer: answer})
	if err != nil {
		return "", err
	}
	var resp explainResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Reason: "invalid JSON", Wrapped: err}
	}
	if resp.Error != "" {
		return "", &Error{Reason: resp.Error}
	}
	explanation := strings.TrimSpace(resp.Explanation)
	if explanation == "" {
		return "", &Error{Reason: "empty explanation"}
	}
	return explanation, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Reason: "request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &Error{Reason: "read response", Wrapped: err}
	}
	if len(body) > maxResponseBytes {
		return nil, &Error{Reason: fmt.Sprintf("response exceeds %d bytes", maxResponseBytes)}
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, &Error{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, e.Error)}
		}
		return nil, &Error{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return body, nil
}
