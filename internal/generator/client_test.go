package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"quiz-arena/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestClient(rt http.RoundTripper) *Client {
	return NewClient("http://generator.test/functions/v1/", time.Second, WithHTTPClient(&http.Client{Transport: rt}), WithAPIKey("secret"))
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

var settings = domain.QuizSettings{Topic: "cloud-native", Category: "Kubernetes", Difficulty: domain.DifficultyHard, NumberOfQuestions: 2, TimeLimit: 30}

func TestGenerateFormatsRawQuestions(t *testing.T) {
	var seen generateRequest
	var seenPath, seenAuth string
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seenPath = r.URL.Path
		seenAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&seen)
		return respond(http.StatusOK, `{"questions":[
			{"question":"Which object exposes pods?","options":["Service","Secret","Node","Volume"],"correctAnswer":"Service","difficulty":"hard"},
			{"question":"Which tool manages charts?","options":["kubectl","Helm","etcd","kubelet"],"correctAnswer":"Helm","category":"Kubernetes"}
		]}`), nil
	}))

	questions, err := client.Generate(context.Background(), settings)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if seenPath != "/functions/v1/generate-quiz" {
		t.Fatalf("unexpected path %q", seenPath)
	}
	if seenAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", seenAuth)
	}
	if seen.Topic != "cloud-native" || seen.Category != "Kubernetes" || seen.NumberOfQuestions != 2 || seen.Difficulty != "hard" {
		t.Fatalf("unexpected request %+v", seen)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	first := questions[0]
	if first.ID != "q1" || first.Options[0].ID != "a1" || first.Options[3].ID != "a4" {
		t.Fatalf("expected q1/a1..a4 ids, got %+v", first)
	}
	if correct, _ := first.CorrectOption(); correct.Text != "Service" {
		t.Fatalf("expected Service correct, got %+v", correct)
	}
	if first.Category != "Kubernetes" {
		t.Fatalf("expected category filled from settings, got %q", first.Category)
	}
	if questions[1].ID != "q2" || questions[1].Difficulty != domain.DifficultyHard {
		t.Fatalf("unexpected second question %+v", questions[1])
	}
}

func TestGenerateAcceptsFormattedList(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `[{"id":"q1","text":"Pick ls","category":"Command Line","difficulty":"easy","options":[
			{"id":"a1","text":"ls","isCorrect":true},{"id":"a2","text":"cd","isCorrect":false},
			{"id":"a3","text":"rm","isCorrect":false},{"id":"a4","text":"mv","isCorrect":false}]}]`), nil
	}))

	questions, err := client.Generate(context.Background(), settings)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(questions) != 1 || questions[0].Text != "Pick ls" {
		t.Fatalf("unexpected questions %+v", questions)
	}
}

func TestGenerateDropsInvalidQuestions(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"questions":[
			{"question":"No correct answer","options":["a","b","c","d"],"correctAnswer":"e"},
			{"question":"Three options","options":["a","b","c"],"correctAnswer":"a"},
			{"question":"Fine","options":["a","b","c","d"],"correctAnswer":"d"}
		]}`), nil
	}))

	questions, err := client.Generate(context.Background(), settings)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(questions) != 1 || questions[0].Text != "Fine" {
		t.Fatalf("expected only the valid question, got %+v", questions)
	}
}

func TestGenerateFailsWhenNothingUsable(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"questions":[]}`), nil
	}))

	_, err := client.Generate(context.Background(), settings)
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions in chain, got %v", err)
	}
}

func TestGeneratePropagatesServiceError(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusBadRequest, `{"error":"Max questions is 30"}`), nil
	}))

	_, err := client.Generate(context.Background(), settings)
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if genErr.Reason != "status 400: Max questions is 30" {
		t.Fatalf("unexpected reason %q", genErr.Reason)
	}
}

func TestGenerateTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, boom
	}))

	if _, err := client.Generate(context.Background(), settings); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestGenerateJSONDecodeError(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "not-json"), nil
	}))

	if _, err := client.Generate(context.Background(), settings); err == nil {
		t.Fatalf("expected JSON decode error")
	}
}

func TestGenerateRejectsOversizedResponse(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		body := `{"questions":[],"error":"` + strings.Repeat("x", maxResponseBytes) + `"}`
		return respond(http.StatusOK, body), nil
	}))

	_, err := client.Generate(context.Background(), settings)
	var genErr *Error
	if !errors.As(err, &genErr) || !strings.Contains(genErr.Reason, "response exceeds") {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	var seen explainRequest
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/functions/v1/explain-question" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		return respond(http.StatusOK, `{"explanation":"  Because pwd prints the directory.  "}`), nil
	}))

	got, err := client.Explain(context.Background(), "Which command prints the directory?", "pwd")
	if err != nil {
		t.Fatalf("Explain returned error: %v", err)
	}
	if got != "Because pwd prints the directory." {
		t.Fatalf("unexpected explanation %q", got)
	}
	if seen.Question == "" || seen.Answer != "pwd" {
		t.Fatalf("unexpected request %+v", seen)
	}
}

func TestExplainEmpty(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"explanation":""}`), nil
	}))

	if _, err := client.Explain(context.Background(), "q", "a"); err == nil {
		t.Fatalf("expected error for empty explanation")
	}
}

func TestStaticGenerator(t *testing.T) {
	gen := NewStatic(nil)
	questions, err := gen.Generate(context.Background(), domain.QuizSettings{NumberOfQuestions: 3, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			t.Fatalf("question %d invalid: %v", i, err)
		}
		if q.Difficulty != domain.DifficultyEasy {
			t.Fatalf("expected requested difficulty, got %q", q.Difficulty)
		}
	}
	if questions[2].ID != "q3" {
		t.Fatalf("expected renumbered ids, got %q", questions[2].ID)
	}
}
