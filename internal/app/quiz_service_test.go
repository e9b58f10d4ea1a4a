package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
)

func newTestService(gen app.Generator, results app.ResultStore, opts ...app.ServiceOption) (*app.QuizService, *memory.SessionStore) {
	sessions := memory.NewSessionStore()
	opts = append([]app.ServiceOption{app.WithSessionTiming(20*time.Millisecond, time.Hour)}, opts...)
	return app.NewQuizService(sessions, gen, results, nil, opts...), sessions
}

func TestStartAnswerAndSave(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	startedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	service, _ := newTestService(stubGenerator{questions: makeQuestions(2)}, results,
		app.WithProfiles(results), app.WithClock(func() time.Time { return startedAt }))

	session, err := service.Start(ctx, "u1", "Alice", quizSettings(2, 30))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer service.Abandon(ctx, session.ID(), "u1")
	if session.Settings() != quizSettings(2, 30) || !session.CreatedAt().Equal(startedAt) {
		t.Fatalf("unexpected session metadata %+v at %v", session.Settings(), session.CreatedAt())
	}

	snap, err := service.Answer(ctx, session.ID(), "u1", "a1")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if snap.State != app.StateAnswerLocked || snap.Score != 1 {
		t.Fatalf("expected locked with score 1, got %+v", snap)
	}

	waitForState(t, session.Engine(), app.StateInProgress)
	if _, err := service.Answer(ctx, session.ID(), "u1", "a2"); err != nil {
		t.Fatalf("answer 2 failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	outcome, err := service.Outcome(waitCtx, session.ID(), "u1")
	if err != nil {
		t.Fatalf("outcome failed: %v", err)
	}
	if outcome.Result.Score != 1 || outcome.Result.TotalQuestions != 2 {
		t.Fatalf("expected 1/2, got %+v", outcome.Result)
	}
	if outcome.RecordID == "" || outcome.SaveError != "" {
		t.Fatalf("expected saved record, got %+v", outcome)
	}

	stored, err := results.Get(ctx, "u1", outcome.RecordID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Topic != "cloud-native" || stored.Category != "Kubernetes" || stored.Score != 1 {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if !stored.CreatedAt.Equal(startedAt) {
		t.Fatalf("expected record stamped %v, got %v", startedAt, stored.CreatedAt)
	}
	select {
	case <-session.Saved():
	default:
		t.Fatalf("expected save slot closed after outcome")
	}

	board, _ := results.Leaderboard(ctx, domain.NewLeaderboardQuery("", "", "", 10))
	if len(board) != 1 || board[0].DisplayName != "Alice" {
		t.Fatalf("expected display name saved, got %+v", board)
	}
}

func TestStartGenerationFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream 500")

	service, sessions := newTestService(stubGenerator{err: boom}, memory.NewResultStore())
	_, err := service.Start(ctx, "u1", "", quizSettings(3, 30))
	if !errors.Is(err, domain.ErrGenerationFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped generation failure, got %v", err)
	}

	service, _ = newTestService(stubGenerator{}, memory.NewResultStore())
	_, err = service.Start(ctx, "u1", "", quizSettings(3, 30))
	if !errors.Is(err, domain.ErrGenerationFailed) || !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no-questions failure, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("failed start must not register a session")
	}
}

func TestStartRejectsInvalidSettings(t *testing.T) {
	service, _ := newTestService(stubGenerator{questions: makeQuestions(1)}, memory.NewResultStore())
	bad := quizSettings(31, 30)
	if _, err := service.Start(context.Background(), "u1", "", bad); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestStartUsesConfiguredCatalog(t *testing.T) {
	ctx := context.Background()
	catalog := domain.Catalog{"golang": {"Concurrency", "Generics"}}
	service, _ := newTestService(stubGenerator{questions: makeQuestions(1)}, memory.NewResultStore(), app.WithCatalog(catalog))

	if topics := service.Topics(); len(topics) != 1 || len(topics["golang"]) != 2 {
		t.Fatalf("expected configured catalog, got %v", topics)
	}
	if _, err := service.Start(ctx, "u1", "", quizSettings(1, 30)); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("expected default topic rejected, got %v", err)
	}

	settings := quizSettings(1, 30)
	settings.Topic, settings.Category = "golang", "Generics"
	session, err := service.Start(ctx, "u1", "", settings)
	if err != nil {
		t.Fatalf("start with configured topic: %v", err)
	}
	service.Abandon(ctx, session.ID(), "u1")
}

func TestSaveFailureKeepsResult(t *testing.T) {
	ctx := context.Background()
	results := &failingResults{inner: memory.NewResultStore(), insertErr: errStoreDown}
	service, _ := newTestService(stubGenerator{questions: makeQuestions(1)}, results)

	session, err := service.Start(ctx, "u1", "", quizSettings(1, 30))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Answer(ctx, session.ID(), "u1", "a1"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	outcome, err := service.Outcome(waitCtx, session.ID(), "u1")
	if err != nil {
		t.Fatalf("outcome failed: %v", err)
	}
	if outcome.Result.Score != 1 {
		t.Fatalf("expected result despite save failure, got %+v", outcome.Result)
	}
	if outcome.RecordID != "" || outcome.SaveError == "" {
		t.Fatalf("expected save error slot, got %+v", outcome)
	}
}

func TestSessionOwnership(t *testing.T) {
	ctx := context.Background()
	service, sessions := newTestService(stubGenerator{questions: makeQuestions(1)}, memory.NewResultStore())

	session, err := service.Start(ctx, "u1", "", quizSettings(1, 30))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Answer(ctx, session.ID(), "u2", "a1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another user, got %v", err)
	}
	if _, err := service.Snapshot(ctx, "missing", "u1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	service.Abandon(ctx, session.ID(), "u2")
	if sessions.Len() != 1 {
		t.Fatalf("another user must not abandon the session")
	}
	service.Abandon(ctx, session.ID(), "u1")
	if sessions.Len() != 0 {
		t.Fatalf("expected session dropped")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(stubGenerator{questions: makeQuestions(2)}, memory.NewResultStore())

	session, err := service.Start(ctx, "u1", "", quizSettings(2, 30))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer service.Abandon(ctx, session.ID(), "u1")

	ch, cancel, err := service.Subscribe(ctx, session.ID(), "u1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := service.Answer(ctx, session.ID(), "u1", "a1"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case update := <-ch:
			if update.State == app.StateInProgress && update.QuestionIndex == 1 {
				if update.Score != 1 {
					t.Fatalf("expected score carried over, got %d", update.Score)
				}
				return
			}
		case <-deadline:
			t.Fatalf("expected advance to question 2")
		}
	}
}

func TestExplain(t *testing.T) {
	service, _ := newTestService(stubGenerator{}, memory.NewResultStore())
	got, err := service.Explain(context.Background(), "Q", "A")
	if err != nil || got != "A answers Q" {
		t.Fatalf("unexpected explanation %q, %v", got, err)
	}
	if _, err := service.Explain(context.Background(), " ", "A"); err == nil {
		t.Fatalf("expected validation error")
	}
}

type countingInvalidator struct{ calls chan struct{} }

func (c countingInvalidator) Invalidate(context.Context) error {
	c.calls <- struct{}{}
	return nil
}

func TestSavedResultInvalidatesRankings(t *testing.T) {
	ctx := context.Background()
	inv := countingInvalidator{calls: make(chan struct{}, 1)}
	service, _ := newTestService(stubGenerator{questions: makeQuestions(1)}, memory.NewResultStore(), app.WithRankingInvalidator(inv))

	session, err := service.Start(ctx, "u1", "", quizSettings(1, 30))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Answer(ctx, session.ID(), "u1", "a1"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	select {
	case <-inv.calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected leaderboard cache invalidation")
	}
}

func waitForState(t *testing.T, e *app.Engine, want app.EngineState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine did not reach %s, state=%s", want, e.State())
}
