package redis

import (
	"testing"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute)

	store.Put(app.NewQuizSession("s-1", "u1", domain.QuizSettings{Topic: "linux"}, app.NewEngine()))
	if !mr.Exists("quiz:session:s-1") {
		t.Fatalf("expected redis key to be set")
	}
	if owner, _ := mr.Get("quiz:session:s-1"); owner != "u1" {
		t.Fatalf("expected owner u1, got %q", owner)
	}
	if _, ok := store.Get("s-1"); !ok {
		t.Fatalf("expected session present locally")
	}

	store.Delete("s-1")
	if mr.Exists("quiz:session:s-1") {
		t.Fatalf("expected redis key to be removed")
	}
}
