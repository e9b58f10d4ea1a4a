package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quiz-arena/internal/domain"

	"github.com/google/uuid"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *QuizSession)
	Get(sessionID string) (*QuizSession, bool)
	Delete(sessionID string)
}

// Generator produces questions and explanations (an external AI service).
type Generator interface {
	Generate(ctx context.Context, settings domain.QuizSettings) ([]domain.Question, error)
	Explain(ctx context.Context, question, answer string) (string, error)
}

// ResultStore persists finished quizzes and answers history queries.
// Query and Aggregate must apply the criteria identically.
type ResultStore interface {
	Insert(ctx context.Context, record domain.QuizRecord) (domain.QuizRecord, error)
	Get(ctx context.Context, userID, recordID string) (domain.QuizRecord, error)
	Query(ctx context.Context, criteria domain.HistoryCriteria, sortKey domain.SortKey, page domain.PageRequest) ([]domain.QuizRecord, int, error)
	Aggregate(ctx context.Context, criteria domain.HistoryCriteria) (domain.HistoryAggregates, error)
}

// ProfileStore remembers the name shown for a user on the leaderboard.
type ProfileStore interface {
	SaveDisplayName(ctx context.Context, userID, displayName string) error
}

// RankingInvalidator is told when a stored result makes cached rankings stale.
type RankingInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ServiceOption customises a QuizService.
type ServiceOption func(*QuizService)

// WithSessionTiming sets the engine advance delay and tick interval for new sessions.
func WithSessionTiming(advanceDelay, tick time.Duration) ServiceOption {
	return func(s *QuizService) {
		s.advanceDelay = advanceDelay
		s.tickInterval = tick
	}
}

// WithProfiles enables display-name bookkeeping.
func WithProfiles(profiles ProfileStore) ServiceOption {
	return func(s *QuizService) { s.profiles = profiles }
}

// WithRankingInvalidator registers a cache to clear after every stored result.
func WithRankingInvalidator(inv RankingInvalidator) ServiceOption {
	return func(s *QuizService) { s.rankings = inv }
}

// WithCatalog replaces the default topic catalog.
func WithCatalog(catalog domain.Catalog) ServiceOption {
	return func(s *QuizService) { s.catalog = catalog }
}

// WithClock overrides the clock used to stamp sessions and stored records.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions  SessionRepository
	generator Generator
	results   ResultStore
	profiles  ProfileStore
	rankings  RankingInvalidator
	catalog   domain.Catalog
	logger    *slog.Logger
	now       func() time.Time

	advanceDelay time.Duration
	tickInterval time.Duration
}

func NewQuizService(sessions SessionRepository, generator Generator, results ResultStore, logger *slog.Logger, opts ...ServiceOption) *QuizService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &QuizService{
		sessions:  sessions,
		generator: generator,
		results:   results,
		catalog:   domain.DefaultCatalog,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Topics returns the catalog of topics and categories users may choose from.
func (s *QuizService) Topics() domain.Catalog {
	return s.catalog
}

// Start validates the settings, asks the generator for questions and launches a
// timed session. Generator failures are returned wrapped in ErrGenerationFailed
// and are never retried here.
func (s *QuizService) Start(ctx context.Context, userID, displayName string, settings domain.QuizSettings) (*QuizSession, error) {
	if err := settings.Validate(s.catalog); err != nil {
		return nil, err
	}

	questions, err := s.generator.Generate(ctx, settings)
	if err == nil && len(questions) == 0 {
		err = domain.ErrNoQuestions
	}
	if err != nil {
		s.logger.WarnContext(ctx, "question generation failed", "user", userID, "topic", settings.Topic, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	if s.profiles != nil && strings.TrimSpace(displayName) != "" {
		if err := s.profiles.SaveDisplayName(ctx, userID, displayName); err != nil {
			s.logger.WarnContext(ctx, "save display name failed", "user", userID, "error", err)
		}
	}

	session := newQuizSession(uuid.NewString(), userID, settings, s.now())
	session.engine = NewEngine(
		WithAdvanceDelay(s.advanceDelay),
		WithTickInterval(s.tickInterval),
		WithEngineLogger(s.logger.With("session", session.id)),
		WithCompletionHook(func(result domain.QuizResult) { s.persist(session, result) }),
	)
	if err := session.engine.Load(settings, questions); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel
	s.sessions.Put(session)
	go session.engine.Run(runCtx)

	s.logger.InfoContext(ctx, "quiz session started", "session", session.id, "user", userID, "topic", settings.Topic, "questions", len(questions))
	return session, nil
}

// persist hands the result to the store. A failure only fills the session's save
// slot; the result itself stays available.
func (s *QuizService) persist(session *QuizSession, result domain.QuizResult) {
	record := domain.QuizRecord{
		UserID:     session.userID,
		CreatedAt:  s.now(),
		QuizResult: result,
	}
	stored, err := s.results.Insert(context.Background(), record)
	if err != nil {
		s.logger.Error("save quiz result failed", "session", session.id, "user", session.userID, "error", err)
		session.setSaved("", err)
		return
	}
	s.logger.Info("quiz result saved", "session", session.id, "record", stored.ID, "score", result.Score, "total", result.TotalQuestions)
	if s.rankings != nil {
		if err := s.rankings.Invalidate(context.Background()); err != nil {
			s.logger.Warn("invalidate leaderboard cache failed", "error", err)
		}
	}
	session.setSaved(stored.ID, nil)
}

// Answer locks an option for the current question of the caller's session.
func (s *QuizService) Answer(_ context.Context, sessionID, userID, optionID string) (Snapshot, error) {
	session, err := s.session(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	_, err = session.engine.Select(optionID)
	return session.engine.Snapshot(), err
}

// Snapshot returns the current state of a session.
func (s *QuizService) Snapshot(_ context.Context, sessionID, userID string) (Snapshot, error) {
	session, err := s.session(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return session.engine.Snapshot(), nil
}

// Subscribe returns a channel that receives session snapshots.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID, userID string) (<-chan Snapshot, func(), error) {
	session, err := s.session(sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.engine.Subscribe()
	return ch, cancel, nil
}

// Outcome waits for the session to finish and for its save attempt, then reports both.
func (s *QuizService) Outcome(ctx context.Context, sessionID, userID string) (SessionOutcome, error) {
	session, err := s.session(sessionID, userID)
	if err != nil {
		return SessionOutcome{}, err
	}
	select {
	case <-session.engine.Done():
	case <-ctx.Done():
		return SessionOutcome{}, ctx.Err()
	}
	result, ok := session.engine.Result()
	if !ok {
		return SessionOutcome{}, session.engine.Err()
	}
	select {
	case <-session.Saved():
	case <-ctx.Done():
		return SessionOutcome{}, ctx.Err()
	}
	recordID, saveErr := session.SaveStatus()
	outcome := SessionOutcome{Result: result, RecordID: recordID}
	if saveErr != nil {
		outcome.SaveError = saveErr.Error()
	}
	return outcome, nil
}

// Abandon stops the session timer and forgets the session.
func (s *QuizService) Abandon(_ context.Context, sessionID, userID string) {
	session, err := s.session(sessionID, userID)
	if err != nil {
		return
	}
	session.cancel()
	s.sessions.Delete(sessionID)
}

// Explain asks the generator why answer is the correct answer to question.
func (s *QuizService) Explain(ctx context.Context, question, answer string) (string, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return "", errors.New("question and answer are required")
	}
	return s.generator.Explain(ctx, question, answer)
}

func (s *QuizService) session(sessionID, userID string) (*QuizSession, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok || session.userID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SessionOutcome is a finished session plus the result of saving it. RecordID is
// empty when saving failed; the result is still valid.
type SessionOutcome struct {
	Result    domain.QuizResult `json:"result"`
	RecordID  string            `json:"recordId,omitempty"`
	SaveError string            `json:"saveError,omitempty"`
}

// QuizSession is one user's live attempt.
type QuizSession struct {
	id        string
	userID    string
	settings  domain.QuizSettings
	createdAt time.Time
	engine    *Engine
	cancel    context.CancelFunc

	mu       sync.Mutex
	recordID string
	saveErr  error
	saved    chan struct{}
}

// NewQuizSession is exported for infrastructure layers that need to seed sessions.
func NewQuizSession(id, userID string, settings domain.QuizSettings, engine *Engine) *QuizSession {
	session := newQuizSession(id, userID, settings, time.Now())
	session.engine = engine
	return session
}

func newQuizSession(id, userID string, settings domain.QuizSettings, createdAt time.Time) *QuizSession {
	return &QuizSession{
		id:        id,
		userID:    userID,
		settings:  settings,
		createdAt: createdAt,
		cancel:    func() {},
		saved:     make(chan struct{}),
	}
}

func (q *QuizSession) ID() string                    { return q.id }
func (q *QuizSession) UserID() string                { return q.userID }
func (q *QuizSession) Settings() domain.QuizSettings { return q.settings }
func (q *QuizSession) CreatedAt() time.Time          { return q.createdAt }
func (q *QuizSession) Engine() *Engine               { return q.engine }

// Saved is closed once the completed result was handed to the store.
func (q *QuizSession) Saved() <-chan struct{} {
	return q.saved
}

// SaveStatus returns the stored record id or the save error.
func (q *QuizSession) SaveStatus() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recordID, q.saveErr
}

func (q *QuizSession) setSaved(recordID string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.saved:
		return
	default:
	}
	q.recordID = recordID
	q.saveErr = err
	close(q.saved)
}
