package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"quiz-arena/internal/domain"
)

// EngineState is a node of the session state machine.
type EngineState string

const (
	StateIdle         EngineState = "idle"
	StateInProgress   EngineState = "in_progress"
	StateAnswerLocked EngineState = "answer_locked"
	StateCompleted    EngineState = "completed"
	StateFailed       EngineState = "failed"
)

const (
	// DefaultAdvanceDelay is the pause between locking an answer and moving on.
	DefaultAdvanceDelay = 400 * time.Millisecond
	// DefaultTickInterval drives both the question countdown and the elapsed clock.
	DefaultTickInterval = time.Second
)

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithAdvanceDelay overrides the advance delay. Non-positive values are ignored.
func WithAdvanceDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.advanceDelay = d
		}
	}
}

// WithTickInterval overrides the length of one timer tick (tests use milliseconds).
func WithTickInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithCompletionHook registers fn to receive the result exactly once.
func WithCompletionHook(fn func(domain.QuizResult)) EngineOption {
	return func(e *Engine) { e.onComplete = fn }
}

// WithEngineLogger attaches a logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// AnswerLogEntry is one recorded answer, in answer order. OptionID is nil on timeout.
type AnswerLogEntry struct {
	QuestionID string  `json:"questionId"`
	OptionID   *string `json:"optionId"`
}

// PublicOption is an option without its correctness flag.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is what a player may see of the current question.
type PublicQuestion struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Category   string            `json:"category"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Options    []PublicOption    `json:"options"`
}

// Snapshot is a point-in-time copy of the engine state for observers.
type Snapshot struct {
	State            EngineState        `json:"state"`
	QuestionIndex    int                `json:"questionIndex"`
	TotalQuestions   int                `json:"totalQuestions"`
	Question         *PublicQuestion    `json:"question,omitempty"`
	SelectedOptionID *string            `json:"selectedOptionId"`
	TimeRemaining    int                `json:"timeRemaining"`
	TimeLimit        int                `json:"timeLimit"`
	Elapsed          int                `json:"elapsed"`
	Score            int                `json:"score"`
	Result           *domain.QuizResult `json:"result,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Engine drives one quiz attempt. Every transition runs under a single mutex, so a
// tick and a click can never interleave; a second selection for a locked question
// is a no-op.
type Engine struct {
	mu sync.Mutex

	state     EngineState
	settings  domain.QuizSettings
	questions []domain.Question
	index     int
	selected  *string
	score     int
	elapsed   int
	remaining int
	answers   map[string]*string
	log       []AnswerLogEntry
	result    *domain.QuizResult
	err       error

	advanceDelay time.Duration
	tickInterval time.Duration
	onComplete   func(domain.QuizResult)
	logger       *slog.Logger

	locked      chan struct{}
	done        chan struct{}
	subscribers map[chan Snapshot]struct{}
}

// NewEngine returns an idle engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		state:        StateIdle,
		answers:      make(map[string]*string),
		advanceDelay: DefaultAdvanceDelay,
		tickInterval: DefaultTickInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		locked:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		subscribers:  make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load supplies the questions and starts the first countdown. An empty list moves
// the engine to StateFailed instead.
func (e *Engine) Load(settings domain.QuizSettings, questions []domain.Question) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return domain.ErrSessionStarted
	}
	if len(questions) == 0 {
		e.failLocked(domain.ErrNoQuestions)
		return domain.ErrNoQuestions
	}

	e.settings = settings
	e.questions = append([]domain.Question(nil), questions...)
	e.index = 0
	e.remaining = settings.TimeLimit
	e.state = StateInProgress
	e.broadcastLocked()
	return nil
}

// Fail moves an idle engine to StateFailed, e.g. when the generator errored upstream.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return
	}
	e.failLocked(err)
}

func (e *Engine) failLocked(err error) {
	e.state = StateFailed
	e.err = err
	close(e.done)
	e.broadcastLocked()
}

// Select locks optionID as the answer to the current question. It returns false
// without error when the question is already locked.
func (e *Engine) Select(optionID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle, StateFailed:
		return false, domain.ErrSessionNotStarted
	case StateCompleted:
		return false, domain.ErrSessionCompleted
	case StateAnswerLocked:
		return false, nil
	}

	opt, ok := e.questions[e.index].Option(optionID)
	if !ok {
		return false, domain.ErrOptionNotFound
	}
	id := opt.ID
	e.lockLocked(&id, opt.IsCorrect)
	e.broadcastLocked()
	return true, nil
}

// Tick advances both clocks by one unit. A countdown reaching zero locks the
// question with no answer.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateInProgress:
		e.elapsed++
		e.remaining--
		if e.remaining <= 0 {
			e.remaining = 0
			e.logger.Debug("question timed out", "question", e.questions[e.index].ID)
			e.lockLocked(nil, false)
		}
	case StateAnswerLocked:
		e.elapsed++
	default:
		return
	}
	e.broadcastLocked()
}

func (e *Engine) lockLocked(optionID *string, correct bool) {
	questionID := e.questions[e.index].ID
	e.answers[questionID] = optionID
	e.log = append(e.log, AnswerLogEntry{QuestionID: questionID, OptionID: optionID})
	if correct {
		e.score++
	}
	e.selected = optionID
	e.state = StateAnswerLocked
	select {
	case e.locked <- struct{}{}:
	default:
	}
}

// Advance leaves StateAnswerLocked: either to the next question or to StateCompleted.
// It reports whether a new question started, and is a no-op in any other state.
func (e *Engine) Advance() bool {
	e.mu.Lock()
	if e.state != StateAnswerLocked {
		e.mu.Unlock()
		return false
	}

	var completed *domain.QuizResult
	if e.index == len(e.questions)-1 {
		result := e.buildResultLocked()
		e.result = &result
		e.state = StateCompleted
		close(e.done)
		completed = &result
	} else {
		e.index++
		e.selected = nil
		e.remaining = e.settings.TimeLimit
		e.state = StateInProgress
	}
	e.broadcastLocked()
	hook := e.onComplete
	e.mu.Unlock()

	if completed != nil && hook != nil {
		hook(*completed)
	}
	return completed == nil
}

func (e *Engine) buildResultLocked() domain.QuizResult {
	answered := make([]domain.AnsweredQuestion, 0, len(e.questions))
	for _, q := range e.questions {
		aq := domain.AnsweredQuestion{Question: q}
		if correct, ok := q.CorrectOption(); ok {
			aq.CorrectAnswer = correct.Text
		}
		if optionID := e.answers[q.ID]; optionID != nil {
			if opt, ok := q.Option(*optionID); ok {
				text := opt.Text
				aq.UserAnswer = &text
			}
		}
		answered = append(answered, aq)
	}
	return domain.QuizResult{
		Score:          e.score,
		TotalQuestions: len(e.questions),
		TimeTaken:      e.elapsed,
		Difficulty:     e.settings.Difficulty,
		Topic:          e.settings.Topic,
		Category:       e.settings.Category,
		Questions:      answered,
	}
}

// Run is the session event loop: it ticks the clocks and schedules the delayed
// advance after every lock. It returns once the session reaches a terminal state
// or ctx is cancelled; either way the timer never fires again.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	var advance *time.Timer
	var advanceC <-chan time.Time
	defer func() {
		if advance != nil {
			advance.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.Tick()
		case <-e.locked:
			advance = time.NewTimer(e.advanceDelay)
			advanceC = advance.C
		case <-advanceC:
			advanceC = nil
			if e.Advance() {
				// the new question gets a full first tick
				ticker.Reset(e.tickInterval)
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}
}

// Done is closed when the engine reaches StateCompleted or StateFailed.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// State returns the current state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the failure cause in StateFailed.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Result returns the final result once completed.
func (e *Engine) Result() (domain.QuizResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return domain.QuizResult{}, false
	}
	return *e.result, true
}

// AnswerLog returns the recorded answers in answer order.
func (e *Engine) AnswerLog() []AnswerLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]AnswerLogEntry(nil), e.log...)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	ch <- e.snapshotLocked()
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) broadcastLocked() {
	snap := e.snapshotLocked()
	for ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow observers only need the latest state.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          e.state,
		QuestionIndex:  e.index,
		TotalQuestions: len(e.questions),
		TimeRemaining:  e.remaining,
		TimeLimit:      e.settings.TimeLimit,
		Elapsed:        e.elapsed,
		Score:          e.score,
	}
	if e.selected != nil {
		selected := *e.selected
		snap.SelectedOptionID = &selected
	}
	if e.err != nil {
		snap.Error = e.err.Error()
	}
	if e.result != nil {
		result := *e.result
		snap.Result = &result
	}
	if (e.state == StateInProgress || e.state == StateAnswerLocked) && e.index < len(e.questions) {
		q := e.questions[e.index]
		pq := &PublicQuestion{ID: q.ID, Text: q.Text, Category: q.Category, Difficulty: q.Difficulty}
		for _, opt := range q.Options {
			pq.Options = append(pq.Options, PublicOption{ID: opt.ID, Text: opt.Text})
		}
		snap.Question = pq
	}
	return snap
}
