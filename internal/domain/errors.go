package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session does not exist or belongs to someone else.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionStarted is returned when questions are loaded into an engine twice.
	ErrSessionStarted = errors.New("quiz session already started")
	// ErrSessionCompleted is returned for input arriving after the session finished.
	ErrSessionCompleted = errors.New("quiz session already completed")
	// ErrSessionNotStarted is returned for input arriving before questions were loaded.
	ErrSessionNotStarted = errors.New("quiz session not started")
	// ErrNoQuestions indicates the generator produced nothing usable.
	ErrNoQuestions = errors.New("no questions available")
	// ErrGenerationFailed wraps any question generator failure.
	ErrGenerationFailed = errors.New("question generation failed")
	// ErrInvalidQuestion marks a question that breaks the MCQ invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidSettings is returned for quiz settings outside the catalog or bounds.
	ErrInvalidSettings = errors.New("invalid quiz settings")
	// ErrInvalidFilter is returned for history filter values outside their enumerations.
	ErrInvalidFilter = errors.New("invalid history filter")
	// ErrPageOutOfRange is returned when navigating outside [1, totalPages].
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrRecordNotFound indicates a stored quiz result could not be found for the user.
	ErrRecordNotFound = errors.New("quiz record not found")
	// ErrViewClosed is returned by a history view after it was torn down.
	ErrViewClosed = errors.New("history view closed")
)
