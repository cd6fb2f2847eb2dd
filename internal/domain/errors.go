package domain

import "errors"

// Error kinds. Every sentinel below wraps exactly one of these so callers can
// branch on the category with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrRaceLost     = errors.New("race lost")
	ErrForbidden    = errors.New("forbidden")
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist (or was swept).
	ErrSessionNotFound = newError(ErrNotFound, "quiz session not found")
	// ErrPlayerNotFound is returned when a player id is unknown.
	ErrPlayerNotFound = newError(ErrNotFound, "player not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(ErrNotFound, "quiz not found")

	ErrSessionNotJoinable = newError(ErrInvalidState, "session is no longer accepting players")
	ErrSessionEnded       = newError(ErrInvalidState, "session has ended")
	ErrSessionNotStarted  = newError(ErrInvalidState, "session has not started")
	ErrSessionNotEnded    = newError(ErrInvalidState, "session has not ended")
	ErrQuestionStillOpen  = newError(ErrInvalidState, "question is still open")
	ErrNoMoreQuestions    = newError(ErrInvalidState, "no more questions")
	// ErrQuestionClosed covers late submissions, including ones racing end().
	ErrQuestionClosed     = newError(ErrInvalidState, "question is closed")
	ErrWrongQuestion      = newError(ErrInvalidState, "answer is for a question that is not live")
	ErrQuizAlreadyRunning = newError(ErrInvalidState, "quiz already has a live session")

	ErrInvalidSelection = newError(ErrValidation, "invalid answer selection")
	ErrEmptyQuiz        = newError(ErrValidation, "quiz has no questions")
	ErrInvalidQuiz      = newError(ErrValidation, "quiz content is malformed")
	ErrInvalidName      = newError(ErrValidation, "player name is required")

	// ErrPositionMoved is returned by an advance that carried a stale observed position.
	ErrPositionMoved = newError(ErrRaceLost, "session moved past the observed position")

	ErrNotSessionHost = newError(ErrForbidden, "caller is not the host of this session")
	ErrNotQuizOwner   = newError(ErrForbidden, "caller does not own this quiz")
)

// Error is a sentinel tagged with its kind.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind so errors.Is(err, ErrInvalidState) holds for every
// invalid-state sentinel.
func (e *Error) Unwrap() error { return e.kind }

// Kind returns the category of err, or nil when err carries none.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalidState, ErrValidation, ErrRaceLost, ErrForbidden} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
