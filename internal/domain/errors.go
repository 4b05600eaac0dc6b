package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizUnavailable is returned when starting a quiz that is
	// unpublished or outside its availability window.
	ErrQuizUnavailable = errors.New("quiz not available")
	// ErrAttemptLimitExceeded is returned when the student already spent
	// all allowed attempts on the quiz.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAnswerNotFound indicates an unknown answer id within an attempt.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden is returned when a caller acts on an attempt they do not own.
	ErrForbidden = errors.New("attempt belongs to another student")
	// ErrAlreadyFinalized is returned when a lifecycle event hits an
	// attempt that is already in a terminal state.
	ErrAlreadyFinalized = errors.New("attempt already finalized")
	// ErrInvalidQuestionType is returned when manual grading targets a
	// non-essay question.
	ErrInvalidQuestionType = errors.New("question is not manually gradable")
	// ErrInvalidMarks is returned when manual marks fall outside
	// [0, question.Marks].
	ErrInvalidMarks = errors.New("marks outside the question's range")
)
