package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository supplies read-only quiz definitions (from cache/backing
// store). Definitions are treated as immutable for the length of a call.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRepository abstracts how attempts and their answers are stored
// (in-memory, Postgres). Implementations must make CreateInProgress,
// Finalize and RegradeAnswer atomic units.
type AttemptRepository interface {
	// CreateInProgress inserts the attempt unless an in-progress attempt
	// already exists for the same (quiz, student); in that case it
	// returns the existing one and reports created=false. The check and
	// insert happen atomically so concurrent starts cannot race two
	// in-progress rows into existence.
	CreateInProgress(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error)
	Attempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// ListAttempts returns attempts for a quiz, newest first; studentID
	// narrows to one student when non-empty.
	ListAttempts(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error)
	ListInProgress(ctx context.Context) ([]domain.Attempt, error)
	// CountFinished counts attempts in states that consume an attempt
	// slot (completed, timed_out).
	CountFinished(ctx context.Context, quizID, studentID string) (int, error)
	Answers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	Answer(ctx context.Context, attemptID, answerID string) (domain.Answer, error)
	// SaveAnswers upserts draft answers (keyed by question) for an
	// attempt that is still in progress.
	SaveAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error
	// Finalize upserts the graded answers and writes the attempt's
	// terminal state in one atomic unit. It must fail without partial
	// writes if the stored attempt is no longer in progress.
	Finalize(ctx context.Context, a domain.Attempt, graded []domain.Answer) (domain.Attempt, error)
	// RegradeAnswer writes one manually graded answer together with the
	// attempt's refreshed aggregates, atomically.
	RegradeAnswer(ctx context.Context, ans domain.Answer, a domain.Attempt) (domain.Attempt, error)
}

// AttemptService owns the attempt state machine: start, submit, abandon,
// lazy timeout finalization and manual essay grading.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizRepository
	now      func() time.Time
	newID    func() string

	// regradeMu serializes aggregate recomputation during manual grading
	// so concurrent regrades of different answers on the same attempt
	// cannot lose an update.
	regradeMu sync.Mutex
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository) *AttemptService {
	return NewAttemptServiceWithClock(attempts, quizzes, time.Now)
}

// NewAttemptServiceWithClock injects the time source for deterministic
// timeout tests.
func NewAttemptServiceWithClock(attempts AttemptRepository, quizzes QuizRepository, now func() time.Time) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		now:      now,
		newID:    uuid.NewString,
	}
}

// Start begins (or resumes) the student's attempt at a quiz. An existing
// in-progress attempt is returned unchanged: no new row, no clock reset.
// Abandoned attempts do not count against the quiz's max_attempts.
func (s *AttemptService) Start(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	if !quiz.AvailableAt(now) {
		return domain.Attempt{}, domain.ErrQuizUnavailable
	}

	finished, err := s.attempts.CountFinished(ctx, quizID, studentID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("count attempts: %w", err)
	}
	if quiz.MaxAttempts > 0 && finished >= quiz.MaxAttempts {
		return domain.Attempt{}, domain.ErrAttemptLimitExceeded
	}

	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quizID,
		StudentID: studentID,
		Status:    domain.StatusInProgress,
		StartedAt: now,
	}
	stored, _, err := s.attempts.CreateInProgress(ctx, attempt)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return stored, nil
}

// Submit grades the submitted answers and finalizes the attempt. If the
// deadline already passed when the call arrives, the payload is discarded
// and only previously saved answers are scored (late submissions are not
// treated as on-time). Upserts, grading and finalization are one atomic
// unit in the repository: a failure leaves the attempt in progress.
func (s *AttemptService) Submit(ctx context.Context, attemptID, callerID string, subs []domain.AnswerSubmission) (domain.Attempt, error) {
	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.StudentID != callerID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrAlreadyFinalized
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	if TimedOut(quiz, attempt, now) {
		return s.finalizeTimedOut(ctx, attempt, quiz)
	}

	stored, err := s.attempts.Answers(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load answers: %w", err)
	}
	byQuestion := make(map[string]domain.Answer, len(stored))
	for _, a := range stored {
		byQuestion[a.QuestionID] = a
	}

	graded := make([]domain.Answer, 0, len(subs))
	for _, sub := range subs {
		question, ok := quiz.Question(sub.QuestionID)
		if !ok {
			return domain.Attempt{}, domain.ErrQuestionNotFound
		}
		outcome, marks := Evaluate(question, sub)
		ans := domain.Answer{
			ID:               s.newID(),
			AttemptID:        attemptID,
			QuestionID:       sub.QuestionID,
			SelectedOptionID: sub.SelectedOptionID,
			AnswerText:       sub.AnswerText,
			Outcome:          outcome,
			MarksObtained:    marks,
		}
		// A later submission replaces the saved one; keep its identity.
		if prev, exists := byQuestion[sub.QuestionID]; exists {
			ans.ID = prev.ID
		}
		byQuestion[sub.QuestionID] = ans
		graded = append(graded, ans)
	}

	all := make([]domain.Answer, 0, len(byQuestion))
	for _, a := range byQuestion {
		all = append(all, a)
	}

	next, err := domain.Transition(attempt.Status, domain.EventSubmit)
	if err != nil {
		return domain.Attempt{}, err
	}
	attempt.Status = next
	attempt.CompletedAt = &now
	taken := int(now.Sub(attempt.StartedAt) / time.Second)
	attempt.TimeTakenSec = &taken
	Summarize(quiz, all).apply(&attempt)

	return s.attempts.Finalize(ctx, attempt, graded)
}

// SaveProgress persists answers mid-attempt without finalizing, so a
// later timeout can still score them. Answers are graded eagerly on
// save; grading is idempotent, so the final submit may regrade them
// freely. A save that arrives after the deadline finalizes the attempt
// as timed out and reports ErrAlreadyFinalized.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID, callerID string, subs []domain.AnswerSubmission) ([]domain.Answer, error) {
	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != callerID {
		return nil, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusInProgress {
		return nil, domain.ErrAlreadyFinalized
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if TimedOut(quiz, attempt, s.now()) {
		if _, err := s.finalizeTimedOut(ctx, attempt, quiz); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyFinalized
	}

	answers := make([]domain.Answer, 0, len(subs))
	for _, sub := range subs {
		question, ok := quiz.Question(sub.QuestionID)
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		outcome, marks := Evaluate(question, sub)
		answers = append(answers, domain.Answer{
			ID:               s.newID(),
			AttemptID:        attemptID,
			QuestionID:       sub.QuestionID,
			SelectedOptionID: sub.SelectedOptionID,
			AnswerText:       sub.AnswerText,
			Outcome:          outcome,
			MarksObtained:    marks,
		})
	}
	if err := s.attempts.SaveAnswers(ctx, attemptID, answers); err != nil {
		return nil, err
	}
	return s.attempts.Answers(ctx, attemptID)
}

// Abandon is the administrative transition out of in_progress without
// scoring. It is idempotent: abandoning an abandoned attempt is a no-op.
func (s *AttemptService) Abandon(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Status == domain.StatusAbandoned {
		return attempt, nil
	}
	next, err := domain.Transition(attempt.Status, domain.EventAbandon)
	if err != nil {
		return domain.Attempt{}, err
	}
	now := s.now()
	attempt.Status = next
	attempt.CompletedAt = &now
	return s.attempts.Finalize(ctx, attempt, nil)
}

// AttemptDetail is an attempt plus its answers and, while in progress,
// the live number of seconds left.
type AttemptDetail struct {
	Attempt          domain.Attempt  `json:"attempt"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Answers          []domain.Answer `json:"answers"`
}

// Get reads one attempt. Reading is also where expired attempts are
// observed: an in-progress attempt past its deadline is finalized as
// timed_out from its saved answers before being returned.
func (s *AttemptService) Get(ctx context.Context, attemptID string) (AttemptDetail, error) {
	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptDetail{}, err
	}

	remaining := 0
	if attempt.Status == domain.StatusInProgress {
		now := s.now()
		if TimedOut(quiz, attempt, now) {
			attempt, err = s.finalizeTimedOut(ctx, attempt, quiz)
			if err != nil {
				return AttemptDetail{}, err
			}
		} else {
			remaining = RemainingSeconds(quiz, attempt, now)
		}
	}

	answers, err := s.attempts.Answers(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, fmt.Errorf("load answers: %w", err)
	}
	return AttemptDetail{Attempt: attempt, RemainingSeconds: remaining, Answers: answers}, nil
}

// List returns the attempts on a quiz, optionally narrowed to one student.
func (s *AttemptService) List(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	return s.attempts.ListAttempts(ctx, quizID, studentID)
}

// GradeEssay applies a teacher's manual verdict to one essay answer and
// recomputes the whole attempt's aggregates. Teacher authority is not
// bound by the student-facing state machine, so this works on attempts in
// any status, including terminal ones.
func (s *AttemptService) GradeEssay(ctx context.Context, attemptID, answerID string, marks float64, correct bool) (domain.Attempt, error) {
	s.regradeMu.Lock()
	defer s.regradeMu.Unlock()

	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	answer, err := s.attempts.Answer(ctx, attemptID, answerID)
	if err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	question, ok := quiz.Question(answer.QuestionID)
	if !ok {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}
	if question.Type != domain.QuestionEssay {
		return domain.Attempt{}, domain.ErrInvalidQuestionType
	}
	if marks < 0 || marks > question.Marks {
		return domain.Attempt{}, domain.ErrInvalidMarks
	}

	answer.MarksObtained = marks
	answer.Outcome = domain.OutcomeFromBool(correct)

	all, err := s.attempts.Answers(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load answers: %w", err)
	}
	for i := range all {
		if all[i].ID == answer.ID {
			all[i] = answer
		}
	}
	Summarize(quiz, all).apply(&attempt)

	return s.attempts.RegradeAnswer(ctx, answer, attempt)
}

// SweepTimedOut force-finalizes every in-progress attempt whose deadline
// has passed and returns how many were closed. Lazy evaluation alone
// leaves never-revisited attempts open forever; the sweep is the
// operational backstop.
func (s *AttemptService) SweepTimedOut(ctx context.Context) (int, error) {
	open, err := s.attempts.ListInProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("list in-progress: %w", err)
	}

	swept := 0
	now := s.now()
	for _, attempt := range open {
		quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return swept, err
		}
		if !TimedOut(quiz, attempt, now) {
			continue
		}
		if _, err := s.finalizeTimedOut(ctx, attempt, quiz); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// finalizeTimedOut closes an expired attempt from its saved answers only.
// The recorded completion time is the deadline itself, not the instant
// the timeout was observed.
func (s *AttemptService) finalizeTimedOut(ctx context.Context, attempt domain.Attempt, quiz domain.Quiz) (domain.Attempt, error) {
	next, err := domain.Transition(attempt.Status, domain.EventTimeout)
	if err != nil {
		return domain.Attempt{}, err
	}

	saved, err := s.attempts.Answers(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load answers: %w", err)
	}

	deadline := Deadline(quiz, attempt)
	attempt.Status = next
	attempt.CompletedAt = &deadline
	taken := quiz.DurationSec
	attempt.TimeTakenSec = &taken
	Summarize(quiz, saved).apply(&attempt)

	return s.attempts.Finalize(ctx, attempt, nil)
}
