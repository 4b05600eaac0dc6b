package app

import (
	"context"
	"hash/fnv"
	"math/rand"

	"quiz-attempt-service/internal/domain"
)

// PresentedOption is a student-safe option view: no correctness flag.
type PresentedOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type PresentedQuestion struct {
	ID      string              `json:"id"`
	Type    domain.QuestionType `json:"type"`
	Prompt  string              `json:"prompt"`
	Marks   float64             `json:"marks"`
	Options []PresentedOption   `json:"options,omitempty"`
}

// AttemptPresentation is what a student sees while taking the quiz.
type AttemptPresentation struct {
	Attempt          domain.Attempt      `json:"attempt"`
	Title            string              `json:"title"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Questions        []PresentedQuestion `json:"questions"`
}

// Presentation renders the quiz for one attempt. When the quiz enables
// shuffling, question and option order is permuted with a seed derived
// from the attempt id, so the same student sees the same order across
// reloads. Grading keys by id and is unaffected by presentation order.
func (s *AttemptService) Presentation(ctx context.Context, attemptID, callerID string) (AttemptPresentation, error) {
	attempt, err := s.attempts.Attempt(ctx, attemptID)
	if err != nil {
		return AttemptPresentation{}, err
	}
	if attempt.StudentID != callerID {
		return AttemptPresentation{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptPresentation{}, err
	}

	rnd := rand.New(rand.NewSource(shuffleSeed(attempt.ID)))

	order := make([]int, len(quiz.Questions))
	for i := range order {
		order[i] = i
	}
	if quiz.ShuffleQuestions {
		order = rnd.Perm(len(quiz.Questions))
	}

	questions := make([]PresentedQuestion, 0, len(quiz.Questions))
	for _, qi := range order {
		q := quiz.Questions[qi]
		opts := make([]PresentedOption, len(q.Options))
		for i, opt := range q.Options {
			opts[i] = PresentedOption{ID: opt.ID, Text: opt.Text}
		}
		if quiz.ShuffleAnswers && len(opts) > 1 {
			rnd.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		}
		questions = append(questions, PresentedQuestion{
			ID:      q.ID,
			Type:    q.Type,
			Prompt:  q.Prompt,
			Marks:   q.Marks,
			Options: opts,
		})
	}

	remaining := 0
	if attempt.Status == domain.StatusInProgress {
		remaining = RemainingSeconds(quiz, attempt, s.now())
	}

	return AttemptPresentation{
		Attempt:          attempt,
		Title:            quiz.Title,
		RemainingSeconds: remaining,
		Questions:        questions,
	}, nil
}

func shuffleSeed(attemptID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	return int64(h.Sum64())
}
