package app

import (
	"strings"

	"quiz-attempt-service/internal/domain"
)

// Evaluate grades a single answer against its question definition. It is
// pure: the same (question, answer) pair always yields the same outcome,
// so regrading is safe. Essay answers are never auto-graded and come back
// pending with zero marks until a teacher overrides them.
func Evaluate(q domain.Question, sub domain.AnswerSubmission) (domain.Outcome, float64) {
	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
		if sub.SelectedOptionID == nil {
			return domain.OutcomeIncorrect, 0
		}
		for _, opt := range q.Options {
			if opt.Correct && opt.ID == *sub.SelectedOptionID {
				return domain.OutcomeCorrect, q.Marks
			}
		}
		return domain.OutcomeIncorrect, 0

	case domain.QuestionShortAnswer:
		if sub.AnswerText == nil {
			return domain.OutcomeIncorrect, 0
		}
		given := normalizeText(*sub.AnswerText)
		for _, opt := range q.Options {
			if opt.Correct && normalizeText(opt.Text) == given {
				return domain.OutcomeCorrect, q.Marks
			}
		}
		return domain.OutcomeIncorrect, 0

	case domain.QuestionEssay:
		return domain.OutcomePendingManual, 0
	}

	// Unknown types cannot be auto-graded; leave them for a teacher.
	return domain.OutcomePendingManual, 0
}

// normalizeText case-folds and trims a short answer for exact comparison.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
