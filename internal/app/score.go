package app

import (
	"math"

	"quiz-attempt-service/internal/domain"
)

// ScoreSummary is the aggregate grading result of one attempt.
type ScoreSummary struct {
	Score      float64
	Percentage float64
	Passed     bool
}

// Summarize folds all of an attempt's answers into score, percentage and
// pass verdict. Percentage is rounded to two decimals and clamped to
// [0, 100] so floating-point summation can never overshoot; a quiz with
// non-positive total marks yields zero percent.
//
// Note: this reads the live catalog value of TotalMarks, so editing a
// quiz mid-attempt shifts percentages of attempts graded afterwards.
func Summarize(quiz domain.Quiz, answers []domain.Answer) ScoreSummary {
	var score float64
	for _, a := range answers {
		score += a.MarksObtained
	}

	pct := 0.0
	if quiz.TotalMarks > 0 {
		pct = math.Round(score/quiz.TotalMarks*100*100) / 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
	}

	return ScoreSummary{
		Score:      score,
		Percentage: pct,
		Passed:     pct >= quiz.PassPercentage,
	}
}

// apply copies the summary onto an attempt's nullable aggregate fields.
func (s ScoreSummary) apply(a *domain.Attempt) {
	score, pct, passed := s.Score, s.Percentage, s.Passed
	a.Score = &score
	a.Percentage = &pct
	a.Passed = &passed
}
