package app

import (
	"testing"

	"quiz-attempt-service/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestEvaluateMultipleChoice(t *testing.T) {
	q := domain.Question{
		ID:    "q1",
		Type:  domain.QuestionMultipleChoice,
		Marks: 5,
		Options: []domain.Option{
			{ID: "o1", Text: "3", Correct: false},
			{ID: "o2", Text: "4", Correct: true},
		},
	}

	tests := []struct {
		name     string
		selected *string
		outcome  domain.Outcome
		marks    float64
	}{
		{"correct option", strPtr("o2"), domain.OutcomeCorrect, 5},
		{"wrong option", strPtr("o1"), domain.OutcomeIncorrect, 0},
		{"unknown option", strPtr("o9"), domain.OutcomeIncorrect, 0},
		{"no selection", nil, domain.OutcomeIncorrect, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome, marks := Evaluate(q, domain.AnswerSubmission{QuestionID: "q1", SelectedOptionID: tc.selected})
			if outcome != tc.outcome || marks != tc.marks {
				t.Fatalf("expected (%s, %v), got (%s, %v)", tc.outcome, tc.marks, outcome, marks)
			}
		})
	}
}

func TestEvaluateTrueFalse(t *testing.T) {
	q := domain.Question{
		ID:    "q1",
		Type:  domain.QuestionTrueFalse,
		Marks: 2,
		Options: []domain.Option{
			{ID: "t", Text: "True", Correct: true},
			{ID: "f", Text: "False", Correct: false},
		},
	}
	outcome, marks := Evaluate(q, domain.AnswerSubmission{QuestionID: "q1", SelectedOptionID: strPtr("t")})
	if outcome != domain.OutcomeCorrect || marks != 2 {
		t.Fatalf("expected correct with 2 marks, got (%s, %v)", outcome, marks)
	}
}

func TestEvaluateShortAnswer(t *testing.T) {
	q := domain.Question{
		ID:    "q1",
		Type:  domain.QuestionShortAnswer,
		Marks: 3,
		Options: []domain.Option{
			{ID: "a1", Text: "Paris", Correct: true},
			{ID: "a2", Text: "paris, france", Correct: true},
			{ID: "a3", Text: "London", Correct: false},
		},
	}

	tests := []struct {
		name    string
		text    *string
		outcome domain.Outcome
		marks   float64
	}{
		{"exact", strPtr("Paris"), domain.OutcomeCorrect, 3},
		{"case folded", strPtr("PARIS"), domain.OutcomeCorrect, 3},
		{"trimmed", strPtr("  paris \n"), domain.OutcomeCorrect, 3},
		{"second accepted answer", strPtr("Paris, France"), domain.OutcomeCorrect, 3},
		{"not an accepted answer", strPtr("London"), domain.OutcomeIncorrect, 0},
		{"partial text", strPtr("Par"), domain.OutcomeIncorrect, 0},
		{"missing text", nil, domain.OutcomeIncorrect, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome, marks := Evaluate(q, domain.AnswerSubmission{QuestionID: "q1", AnswerText: tc.text})
			if outcome != tc.outcome || marks != tc.marks {
				t.Fatalf("expected (%s, %v), got (%s, %v)", tc.outcome, tc.marks, outcome, marks)
			}
		})
	}
}

func TestEvaluateEssayStaysPending(t *testing.T) {
	q := domain.Question{ID: "q1", Type: domain.QuestionEssay, Marks: 10}
	outcome, marks := Evaluate(q, domain.AnswerSubmission{QuestionID: "q1", AnswerText: strPtr("my essay")})
	if outcome != domain.OutcomePendingManual || marks != 0 {
		t.Fatalf("essay must stay pending with 0 marks, got (%s, %v)", outcome, marks)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	q := domain.Question{
		ID:    "q1",
		Type:  domain.QuestionMultipleChoice,
		Marks: 5,
		Options: []domain.Option{
			{ID: "o1", Correct: true},
		},
	}
	sub := domain.AnswerSubmission{QuestionID: "q1", SelectedOptionID: strPtr("o1")}

	o1, m1 := Evaluate(q, sub)
	o2, m2 := Evaluate(q, sub)
	if o1 != o2 || m1 != m2 {
		t.Fatalf("grading must be deterministic: (%s, %v) vs (%s, %v)", o1, m1, o2, m2)
	}
}
