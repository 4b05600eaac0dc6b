package domain

import "time"

// QuestionType discriminates how an answer is graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// Objective reports whether the type is auto-gradable.
func (t QuestionType) Objective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse || t == QuestionShortAnswer
}

// Option is a possible answer for a question. For short_answer questions
// the options flagged Correct act as the list of accepted answer texts.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question belongs to a quiz definition. Essay questions carry no options.
type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Marks   float64      `json:"marks"`
	Options []Option     `json:"options,omitempty"`
}

// Quiz is the read-only catalog snapshot an attempt runs against.
// The engine never writes quizzes; authoring lives elsewhere.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	DurationSec      int        `json:"duration_sec"`
	TotalMarks       float64    `json:"total_marks"`
	PassPercentage   float64    `json:"pass_percentage"`
	MaxAttempts      int        `json:"max_attempts"`
	Published        bool       `json:"published"`
	AvailableFrom    *time.Time `json:"available_from,omitempty"`
	AvailableUntil   *time.Time `json:"available_until,omitempty"`
	ShuffleQuestions bool       `json:"shuffle_questions"`
	ShuffleAnswers   bool       `json:"shuffle_answers"`
	Questions        []Question `json:"questions"`
}

// AvailableAt reports whether the quiz can be started at the given instant.
func (q Quiz) AvailableAt(now time.Time) bool {
	if !q.Published {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return false
	}
	return true
}

// Question looks up a question by id.
func (q Quiz) Question(questionID string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Attempt is one student's single timed instance of taking a quiz.
// Score, Percentage, Passed and TimeTakenSec stay nil until the attempt
// is finalized; an essay regrade may refresh them afterwards.
type Attempt struct {
	ID           string     `json:"id"`
	QuizID       string     `json:"quiz_id"`
	StudentID    string     `json:"student_id"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Percentage   *float64   `json:"percentage,omitempty"`
	Passed       *bool      `json:"is_passed,omitempty"`
	TimeTakenSec *int       `json:"time_taken_seconds,omitempty"`
}

// Answer is a student's response to one question of one attempt.
// At most one answer exists per (attempt, question); re-submitting while
// the attempt is in progress replaces the earlier one.
type Answer struct {
	ID               string  `json:"id"`
	AttemptID        string  `json:"attempt_id"`
	QuestionID       string  `json:"question_id"`
	SelectedOptionID *string `json:"selected_option_id,omitempty"`
	AnswerText       *string `json:"answer_text,omitempty"`
	Outcome          Outcome `json:"outcome"`
	MarksObtained    float64 `json:"marks_obtained"`
}

// AnswerSubmission is the raw payload a student sends for one question.
type AnswerSubmission struct {
	QuestionID       string  `json:"question_id"`
	SelectedOptionID *string `json:"selected_option_id,omitempty"`
	AnswerText       *string `json:"answer_text,omitempty"`
}
