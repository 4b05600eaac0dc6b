package domain

// Outcome is the tri-state grading result of a single answer. Essay
// answers stay pending until a teacher grades them; nullable booleans
// would hide that state, so it is an explicit value instead.
type Outcome string

const (
	OutcomeCorrect       Outcome = "correct"
	OutcomeIncorrect     Outcome = "incorrect"
	OutcomePendingManual Outcome = "pending_manual_grade"
)

// Graded reports whether the answer has a definite correctness verdict.
func (o Outcome) Graded() bool {
	return o == OutcomeCorrect || o == OutcomeIncorrect
}

// OutcomeFromBool maps a teacher's manual verdict onto the enum.
func OutcomeFromBool(correct bool) Outcome {
	if correct {
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}
