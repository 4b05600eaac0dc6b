package app

import (
	"time"

	"quiz-attempt-service/internal/domain"
)

// Timeout detection is pure and lazy: nothing runs in the background, the
// deadline is simply compared against the injected clock whenever an
// attempt is read or submitted. An expired attempt therefore stays
// in_progress in storage until the next access observes it (or the sweep
// does, see AttemptService.SweepTimedOut).

// Elapsed is the time spent on the attempt so far.
func Elapsed(a domain.Attempt, now time.Time) time.Duration {
	if now.Before(a.StartedAt) {
		return 0
	}
	return now.Sub(a.StartedAt)
}

// Remaining is the time left before the attempt's deadline, floored at
// zero. Quizzes without a positive duration have no deadline and always
// report zero remaining.
func Remaining(quiz domain.Quiz, a domain.Attempt, now time.Time) time.Duration {
	if quiz.DurationSec <= 0 {
		return 0
	}
	left := time.Duration(quiz.DurationSec)*time.Second - Elapsed(a, now)
	if left < 0 {
		return 0
	}
	return left
}

// RemainingSeconds is Remaining in whole seconds, rounded up so a client
// shows 1 rather than 0 while a fraction of a second is left.
func RemainingSeconds(quiz domain.Quiz, a domain.Attempt, now time.Time) int {
	left := Remaining(quiz, a, now)
	return int((left + time.Second - 1) / time.Second)
}

// TimedOut reports whether an in-progress attempt has outlived its quiz
// duration. Terminal attempts never time out.
func TimedOut(quiz domain.Quiz, a domain.Attempt, now time.Time) bool {
	if a.Status != domain.StatusInProgress || quiz.DurationSec <= 0 {
		return false
	}
	return Remaining(quiz, a, now) == 0
}

// Deadline is the instant the attempt times out, valid only for quizzes
// with a positive duration.
func Deadline(quiz domain.Quiz, a domain.Attempt) time.Time {
	return a.StartedAt.Add(time.Duration(quiz.DurationSec) * time.Second)
}
