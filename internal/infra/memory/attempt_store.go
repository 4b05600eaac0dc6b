package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository,
// used in tests and redis/postgres-less deployments. A single mutex makes
// every operation an atomic unit, which is exactly the guarantee the
// Postgres store provides with transactions.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	// answers[attemptID][questionID]
	answers map[string]map[string]domain.Answer
	// open[quizID+"\x00"+studentID] -> attemptID enforcing the single
	// in-progress attempt invariant.
	open map[string]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		answers:  make(map[string]map[string]domain.Answer),
		open:     make(map[string]string),
	}
}

var _ app.AttemptRepository = (*AttemptStore)(nil)

func openKey(quizID, studentID string) string {
	return quizID + "\x00" + studentID
}

func (s *AttemptStore) CreateInProgress(_ context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey(a.QuizID, a.StudentID)
	if existingID, ok := s.open[key]; ok {
		return s.attempts[existingID], false, nil
	}
	s.attempts[a.ID] = a
	s.open[key] = a.ID
	return a, true, nil
}

func (s *AttemptStore) Attempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.QuizID != quizID {
			continue
		}
		if studentID != "" && a.StudentID != studentID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *AttemptStore) ListInProgress(_ context.Context) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attempt, 0, len(s.open))
	for _, id := range s.open {
		out = append(out, s.attempts[id])
	}
	return out, nil
}

func (s *AttemptStore) CountFinished(_ context.Context, quizID, studentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Status.CountsTowardLimit() {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) Answers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byQuestion := s.answers[attemptID]
	out := make([]domain.Answer, 0, len(byQuestion))
	for _, ans := range byQuestion {
		out = append(out, ans)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *AttemptStore) Answer(_ context.Context, attemptID, answerID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ans := range s.answers[attemptID] {
		if ans.ID == answerID {
			return ans, nil
		}
	}
	return domain.Answer{}, domain.ErrAnswerNotFound
}

func (s *AttemptStore) Finalize(_ context.Context, a domain.Attempt, graded []domain.Answer) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.attempts[a.ID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if current.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrAlreadyFinalized
	}

	byQuestion := s.answers[a.ID]
	if byQuestion == nil {
		byQuestion = make(map[string]domain.Answer)
		s.answers[a.ID] = byQuestion
	}
	for _, ans := range graded {
		byQuestion[ans.QuestionID] = ans
	}

	s.attempts[a.ID] = a
	if a.Status != domain.StatusInProgress {
		delete(s.open, openKey(a.QuizID, a.StudentID))
	}
	return a, nil
}

func (s *AttemptStore) RegradeAnswer(_ context.Context, ans domain.Answer, a domain.Attempt) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.ID]; !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	byQuestion := s.answers[ans.AttemptID]
	if _, ok := byQuestion[ans.QuestionID]; !ok {
		return domain.Attempt{}, domain.ErrAnswerNotFound
	}
	byQuestion[ans.QuestionID] = ans
	s.attempts[a.ID] = a
	return a, nil
}

func (s *AttemptStore) SaveAnswers(_ context.Context, attemptID string, answers []domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if current.Status != domain.StatusInProgress {
		return domain.ErrAlreadyFinalized
	}
	byQuestion := s.answers[attemptID]
	if byQuestion == nil {
		byQuestion = make(map[string]domain.Answer)
		s.answers[attemptID] = byQuestion
	}
	for _, ans := range answers {
		if prev, ok := byQuestion[ans.QuestionID]; ok {
			ans.ID = prev.ID
		}
		byQuestion[ans.QuestionID] = ans
	}
	return nil
}
