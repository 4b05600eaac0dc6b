package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore persists attempts and answers with bun. The one-in-progress
// invariant is enforced by a partial unique index on
// (quiz_id, student_id) WHERE status='in_progress', and Finalize /
// RegradeAnswer run inside transactions so a crash can never commit an
// attempt as completed with unscored answers.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

var _ app.AttemptRepository = (*AttemptStore)(nil)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID           string     `bun:"id,pk"`
	QuizID       string     `bun:"quiz_id"`
	StudentID    string     `bun:"student_id"`
	Status       string     `bun:"status"`
	StartedAt    time.Time  `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	Score        *float64   `bun:"score"`
	Percentage   *float64   `bun:"percentage"`
	Passed       *bool      `bun:"is_passed"`
	TimeTakenSec *int       `bun:"time_taken_seconds"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	ID               string  `bun:"id,pk"`
	AttemptID        string  `bun:"attempt_id"`
	QuestionID       string  `bun:"question_id"`
	SelectedOptionID *string `bun:"selected_option_id"`
	AnswerText       *string `bun:"answer_text"`
	Outcome          string  `bun:"outcome"`
	MarksObtained    float64 `bun:"marks_obtained"`
}

func toAttemptRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:           a.ID,
		QuizID:       a.QuizID,
		StudentID:    a.StudentID,
		Status:       string(a.Status),
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		Score:        a.Score,
		Percentage:   a.Percentage,
		Passed:       a.Passed,
		TimeTakenSec: a.TimeTakenSec,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:           r.ID,
		QuizID:       r.QuizID,
		StudentID:    r.StudentID,
		Status:       domain.Status(r.Status),
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		Score:        r.Score,
		Percentage:   r.Percentage,
		Passed:       r.Passed,
		TimeTakenSec: r.TimeTakenSec,
	}
}

func toAnswerRow(a domain.Answer) answerRow {
	return answerRow{
		ID:               a.ID,
		AttemptID:        a.AttemptID,
		QuestionID:       a.QuestionID,
		SelectedOptionID: a.SelectedOptionID,
		AnswerText:       a.AnswerText,
		Outcome:          string(a.Outcome),
		MarksObtained:    a.MarksObtained,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:               r.ID,
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		SelectedOptionID: r.SelectedOptionID,
		AnswerText:       r.AnswerText,
		Outcome:          domain.Outcome(r.Outcome),
		MarksObtained:    r.MarksObtained,
	}
}

func (s *AttemptStore) CreateInProgress(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	row := toAttemptRow(a)
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (quiz_id, student_id) WHERE status = 'in_progress' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return a, true, nil
	}

	// Lost the race (or resumed): hand back the existing open attempt.
	var existing attemptRow
	err = s.db.NewSelect().
		Model(&existing).
		Where("quiz_id = ?", a.QuizID).
		Where("student_id = ?", a.StudentID).
		Where("status = ?", string(domain.StatusInProgress)).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("select open attempt: %w", err)
	}
	return existing.toDomain(), false, nil
}

func (s *AttemptStore) Attempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	q := s.db.NewSelect().Model(&rows).Where("quiz_id = ?", quizID)
	if studentID != "" {
		q = q.Where("student_id = ?", studentID)
	}
	if err := q.Order("started_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *AttemptStore) ListInProgress(ctx context.Context) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", string(domain.StatusInProgress)).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list in-progress attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *AttemptStore) CountFinished(ctx context.Context, quizID, studentID string) (int, error) {
	n, err := s.db.NewSelect().
		Model((*attemptRow)(nil)).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Where("status IN (?, ?)", string(domain.StatusCompleted), string(domain.StatusTimedOut)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count finished attempts: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) Answers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *AttemptStore) Answer(ctx context.Context, attemptID, answerID string) (domain.Answer, error) {
	var row answerRow
	err := s.db.NewSelect().
		Model(&row).
		Where("attempt_id = ?", attemptID).
		Where("id = ?", answerID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Answer{}, domain.ErrAnswerNotFound
		}
		return domain.Answer{}, fmt.Errorf("select answer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) SaveAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var status string
		err := tx.NewSelect().
			Model((*attemptRow)(nil)).
			Column("status").
			Where("id = ?", attemptID).
			For("UPDATE").
			Scan(ctx, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("lock attempt: %w", err)
		}
		if domain.Status(status) != domain.StatusInProgress {
			return domain.ErrAlreadyFinalized
		}
		return upsertAnswers(ctx, tx, answers)
	})
}

func (s *AttemptStore) Finalize(ctx context.Context, a domain.Attempt, graded []domain.Answer) (domain.Attempt, error) {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := upsertAnswers(ctx, tx, graded); err != nil {
			return err
		}

		row := toAttemptRow(a)
		res, err := tx.NewUpdate().
			Model(&row).
			Column("status", "completed_at", "score", "percentage", "is_passed", "time_taken_seconds").
			Where("id = ?", a.ID).
			Where("status = ?", string(domain.StatusInProgress)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize attempt: %w", err)
		}
		// A zero-row update means another caller finalized first; the
		// rollback discards our answer upserts as well.
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrAlreadyFinalized
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return a, nil
}

func (s *AttemptStore) RegradeAnswer(ctx context.Context, ans domain.Answer, a domain.Attempt) (domain.Attempt, error) {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ansRow := toAnswerRow(ans)
		res, err := tx.NewUpdate().
			Model(&ansRow).
			Column("outcome", "marks_obtained").
			Where("id = ?", ans.ID).
			Where("attempt_id = ?", ans.AttemptID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update answer: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrAnswerNotFound
		}

		row := toAttemptRow(a)
		if _, err := tx.NewUpdate().
			Model(&row).
			Column("score", "percentage", "is_passed").
			Where("id = ?", a.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("refresh attempt score: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return a, nil
}

func upsertAnswers(ctx context.Context, tx bun.Tx, answers []domain.Answer) error {
	for _, ans := range answers {
		row := toAnswerRow(ans)
		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (attempt_id, question_id) DO UPDATE").
			Set("selected_option_id = EXCLUDED.selected_option_id").
			Set("answer_text = EXCLUDED.answer_text").
			Set("outcome = EXCLUDED.outcome").
			Set("marks_obtained = EXCLUDED.marks_obtained").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
	}
	return nil
}
