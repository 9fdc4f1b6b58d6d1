package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// CompletionRepository handles exam completion data access. At most one
// row exists per (exam, schedule, student); later inserts are dropped.
type CompletionRepository struct {
	pool *pgxpool.Pool
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(pool *pgxpool.Pool) *CompletionRepository {
	return &CompletionRepository{pool: pool}
}

// Create inserts a completion. inserted is false when a row for the same
// student and schedule already existed.
func (r *CompletionRepository) Create(ctx context.Context, c *model.Completion) (inserted bool, err error) {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return false, fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO exam_completions
		   (id, exam_id, schedule_id, student_id, score, correct_count, question_count, answers, reason, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (exam_id, schedule_id, student_id) DO NOTHING`,
		c.ID, c.ExamID, c.ScheduleID, c.StudentID, c.Score, c.CorrectCount, c.QuestionCount, answers, c.Reason, c.SubmittedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BulkCreate inserts many completions in one statement using UNNEST and
// returns how many rows were new.
func (r *CompletionRepository) BulkCreate(ctx context.Context, batch []*model.Completion) (int64, error) {
	n := len(batch)
	ids := make([]uuid.UUID, n)
	examIDs := make([]uuid.UUID, n)
	scheduleIDs := make([]uuid.UUID, n)
	students := make([]int, n)
	scores := make([]float64, n)
	corrects := make([]int, n)
	totals := make([]int, n)
	answers := make([]string, n)
	reasons := make([]string, n)
	submittedAts := make([]time.Time, n)

	for i, c := range batch {
		raw, err := json.Marshal(c.Answers)
		if err != nil {
			return 0, fmt.Errorf("marshal answers of student %d: %w", c.StudentID, err)
		}
		ids[i] = c.ID
		examIDs[i] = c.ExamID
		scheduleIDs[i] = c.ScheduleID
		students[i] = c.StudentID
		scores[i] = c.Score
		corrects[i] = c.CorrectCount
		totals[i] = c.QuestionCount
		answers[i] = string(raw)
		reasons[i] = string(c.Reason)
		submittedAts[i] = c.SubmittedAt
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO exam_completions
			(id, exam_id, schedule_id, student_id, score, correct_count, question_count, answers, reason, submitted_at)
		SELECT u.id, u.exam_id, u.schedule_id, u.student_id, u.score, u.correct_count, u.question_count,
		       u.answers::jsonb, u.reason, u.submitted_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::int[],
			$5::float8[],
			$6::int[],
			$7::int[],
			$8::text[],
			$9::text[],
			$10::timestamptz[]
		) AS u (id, exam_id, schedule_id, student_id, score, correct_count, question_count, answers, reason, submitted_at)
		ON CONFLICT (exam_id, schedule_id, student_id) DO NOTHING
	`, ids, examIDs, scheduleIDs, students, scores, corrects, totals, answers, reasons, submittedAts)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Exists reports whether the student already completed the schedule.
func (r *CompletionRepository) Exists(ctx context.Context, examID, scheduleID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM exam_completions
		   WHERE exam_id = $1 AND schedule_id = $2 AND student_id = $3
		 )`, examID, scheduleID, studentID,
	).Scan(&exists)
	return exists, err
}
