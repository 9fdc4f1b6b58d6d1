package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// ScheduleRepository handles exam schedule data access.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// FindOpen returns the schedule of examID whose window contains at.
// When windows overlap the one that started last wins. Returns
// pgx.ErrNoRows when no window is open.
func (r *ScheduleRepository) FindOpen(ctx context.Context, examID uuid.UUID, at time.Time) (*model.ExamSchedule, error) {
	s := &model.ExamSchedule{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, starts_at, ends_at
		 FROM exam_schedules
		 WHERE exam_id = $1 AND starts_at <= $2 AND ends_at > $2
		 ORDER BY starts_at DESC
		 LIMIT 1`, examID, at,
	).Scan(&s.ID, &s.ExamID, &s.StartsAt, &s.EndsAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID returns the schedule with id if it belongs to examID.
func (r *ScheduleRepository) GetByID(ctx context.Context, examID, id uuid.UUID) (*model.ExamSchedule, error) {
	s := &model.ExamSchedule{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, starts_at, ends_at
		 FROM exam_schedules
		 WHERE id = $1 AND exam_id = $2`, id, examID,
	).Scan(&s.ID, &s.ExamID, &s.StartsAt, &s.EndsAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
