package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// AnswerWorker consumes persist_answers_queue and keeps student_answers in
// PostgreSQL in step with the answer journal.
type AnswerWorker struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool:       pool,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			w.log.Info().Msg("AnswerWorker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var rec model.StudentAnswerRecord
	if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &rec); err != nil {
		w.log.Error().Err(err).
			Int("student_id", rec.StudentID).
			Str("exam_id", rec.ExamID.String()).
			Msg("Persist error, retrying later")
		w.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, result[1])

		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

// persist upserts or deletes one answer. saved_at guards against an older
// record overwriting a newer one after a requeue.
func (w *AnswerWorker) persist(ctx context.Context, rec *model.StudentAnswerRecord) error {
	if rec.SelectedChoiceID == nil {
		_, err := w.pool.Exec(ctx,
			`DELETE FROM student_answers
			 WHERE exam_id = $1 AND schedule_id = $2 AND student_id = $3 AND question_id = $4
			   AND saved_at <= $5`,
			rec.ExamID, rec.ScheduleID, rec.StudentID, rec.QuestionID, rec.SavedAt,
		)
		return err
	}

	_, err := w.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, schedule_id, student_id, question_id, selected_choice_id, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, schedule_id, student_id, question_id) DO UPDATE
		 SET selected_choice_id = EXCLUDED.selected_choice_id, saved_at = EXCLUDED.saved_at
		 WHERE student_answers.saved_at <= EXCLUDED.saved_at`,
		rec.ExamID, rec.ScheduleID, rec.StudentID, rec.QuestionID, *rec.SelectedChoiceID, rec.SavedAt,
	)
	return err
}

// drain persists what is left in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var rec model.StudentAnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &rec); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
