package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

const (
	CompletionBatchTimeout = 2 * time.Second
	CompletionPollTimeout  = 1 * time.Second
	// MaxCompletionAttempts bounds inserts rejected by the database before
	// a completion is moved to the dead letter queue.
	MaxCompletionAttempts = 5
)

// queuedCompletion is a completion on the retry queue. Attempts counts the
// inserts the database itself rejected.
type queuedCompletion struct {
	model.Completion
	Attempts int `json:"attempts,omitempty"`
}

// CompletionWorker retries completion inserts that failed during
// finalization. It drains persist_completions_queue in batches.
type CompletionWorker struct {
	repo      *repository.CompletionRepository
	rdb       *redis.Client
	batchSize int
	log       zerolog.Logger
}

// NewCompletionWorker creates a new CompletionWorker.
func NewCompletionWorker(repo *repository.CompletionRepository, rdb *redis.Client, batchSize int, log zerolog.Logger) *CompletionWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &CompletionWorker{
		repo:      repo,
		rdb:       rdb,
		batchSize: batchSize,
		log:       log.With().Str("component", "completion_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes what it holds. Call in a
// goroutine.
func (w *CompletionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CompletionWorker started")

	batch := make([]*queuedCompletion, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= CompletionBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing batch")
			w.flushSafe(context.Background(), batch)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, CompletionPollTimeout, config.WorkerKey.PersistCompletionsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		c, err := decodeCompletion(item[1])
		if err != nil {
			w.log.Error().Err(err).Msg("Invalid completion payload, dropping")
			continue
		}
		batch = append(batch, c)
	}
}

// flushSafe tries one bulk insert, then row by row. Rows that still fail
// go back to the queue or, once hopeless, to the dead letter queue.
func (w *CompletionWorker) flushSafe(ctx context.Context, batch []*queuedCompletion) {
	if len(batch) == 0 {
		return
	}

	completions := lo.Map(batch, func(q *queuedCompletion, _ int) *model.Completion { return &q.Completion })
	inserted, err := w.repo.BulkCreate(ctx, completions)
	if err == nil {
		w.afterInsert(ctx, completions)
		w.log.Info().
			Int("batch", len(batch)).
			Int64("inserted", inserted).
			Msg("Completions persisted")
		return
	}

	w.log.Warn().Err(err).Msg("Bulk completion insert failed, using fallback")
	for _, q := range batch {
		if _, err := w.repo.Create(ctx, &q.Completion); err != nil {
			w.retry(q, err)
			continue
		}
		w.afterInsert(ctx, []*model.Completion{&q.Completion})
	}
}

// afterInsert drops the answer journals of stored completions.
func (w *CompletionWorker) afterInsert(ctx context.Context, batch []*model.Completion) {
	pipe := w.rdb.Pipeline()
	for _, c := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(c.ExamID, c.ScheduleID, c.StudentID))
		pipe.SRem(ctx, config.CacheKey.RoomStudentsKey(c.ExamID, c.ScheduleID), c.StudentID)
	}
	_, _ = pipe.Exec(ctx)
}

func (w *CompletionWorker) retry(q *queuedCompletion, err error) {
	queue := config.WorkerKey.PersistCompletionsQueue
	if bury(q, err) {
		queue = config.WorkerKey.DeadCompletionsQueue
		w.log.Error().Err(err).
			Int("student_id", q.StudentID).
			Str("exam_id", q.ExamID.String()).
			Int("attempts", q.Attempts).
			Msg("Completion insert keeps failing, moved to dead letter queue")
	} else {
		w.log.Error().Err(err).
			Int("student_id", q.StudentID).
			Str("exam_id", q.ExamID.String()).
			Int("attempts", q.Attempts).
			Msg("Completion insert failed, requeueing")
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(context.Background(), queue, raw).Err(); err != nil {
		w.log.Error().Err(err).Int("student_id", q.StudentID).Msg("Requeue failed, completion lost")
	}
}

// bury reports whether a failed completion should leave the retry queue.
// Integrity violations (SQLSTATE class 23) never succeed. Other database
// errors count as an attempt. Errors that did not come from the server,
// such as a lost connection, are retried without counting.
func bury(q *queuedCompletion, err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return true
	}
	q.Attempts++
	return q.Attempts >= MaxCompletionAttempts
}

func decodeCompletion(raw string) (*queuedCompletion, error) {
	var q queuedCompletion
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, err
	}
	if q.ExamID == uuid.Nil || q.ScheduleID == uuid.Nil || q.StudentID <= 0 {
		return nil, errors.New("completion is missing its identity")
	}
	return &q, nil
}
