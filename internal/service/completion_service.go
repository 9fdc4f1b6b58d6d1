package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// ErrCompletionQueued marks a completion that could not be inserted and
// was handed to the retry queue instead.
var ErrCompletionQueued = errors.New("completion queued for retry")

// CompletionService stores completion records.
type CompletionService struct {
	completionRepo *repository.CompletionRepository
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(completionRepo *repository.CompletionRepository, rdb *redis.Client, log zerolog.Logger) *CompletionService {
	return &CompletionService{
		completionRepo: completionRepo,
		rdb:            rdb,
		log:            log.With().Str("component", "completion_service").Logger(),
	}
}

// SaveCompletion implements session.CompletionStore. A duplicate for the
// same student and schedule is not an error. When the insert fails the
// record is pushed to the retry queue and the returned error wraps
// ErrCompletionQueued.
func (s *CompletionService) SaveCompletion(ctx context.Context, c *model.Completion) error {
	inserted, err := s.completionRepo.Create(ctx, c)
	if err == nil {
		if !inserted {
			s.log.Warn().
				Str("exam_id", c.ExamID.String()).
				Str("schedule_id", c.ScheduleID.String()).
				Int("student_id", c.StudentID).
				Msg("Completion already stored, keeping the first")
		}
		return nil
	}

	insertErr := fmt.Errorf("insert completion: %w", err)
	if qerr := s.enqueue(ctx, c); qerr != nil {
		return errors.Join(insertErr, qerr)
	}
	return fmt.Errorf("%w: %w", ErrCompletionQueued, insertErr)
}

func (s *CompletionService) enqueue(ctx context.Context, c *model.Completion) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	// The finalizer's context may be the one that just expired.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue completion: %w", err)
	}
	return nil
}
