package service

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/session"
	"golang.org/x/sync/singleflight"
)

var (
	_ session.Grader   = (*GradingService)(nil)
	_ session.KeyCache = (*GradingService)(nil)
)

type answerKey map[uuid.UUID]string

// GradingService grades answers in RAM. Answer keys are read once per exam
// from the Redis hash exam:{id}:key, filled from PostgreSQL on a miss.
type GradingService struct {
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger

	mu    sync.RWMutex
	keys  map[uuid.UUID]answerKey
	loads singleflight.Group
}

// NewGradingService creates a new GradingService.
func NewGradingService(questionRepo *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *GradingService {
	return &GradingService{
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "grading_service").Logger(),
		keys:         make(map[uuid.UUID]answerKey),
	}
}

// IsCorrect implements session.Grader. Questions missing from the answer
// key are graded as wrong.
func (s *GradingService) IsCorrect(ctx context.Context, examID, questionID uuid.UUID, choiceID string) (bool, error) {
	key, err := s.answerKey(ctx, examID)
	if err != nil {
		return false, err
	}
	correct, ok := key[questionID]
	return ok && correct == choiceID, nil
}

// ScoreFromCorrectCount implements session.Grader.
func (s *GradingService) ScoreFromCorrectCount(ctx context.Context, examID uuid.UUID, correct int) (float64, error) {
	key, err := s.answerKey(ctx, examID)
	if err != nil {
		return 0, err
	}
	return ScorePercent(correct, len(key)), nil
}

// ScorePercent is correct/total*100 rounded to two decimals. An exam
// without questions scores zero.
func ScorePercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	correct = max(0, min(correct, total))
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}

// Forget implements session.KeyCache. It drops the in-memory answer key of
// an exam; the Redis copy stays for the next room.
func (s *GradingService) Forget(examID uuid.UUID) {
	s.mu.Lock()
	delete(s.keys, examID)
	s.mu.Unlock()
}

// Refresh drops both cached copies of an exam's answer key so the next
// grading reads PostgreSQL. Used after an answer key was corrected.
func (s *GradingService) Refresh(ctx context.Context, examID uuid.UUID) error {
	s.Forget(examID)
	if err := s.rdb.Del(ctx, config.CacheKey.ExamAnswerKey(examID)).Err(); err != nil {
		return fmt.Errorf("drop cached answer key: %w", err)
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("Answer key cache refreshed")
	return nil
}

func (s *GradingService) answerKey(ctx context.Context, examID uuid.UUID) (answerKey, error) {
	s.mu.RLock()
	key, ok := s.keys[examID]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	key, err := shared(&s.loads, examID.String(), func() (answerKey, error) {
		return s.loadAnswerKey(ctx, examID)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[examID] = key
	s.mu.Unlock()
	return key, nil
}

func (s *GradingService) loadAnswerKey(ctx context.Context, examID uuid.UUID) (answerKey, error) {
	cacheKey := config.CacheKey.ExamAnswerKey(examID)

	cached, err := s.rdb.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Answer key cache read failed, using database")
	}
	if len(cached) > 0 {
		key := make(answerKey, len(cached))
		for qid, correct := range cached {
			id, err := uuid.Parse(qid)
			if err != nil {
				continue
			}
			key[id] = correct
		}
		return key, nil
	}

	fromDB, err := s.questionRepo.AnswerKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	key := answerKey(fromDB)

	if len(key) > 0 {
		fields := make(map[string]interface{}, len(key))
		for id, correct := range key {
			fields[id.String()] = correct
		}
		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, cacheKey)
		pipe.HSet(ctx, cacheKey, fields)
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache answer key")
		}
	}

	s.log.Debug().
		Str("exam_id", examID.String()).
		Int("questions", len(key)).
		Msg("Answer key loaded")
	return key, nil
}
