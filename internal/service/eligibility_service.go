package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/session"
	"golang.org/x/sync/singleflight"
)

// shuffledOrderSlack keeps a generated question order around a little past
// the schedule end so late reconnects still see the same order.
const shuffledOrderSlack = time.Hour

// EligibilityService decides whether a student may take an exam now and
// which questions the room should hold for them.
type EligibilityService struct {
	examRepo       *repository.ExamRepository
	scheduleRepo   *repository.ScheduleRepository
	questionRepo   *repository.QuestionRepository
	completionRepo *repository.CompletionRepository
	rdb            *redis.Client
	loads          singleflight.Group
	now            func() time.Time
	log            zerolog.Logger
}

// NewEligibilityService creates a new EligibilityService.
func NewEligibilityService(
	examRepo *repository.ExamRepository,
	scheduleRepo *repository.ScheduleRepository,
	questionRepo *repository.QuestionRepository,
	completionRepo *repository.CompletionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *EligibilityService {
	return &EligibilityService{
		examRepo:       examRepo,
		scheduleRepo:   scheduleRepo,
		questionRepo:   questionRepo,
		completionRepo: completionRepo,
		rdb:            rdb,
		now:            time.Now,
		log:            log.With().Str("component", "eligibility_service").Logger(),
	}
}

// IsOpen implements session.Eligibility.
func (s *EligibilityService) IsOpen(ctx context.Context, examSlug string, studentID int) (*session.Window, error) {
	closed := &session.Window{}

	exam, err := shared(&s.loads, "exam:"+examSlug, func() (*model.Exam, error) {
		return s.examRepo.GetBySlug(ctx, examSlug)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return closed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.Status.Takeable() {
		return closed, nil
	}

	now := s.now()
	schedule, err := s.scheduleRepo.FindOpen(ctx, exam.ID, now)
	if errors.Is(err, pgx.ErrNoRows) {
		return closed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open schedule: %w", err)
	}

	window := &session.Window{
		Open:       true,
		ExamID:     exam.ID,
		ScheduleID: schedule.ID,
		Deadline:   schedule.EndsAt,
	}

	window.AlreadyCompleted, err = s.completionRepo.Exists(ctx, exam.ID, schedule.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check completion: %w", err)
	}
	if window.AlreadyCompleted {
		return window, nil
	}

	questions, err := shared(&s.loads, "questions:"+exam.ID.String(), func() ([]session.QuestionRef, error) {
		return s.loadQuestionRefs(ctx, exam.ID)
	})
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		s.log.Warn().Str("exam_id", exam.ID.String()).Msg("Exam has no questions, refusing join")
		return closed, nil
	}

	if exam.RandomizeQuestions {
		questions = s.studentOrder(ctx, window, studentID, questions)
	}
	window.Questions = questions
	return window, nil
}

// Resume implements session.Eligibility. The exam status and the schedule
// window are not checked: the student was already admitted before the
// sitting was interrupted.
func (s *EligibilityService) Resume(ctx context.Context, key session.RoomKey, studentID int) (*session.Window, error) {
	exam, err := s.examRepo.GetByID(ctx, key.ExamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	schedule, err := s.scheduleRepo.GetByID(ctx, key.ExamID, key.ScheduleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	window := &session.Window{
		Open:       s.now().Before(schedule.EndsAt),
		ExamID:     exam.ID,
		ScheduleID: schedule.ID,
		Deadline:   schedule.EndsAt,
	}

	window.AlreadyCompleted, err = s.completionRepo.Exists(ctx, exam.ID, schedule.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check completion: %w", err)
	}
	if window.AlreadyCompleted {
		return window, nil
	}

	questions, err := shared(&s.loads, "questions:"+exam.ID.String(), func() ([]session.QuestionRef, error) {
		return s.loadQuestionRefs(ctx, exam.ID)
	})
	if err != nil {
		return nil, err
	}
	if exam.RandomizeQuestions {
		questions = s.studentOrder(ctx, window, studentID, questions)
	}
	window.Questions = questions
	return window, nil
}

func (s *EligibilityService) loadQuestionRefs(ctx context.Context, examID uuid.UUID) ([]session.QuestionRef, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	refs := make([]session.QuestionRef, 0, len(questions))
	for i := range questions {
		choices, err := questions[i].ChoiceIDs()
		if err != nil {
			return nil, err
		}
		refs = append(refs, session.QuestionRef{ID: questions[i].ID, Choices: choices})
	}
	return refs, nil
}

// studentOrder returns the per-student shuffled order for randomized
// exams. The first order generated wins via SETNX, so every reconnect and
// every instance sees the same sequence. Redis failures fall back to the
// canonical order.
func (s *EligibilityService) studentOrder(ctx context.Context, w *session.Window, studentID int, canonical []session.QuestionRef) []session.QuestionRef {
	key := config.CacheKey.StudentShuffledQuestionKey(w.ExamID, w.ScheduleID, studentID)

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		ids := lo.Map(canonical, func(q session.QuestionRef, _ int) uuid.UUID { return q.ID })
		mutable.Shuffle(ids)

		raw, err = json.Marshal(ids)
		if err != nil {
			return canonical
		}
		ttl := max(w.Deadline.Sub(s.now()), 0) + shuffledOrderSlack
		created, setErr := s.rdb.SetNX(ctx, key, raw, ttl).Result()
		if setErr != nil {
			err = setErr
		} else if !created {
			raw, err = s.rdb.Get(ctx, key).Bytes()
		}
	}
	if err != nil {
		s.log.Warn().Err(err).
			Int("student_id", studentID).
			Str("exam_id", w.ExamID.String()).
			Msg("Shuffled order unavailable, using canonical order")
		return canonical
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt shuffled order")
		return canonical
	}
	return orderQuestions(canonical, ids)
}

// orderQuestions arranges refs in the order of ids. Ids that no longer
// exist are skipped; refs missing from ids keep their canonical order at
// the end.
func orderQuestions(refs []session.QuestionRef, ids []uuid.UUID) []session.QuestionRef {
	byID := lo.KeyBy(refs, func(q session.QuestionRef) uuid.UUID { return q.ID })

	out := make([]session.QuestionRef, 0, len(refs))
	placed := make(map[uuid.UUID]struct{}, len(refs))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		out = append(out, q)
	}
	for _, q := range refs {
		if _, ok := placed[q.ID]; !ok {
			out = append(out, q)
		}
	}
	return slices.Clip(out)
}

// shared runs fn once per key among concurrent callers, so a class joining
// at the same second costs one database round trip.
func shared[T any](g *singleflight.Group, key string, fn func() (T, error)) (T, error) {
	v, err, _ := g.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
