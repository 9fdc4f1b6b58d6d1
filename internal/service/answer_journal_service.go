package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/session"
)

// AnswerJournalService mirrors accepted answers into a Redis hash per
// student and schedule, and queues them for the answer worker which keeps
// student_answers in PostgreSQL.
type AnswerJournalService struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// NewAnswerJournalService creates a new AnswerJournalService.
func NewAnswerJournalService(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *AnswerJournalService {
	return &AnswerJournalService{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("component", "answer_journal").Logger(),
	}
}

// Enroll adds the student to the room's member set and the room to the
// index of journaled rooms.
func (s *AnswerJournalService) Enroll(ctx context.Context, key session.RoomKey, studentID int) error {
	pipe := s.rdb.Pipeline()
	s.enroll(ctx, pipe, key, studentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enroll journal: %w", err)
	}
	return nil
}

func (s *AnswerJournalService) enroll(ctx context.Context, pipe redis.Pipeliner, key session.RoomKey, studentID int) {
	studentsKey := config.CacheKey.RoomStudentsKey(key.ExamID, key.ScheduleID)
	pipe.SAdd(ctx, config.CacheKey.JournaledRoomsKey(), key.String())
	pipe.SAdd(ctx, studentsKey, studentID)
	if s.ttl > 0 {
		pipe.Expire(ctx, studentsKey, s.ttl)
	}
}

// Rooms lists the journaled room keys. Keys whose member set is gone or
// empty are pruned from the index on the way.
func (s *AnswerJournalService) Rooms(ctx context.Context) ([]session.RoomKey, error) {
	members, err := s.rdb.SMembers(ctx, config.CacheKey.JournaledRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list journaled rooms: %w", err)
	}

	keys := make([]session.RoomKey, 0, len(members))
	for _, raw := range members {
		key, err := session.ParseRoomKey(raw)
		if err != nil {
			s.prune(ctx, raw)
			continue
		}
		n, err := s.rdb.SCard(ctx, config.CacheKey.RoomStudentsKey(key.ExamID, key.ScheduleID)).Result()
		if err != nil {
			return nil, fmt.Errorf("count journaled students: %w", err)
		}
		if n == 0 {
			s.prune(ctx, raw)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *AnswerJournalService) prune(ctx context.Context, raw string) {
	if err := s.rdb.SRem(ctx, config.CacheKey.JournaledRoomsKey(), raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_key", raw).Msg("Failed to prune journaled room")
	}
}

// Students lists the students enrolled under key.
func (s *AnswerJournalService) Students(ctx context.Context, key session.RoomKey) ([]int, error) {
	members, err := s.rdb.SMembers(ctx, config.CacheKey.RoomStudentsKey(key.ExamID, key.ScheduleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list journaled students: %w", err)
	}
	return parseStudentIDs(members), nil
}

func parseStudentIDs(members []string) []int {
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Load returns the journaled answers of a student. Entries with a
// malformed question id are skipped.
func (s *AnswerJournalService) Load(ctx context.Context, key session.RoomKey, studentID int) ([]model.Answer, error) {
	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(key.ExamID, key.ScheduleID, studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	answers := make([]model.Answer, 0, len(fields))
	for qid, choiceID := range fields {
		id, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		c := choiceID
		answers = append(answers, model.Answer{QuestionID: id, SelectedChoiceID: &c})
	}
	return answers, nil
}

// Record writes applied answers to the journal and queues them for
// persistence in one round trip.
func (s *AnswerJournalService) Record(ctx context.Context, key session.RoomKey, studentID int, answers []model.Answer) error {
	hashKey := config.CacheKey.StudentAnswersKey(key.ExamID, key.ScheduleID, studentID)
	savedAt := s.now()

	pipe := s.rdb.Pipeline()
	s.enroll(ctx, pipe, key, studentID)
	for _, a := range answers {
		if a.SelectedChoiceID == nil {
			pipe.HDel(ctx, hashKey, a.QuestionID.String())
		} else {
			pipe.HSet(ctx, hashKey, a.QuestionID.String(), *a.SelectedChoiceID)
		}

		raw, err := json.Marshal(model.StudentAnswerRecord{
			ExamID:           key.ExamID,
			ScheduleID:       key.ScheduleID,
			StudentID:        studentID,
			QuestionID:       a.QuestionID,
			SelectedChoiceID: a.SelectedChoiceID,
			SavedAt:          savedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal answer record: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, hashKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record journal: %w", err)
	}
	return nil
}

// Clear deletes the journal of a student and its enrollment. An emptied
// room is pruned from the index by the next Rooms call.
func (s *AnswerJournalService) Clear(ctx context.Context, key session.RoomKey, studentID int) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.StudentAnswersKey(key.ExamID, key.ScheduleID, studentID))
	pipe.SRem(ctx, config.CacheKey.RoomStudentsKey(key.ExamID, key.ScheduleID), studentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}
