package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamAnswerKey is the hash of question id -> correct choice id for an exam.
func (r *CacheKeyStruct) ExamAnswerKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// StudentShuffledQuestionKey holds the question order generated for one
// student in one schedule of a randomized exam.
func (r *CacheKeyStruct) StudentShuffledQuestionKey(examID, scheduleID uuid.UUID, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:schedule:%s:shuffled_questions", studentID, examID, scheduleID)
}

// StudentAnswersKey is the answer journal hash (question id -> choice id).
func (r *CacheKeyStruct) StudentAnswersKey(examID, scheduleID uuid.UUID, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:schedule:%s:answers", studentID, examID, scheduleID)
}

// JournaledRoomsKey is the set of room keys ("<exam>:<schedule>") that
// have enrolled students in the answer journal.
func (r *CacheKeyStruct) JournaledRoomsKey() string {
	return "live:journal:rooms"
}

// RoomStudentsKey is the set of student ids enrolled in one room.
func (r *CacheKeyStruct) RoomStudentsKey(examID, scheduleID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:schedule:%s:journal:students", examID, scheduleID)
}

var CacheKey = NewCacheKeyStruct()
