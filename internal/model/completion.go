package model

import (
	"time"

	"github.com/google/uuid"
)

// CompletionReason records what closed a student's sitting.
type CompletionReason string

const (
	CompletionReasonExpired CompletionReason = "EXPIRED"
	CompletionReasonAllDone CompletionReason = "ALL_DONE"
)

// Answer is one question slot as sent over the wire and journaled.
// A nil SelectedChoiceID means the question is unanswered.
type Answer struct {
	QuestionID       uuid.UUID `json:"questionId"`
	SelectedChoiceID *string   `json:"selectedChoiceId"`
}

// Completion is the durable outcome of one student in one schedule.
type Completion struct {
	ID            uuid.UUID        `json:"id"`
	ExamID        uuid.UUID        `json:"exam_id"`
	ScheduleID    uuid.UUID        `json:"schedule_id"`
	StudentID     int              `json:"student_id"`
	Score         float64          `json:"score"`
	CorrectCount  int              `json:"correct_count"`
	QuestionCount int              `json:"question_count"`
	Answers       []Answer         `json:"answers"`
	Reason        CompletionReason `json:"reason"`
	SubmittedAt   time.Time        `json:"submitted_at"`
}

// StudentAnswerRecord is the payload queued for the answer persistence
// worker. A nil SelectedChoiceID deletes the stored row.
type StudentAnswerRecord struct {
	ExamID           uuid.UUID `json:"exam_id"`
	ScheduleID       uuid.UUID `json:"schedule_id"`
	StudentID        int       `json:"student_id"`
	QuestionID       uuid.UUID `json:"question_id"`
	SelectedChoiceID *string   `json:"selected_choice_id"`
	SavedAt          time.Time `json:"saved_at"`
}
