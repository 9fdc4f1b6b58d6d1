//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_session.go -package=mocks

package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
)

// QuestionRef is one question as a room needs it: the id and the choice
// ids a student may select. An empty Choices accepts any choice id.
type QuestionRef struct {
	ID      uuid.UUID
	Choices []string
}

// Window is the eligibility verdict for one student and one exam slug.
type Window struct {
	Open             bool
	ExamID           uuid.UUID
	ScheduleID       uuid.UUID
	Deadline         time.Time
	Questions        []QuestionRef
	AlreadyCompleted bool
}

// Eligibility decides whether a student may take an exam right now.
type Eligibility interface {
	IsOpen(ctx context.Context, examSlug string, studentID int) (*Window, error)
	// Resume rebuilds the window of a known schedule for a student whose
	// sitting is being recovered, whether or not it is still open. A nil
	// window means the exam or schedule no longer exists.
	Resume(ctx context.Context, key RoomKey, studentID int) (*Window, error)
}

// Grader checks answers against the exam's answer key.
type Grader interface {
	IsCorrect(ctx context.Context, examID, questionID uuid.UUID, choiceID string) (bool, error)
	ScoreFromCorrectCount(ctx context.Context, examID uuid.UUID, correct int) (float64, error)
}

// KeyCache is implemented by graders that hold answer keys in memory.
// Forget is called once the last room of an exam is finalized.
type KeyCache interface {
	Forget(examID uuid.UUID)
}

// CompletionStore persists completion records.
type CompletionStore interface {
	SaveCompletion(ctx context.Context, completion *model.Completion) error
}

// AnswerJournal mirrors accepted answers outside process memory so a
// member can be restored after a restart.
type AnswerJournal interface {
	// Enroll records that a student is a member of the room under key.
	Enroll(ctx context.Context, key RoomKey, studentID int) error
	// Rooms lists the keys with enrolled students.
	Rooms(ctx context.Context) ([]RoomKey, error)
	// Students lists the students enrolled under key.
	Students(ctx context.Context, key RoomKey) ([]int, error)
	Load(ctx context.Context, key RoomKey, studentID int) ([]model.Answer, error)
	Record(ctx context.Context, key RoomKey, studentID int, answers []model.Answer) error
	Clear(ctx context.Context, key RoomKey, studentID int) error
}

// Transport groups connections into per-room broadcast groups.
type Transport interface {
	Subscribe(room, connID string)
	Unsubscribe(room, connID string)
	Publish(room, event string, payload any)
	// Close publishes a final event to the room and dissolves the group.
	Close(room, event string, payload any)
}
