package websocket

import "encoding/json"

type Event string

// ─── Events (Client → Server) ───────────────────────────────────────
// Replies reuse the request's event name and ack.

const (
	EventTake        Event = "exam-take"
	EventSyncAnswers Event = "exam-sync-answers"
	EventTakeDone    Event = "exam-take-done"
	EventPing        Event = "ping"
)

// ─── Events (Server → Client) ───────────────────────────────────────
// Room broadcasts (exam-tick, exam-take-expired, exam-closed) are named
// by the session package.

const (
	EventPong  Event = "pong"
	EventError Event = "error"
)

// Envelope is the inbound frame. Data is decoded once the event is known.
type Envelope struct {
	Event Event           `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is the outbound frame.
type Frame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data"`
}

// TakeRequest joins the live room of an exam.
type TakeRequest struct {
	ExamSlug  string `json:"examSlug" binding:"required,max=255"`
	StudentID int    `json:"studentId" binding:"required,gt=0"`
}

// AnswerPayload is one answer slot. A null or missing selectedChoiceId
// clears the slot. Entries are not validated here: ids the room does not
// know are dropped one by one so the rest of the batch still applies.
type AnswerPayload struct {
	QuestionID       string  `json:"questionId"`
	SelectedChoiceID *string `json:"selectedChoiceId"`
}

// SyncAnswersRequest updates some of a student's answers.
type SyncAnswersRequest struct {
	RoomKey   string          `json:"roomKey" binding:"required,max=80"`
	StudentID int             `json:"studentId" binding:"required,gt=0"`
	Answers   []AnswerPayload `json:"answers"`
}

// TakeDoneRequest marks a student finished.
type TakeDoneRequest struct {
	RoomKey   string `json:"roomKey" binding:"required,max=80"`
	StudentID int    `json:"studentId" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
