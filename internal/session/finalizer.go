package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
)

// FinalizeReport lists the students whose completion was saved or failed.
type FinalizeReport struct {
	RoomKey     RoomKey
	Reason      model.CompletionReason
	SubmittedAt time.Time
	Saved       []int
	Failed      []int
}

// Finalizer converts a room that left the Open state into completion
// records. The caller must have won the Open -> Finalizing transition.
type Finalizer struct {
	registry  *Registry
	grader    Grader
	store     CompletionStore
	journal   AnswerJournal
	transport Transport
	now       func() time.Time
	timeout   time.Duration
	log       zerolog.Logger
}

// NewFinalizer creates a new Finalizer. journal may be nil.
func NewFinalizer(registry *Registry, grader Grader, store CompletionStore, journal AnswerJournal, transport Transport, timeout time.Duration, now func() time.Time, log zerolog.Logger) *Finalizer {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Finalizer{
		registry:  registry,
		grader:    grader,
		store:     store,
		journal:   journal,
		transport: transport,
		now:       now,
		timeout:   timeout,
		log:       log.With().Str("component", "finalizer").Logger(),
	}
}

// Finalize grades and persists every member of room, stragglers included,
// with one shared submission time. A failure for one member is logged and
// does not stop the others. The room's broadcast group is then closed and
// the room removed from the registry.
func (f *Finalizer) Finalize(room *Room, reason model.CompletionReason) FinalizeReport {
	room.stopCountdown()

	key := room.Key()
	members := room.Snapshot()
	report := FinalizeReport{
		RoomKey:     key,
		Reason:      reason,
		SubmittedAt: f.now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	for _, m := range members {
		if err := f.finalizeMember(ctx, key, m, reason, report.SubmittedAt); err != nil {
			f.log.Error().Err(err).
				Str("room_key", key.String()).
				Int("student_id", m.StudentID).
				Msg("Failed to finalize member")
			report.Failed = append(report.Failed, m.StudentID)
			continue
		}
		report.Saved = append(report.Saved, m.StudentID)
	}

	// Until Remove, joins for this key find this room and are refused.
	f.transport.Close(room.Group(), EventClosed, ClosedPayload{RoomKey: key.String()})
	f.registry.Remove(room)
	room.markClosed()

	if cache, ok := f.grader.(KeyCache); ok && !f.registry.HasExam(key.ExamID) {
		cache.Forget(key.ExamID)
	}

	f.log.Info().
		Str("room_key", key.String()).
		Str("reason", string(reason)).
		Int("saved", len(report.Saved)).
		Int("failed", len(report.Failed)).
		Msg("Room finalized")

	return report
}

func (f *Finalizer) finalizeMember(ctx context.Context, key RoomKey, m MemberState, reason model.CompletionReason, submittedAt time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("finalize member panic: %v", p)
		}
	}()

	correct := 0
	for _, a := range m.Answers {
		if a.SelectedChoiceID == nil {
			continue
		}
		ok, err := f.grader.IsCorrect(ctx, key.ExamID, a.QuestionID, *a.SelectedChoiceID)
		if err != nil {
			return fmt.Errorf("grade question %s: %w", a.QuestionID, err)
		}
		if ok {
			correct++
		}
	}

	score, err := f.grader.ScoreFromCorrectCount(ctx, key.ExamID, correct)
	if err != nil {
		return fmt.Errorf("compute score: %w", err)
	}

	completion := &model.Completion{
		ID:            uuid.New(),
		ExamID:        key.ExamID,
		ScheduleID:    key.ScheduleID,
		StudentID:     m.StudentID,
		Score:         score,
		CorrectCount:  correct,
		QuestionCount: len(m.Answers),
		Answers:       m.Answers,
		Reason:        reason,
		SubmittedAt:   submittedAt,
	}
	if err := f.store.SaveCompletion(ctx, completion); err != nil {
		return fmt.Errorf("save completion: %w", err)
	}

	if f.journal != nil {
		if err := f.journal.Clear(ctx, key, m.StudentID); err != nil {
			f.log.Warn().Err(err).
				Str("room_key", key.String()).
				Int("student_id", m.StudentID).
				Msg("Failed to clear answer journal")
		}
	}
	return nil
}
