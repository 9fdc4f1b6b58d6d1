package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/mocks"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type published struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	subs   map[string]map[string]bool
	events map[string][]published
	closed chan string

	// beforeClose runs at the start of Close, outside the lock.
	beforeClose  func(room string)
	unsubscribed chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subs:   make(map[string]map[string]bool),
		events: make(map[string][]published),
		closed:       make(chan string, 8),
		unsubscribed: make(chan string, 8),
	}
}

func (f *fakeTransport) Subscribe(room, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[room] == nil {
		f.subs[room] = make(map[string]bool)
	}
	f.subs[room][connID] = true
}

func (f *fakeTransport) Unsubscribe(room, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[room], connID)
	select {
	case f.unsubscribed <- connID:
	default:
	}
}

func (f *fakeTransport) Publish(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[room] = append(f.events[room], published{event: event, payload: payload})
}

func (f *fakeTransport) Close(room, event string, payload any) {
	if f.beforeClose != nil {
		f.beforeClose(room)
	}
	f.Publish(room, event, payload)
	f.mu.Lock()
	delete(f.subs, room)
	f.mu.Unlock()
	f.closed <- room
}

func (f *fakeTransport) eventsOf(room string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events[room]...)
}

func (f *fakeTransport) subscribers(room string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[room])
}

func (f *fakeTransport) waitClosed(t *testing.T) string {
	t.Helper()
	select {
	case room := <-f.closed:
		return room
	case <-time.After(5 * time.Second):
		t.Fatal("room was not closed")
		return ""
	}
}

type harness struct {
	eligibility *mocks.MockEligibility
	grader      *mocks.MockGrader
	store       *mocks.MockCompletionStore
	journal     *mocks.MockAnswerJournal
	transport   *fakeTransport
	coordinator *session.Coordinator
}

type harnessOption func(*session.Dependencies, *session.Options)

func withJournal(j session.AnswerJournal) harnessOption {
	return func(d *session.Dependencies, _ *session.Options) { d.Journal = j }
}

func withGrader(g session.Grader) harnessOption {
	return func(d *session.Dependencies, _ *session.Options) { d.Grader = g }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		eligibility: mocks.NewMockEligibility(ctrl),
		grader:      mocks.NewMockGrader(ctrl),
		store:       mocks.NewMockCompletionStore(ctrl),
		journal:     mocks.NewMockAnswerJournal(ctrl),
		transport:   newFakeTransport(),
	}
	deps := session.Dependencies{
		Eligibility: h.eligibility,
		Grader:      h.grader,
		Store:       h.store,
		Transport:   h.transport,
	}
	options := session.Options{TickInterval: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&deps, &options)
	}
	h.coordinator = session.NewCoordinator(deps, options, zerolog.Nop())
	t.Cleanup(func() { h.coordinator.Shutdown() })
	return h
}

type examFixture struct {
	slug      string
	window    *session.Window
	questions []session.QuestionRef
	correct   map[uuid.UUID]string
}

func newExamFixture(n int, deadline time.Time) examFixture {
	f := examFixture{slug: "math-midterm", correct: make(map[uuid.UUID]string)}
	for range n {
		q := session.QuestionRef{ID: uuid.New(), Choices: []string{"A", "B", "C", "D"}}
		f.questions = append(f.questions, q)
		f.correct[q.ID] = "A"
	}
	f.window = &session.Window{
		Open:       true,
		ExamID:     uuid.New(),
		ScheduleID: uuid.New(),
		Deadline:   deadline,
		Questions:  f.questions,
	}
	return f
}

func (f examFixture) key() session.RoomKey {
	return session.RoomKey{ExamID: f.window.ExamID, ScheduleID: f.window.ScheduleID}
}

// group returns the broadcast group of the fixture's live room.
func (h *harness) group(t *testing.T, f examFixture) string {
	t.Helper()
	room, ok := h.coordinator.Registry().Get(f.key())
	require.True(t, ok, "room is not live")
	return room.Group()
}

// expectGrading wires the grader to the fixture's answer key and a score of
// correct/total*100.
func (h *harness) expectGrading(f examFixture) {
	h.grader.EXPECT().
		IsCorrect(gomock.Any(), f.window.ExamID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, qid uuid.UUID, c string) (bool, error) {
			return f.correct[qid] == c, nil
		}).AnyTimes()
	h.grader.EXPECT().
		ScoreFromCorrectCount(gomock.Any(), f.window.ExamID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, correct int) (float64, error) {
			return float64(correct) / float64(len(f.questions)) * 100, nil
		}).AnyTimes()
}

type completionSink struct {
	mu    sync.Mutex
	saved []*model.Completion
}

func (s *completionSink) save(_ context.Context, c *model.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, c)
	return nil
}

func (s *completionSink) all() []*model.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Completion(nil), s.saved...)
}

func strPtr(s string) *string { return &s }

func TestCoordinator_OnJoinNotAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("exam not open", func(t *testing.T) {
		h.eligibility.EXPECT().IsOpen(gomock.Any(), "closed", 1).Return(&session.Window{Open: false}, nil)

		reply, err := h.coordinator.OnJoin(ctx, "conn-1", 1, "closed")

		require.NoError(t, err)
		require.Nil(t, reply)
	})

	t.Run("already completed", func(t *testing.T) {
		f := newExamFixture(2, time.Now().Add(time.Hour))
		f.window.AlreadyCompleted = true
		h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 1).Return(f.window, nil)

		reply, err := h.coordinator.OnJoin(ctx, "conn-1", 1, f.slug)

		require.NoError(t, err)
		require.Nil(t, reply)
		require.Zero(t, h.coordinator.Registry().Len())
	})

	t.Run("eligibility failure", func(t *testing.T) {
		boom := errors.New("db down")
		h.eligibility.EXPECT().IsOpen(gomock.Any(), "any", 1).Return(nil, boom)

		reply, err := h.coordinator.OnJoin(ctx, "conn-1", 1, "any")

		require.ErrorIs(t, err, boom)
		require.Nil(t, reply)
	})
}

func TestCoordinator_OnJoinAndRejoin(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(3, time.Now().Add(time.Hour))
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 7).Return(f.window, nil).Times(2)

	reply, err := h.coordinator.OnJoin(ctx, "conn-1", 7, f.slug)
	req.NoError(err)
	req.NotNil(reply)
	req.Equal(f.key().String(), reply.RoomKey)
	req.Len(reply.Answers, 3)
	req.InDelta(3600, reply.SecondsRemaining, 2)
	req.False(reply.Done)
	group := h.group(t, f)
	req.Equal(1, h.transport.subscribers(group))

	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 7, []model.Answer{
		{QuestionID: f.questions[2].ID, SelectedChoiceID: strPtr("D")},
	}))

	// When the student reconnects on a new socket
	reply, err = h.coordinator.OnJoin(ctx, "conn-2", 7, f.slug)

	// Then the answers from the first socket are returned
	req.NoError(err)
	req.Equal("D", *reply.Answers[2].SelectedChoiceID)
	req.Equal(2, h.transport.subscribers(group))
	req.Equal(1, h.coordinator.Registry().Len())
}

func TestCoordinator_OnDisconnectDoesNotFinalize(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 1).Return(f.window, nil)

	_, err := h.coordinator.OnJoin(ctx, "conn-1", 1, f.slug)
	req.NoError(err)

	h.coordinator.OnDisconnect("conn-1")
	h.coordinator.OnDisconnect("conn-1")
	h.coordinator.OnDisconnect("never-joined")

	rooms := h.coordinator.LiveRooms()
	req.Len(rooms, 1)
	req.Equal(1, rooms[0].Members)
	req.Zero(rooms[0].Connected)
	req.Equal(session.StateOpen, rooms[0].State)
}

func TestCoordinator_UnknownRoom(t *testing.T) {
	h := newHarness(t)
	key := session.RoomKey{ExamID: uuid.New(), ScheduleID: uuid.New()}

	require.False(t, h.coordinator.OnSyncAnswers(context.Background(), key, 1, nil))
	require.False(t, h.coordinator.OnMarkDone(context.Background(), key, 1))
}

func TestCoordinator_MarkDoneByNonMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 1).Return(f.window, nil)
	_, err := h.coordinator.OnJoin(ctx, "conn-1", 1, f.slug)
	require.NoError(t, err)

	require.False(t, h.coordinator.OnMarkDone(ctx, f.key(), 2))
	require.True(t, h.coordinator.OnSyncAnswers(ctx, f.key(), 2, nil), "sync by a non-member is accepted as a no-op")
}

// A student answers 3 of 5 questions, drops, and the timer closes the room.
func TestCoordinator_TimerExpiryFinalizesDisconnectedStudent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(5, time.Now().Add(300*time.Millisecond))
	sink := &completionSink{}
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 1).Return(f.window, nil)
	h.expectGrading(f)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save).Times(1)

	_, err := h.coordinator.OnJoin(ctx, "conn-1", 1, f.slug)
	req.NoError(err)
	group := h.group(t, f)
	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 1, []model.Answer{
		{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("A")},
		{QuestionID: f.questions[1].ID, SelectedChoiceID: strPtr("B")},
		{QuestionID: f.questions[3].ID, SelectedChoiceID: strPtr("C")},
	}))
	h.coordinator.OnDisconnect("conn-1")

	req.Equal(group, h.transport.waitClosed(t))

	saved := sink.all()
	req.Len(saved, 1)
	c := saved[0]
	req.Equal(1, c.StudentID)
	req.Equal(model.CompletionReasonExpired, c.Reason)
	req.Equal(5, c.QuestionCount)
	req.Equal(1, c.CorrectCount)
	req.InDelta(20.0, c.Score, 0.001)
	req.Len(c.Answers, 5)
	answered := 0
	for _, a := range c.Answers {
		if a.SelectedChoiceID != nil {
			answered++
		}
	}
	req.Equal(3, answered)
	req.Zero(h.coordinator.Registry().Len())

	var expired, closed int
	lastTick := int(^uint(0) >> 1)
	for _, e := range h.transport.eventsOf(group) {
		switch e.event {
		case session.EventTick:
			secs := e.payload.(int)
			req.Positive(secs)
			req.LessOrEqual(secs, lastTick)
			lastTick = secs
		case session.EventExpired:
			expired++
			req.Equal(0, e.payload)
		case session.EventClosed:
			closed++
		}
	}
	req.Equal(1, expired)
	req.Equal(1, closed)

	req.False(h.coordinator.OnSyncAnswers(ctx, f.key(), 1, nil))
}

// Two students finish early; the second "done" closes the room at once.
func TestCoordinator_LastMarkDoneFinalizesEveryone(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(2, time.Now().Add(time.Hour))
	sink := &completionSink{}
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, gomock.Any()).Return(f.window, nil).Times(2)
	h.expectGrading(f)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save).Times(2)

	_, err := h.coordinator.OnJoin(ctx, "conn-a", 1, f.slug)
	req.NoError(err)
	_, err = h.coordinator.OnJoin(ctx, "conn-b", 2, f.slug)
	req.NoError(err)
	group := h.group(t, f)
	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 1, []model.Answer{
		{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("A")},
		{QuestionID: f.questions[1].ID, SelectedChoiceID: strPtr("A")},
	}))

	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 1))
	req.Empty(sink.all())
	req.Equal(1, h.coordinator.Registry().Len())

	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 2))

	saved := sink.all()
	req.Len(saved, 2)
	req.Equal(saved[0].SubmittedAt, saved[1].SubmittedAt)
	for _, c := range saved {
		req.Equal(model.CompletionReasonAllDone, c.Reason)
		if c.StudentID == 1 {
			req.InDelta(100.0, c.Score, 0.001)
		} else {
			req.Zero(c.Score)
		}
	}
	req.Zero(h.coordinator.Registry().Len())
	req.Equal(group, h.transport.waitClosed(t))
	req.Zero(h.transport.subscribers(group))

	// The room is gone for late messages.
	req.False(h.coordinator.OnSyncAnswers(ctx, f.key(), 1, nil))
	req.False(h.coordinator.OnMarkDone(ctx, f.key(), 2))
}

// One student's completion cannot be stored; the other's still is.
func TestCoordinator_PersistenceFailureIsIsolated(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	sink := &completionSink{}
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, gomock.Any()).Return(f.window, nil).Times(2)
	h.expectGrading(f)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, c *model.Completion) error {
			if c.StudentID == 1 {
				return errors.New("insert completion: connection reset")
			}
			return sink.save(ctx, c)
		}).Times(2)

	_, _ = h.coordinator.OnJoin(ctx, "conn-a", 1, f.slug)
	_, _ = h.coordinator.OnJoin(ctx, "conn-b", 2, f.slug)
	group := h.group(t, f)
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 1))
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 2))

	saved := sink.all()
	req.Len(saved, 1)
	req.Equal(2, saved[0].StudentID)
	req.Zero(h.coordinator.Registry().Len())
	req.Equal(group, h.transport.waitClosed(t))
}

func TestCoordinator_GraderPanicIsIsolated(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	sink := &completionSink{}
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, gomock.Any()).Return(f.window, nil).Times(2)
	h.grader.EXPECT().IsCorrect(gomock.Any(), gomock.Any(), gomock.Any(), "B").
		DoAndReturn(func(context.Context, uuid.UUID, uuid.UUID, string) (bool, error) { panic("corrupt answer key") })
	h.grader.EXPECT().ScoreFromCorrectCount(gomock.Any(), gomock.Any(), 0).Return(0.0, nil)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save).Times(1)

	_, _ = h.coordinator.OnJoin(ctx, "conn-a", 1, f.slug)
	_, _ = h.coordinator.OnJoin(ctx, "conn-b", 2, f.slug)
	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 1, []model.Answer{{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("B")}}))
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 1))
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 2))

	saved := sink.all()
	req.Len(saved, 1)
	req.Equal(2, saved[0].StudentID)
}

// Expiry and the last "done" race; every member is still stored once.
func TestCoordinator_RacingTriggersFinalizeOnce(t *testing.T) {
	for i := range 10 {
		h := newHarness(t)
		ctx := context.Background()
		f := newExamFixture(1, time.Now().Add(40*time.Millisecond))
		sink := &completionSink{}
		h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, gomock.Any()).Return(f.window, nil).Times(2)
		h.expectGrading(f)
		h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save).Times(2)

		_, _ = h.coordinator.OnJoin(ctx, "conn-a", 1, f.slug)
		_, _ = h.coordinator.OnJoin(ctx, "conn-b", 2, f.slug)
		h.coordinator.OnMarkDone(ctx, f.key(), 1)

		time.Sleep(time.Duration(30+i) * time.Millisecond)
		h.coordinator.OnMarkDone(ctx, f.key(), 2)

		h.transport.waitClosed(t)
		saved := sink.all()
		require.Len(t, saved, 2)
		require.NotEqual(t, saved[0].StudentID, saved[1].StudentID)
		require.Equal(t, saved[0].SubmittedAt, saved[1].SubmittedAt)
	}
}

func TestCoordinator_JournalRestoreRecordAndClear(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockAnswerJournal(ctrl)
	h := newHarness(t, withJournal(journal))
	ctx := context.Background()
	f := newExamFixture(3, time.Now().Add(time.Hour))
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 4).Return(f.window, nil)
	h.expectGrading(f)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).Return(nil)

	// Given answers journaled before a restart
	journal.EXPECT().Enroll(gomock.Any(), f.key(), 4).Return(nil)
	journal.EXPECT().Load(gomock.Any(), f.key(), 4).Return([]model.Answer{
		{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("C")},
		{QuestionID: uuid.New(), SelectedChoiceID: strPtr("A")},
	}, nil)

	reply, err := h.coordinator.OnJoin(ctx, "conn-1", 4, f.slug)
	req.NoError(err)
	req.Equal("C", *reply.Answers[0].SelectedChoiceID)

	// Only applied answers are journaled.
	journal.EXPECT().Record(gomock.Any(), f.key(), 4, []model.Answer{
		{QuestionID: f.questions[1].ID, SelectedChoiceID: strPtr("B")},
	}).Return(nil)
	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 4, []model.Answer{
		{QuestionID: f.questions[1].ID, SelectedChoiceID: strPtr("B")},
		{QuestionID: f.questions[2].ID, SelectedChoiceID: strPtr("nope")},
	}))

	journal.EXPECT().Clear(gomock.Any(), f.key(), 4).Return(nil)
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 4))
}

func TestCoordinator_JournalFailuresDoNotBlock(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockAnswerJournal(ctrl)
	h := newHarness(t, withJournal(journal))
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 4).Return(f.window, nil)
	journal.EXPECT().Enroll(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	journal.EXPECT().Load(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	journal.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	reply, err := h.coordinator.OnJoin(ctx, "conn-1", 4, f.slug)
	req.NoError(err)
	req.Nil(reply.Answers[0].SelectedChoiceID)
	req.True(h.coordinator.OnSyncAnswers(ctx, f.key(), 4, []model.Answer{
		{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("A")},
	}))
}

// A student arriving while an early-finished room is being closed ends up
// in a fresh room that the old room's close does not touch.
func TestCoordinator_LateJoinDuringFinalizationGetsFreshRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	f := newExamFixture(1, time.Now().Add(time.Hour))
	sink := &completionSink{}
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, gomock.Any()).Return(f.window, nil).Times(4)
	h.expectGrading(f)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save).Times(2)

	_, err := h.coordinator.OnJoin(ctx, "conn-a", 1, f.slug)
	req.NoError(err)
	_, err = h.coordinator.OnJoin(ctx, "conn-b", 2, f.slug)
	req.NoError(err)
	oldGroup := h.group(t, f)

	type joined struct {
		reply *session.JoinReply
		err   error
	}
	late := make(chan joined, 1)
	h.transport.beforeClose = func(string) {
		go func() {
			reply, err := h.coordinator.OnJoin(ctx, "conn-late", 3, f.slug)
			late <- joined{reply, err}
		}()
		// The late join met the finalizing room and backed out of its group.
		select {
		case connID := <-h.transport.unsubscribed:
			req.Equal("conn-late", connID)
		case <-time.After(5 * time.Second):
			t.Error("late join did not reach the finalizing room")
		}
	}

	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 1))
	req.True(h.coordinator.OnMarkDone(ctx, f.key(), 2))
	req.Equal(oldGroup, h.transport.waitClosed(t))

	var got joined
	select {
	case got = <-late:
	case <-time.After(5 * time.Second):
		t.Fatal("late join did not return")
	}
	req.NoError(got.err)
	req.NotNil(got.reply)
	req.Equal(f.key().String(), got.reply.RoomKey)
	req.False(got.reply.Done)
	req.Len(sink.all(), 2)

	newGroup := h.group(t, f)
	req.NotEqual(oldGroup, newGroup)
	req.Equal(1, h.transport.subscribers(newGroup))
	req.Eventually(func() bool {
		for _, e := range h.transport.eventsOf(newGroup) {
			if e.event == session.EventTick {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	for _, e := range h.transport.eventsOf(newGroup) {
		req.NotEqual(session.EventClosed, e.event)
	}
}

type cachingGrader struct {
	*mocks.MockGrader
	cache *mocks.MockKeyCache
}

func (g cachingGrader) Forget(examID uuid.UUID) { g.cache.Forget(examID) }

func TestCoordinator_ForgetsAnswerKeyAfterLastRoomOfExam(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	grader := mocks.NewMockGrader(ctrl)
	cache := mocks.NewMockKeyCache(ctrl)
	h := newHarness(t, withGrader(cachingGrader{MockGrader: grader, cache: cache}))
	h.grader = grader
	ctx := context.Background()

	// Given two schedules of one exam running at once
	first := newExamFixture(1, time.Now().Add(time.Hour))
	second := first
	w := *first.window
	w.ScheduleID = uuid.New()
	second.slug = "math-midterm-b"
	second.window = &w
	h.eligibility.EXPECT().IsOpen(gomock.Any(), first.slug, 1).Return(first.window, nil)
	h.eligibility.EXPECT().IsOpen(gomock.Any(), second.slug, 2).Return(second.window, nil)
	h.expectGrading(first)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := h.coordinator.OnJoin(ctx, "conn-1", 1, first.slug)
	req.NoError(err)
	_, err = h.coordinator.OnJoin(ctx, "conn-2", 2, second.slug)
	req.NoError(err)

	// When the first room closes the key is still needed
	req.True(h.coordinator.OnMarkDone(ctx, first.key(), 1))

	// Then it is dropped only with the last room of the exam
	cache.EXPECT().Forget(first.window.ExamID).Times(1)
	req.True(h.coordinator.OnMarkDone(ctx, second.key(), 2))
}

func TestCoordinator_RecoverFinalizesJournaledRoomAfterDeadline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockAnswerJournal(ctrl)
	h := newHarness(t, withJournal(journal))
	ctx := context.Background()
	f := newExamFixture(2, time.Now().Add(-time.Minute))
	key := f.key()
	sink := &completionSink{}
	h.expectGrading(f)

	// Given a journal left by a process that stopped mid schedule
	journal.EXPECT().Rooms(gomock.Any()).Return([]session.RoomKey{key}, nil)
	journal.EXPECT().Students(gomock.Any(), key).Return([]int{1, 2, 3}, nil)
	h.eligibility.EXPECT().Resume(gomock.Any(), key, 1).Return(f.window, nil)
	h.eligibility.EXPECT().Resume(gomock.Any(), key, 2).Return(&session.Window{AlreadyCompleted: true}, nil)
	h.eligibility.EXPECT().Resume(gomock.Any(), key, 3).Return(nil, nil)
	journal.EXPECT().Clear(gomock.Any(), key, 2).Return(nil)
	journal.EXPECT().Clear(gomock.Any(), key, 3).Return(nil)
	journal.EXPECT().Load(gomock.Any(), key, 1).Return([]model.Answer{
		{QuestionID: f.questions[1].ID, SelectedChoiceID: strPtr("A")},
	}, nil)
	h.store.EXPECT().SaveCompletion(gomock.Any(), gomock.Any()).DoAndReturn(sink.save)
	journal.EXPECT().Clear(gomock.Any(), key, 1).Return(nil)

	// When the room is recovered and nobody reconnects
	n, err := h.coordinator.Recover(ctx)
	req.NoError(err)
	req.Equal(1, n)
	h.transport.waitClosed(t)

	// Then the straggler is completed with the journaled answers
	saved := sink.all()
	req.Len(saved, 1)
	req.Equal(1, saved[0].StudentID)
	req.Equal(model.CompletionReasonExpired, saved[0].Reason)
	req.Equal(1, saved[0].CorrectCount)
	req.Equal(2, saved[0].QuestionCount)
	req.Zero(h.coordinator.Registry().Len())
}

func TestCoordinator_RecoverKeepsOfflineMembersUntilDeadline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockAnswerJournal(ctrl)
	h := newHarness(t, withJournal(journal))
	ctx := context.Background()
	f := newExamFixture(2, time.Now().Add(time.Hour))
	key := f.key()

	journal.EXPECT().Rooms(gomock.Any()).Return([]session.RoomKey{key}, nil)
	journal.EXPECT().Students(gomock.Any(), key).Return([]int{1, 2}, nil)
	h.eligibility.EXPECT().Resume(gomock.Any(), key, gomock.Any()).Return(f.window, nil).Times(2)
	journal.EXPECT().Load(gomock.Any(), key, 1).Return([]model.Answer{
		{QuestionID: f.questions[0].ID, SelectedChoiceID: strPtr("B")},
	}, nil)
	journal.EXPECT().Load(gomock.Any(), key, 2).Return(nil, nil)

	n, err := h.coordinator.Recover(ctx)
	req.NoError(err)
	req.Equal(1, n)

	rooms := h.coordinator.LiveRooms()
	req.Len(rooms, 1)
	req.Equal(2, rooms[0].Members)
	req.Zero(rooms[0].Connected)

	// A recovered student reconnects to its own slots.
	h.eligibility.EXPECT().IsOpen(gomock.Any(), f.slug, 1).Return(f.window, nil)
	reply, err := h.coordinator.OnJoin(ctx, "conn-1", 1, f.slug)
	req.NoError(err)
	req.Equal("B", *reply.Answers[0].SelectedChoiceID)
	req.Equal(1, h.coordinator.LiveRooms()[0].Connected)

	// Running again leaves the live room alone.
	journal.EXPECT().Rooms(gomock.Any()).Return([]session.RoomKey{key}, nil)
	n, err = h.coordinator.Recover(ctx)
	req.NoError(err)
	req.Zero(n)
}

func TestCoordinator_RecoverFailures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockAnswerJournal(ctrl)
	h := newHarness(t, withJournal(journal))
	ctx := context.Background()
	key := session.RoomKey{ExamID: uuid.New(), ScheduleID: uuid.New()}

	journal.EXPECT().Rooms(gomock.Any()).Return(nil, errors.New("redis down"))
	_, err := h.coordinator.Recover(ctx)
	req.Error(err)

	// A room whose students cannot be resumed is skipped and kept journaled.
	journal.EXPECT().Rooms(gomock.Any()).Return([]session.RoomKey{key}, nil)
	journal.EXPECT().Students(gomock.Any(), key).Return([]int{1}, nil)
	h.eligibility.EXPECT().Resume(gomock.Any(), key, 1).Return(nil, errors.New("db down"))
	n, err := h.coordinator.Recover(ctx)
	req.NoError(err)
	req.Zero(n)
	req.Zero(h.coordinator.Registry().Len())
}
