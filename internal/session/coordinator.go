package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
)

// Dependencies are the collaborators of a Coordinator. Journal is optional.
type Dependencies struct {
	Eligibility Eligibility
	Grader      Grader
	Store       CompletionStore
	Journal     AnswerJournal
	Transport   Transport
}

// Options tunes timing. Zero values take production defaults.
type Options struct {
	TickInterval    time.Duration
	Grace           time.Duration
	FinalizeTimeout time.Duration
	Now             func() time.Time
}

// JoinReply is sent back to a student that joined a room.
type JoinReply struct {
	RoomKey          string         `json:"roomKey"`
	Answers          []model.Answer `json:"answers"`
	SecondsRemaining int            `json:"secondsRemaining"`
	Done             bool           `json:"done"`
}

type binding struct {
	key       RoomKey
	studentID int
}

// Coordinator handles the session protocol: join, answer sync, finish and
// disconnect. It also receives the countdown events of every room.
type Coordinator struct {
	eligibility Eligibility
	journal     AnswerJournal
	transport   Transport
	registry    *Registry
	finalizer   *Finalizer
	now         func() time.Time
	log         zerolog.Logger

	mu    sync.Mutex
	conns map[string]map[binding]struct{}
}

// NewCoordinator creates a new Coordinator with its own Registry and
// Finalizer.
func NewCoordinator(deps Dependencies, opts Options, log zerolog.Logger) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		eligibility: deps.Eligibility,
		journal:     deps.Journal,
		transport:   deps.Transport,
		now:         opts.Now,
		log:         log.With().Str("component", "coordinator").Logger(),
		conns:       make(map[string]map[binding]struct{}),
	}
	c.registry = NewRegistry(c, RegistryOptions{
		TickInterval: opts.TickInterval,
		Grace:        opts.Grace,
		Now:          opts.Now,
	})
	c.finalizer = NewFinalizer(c.registry, deps.Grader, deps.Store, deps.Journal, deps.Transport, opts.FinalizeTimeout, opts.Now, log)
	return c
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// OnJoin puts the student into the live room of examSlug. It returns nil
// without error when the exam is not open for the student, the student
// already completed it, or the room stopped accepting joins.
//
// A join that meets a room in the middle of finalization waits for it to
// close and then tries once more, so a late student lands in the next room
// for the schedule, or is turned away if the finalization completed them.
func (c *Coordinator) OnJoin(ctx context.Context, connID string, studentID int, examSlug string) (*JoinReply, error) {
	for attempt := 0; ; attempt++ {
		reply, closing, err := c.join(ctx, connID, studentID, examSlug)
		if err != nil || closing == nil || attempt > 0 {
			return reply, err
		}
		select {
		case <-closing:
		case <-ctx.Done():
			return nil, nil
		}
	}
}

// join makes one join attempt. When the room was finalizing it returns the
// room's closed channel instead of a reply.
func (c *Coordinator) join(ctx context.Context, connID string, studentID int, examSlug string) (*JoinReply, <-chan struct{}, error) {
	window, err := c.eligibility.IsOpen(ctx, examSlug, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("check eligibility: %w", err)
	}
	if window == nil || !window.Open || window.AlreadyCompleted {
		return nil, nil, nil
	}

	key := RoomKey{ExamID: window.ExamID, ScheduleID: window.ScheduleID}
	room := c.registry.GetOrCreate(key, window.Deadline)

	// Subscribe before joining so a finalization racing this join still
	// reaches the connection with its closing event.
	c.transport.Subscribe(room.Group(), connID)

	result, err := room.Join(studentID, connID, window.Questions)
	if err != nil {
		c.transport.Unsubscribe(room.Group(), connID)
		if errors.Is(err, ErrRoomUnavailable) {
			if room.State() != StateOpen {
				return nil, room.Closed(), nil
			}
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("join room: %w", err)
	}
	c.bind(connID, key, studentID)

	if result.IsNewMember {
		c.enroll(ctx, key, studentID)
		result.Answers = c.restore(ctx, room, studentID, result.Answers)
	}

	c.log.Debug().
		Str("room_key", key.String()).
		Int("student_id", studentID).
		Bool("new_member", result.IsNewMember).
		Msg("Student joined room")

	return &JoinReply{
		RoomKey:          key.String(),
		Answers:          result.Answers,
		SecondsRemaining: room.SecondsRemaining(c.now()),
		Done:             result.Done,
	}, nil, nil
}

// enroll records the membership so Recover can rebuild the room even if
// the student never answers.
func (c *Coordinator) enroll(ctx context.Context, key RoomKey, studentID int) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Enroll(ctx, key, studentID); err != nil {
		c.log.Warn().Err(err).
			Str("room_key", key.String()).
			Int("student_id", studentID).
			Msg("Failed to enroll student in answer journal")
	}
}

// restore replays journaled answers into a member that is new to this
// process, e.g. after a restart in the middle of a schedule.
func (c *Coordinator) restore(ctx context.Context, room *Room, studentID int, current []model.Answer) []model.Answer {
	if c.journal == nil {
		return current
	}
	saved, err := c.journal.Load(ctx, room.Key(), studentID)
	if err != nil {
		c.log.Warn().Err(err).
			Str("room_key", room.Key().String()).
			Int("student_id", studentID).
			Msg("Failed to load answer journal")
		return current
	}
	if len(saved) == 0 {
		return current
	}
	if _, err := room.SyncAnswers(studentID, saved); err != nil {
		return current
	}
	if answers, ok := room.Answers(studentID); ok {
		return answers
	}
	return current
}

// OnSyncAnswers applies a partial answer update. It returns false when the
// room does not exist or no longer accepts changes.
func (c *Coordinator) OnSyncAnswers(ctx context.Context, key RoomKey, studentID int, answers []model.Answer) bool {
	room, ok := c.registry.Get(key)
	if !ok {
		return false
	}

	applied, err := room.SyncAnswers(studentID, answers)
	if err != nil {
		return false
	}

	if len(applied) > 0 && c.journal != nil {
		if err := c.journal.Record(ctx, key, studentID, applied); err != nil {
			c.log.Warn().Err(err).
				Str("room_key", key.String()).
				Int("student_id", studentID).
				Msg("Failed to journal answers")
		}
	}
	return true
}

// OnMarkDone marks the student finished. When it was the last member still
// working, the room is finalized before this returns.
func (c *Coordinator) OnMarkDone(ctx context.Context, key RoomKey, studentID int) bool {
	room, ok := c.registry.Get(key)
	if !ok {
		return false
	}

	last, err := room.MarkDone(studentID)
	if err != nil {
		return false
	}
	if last {
		c.finalizer.Finalize(room, model.CompletionReasonAllDone)
	}
	return true
}

// OnDisconnect marks every member joined through connID as offline. It
// never finalizes.
func (c *Coordinator) OnDisconnect(connID string) {
	c.mu.Lock()
	bindings := c.conns[connID]
	delete(c.conns, connID)
	c.mu.Unlock()

	for b := range bindings {
		if room, ok := c.registry.Get(b.key); ok {
			room.Disconnect(b.studentID, connID)
		}
	}
}

func (c *Coordinator) bind(connID string, key RoomKey, studentID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.conns[connID]
	if !ok {
		set = make(map[binding]struct{})
		c.conns[connID] = set
	}
	set[binding{key: key, studentID: studentID}] = struct{}{}
}

// Tick broadcasts the remaining seconds to the room.
func (c *Coordinator) Tick(room *Room, secondsRemaining int) {
	c.transport.Publish(room.Group(), EventTick, secondsRemaining)
}

// Expired tells the room that time is up.
func (c *Coordinator) Expired(room *Room) {
	if room.State() != StateOpen {
		return
	}
	c.transport.Publish(room.Group(), EventExpired, 0)
}

// Deadline finalizes the room unless a last "done" already did.
func (c *Coordinator) Deadline(room *Room) {
	if !room.beginFinalizing() {
		return
	}
	c.finalizer.Finalize(room, model.CompletionReasonExpired)
}

type recoveredMember struct {
	studentID int
	questions []QuestionRef
	answers   []model.Answer
}

// Recover recreates the rooms found in the answer journal, typically right
// after a restart and before connections are accepted. Every enrolled
// student without a completion becomes an offline member holding the
// journaled answers, so the room finalizes them at its deadline even if
// nobody reconnects. A room whose deadline already passed is finalized by
// its countdown at once. It returns the number of rooms recreated.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	keys, err := c.journal.Rooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list journaled rooms: %w", err)
	}

	recovered := 0
	for _, key := range keys {
		if _, ok := c.registry.Get(key); ok {
			continue
		}
		members, deadline, err := c.recoverMembers(ctx, key)
		if err != nil {
			c.log.Error().Err(err).Str("room_key", key.String()).Msg("Failed to recover room")
			continue
		}
		if len(members) == 0 {
			continue
		}

		c.registry.getOrCreate(key, deadline, func(room *Room) {
			for _, m := range members {
				room.RestoreMember(m.studentID, m.questions, m.answers)
			}
		})
		recovered++

		c.log.Info().
			Str("room_key", key.String()).
			Int("members", len(members)).
			Time("deadline", deadline).
			Msg("Room recovered from journal")
	}
	return recovered, nil
}

func (c *Coordinator) recoverMembers(ctx context.Context, key RoomKey) ([]recoveredMember, time.Time, error) {
	students, err := c.journal.Students(ctx, key)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list students: %w", err)
	}

	var (
		members  []recoveredMember
		deadline time.Time
	)
	for _, studentID := range students {
		window, err := c.eligibility.Resume(ctx, key, studentID)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("resume student %d: %w", studentID, err)
		}
		if window == nil || window.AlreadyCompleted {
			if err := c.journal.Clear(ctx, key, studentID); err != nil {
				c.log.Warn().Err(err).Str("room_key", key.String()).Int("student_id", studentID).Msg("Failed to clear answer journal")
			}
			continue
		}

		answers, err := c.journal.Load(ctx, key, studentID)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("load journal of student %d: %w", studentID, err)
		}
		deadline = window.Deadline
		members = append(members, recoveredMember{studentID: studentID, questions: window.Questions, answers: answers})
	}
	return members, deadline, nil
}

// LiveRooms returns a monitoring view of every room.
func (c *Coordinator) LiveRooms() []RoomInfo {
	rooms := c.registry.Rooms()
	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomKey < out[j].RoomKey })
	return out
}

// Shutdown stops every countdown without finalizing. Answers of the
// stopped rooms remain in the journal.
func (c *Coordinator) Shutdown() int {
	rooms := c.registry.Rooms()
	for _, room := range rooms {
		room.stopCountdown()
	}
	c.log.Info().Int("rooms", len(rooms)).Msg("Live rooms stopped")
	return len(rooms)
}
