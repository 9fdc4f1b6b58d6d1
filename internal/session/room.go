package session

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stemsi/exstem-live/internal/model"
)

// State is the lifecycle stage of a room. It only moves forward.
type State int32

const (
	StateOpen State = iota
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalizing:
		return "FINALIZING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type slot struct {
	questionID uuid.UUID
	choices    map[string]struct{}
	selected   *string
}

func (s *slot) accepts(choiceID string) bool {
	if len(s.choices) == 0 {
		return true
	}
	_, ok := s.choices[choiceID]
	return ok
}

type member struct {
	studentID int
	slots     []slot
	index     map[uuid.UUID]int
	connID    string
	connected bool
	done      bool
}

func newMember(studentID int, connID string, questions []QuestionRef) *member {
	m := &member{
		studentID: studentID,
		slots:     make([]slot, 0, len(questions)),
		index:     make(map[uuid.UUID]int, len(questions)),
		connID:    connID,
		connected: true,
	}
	for _, q := range questions {
		if _, dup := m.index[q.ID]; dup {
			continue
		}
		var choices map[string]struct{}
		if len(q.Choices) > 0 {
			choices = make(map[string]struct{}, len(q.Choices))
			for _, c := range q.Choices {
				choices[c] = struct{}{}
			}
		}
		m.index[q.ID] = len(m.slots)
		m.slots = append(m.slots, slot{questionID: q.ID, choices: choices})
	}
	return m
}

func (m *member) answers() []model.Answer {
	out := make([]model.Answer, len(m.slots))
	for i, s := range m.slots {
		out[i] = model.Answer{QuestionID: s.questionID, SelectedChoiceID: cloneChoice(s.selected)}
	}
	return out
}

func (m *member) apply(answers []model.Answer) []model.Answer {
	var applied []model.Answer
	for _, a := range answers {
		i, ok := m.index[a.QuestionID]
		if !ok {
			continue
		}
		s := &m.slots[i]
		choice := a.SelectedChoiceID
		if choice != nil && *choice == "" {
			choice = nil
		}
		if choice != nil && !s.accepts(*choice) {
			continue
		}
		s.selected = cloneChoice(choice)
		applied = append(applied, model.Answer{QuestionID: a.QuestionID, SelectedChoiceID: cloneChoice(choice)})
	}
	return applied
}

func cloneChoice(c *string) *string {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// MemberState is a copy of one member taken under the room lock.
type MemberState struct {
	StudentID int            `json:"studentId"`
	Answers   []model.Answer `json:"answers"`
	Connected bool           `json:"connected"`
	Done      bool           `json:"done"`
}

// JoinResult describes the member after a successful Join.
type JoinResult struct {
	IsNewMember bool
	Answers     []model.Answer
	Done        bool
}

// RoomInfo is the monitoring view of a room.
type RoomInfo struct {
	RoomKey          string    `json:"roomKey"`
	State            State     `json:"state"`
	Deadline         time.Time `json:"deadline"`
	SecondsRemaining int       `json:"secondsRemaining"`
	Members          int       `json:"members"`
	Connected        int       `json:"connected"`
	Done             int       `json:"done"`
}

// Room holds the in-memory state of one exam sitting. All member state is
// guarded by mu; nothing in this file performs I/O.
type Room struct {
	key      RoomKey
	group    string
	deadline time.Time
	now      func() time.Time

	mu      sync.Mutex
	state   State
	members map[int]*member

	// set by the registry before the room is published
	countdown *Countdown
	closed    chan struct{}
}

func newRoom(key RoomKey, deadline time.Time, now func() time.Time) *Room {
	return &Room{
		key:      key,
		group:    key.String(),
		deadline: deadline,
		now:      now,
		state:    StateOpen,
		members:  make(map[int]*member),
		closed:   make(chan struct{}),
	}
}

func (r *Room) Key() RoomKey { return r.key }

// Group names the broadcast group of this room instance. A room created
// later under the same key gets a different group.
func (r *Room) Group() string { return r.group }

func (r *Room) Deadline() time.Time { return r.deadline }

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Join adds a student with blank slots, one per question, or reconnects an
// existing member. A reconnecting member keeps its answers and the passed
// questions are ignored. New members are refused once the deadline passed.
func (r *Room) Join(studentID int, connID string, questions []QuestionRef) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return JoinResult{}, ErrRoomUnavailable
	}

	if m, ok := r.members[studentID]; ok {
		m.connID = connID
		m.connected = true
		return JoinResult{Answers: m.answers(), Done: m.done}, nil
	}

	if !r.now().Before(r.deadline) {
		return JoinResult{}, ErrRoomUnavailable
	}

	m := newMember(studentID, connID, questions)
	r.members[studentID] = m
	return JoinResult{IsNewMember: true, Answers: m.answers()}, nil
}

// SyncAnswers applies a partial update to a member's slots and returns the
// entries that were applied. Unknown question ids and choice ids not
// offered for the question are skipped. Missing and done members are a
// no-op. An empty choice id clears the slot like a nil one.
func (r *Room) SyncAnswers(studentID int, answers []model.Answer) ([]model.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return nil, ErrRoomUnavailable
	}

	m, ok := r.members[studentID]
	if !ok || m.done {
		return nil, nil
	}

	return m.apply(answers), nil
}

// RestoreMember adds a member recovered from the answer journal. The member
// starts offline with its journaled answers applied. Existing members and
// rooms that left the Open state are left alone.
func (r *Room) RestoreMember(studentID int, questions []QuestionRef, answers []model.Answer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return false
	}
	if _, ok := r.members[studentID]; ok {
		return false
	}

	m := newMember(studentID, "", questions)
	m.connected = false
	m.apply(answers)
	r.members[studentID] = m
	return true
}

// MarkDone flags a member as finished. last is true only for the call that
// finished the final not-done member, and that call has already moved the
// room to StateFinalizing.
func (r *Room) MarkDone(studentID int) (last bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return false, ErrRoomUnavailable
	}

	m, ok := r.members[studentID]
	if !ok {
		return false, ErrNotMember
	}
	if m.done {
		return false, nil
	}
	m.done = true

	for _, other := range r.members {
		if !other.done {
			return false, nil
		}
	}
	r.state = StateFinalizing
	return true, nil
}

// Disconnect marks the member offline if connID is still its connection.
// A stale connection closing after a reconnect leaves the member online.
func (r *Room) Disconnect(studentID int, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[studentID]
	if !ok || m.connID != connID {
		return false
	}
	m.connected = false
	return true
}

// Answers returns a copy of one member's slots.
func (r *Room) Answers(studentID int) ([]model.Answer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[studentID]
	if !ok {
		return nil, false
	}
	return m.answers(), true
}

// SecondsRemaining is the whole seconds left until the deadline, rounded
// up and never negative.
func (r *Room) SecondsRemaining(now time.Time) int {
	left := r.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Snapshot copies every member, ordered by student id.
func (r *Room) Snapshot() []MemberState {
	r.mu.Lock()
	out := make([]MemberState, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, MemberState{
			StudentID: m.studentID,
			Answers:   m.answers(),
			Connected: m.connected,
			Done:      m.done,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// Info summarizes the room for monitoring.
func (r *Room) Info() RoomInfo {
	members := r.Snapshot()
	return RoomInfo{
		RoomKey:          r.key.String(),
		State:            r.State(),
		Deadline:         r.deadline,
		SecondsRemaining: r.SecondsRemaining(r.now()),
		Members:          len(members),
		Connected:        lo.CountBy(members, func(m MemberState) bool { return m.Connected }),
		Done:             lo.CountBy(members, func(m MemberState) bool { return m.Done }),
	}
}

// beginFinalizing moves Open to Finalizing. Only one caller ever gets true.
func (r *Room) beginFinalizing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return false
	}
	r.state = StateFinalizing
	return true
}

// Closed is closed once the room is finalized and gone from the registry.
func (r *Room) Closed() <-chan struct{} { return r.closed }

func (r *Room) markClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return
	}
	r.state = StateClosed
	close(r.closed)
}

func (r *Room) stopCountdown() {
	if r.countdown != nil {
		r.countdown.Stop()
	}
}
