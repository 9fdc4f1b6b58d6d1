package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegistryOptions tunes the countdowns started by a Registry.
type RegistryOptions struct {
	TickInterval time.Duration
	Grace        time.Duration
	Now          func() time.Time
}

// Registry owns every live room, keyed by RoomKey.
type Registry struct {
	listener CountdownListener
	interval time.Duration
	grace    time.Duration
	now      func() time.Time

	mu    sync.Mutex
	rooms map[RoomKey]*Room
	seq   uint64
}

// NewRegistry creates a new Registry.
func NewRegistry(listener CountdownListener, opts RegistryOptions) *Registry {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		listener: listener,
		interval: opts.TickInterval,
		grace:    opts.Grace,
		now:      opts.Now,
		rooms:    make(map[RoomKey]*Room),
	}
}

// GetOrCreate returns the room for key, creating it with deadline and
// starting its countdown if absent. Concurrent callers for the same key all
// get the same room and the first caller's deadline.
func (r *Registry) GetOrCreate(key RoomKey, deadline time.Time) *Room {
	return r.getOrCreate(key, deadline, nil)
}

// getOrCreate is GetOrCreate with a seed step that runs on the room under
// the registry lock, before its countdown starts. seed must not block.
func (r *Registry) getOrCreate(key RoomKey, deadline time.Time, seed func(*Room)) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[key]; ok {
		if seed != nil {
			seed(room)
		}
		return room
	}

	r.seq++
	room := newRoom(key, deadline, r.now)
	room.group = fmt.Sprintf("%s/%d", key, r.seq)
	if seed != nil {
		seed(room)
	}
	room.countdown = newCountdown(room, r.interval, r.grace, r.listener, r.now)
	r.rooms[key] = room
	room.countdown.start()
	return room
}

func (r *Registry) Get(key RoomKey) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[key]
	return room, ok
}

// Remove drops room from the registry if it is still the room stored under
// its key. Removing twice is a no-op.
func (r *Registry) Remove(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room.key] == room {
		delete(r.rooms, room.key)
	}
}

// Rooms returns the live rooms at the time of the call.
func (r *Registry) Rooms() []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// HasExam reports whether any live room belongs to examID.
func (r *Registry) HasExam(examID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.rooms {
		if key.ExamID == examID {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
