package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RoomKey identifies a live room: one exam sitting in one schedule.
type RoomKey struct {
	ExamID     uuid.UUID
	ScheduleID uuid.UUID
}

// String returns the wire form "<examID>:<scheduleID>".
func (k RoomKey) String() string {
	return k.ExamID.String() + ":" + k.ScheduleID.String()
}

// ParseRoomKey parses the wire form produced by RoomKey.String.
func ParseRoomKey(s string) (RoomKey, error) {
	examPart, schedulePart, ok := strings.Cut(s, ":")
	if !ok {
		return RoomKey{}, fmt.Errorf("parse room key %q: missing separator", s)
	}
	examID, err := uuid.Parse(examPart)
	if err != nil {
		return RoomKey{}, fmt.Errorf("parse room key exam id: %w", err)
	}
	scheduleID, err := uuid.Parse(schedulePart)
	if err != nil {
		return RoomKey{}, fmt.Errorf("parse room key schedule id: %w", err)
	}
	return RoomKey{ExamID: examID, ScheduleID: scheduleID}, nil
}
