package session

import "errors"

var (
	// ErrRoomUnavailable is returned by room operations once the room has
	// left the Open state, and by Join for new members after the deadline.
	ErrRoomUnavailable = errors.New("room is not accepting changes")
	ErrNotMember       = errors.New("student is not a member of the room")
)
