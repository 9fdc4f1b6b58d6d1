package session

// Events pushed to every connection of a room.
const (
	EventTick    = "exam-tick"
	EventExpired = "exam-take-expired"
	EventClosed  = "exam-closed"
)

// ClosedPayload is the body of EventClosed.
type ClosedPayload struct {
	RoomKey string `json:"roomKey"`
}
