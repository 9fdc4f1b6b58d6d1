package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
)

// Encode builds an outbound frame.
func Encode(event string, ack *int64, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Ack: ack, Data: data})
}

// ErrorFrame builds an error frame. It cannot fail.
func ErrorFrame(ack *int64, code, message string, fields map[string]string) []byte {
	raw, err := Encode(string(EventError), ack, ErrorResponse{Code: code, Message: message, Fields: fields})
	if err != nil {
		return []byte(`{"event":"error","data":{"code":"INTERNAL_ERROR","message":"internal error"}}`)
	}
	return raw
}

// ReadEnvelope reads the next text frame. The read deadline is managed
// by the pong handler installed with PrepareRead.
func ReadEnvelope(conn *websocket.Conn) (*Envelope, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &env, nil
}

// DecodeError is returned by ReadEnvelope for frames that are not JSON.
// The connection is still usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode frame: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// PrepareRead sets the read limit and keeps extending the read deadline
// while pongs arrive.
func PrepareRead(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
}

// WriteRaw writes one text frame with a write deadline.
func WriteRaw(conn *websocket.Conn, msg []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// WritePing writes a ping control frame with a write deadline.
func WritePing(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}
