package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stemsi/exstem-live/internal/validator"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

const eventTimeout = 10 * time.Second

// SessionProtocol is the live session API driven by websocket events.
type SessionProtocol interface {
	OnJoin(ctx context.Context, connID string, studentID int, examSlug string) (*session.JoinReply, error)
	OnSyncAnswers(ctx context.Context, key session.RoomKey, studentID int, answers []model.Answer) bool
	OnMarkDone(ctx context.Context, key session.RoomKey, studentID int) bool
	OnDisconnect(connID string)
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the live exam websocket.
type WSHandler struct {
	session  SessionProtocol
	hub      *ws.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionProtocol, hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		session:  sessions,
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// LiveExamStream godoc
// WS /ws/v1/student/exams/live
// One connection may take part in several rooms; every frame names its room.
func (h *WSHandler) LiveExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	client := h.hub.Register(connID, claims.UserID)

	wsLog := h.log.With().
		Str("conn_id", connID).
		Int("student_id", claims.UserID).
		Logger()
	wsLog.Info().Msg("Student connected")

	go h.writePump(conn, client, wsLog)
	h.readPump(conn, client, wsLog)

	h.session.OnDisconnect(connID)
	h.hub.Unregister(connID)
	wsLog.Info().Msg("Student disconnected")
}

// readPump handles the frames of one connection in arrival order.
func (h *WSHandler) readPump(conn *websocket.Conn, client *ws.Client, wsLog zerolog.Logger) {
	defer conn.Close()
	ws.PrepareRead(conn)

	for {
		env, err := ws.ReadEnvelope(conn)
		if err != nil {
			var decodeErr *ws.DecodeError
			if errors.As(err, &decodeErr) {
				h.fail(client, nil, response.ErrInvalidPayload, map[string]string{"detail": decodeErr.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		h.dispatch(client, env, wsLog)
	}
}

// writePump drains the client's outbox and keeps the connection alive.
func (h *WSHandler) writePump(conn *websocket.Conn, client *ws.Client, wsLog zerolog.Logger) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Outbox():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(ws.WriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteRaw(conn, msg); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(client *ws.Client, env *ws.Envelope, wsLog zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case ws.EventTake:
		h.handleTake(ctx, client, env, wsLog)
	case ws.EventSyncAnswers:
		h.handleSyncAnswers(ctx, client, env)
	case ws.EventTakeDone:
		h.handleTakeDone(ctx, client, env)
	case ws.EventPing:
		h.reply(client, ws.EventPong, env.Ack, nil)
	default:
		wsLog.Warn().Str("event", string(env.Event)).Msg("Unknown event")
		h.fail(client, env.Ack, response.ErrUnknownEvent, map[string]string{"event": string(env.Event)})
	}
}

// handleTake replies with the join state, or null when the student cannot
// take the exam right now.
func (h *WSHandler) handleTake(ctx context.Context, client *ws.Client, env *ws.Envelope, wsLog zerolog.Logger) {
	var req ws.TakeRequest
	if !h.decode(client, env, &req) {
		return
	}

	// SECURITY: a connection only acts for the student its token names.
	if req.StudentID != client.StudentID {
		h.reply(client, env.Event, env.Ack, nil)
		return
	}

	reply, err := h.session.OnJoin(ctx, client.ID, req.StudentID, req.ExamSlug)
	if err != nil {
		wsLog.Error().Err(err).Str("exam_slug", req.ExamSlug).Msg("Join failed")
		h.fail(client, env.Ack, response.ErrServiceUnavailable, nil)
		return
	}
	h.reply(client, env.Event, env.Ack, reply)
}

func (h *WSHandler) handleSyncAnswers(ctx context.Context, client *ws.Client, env *ws.Envelope) {
	var req ws.SyncAnswersRequest
	if !h.decode(client, env, &req) {
		return
	}

	key, err := session.ParseRoomKey(req.RoomKey)
	if err != nil || req.StudentID != client.StudentID {
		h.reply(client, env.Event, env.Ack, false)
		return
	}

	h.reply(client, env.Event, env.Ack, h.session.OnSyncAnswers(ctx, key, req.StudentID, toAnswers(req.Answers)))
}

// toAnswers converts the payload entries, skipping those whose question id
// is not a UUID. Unknown but well-formed ids are left to the room.
func toAnswers(in []ws.AnswerPayload) []model.Answer {
	answers := make([]model.Answer, 0, len(in))
	for _, a := range in {
		questionID, err := uuid.Parse(a.QuestionID)
		if err != nil {
			continue
		}
		answers = append(answers, model.Answer{QuestionID: questionID, SelectedChoiceID: a.SelectedChoiceID})
	}
	return answers
}

func (h *WSHandler) handleTakeDone(ctx context.Context, client *ws.Client, env *ws.Envelope) {
	var req ws.TakeDoneRequest
	if !h.decode(client, env, &req) {
		return
	}

	key, err := session.ParseRoomKey(req.RoomKey)
	if err != nil || req.StudentID != client.StudentID {
		h.reply(client, env.Event, env.Ack, false)
		return
	}
	h.reply(client, env.Event, env.Ack, h.session.OnMarkDone(ctx, key, req.StudentID))
}

// decode unmarshals and validates the frame payload. On failure the client
// gets an error frame and false is returned.
func (h *WSHandler) decode(client *ws.Client, env *ws.Envelope, dst any) bool {
	data := env.Data
	if len(data) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		h.fail(client, env.Ack, response.ErrInvalidPayload, map[string]string{"detail": err.Error()})
		return false
	}
	if fields := validator.Validate(dst); fields != nil {
		h.fail(client, env.Ack, response.ErrValidation, fields)
		return false
	}
	return true
}

func (h *WSHandler) reply(client *ws.Client, event ws.Event, ack *int64, data any) {
	msg, err := ws.Encode(string(event), ack, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event)).Msg("Failed to encode reply")
		return
	}
	if !client.Push(msg) {
		h.log.Warn().Str("conn_id", client.ID).Str("event", string(event)).Msg("Send buffer full, reply dropped")
	}
}

func (h *WSHandler) fail(client *ws.Client, ack *int64, code response.ErrCode, fields map[string]string) {
	client.Push(ws.ErrorFrame(ack, string(code), response.GetMessage(code), fields))
}
