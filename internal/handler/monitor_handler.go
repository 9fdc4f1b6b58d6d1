package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/session"
)

const refreshInterval = 5 * time.Second

// LiveRoomLister exposes the rooms currently held in memory.
type LiveRoomLister interface {
	LiveRooms() []session.RoomInfo
}

// AnswerKeyRefresher drops cached answer keys.
type AnswerKeyRefresher interface {
	Refresh(ctx context.Context, examID uuid.UUID) error
}

type MonitorHandler struct {
	rooms    LiveRoomLister
	keys     AnswerKeyRefresher
	interval time.Duration
	log      zerolog.Logger
}

func NewMonitorHandler(rooms LiveRoomLister, keys AnswerKeyRefresher, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rooms:    rooms,
		keys:     keys,
		interval: refreshInterval,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListLiveRooms godoc
// GET /api/v1/admin/live/rooms
func (h *MonitorHandler) ListLiveRooms(c *gin.Context) {
	response.Success(c, http.StatusOK, h.rooms.LiveRooms())
}

// StreamLiveRooms godoc
// GET /api/v1/admin/live/rooms/stream
// Pushes a "rooms" SSE event on connect and then every refresh interval.
func (h *MonitorHandler) StreamLiveRooms(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to live room stream")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeRooms(c)

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live room stream")
			return
		case <-ticker.C:
			h.writeRooms(c)
		}
	}
}

func (h *MonitorHandler) writeRooms(c *gin.Context) {
	c.SSEvent("rooms", h.rooms.LiveRooms())
	c.Writer.Flush()
}

// RefreshAnswerKey godoc
// POST /api/v1/admin/live/exams/:id/refresh-cache
func (h *MonitorHandler) RefreshAnswerKey(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.keys.Refresh(c.Request.Context(), examID); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Answer key refresh failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "refreshed": true})
}
