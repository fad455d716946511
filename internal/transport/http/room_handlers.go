package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/service/rooms"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	rooms    *rooms.Service
	sessions *auth.Sessions
	limiter  *limiterPool
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *rooms.Service, sessions *auth.Sessions, limiter *limiterPool, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms:    svc,
		sessions: sessions,
		limiter:  limiter,
		log:      logger,
	}
}

// JoinRequest represents the join room request body.
type JoinRequest struct {
	Password string `json:"password"`
	Name     string `json:"name"`
}

// JoinResponse carries the session issued on join.
type JoinResponse struct {
	Room      string `json:"room"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
	Sender    string `json:"sender"`
	Token     string `json:"token"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// TypingRequest represents the typing indicator request body.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// StatusResponse is returned by operations without a payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// Join creates the room on first use or verifies its password, then issues
// a session bound to the room instance.
// POST /api/rooms/:id/join
func (h *RoomHandlers) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid join request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeInvalidInput})
		return
	}

	room, err := h.rooms.Join(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}

	sender := auth.ResolveSender(req.Name)
	token, err := h.sessions.Issue(room, sender)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("sender", sender).Msg("joined room")
	c.JSON(http.StatusOK, JoinResponse{
		Room:      room.ID,
		ExpiresAt: room.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt: room.CreatedAt.UTC().Format(time.RFC3339),
		Sender:    sender,
		Token:     token,
	})
}

// GetMessages returns the room log in append order.
// GET /api/rooms/:id/messages
func (h *RoomHandlers) GetMessages(c *gin.Context) {
	_, room := sessionFrom(c)

	msgs, err := h.rooms.Snapshot(c.Request.Context(), room.ID)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messagesFromStore(msgs))
}

// SendMessage appends a message as the session's sender.
// POST /api/rooms/:id/messages
func (h *RoomHandlers) SendMessage(c *gin.Context) {
	sender, room := sessionFrom(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeInvalidInput})
		return
	}

	if !h.limiter.allow(room.ID + "/" + sender) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many messages", Code: codeRateLimited})
		return
	}

	msg, err := h.rooms.Append(c.Request.Context(), room.ID, req.Text, sender)
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, messageFromStore(msg))
}

// ClearRoom empties the room log. Any participant may reset the room.
// DELETE /api/rooms/:id/messages
func (h *RoomHandlers) ClearRoom(c *gin.Context) {
	sender, room := sessionFrom(c)

	if err := h.rooms.ClearMessages(c.Request.Context(), room.ID); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	h.log.Info().Str("room_id", room.ID).Str("sender", sender).Msg("room log cleared")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// SetTyping updates the session's typing indicator.
// POST /api/rooms/:id/typing
func (h *RoomHandlers) SetTyping(c *gin.Context) {
	sender, room := sessionFrom(c)

	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeInvalidInput})
		return
	}

	if err := h.rooms.SetTyping(c.Request.Context(), room.ID, sender, req.Typing); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// DeleteRoom closes the room for everyone. Deleting a missing room succeeds.
// DELETE /api/rooms/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	if err := h.rooms.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}
