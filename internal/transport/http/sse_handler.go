package http

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/proto"
	"github.com/vovakirdan/privroom/internal/service/rooms"
)

const sseBuffer = 16

// SSEHandler streams room events as server-sent events for clients that
// cannot hold a WebSocket.
type SSEHandler struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewSSEHandler builds a new server-sent events handler.
func NewSSEHandler(svc *rooms.Service, logger *zerolog.Logger) *SSEHandler {
	return &SSEHandler{rooms: svc, log: logger}
}

// Handle serves GET /api/rooms/:id/events. Event names match the WebSocket
// protocol: snapshot first, then message, cleared, typing and finally closed.
func (h *SSEHandler) Handle(c *gin.Context) {
	sender, room := sessionFrom(c)
	ctx := c.Request.Context()

	events := make(chan *core.Event, sseBuffer)
	sub, snapshot, err := h.rooms.Subscribe(ctx, room.ID, func(ev *core.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		abortWithError(c, h.log, err)
		return
	}
	defer sub.Unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	h.log.Info().Str("room_id", room.ID).Str("sender", sender).Msg("sse subscriber attached")

	snap := snapshotOutbound(room, snapshot)
	c.SSEvent(snap.Event, snap.Data)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev := <-events:
			out := outboundFromEvent(ev)
			c.SSEvent(out.Event, out.Data)
			return ev.Kind != core.EventRoomClosed
		case <-sub.Done():
			// The handler returns only after its event is buffered.
			if len(events) > 0 {
				return true
			}
			if subErr := sub.Err(); subErr != nil && !errors.Is(subErr, core.ErrRoomClosed) {
				c.SSEvent(proto.OutboundTypeError, subscriptionError(subErr))
			}
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func subscriptionError(err error) *proto.Error {
	switch {
	case errors.Is(err, core.ErrSlowConsumer):
		return &proto.Error{Code: "slow_consumer", Msg: err.Error()}
	case errors.Is(err, core.ErrHubClosed):
		return &proto.Error{Code: "shutting_down", Msg: err.Error()}
	default:
		return protoError(err)
	}
}
