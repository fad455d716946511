package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/proto"
	"github.com/vovakirdan/privroom/internal/service/rooms"
)

// WSHandler upgrades authenticated requests and bridges them to a room subscription.
type WSHandler struct {
	rooms   *rooms.Service
	limiter *limiterPool
	origins []string
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. origins lists accepted
// cross-origin host patterns; same-origin requests are always accepted.
func NewWSHandler(svc *rooms.Service, limiter *limiterPool, origins []string, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{rooms: svc, limiter: limiter, origins: origins, log: logger}
}

// Handle serves GET /api/rooms/:id/ws. The first frame is the room snapshot,
// followed by every event of the room in order.
func (h *WSHandler) Handle(c *gin.Context) {
	sender, room := sessionFrom(c)

	conn, err := acceptWebSocket(c, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Events wait until the snapshot frame is out.
	ready := make(chan struct{})
	sub, snapshot, err := h.rooms.Subscribe(ctx, room.ID, func(ev *core.Event) {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		if err := wsjson.Write(ctx, conn, outboundFromEvent(ev)); err != nil {
			h.log.Debug().Err(err).Str("room_id", room.ID).Str("sender", sender).Msg("write ws event")
			cancel()
		}
	})
	if err != nil {
		_ = wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoError(err)})
		conn.Close(websocket.StatusPolicyViolation, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	if err := wsjson.Write(ctx, conn, snapshotOutbound(room, snapshot)); err != nil {
		h.log.Warn().Err(err).Str("room_id", room.ID).Msg("write ws snapshot")
		return
	}
	close(ready)

	h.log.Info().Str("room_id", room.ID).Str("sender", sender).Msg("ws subscriber attached")

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.readLoop(ctx, conn, room.ID, sender)
	}()

	select {
	case err = <-errCh:
		cancel()
		h.closeAfterRead(conn, err)
	case <-sub.Done():
		h.closeAfterSubscription(conn, sub.Err(), room.ID)
		cancel()
		<-errCh
	}
}

func (h *WSHandler) closeAfterSubscription(conn *websocket.Conn, subErr error, roomID string) {
	switch {
	case errors.Is(subErr, core.ErrRoomClosed):
		conn.Close(websocket.StatusNormalClosure, "room closed")
	case errors.Is(subErr, core.ErrSlowConsumer):
		h.log.Warn().Str("room_id", roomID).Msg("ws subscriber too slow, closing")
		conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
	case errors.Is(subErr, core.ErrHubClosed):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

func (h *WSHandler) closeAfterRead(conn *websocket.Conn, err error) {
	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, roomID, sender string) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			protoErr = &proto.Error{Code: codeInvalidMessage, Msg: "malformed payload"}
		}
		if protoErr == nil {
			protoErr = h.execute(ctx, cmd, roomID, sender)
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) execute(ctx context.Context, cmd *wsCommand, roomID, sender string) *proto.Error {
	switch cmd.kind {
	case wsCommandSend:
		if !h.limiter.allow(roomID + "/" + sender) {
			return &proto.Error{Code: codeRateLimited, Msg: "too many messages"}
		}
		if _, err := h.rooms.Append(ctx, roomID, cmd.text, sender); err != nil {
			if core.ErrorCode(err) == "" {
				h.log.Error().Err(err).Str("room_id", roomID).Msg("ws append failed")
			}
			return protoError(err)
		}
	case wsCommandTyping:
		if err := h.rooms.SetTyping(ctx, roomID, sender, cmd.typing); err != nil {
			return protoError(err)
		}
	}
	return nil
}
