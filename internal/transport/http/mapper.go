package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/proto"
	"github.com/vovakirdan/privroom/internal/store"
)

const (
	codeRateLimited    = "rate_limited"
	codeForbidden      = "forbidden"
	codeInternal       = "internal"
	codeInvalidMessage = "invalid_message"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case core.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case core.ErrCodeConflict:
		return http.StatusConflict
	case core.ErrCodeRoomClosed:
		return http.StatusGone
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as a JSON error body. Errors without a domain code
// are logged and reported as internal.
func abortWithError(c *gin.Context, logger *zerolog.Logger, err error) {
	var ce *core.CoreError
	if !errors.As(err, &ce) {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: codeInternal})
		return
	}
	c.AbortWithStatusJSON(statusForCode(ce.Code), ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func protoError(err error) *proto.Error {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return &proto.Error{Code: ce.Code, Msg: ce.Message}
	}
	return &proto.Error{Code: codeInternal, Msg: "internal server error"}
}

type wsCommandKind int

const (
	wsCommandSend wsCommandKind = iota
	wsCommandTyping
)

type wsCommand struct {
	kind   wsCommandKind
	text   string
	typing bool
}

func inboundToCommand(inbound proto.Inbound) (*wsCommand, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		return &wsCommand{kind: wsCommandSend, text: msg.Text}, nil, nil
	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		return &wsCommand{kind: wsCommandTyping, typing: typing.Typing}, nil, nil
	default:
		return nil, &proto.Error{Code: codeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func messageFromStore(msg *store.Message) proto.Message {
	return proto.Message{
		ID:       msg.ID,
		Room:     msg.RoomID,
		Sequence: msg.Sequence,
		Sender:   msg.Sender,
		Text:     msg.Text,
		TS:       msg.CreatedAt.UnixMilli(),
	}
}

func messagesFromStore(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageFromStore(msg))
	}
	return out
}

func snapshotOutbound(room *store.Room, msgs []*store.Message) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventSnapshot,
		Data: proto.EventSnapshotData{
			Protocol:  proto.ProtocolVersion,
			Room:      room.ID,
			ExpiresAt: room.ExpiresAt.UnixMilli(),
			Messages:  messagesFromStore(msgs),
		},
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageAppended:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  messageFromStore(event.Message),
		}
	case core.EventMessagesCleared:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCleared,
			Data:  proto.EventClearedData{Room: event.Room},
		}
	case core.EventRoomClosed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventClosed,
			Data:  proto.EventClosedData{Room: event.Room, Reason: event.Reason},
		}
	case core.EventTypingChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTyping,
			Data:  proto.EventTypingData{Room: event.Room, Sender: event.Sender, Typing: event.Typing},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	}
}
