package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/store"
)

// Append trims text and commits it to the room log under the next sequence.
// MessageAppended is published after the commit while the room lock is still
// held, so subscribers observe events in sequence order.
func (s *Service) Append(ctx context.Context, id, text, sender string) (*store.Message, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewError(core.ErrCodeInvalidInput, "message text is empty")
	}
	if len(text) > s.maxMessageBytes {
		return nil, core.NewError(core.ErrCodeInvalidInput, fmt.Sprintf("message text exceeds %d bytes", s.maxMessageBytes))
	}
	if sender == "" {
		return nil, core.NewError(core.ErrCodeInvalidInput, "sender is required")
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.activeRoomLocked(ctx, id); err != nil {
		return nil, err
	}

	msg := &store.Message{
		RoomID:    id,
		Sender:    sender,
		Text:      text,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.metrics.MessageAppended()
	s.hub.Publish(&core.Event{Kind: core.EventMessageAppended, Room: id, Message: msg})
	s.log.Debug().Str("room_id", id).Str("sender", sender).Int64("sequence", msg.Sequence).Msg("message appended")
	return msg, nil
}

// Snapshot returns the full log of an active room in append order.
func (s *Service) Snapshot(ctx context.Context, id string) ([]*store.Message, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.activeRoomLocked(ctx, id); err != nil {
		if errors.Is(err, core.ErrRoomClosed) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return s.listLocked(ctx, id)
}

// Subscribe registers handler for the room's events and returns the log as it
// was at registration. Every message is either in the snapshot or delivered
// to handler, never both.
func (s *Service) Subscribe(ctx context.Context, id string, handler core.Handler) (*core.Subscription, []*store.Message, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.activeRoomLocked(ctx, id); err != nil {
		return nil, nil, err
	}

	snapshot, err := s.listLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.hub.Subscribe(id, handler)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, snapshot, nil
}

func (s *Service) listLocked(ctx context.Context, id string) ([]*store.Message, error) {
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	return msgs, nil
}

// SetTyping forwards a typing signal of sender to the room's subscribers.
// The signal is recorded under the room lock so it cannot outlive a
// concurrent delete.
func (s *Service) SetTyping(ctx context.Context, id, sender string, typing bool) error {
	if err := ValidateRoomID(id); err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.activeRoomLocked(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrRoomClosed
		}
		return err
	}
	s.typing.Set(id, sender, typing)
	return nil
}
