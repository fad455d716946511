// Package rooms implements the room lifecycle: creation on first join,
// the append-only message log, event publication and expiry.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/metrics"
	"github.com/vovakirdan/privroom/internal/store"
)

const (
	// DefaultRoomTTL is the lifetime of a room counted from its creation.
	DefaultRoomTTL = 48 * time.Hour
	// DefaultMaxMessageBytes bounds the size of one message text.
	DefaultMaxMessageBytes = 4096

	// maxPasswordBytes is the longest password bcrypt accepts.
	maxPasswordBytes = 72
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	RoomTTL         time.Duration
	MaxMessageBytes int
	Clock           clock.Clock
	Metrics         *metrics.Metrics
	Logger          *zerolog.Logger
}

// Service owns every state change of rooms and their logs. Operations on the
// same room are serialized; different rooms never contend.
type Service struct {
	store   store.Store
	hub     *core.Hub
	typing  *core.TypingTracker
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zerolog.Logger

	ttl             time.Duration
	maxMessageBytes int

	locks *lockRegistry
	// closing maps ids whose subscribers were told the room closed but whose
	// store deletion has not succeeded yet to the close reason.
	closing sync.Map
}

// New creates a room service. A nil typing tracker gets a default one on hub.
func New(st store.Store, hub *core.Hub, typing *core.TypingTracker, opts Options) *Service {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if typing == nil {
		typing = core.NewTypingTracker(hub, opts.Clock, core.DefaultTypingTimeout)
	}

	return &Service{
		store:           st,
		hub:             hub,
		typing:          typing,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		ttl:             opts.RoomTTL,
		maxMessageBytes: opts.MaxMessageBytes,
		locks:           newLockRegistry(),
	}
}

// ValidateRoomID checks that id is usable as a room identifier.
func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return core.NewError(core.ErrCodeInvalidInput, "room id must be 1-64 characters of letters, digits, '-' or '_'")
	}
	return nil
}

// CreateOrGet returns the room with id, creating it with now+TTL expiry if it
// does not exist. An existing room is returned unchanged. A room created here
// has no password, so Join rejects every attempt to enter it.
func (s *Service) CreateOrGet(ctx context.Context, id string) (*store.Room, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	room, _, err := s.createOrGetLocked(ctx, id, "")
	return room, err
}

func (s *Service) createOrGetLocked(ctx context.Context, id, passwordHash string) (*store.Room, bool, error) {
	room, err := s.store.GetRoom(ctx, id)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("get room: %w", err)
	}

	now := s.clock.Now()
	room = &store.Room{
		ID:           id,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, false, fmt.Errorf("create room: %w", err)
		}
		// Another process sharing the store won the race.
		existing, getErr := s.store.GetRoom(ctx, id)
		if getErr != nil {
			return nil, false, fmt.Errorf("get room after conflict: %w", getErr)
		}
		return existing, false, nil
	}

	s.metrics.RoomCreated()
	s.log.Info().Str("room_id", id).Time("expires_at", room.ExpiresAt).Msg("room created")
	return room, true, nil
}

// Join admits a participant knowing password. The first join creates the room
// and fixes its password; later joins must present the same one.
func (s *Service) Join(ctx context.Context, id, password string) (*store.Room, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, core.NewError(core.ErrCodeInvalidInput, "password is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, core.NewError(core.ErrCodeInvalidInput, fmt.Sprintf("password exceeds %d bytes", maxPasswordBytes))
	}

	room, err := s.store.GetRoom(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get room: %w", err)
	}

	if room == nil {
		// Hash outside the room lock; bcrypt is slow.
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}

		unlock := s.locks.lock(id)
		var created bool
		room, created, err = s.createOrGetLocked(ctx, id, hash)
		unlock()
		if err != nil {
			return nil, err
		}
		if created {
			return room, nil
		}
	}

	if s.isClosing(id) || room.Expired(s.clock.Now()) {
		return nil, core.ErrRoomClosed
	}
	if room.PasswordHash == "" {
		return nil, core.NewError(core.ErrCodeUnauthorized, "room does not accept joins")
	}
	if err := auth.CheckPassword(room.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, core.NewError(core.ErrCodeUnauthorized, "wrong room password")
		}
		return nil, err
	}
	return room, nil
}

// Get returns an active room. Absent and expired rooms are NotFound.
func (s *Service) Get(ctx context.Context, id string) (*store.Room, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}

	room, err := s.store.GetRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if s.isClosing(id) || room.Expired(s.clock.Now()) {
		return nil, core.ErrNotFound
	}
	return room, nil
}

// CheckSession verifies that a session minted for the room instance created
// at createdAt still refers to a live room. Deleted, expired and replaced
// instances are RoomClosed.
func (s *Service) CheckSession(ctx context.Context, id string, createdAt time.Time) (*store.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.ErrRoomClosed
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if !room.CreatedAt.Equal(createdAt) || s.isClosing(id) || room.Expired(s.clock.Now()) {
		return nil, core.ErrRoomClosed
	}
	return room, nil
}

// Delete tears a room down: subscribers receive RoomClosed as their final
// event, typing state is dropped and the room with its messages is removed.
// Deleting an absent room is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := ValidateRoomID(id); err != nil {
		return err
	}
	_, err := s.closeRoom(ctx, id, metrics.ReasonDeleted)
	return err
}

// closeRoom tears id down under its lock. With ReasonExpired it acts only if
// the room is still expired, so a fresh instance created after a concurrent
// delete survives a stale sweep listing.
func (s *Service) closeRoom(ctx context.Context, id, reason string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	room, err := s.store.GetRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.closing.Delete(id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get room: %w", err)
	}
	if reason == metrics.ReasonExpired && !room.Expired(s.clock.Now()) {
		return false, nil
	}

	s.closing.Store(id, reason)
	notified := s.hub.CloseRoom(id, reason)
	s.typing.ForgetRoom(id)

	deleted, err := s.store.DeleteRoom(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	s.closing.Delete(id)

	if deleted {
		s.metrics.RoomClosed(reason)
		s.log.Info().Str("room_id", id).Str("reason", reason).Int("subscribers", notified).Msg("room closed")
	}
	return deleted, nil
}

// ClearMessages empties the log of an active room and notifies subscribers.
func (s *Service) ClearMessages(ctx context.Context, id string) error {
	if err := ValidateRoomID(id); err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.activeRoomLocked(ctx, id); err != nil {
		return err
	}

	n, err := s.store.ClearMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	s.metrics.MessagesCleared(n)
	s.hub.Publish(&core.Event{Kind: core.EventMessagesCleared, Room: id})
	s.log.Info().Str("room_id", id).Int64("count", n).Msg("room cleared")
	return nil
}

// activeRoomLocked loads id for a mutation. Caller holds the room lock.
func (s *Service) activeRoomLocked(ctx context.Context, id string) (*store.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if s.isClosing(id) || room.Expired(s.clock.Now()) {
		return nil, core.ErrRoomClosed
	}
	return room, nil
}

// pendingClosures returns rooms whose teardown started but did not finish,
// keyed by id with the close reason.
func (s *Service) pendingClosures() map[string]string {
	pending := make(map[string]string)
	s.closing.Range(func(key, value any) bool {
		pending[key.(string)] = value.(string)
		return true
	})
	return pending
}

func (s *Service) isClosing(id string) bool {
	_, ok := s.closing.Load(id)
	return ok
}
