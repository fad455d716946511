package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/privroom/internal/store"
)

// ErrInvalidToken is returned for malformed, expired or foreign session tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Claims identify a participant of one room instance.
type Claims struct {
	RoomID      string `json:"room"`
	Sender      string `json:"sender"`
	RoomCreated int64  `json:"room_created"`
	jwt.RegisteredClaims
}

// JWTConfig holds signing parameters for room sessions.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Sessions issues and validates room session tokens.
type Sessions struct {
	cfg   JWTConfig
	clock clock.Clock
}

// NewSessions creates a session issuer. A nil clock uses wall time.
func NewSessions(cfg JWTConfig, clk clock.Clock) *Sessions {
	if clk == nil {
		clk = clock.New()
	}
	return &Sessions{cfg: cfg, clock: clk}
}

// Issue mints a token for sender that expires together with room.
func (s *Sessions) Issue(room *store.Room, sender string) (string, error) {
	claims := Claims{
		RoomID:      room.ID,
		Sender:      sender,
		RoomCreated: room.CreatedAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   sender,
			ExpiresAt: jwt.NewNumericDate(room.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and checks signature, expiry, issuer and audience.
func (s *Sessions) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.RoomID == "" || claims.Sender == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reports whether err came from a session past its room's expiry.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// CreatedAt returns the creation time of the room instance the token belongs to.
func (c *Claims) CreatedAt() time.Time {
	return time.Unix(0, c.RoomCreated)
}
