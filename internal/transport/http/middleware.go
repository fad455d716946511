package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/service/rooms"
	"github.com/vovakirdan/privroom/internal/store"
)

const (
	// ContextKeySender is the context key for the session's sender tag.
	ContextKeySender = "sender"
	// ContextKeyRoom is the context key for the *store.Room the session belongs to.
	ContextKeyRoom = "room"
)

// SessionMiddleware validates the room session token from the Authorization
// header or the token query parameter. The token must belong to the room in
// the path and to its current instance.
func SessionMiddleware(svc *rooms.Service, sessions *auth.Sessions, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			logger.Debug().Msg("missing session token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing session token", Code: core.ErrCodeUnauthorized})
			return
		}

		claims, err := sessions.Validate(token)
		if auth.IsExpired(err) {
			c.AbortWithStatusJSON(http.StatusGone, ErrorResponse{Error: "room expired", Code: core.ErrCodeRoomClosed})
			return
		}
		if err != nil {
			logger.Debug().Err(err).Msg("invalid session token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid session token", Code: core.ErrCodeUnauthorized})
			return
		}

		roomID := c.Param("id")
		if claims.RoomID != roomID {
			logger.Debug().Str("room_id", roomID).Str("token_room", claims.RoomID).Msg("session token for another room")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "session token belongs to another room", Code: core.ErrCodeUnauthorized})
			return
		}

		room, err := svc.CheckSession(c.Request.Context(), roomID, claims.CreatedAt())
		if err != nil {
			abortWithError(c, logger, err)
			return
		}

		c.Set(ContextKeySender, claims.Sender)
		c.Set(ContextKeyRoom, room)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// AdminMiddleware guards operator endpoints with a static token in the
// X-Admin-Token header. An empty configured token disables them.
func AdminMiddleware(adminToken string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("X-Admin-Token")
		if adminToken == "" || subtle.ConstantTimeCompare([]byte(given), []byte(adminToken)) != 1 {
			logger.Warn().Str("path", c.Request.URL.Path).Msg("admin request rejected")
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin token required", Code: codeForbidden})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func sessionFrom(c *gin.Context) (string, *store.Room) {
	sender := c.GetString(ContextKeySender)
	room, _ := c.MustGet(ContextKeyRoom).(*store.Room)
	return sender, room
}
