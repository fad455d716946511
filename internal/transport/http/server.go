package http

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/config"
	"github.com/vovakirdan/privroom/internal/service/rooms"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Rooms    *rooms.Service
	Sessions *auth.Sessions
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Clock drives rate limiting; nil uses wall time.
	Clock clock.Clock
}

// NewRouter builds the gin engine with all routes.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	limiter := newLimiterPool(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst, deps.Clock)
	roomHandlers := NewRoomHandlers(deps.Rooms, deps.Sessions, limiter, logger)
	wsHandler := NewWSHandler(deps.Rooms, limiter, cfg.AllowedOrigins, logger)
	sseHandler := NewSSEHandler(deps.Rooms, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	room := router.Group("/api/rooms/:id")
	room.POST("/join", roomHandlers.Join)
	room.DELETE("", AdminMiddleware(cfg.AdminToken, logger), roomHandlers.DeleteRoom)

	session := room.Group("", SessionMiddleware(deps.Rooms, deps.Sessions, logger))
	session.GET("/messages", roomHandlers.GetMessages)
	session.POST("/messages", roomHandlers.SendMessage)
	session.DELETE("/messages", roomHandlers.ClearRoom)
	session.POST("/typing", roomHandlers.SetTyping)
	session.GET("/ws", wsHandler.Handle)
	session.GET("/events", sseHandler.Handle)

	return router
}

// NewServer builds an HTTP server around NewRouter.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
