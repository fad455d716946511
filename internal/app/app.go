package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/auth"
	"github.com/vovakirdan/privroom/internal/config"
	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/log"
	"github.com/vovakirdan/privroom/internal/metrics"
	"github.com/vovakirdan/privroom/internal/service/rooms"
	"github.com/vovakirdan/privroom/internal/store"
	"github.com/vovakirdan/privroom/internal/store/pebblestore"
	"github.com/vovakirdan/privroom/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/privroom/internal/transport/http"
)

// App wires together storage, core, room service and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	sweeper         *rooms.Sweeper
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("store initialized")

	if cfg.JWT.Secret == config.DefaultJWTSecret {
		logger.Warn().Msg("jwt.secret is the default placeholder; set PRIVROOM_JWT_SECRET")
	}
	if cfg.AdminToken == "" {
		logger.Info().Msg("admin_token not set; room deletion endpoint disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	clk := clock.New()
	hub := core.NewHub(cfg.Hub.MaxPending, m, log.Component(logger, "hub"))
	typing := core.NewTypingTracker(hub, clk, cfg.Rooms.TypingTimeout)

	svc := rooms.New(st, hub, typing, rooms.Options{
		RoomTTL:         cfg.Rooms.TTL,
		MaxMessageBytes: cfg.Rooms.MaxMessageBytes,
		Clock:           clk,
		Metrics:         m,
		Logger:          log.Component(logger, "rooms"),
	})

	sessions := auth.NewSessions(auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, clk)

	server := transporthttp.NewServer(transporthttp.Deps{
		Rooms:    svc,
		Sessions: sessions,
		Gatherer: reg,
		Clock:    clk,
	}, cfg, log.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		sweeper:         rooms.NewSweeper(svc, cfg.Rooms.SweepInterval),
		store:           st,
		log:             logger,
	}, nil
}

// OpenStore opens the backend selected by cfg.Driver.
func OpenStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverPebble:
		st, err := pebblestore.Open(cfg.PebbleDir)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Migrate prepares the configured store and closes it again.
func Migrate(cfg config.StorageConfig) error {
	st, err := OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return st.Close()
}

// Run starts the HTTP server and the expiry sweeper and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(sweepCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Streaming connections are hijacked, so end their subscriptions first.
		a.hub.Close()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	stopSweep()
	wg.Wait()
	a.cleanup()
	return runErr
}

// cleanup closes the hub and the database.
func (a *App) cleanup() {
	a.hub.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
