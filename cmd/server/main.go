package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/privroom/internal/app"
	"github.com/vovakirdan/privroom/internal/config"
	"github.com/vovakirdan/privroom/internal/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

type flags struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "privroom",
		Short:         "Ephemeral password-protected chat rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to config file (default ./config.yaml)")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.overrides.Storage.Driver, "storage", "", "storage driver: sqlite or pebble")
	root.Flags().StringVar(&f.overrides.Addr, "addr", "", "HTTP listen address")
	root.Flags().DurationVar(&f.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	root.AddCommand(newMigrateCmd(f))
	return root
}

func newMigrateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the storage schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(f)
			if err != nil {
				return err
			}
			if err := app.Migrate(cfg.Storage); err != nil {
				return err
			}
			logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")
			return nil
		},
	}
}

func loadConfig(f *flags) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New(f.overrides.LogLevel)

	cfg, path, err := config.Load(bootstrap, f.configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.UpdateFrom(f.overrides)

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func serve(ctx context.Context, f *flags) error {
	cfg, logger, err := loadConfig(f)
	if err != nil {
		return err
	}

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting privroom server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
