package config

import (
	"errors"
	"fmt"
	"time"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// DefaultJWTSecret is the placeholder secret written to fresh config files.
const DefaultJWTSecret = "change-me-in-production"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// AdminToken enables DELETE /api/rooms/:id when non-empty.
	AdminToken     string   `mapstructure:"admin_token" yaml:"admin_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Rooms     RoomsConfig     `mapstructure:"rooms" yaml:"rooms"`
	Hub       HubConfig       `mapstructure:"hub" yaml:"hub"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// StorageConfig selects and locates the persistence backend.
type StorageConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PebbleDir  string `mapstructure:"pebble_dir" yaml:"pebble_dir"`
}

// RoomsConfig controls room lifetime and message limits.
type RoomsConfig struct {
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	TypingTimeout   time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

// HubConfig bounds per-subscriber buffering.
type HubConfig struct {
	MaxPending int `mapstructure:"max_pending" yaml:"max_pending"`
}

// JWTConfig configures room session tokens.
type JWTConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience"`
}

// RateLimitConfig limits messages per sender. Zero disables limiting.
type RateLimitConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second" yaml:"messages_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		AllowedOrigins:    []string{},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "privroom.db",
			PebbleDir:  "privroom-data",
		},
		Rooms: RoomsConfig{
			TTL:             48 * time.Hour,
			SweepInterval:   time.Second,
			TypingTimeout:   time.Second,
			MaxMessageBytes: 4096,
		},
		Hub: HubConfig{
			MaxPending: 256,
		},
		JWT: JWTConfig{
			Secret:   DefaultJWTSecret,
			Issuer:   "privroom",
			Audience: "privroom",
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 5,
			Burst:             10,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only fields exposed as CLI flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required"))
		}
	case DriverPebble:
		if c.Storage.PebbleDir == "" {
			errs = append(errs, errors.New("storage.pebble_dir is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Rooms.TTL <= 0 {
		errs = append(errs, errors.New("rooms.ttl must be positive"))
	}
	if c.Rooms.SweepInterval <= 0 {
		errs = append(errs, errors.New("rooms.sweep_interval must be positive"))
	}
	if c.Rooms.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("rooms.max_message_bytes must be positive"))
	}
	if c.Hub.MaxPending < 0 {
		errs = append(errs, errors.New("hub.max_pending must not be negative"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.RateLimit.MessagesPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}
