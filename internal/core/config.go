package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"audiolink/internal/store"
	"audiolink/pkg/relay"
	"audiolink/pkg/streamlink"
)

// Configuration defaults.
const (
	DefaultHTTPTimeoutSecs        = 15
	DefaultServerPort             = 8080
	DefaultRateLimitPerMinute     = 30
	DefaultResolveTimeoutSecs     = 50
	DefaultMaxBodyMB              = 8
	DefaultTranscodingConcurrency = streamlink.DefaultTranscodingConcurrency
	DefaultLedgerCapacity         = 1000
	DefaultLedgerFalsePositive    = 0.001
	DefaultStorePath              = "./audiolink.db"
)

var (
	// ErrNoProviderEnabled is returned by Validate when every provider is switched off.
	ErrNoProviderEnabled = errors.New("at least one provider must be enabled")
	// ErrResolveTimeoutTooLong is returned when a resolution may outlive the server's write deadline.
	ErrResolveTimeoutTooLong = errors.New("resolve timeout must be shorter than the write timeout")
)

var validate = validator.New()

type Config struct {
	Relay      RelayConfig
	SoundCloud SoundCloudConfig
	YouTube    YouTubeConfig
	Store      StoreConfig
	Server     ServerConfig
	Log        LogConfig
}

type RelayConfig struct {
	// Origin is the CORS relay prefix. Empty disables relaying.
	Origin      string `validate:"omitempty,url"`
	TimeoutSecs int    `validate:"min=1"`
	MaxBodyMB   int    `validate:"min=1"`
}

type SoundCloudConfig struct {
	Enabled                bool
	APIBase                string `validate:"required,url"`
	LandingURL             string `validate:"required,url"`
	TranscodingConcurrency int    `validate:"min=1,max=64"`
	LedgerCapacity         int    `validate:"min=1"`
}

type YouTubeConfig struct {
	Enabled           bool
	InvidiousInstance string `validate:"required,url"`
	ViaRelay          bool
}

type StoreConfig struct {
	Driver        string `validate:"oneof=sqlite redis memory"`
	Path          string `validate:"required_if=Driver sqlite"`
	RedisAddr     string `validate:"required_if=Driver redis"`
	RedisPassword string
	RedisDB       int `validate:"min=0"`
}

type ServerConfig struct {
	Host               string `validate:"required"`
	Port               int    `validate:"min=1,max=65535"`
	RateLimitPerMinute int    `validate:"min=0"`
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	// TrustProxy keys the rate limiter on X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	// ResolveTimeout bounds one /api/resolve call. A resolution that has to rediscover the
	// SoundCloud client id costs the landing page, every script and two resolve calls, each up to
	// the relay timeout, so it must be capped below WriteTimeout to still get an error response.
	ResolveTimeout time.Duration
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Origin:      relay.DefaultOrigin,
			TimeoutSecs: DefaultHTTPTimeoutSecs,
			MaxBodyMB:   DefaultMaxBodyMB,
		},
		SoundCloud: SoundCloudConfig{
			Enabled:                true,
			APIBase:                streamlink.DefaultSoundCloudAPIBase,
			LandingURL:             streamlink.DefaultSoundCloudLandingURL,
			TranscodingConcurrency: DefaultTranscodingConcurrency,
			LedgerCapacity:         DefaultLedgerCapacity,
		},
		YouTube: YouTubeConfig{
			Enabled:           true,
			InvidiousInstance: streamlink.DefaultInvidiousInstance,
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			Path:   DefaultStorePath,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               DefaultServerPort,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       60 * time.Second,
			ResolveTimeout:     DefaultResolveTimeoutSecs * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.SoundCloud.Enabled && !c.YouTube.Enabled {
		return ErrNoProviderEnabled
	}
	if c.Server.ResolveTimeout < 0 ||
		(c.Server.WriteTimeout > 0 && c.Server.ResolveTimeout >= c.Server.WriteTimeout) {
		return ErrResolveTimeoutTooLong
	}
	return nil
}

// Timeout returns the per-fetch timeout.
func (c *RelayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MaxBodySize returns the per-response body cap in bytes.
func (c *RelayConfig) MaxBodySize() int64 {
	return int64(c.MaxBodyMB) << 20
}

// Options converts the store section into backend options.
func (c *StoreConfig) Options() store.Options {
	return store.Options{
		Driver:        c.Driver,
		Path:          c.Path,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}
