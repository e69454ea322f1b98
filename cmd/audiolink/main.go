// Package main provides the AudioLink CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"audiolink/internal/core"
	"audiolink/internal/flood"
	httpserver "audiolink/internal/http"
	"audiolink/internal/store"
	"audiolink/pkg/relay"
	"audiolink/pkg/streamlink"
)

const (
	envPrefix         = "AUDIOLINK"
	defaultServerHost = "0.0.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "audiolink",
	Short: "AudioLink - song links to playable audio streams",
	Long: `AudioLink resolves SoundCloud and YouTube song links into playable audio stream URLs
grouped by quality, and serves them over a small JSON API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.String("relay-origin", relay.DefaultOrigin, "CORS relay origin prepended to upstream URLs (empty disables)")
	flags.Int("http-timeout-secs", core.DefaultHTTPTimeoutSecs, "Timeout for a single upstream request in seconds")
	flags.Int("http-max-body-mb", core.DefaultMaxBodyMB, "Maximum upstream response body read, in MiB")
	flags.Bool("soundcloud-enabled", true, "Enable the SoundCloud provider")
	flags.String("soundcloud-api-base", streamlink.DefaultSoundCloudAPIBase, "SoundCloud API base URL")
	flags.String("soundcloud-landing-url", streamlink.DefaultSoundCloudLandingURL, "Page scraped for the SoundCloud client id")
	flags.Int("transcoding-concurrency", core.DefaultTranscodingConcurrency, "Parallel transcoding exchanges per SoundCloud resolution")
	flags.Bool("youtube-enabled", true, "Enable the YouTube provider")
	flags.String("invidious-instance", streamlink.DefaultInvidiousInstance, "Invidious mirror base URL")
	flags.Bool("invidious-via-relay", false, "Route Invidious requests through the CORS relay")
	flags.String("store-driver", store.DriverSQLite, "Credential store driver (sqlite, redis, memory)")
	flags.String("store-path", core.DefaultStorePath, "SQLite database path")
	flags.String("redis-addr", "", "Redis address (host:port)")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.Int("rate-limit-per-minute", core.DefaultRateLimitPerMinute, "Resolve requests allowed per client per minute (0 disables)")
	flags.Bool("trust-proxy", false, "Take client addresses from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)")
	flags.Int("resolve-timeout-secs", core.DefaultResolveTimeoutSecs, "Upper bound for one API resolution in seconds (below the 60s write timeout)")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(resolveCmd, credentialCmd)
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureRelay(cfg)
	configureSoundCloud(cfg)
	configureYouTube(cfg)
	configureStore(cfg)
	configureServer(cfg)

	return cfg
}

func configureRelay(cfg *core.Config) {
	cfg.Relay.Origin = strings.TrimRight(viper.GetString("relay-origin"), "/")
	cfg.Relay.TimeoutSecs = viper.GetInt("http-timeout-secs")
	cfg.Relay.MaxBodyMB = viper.GetInt("http-max-body-mb")
}

func configureSoundCloud(cfg *core.Config) {
	cfg.SoundCloud.Enabled = viper.GetBool("soundcloud-enabled")
	cfg.SoundCloud.APIBase = viper.GetString("soundcloud-api-base")
	cfg.SoundCloud.LandingURL = viper.GetString("soundcloud-landing-url")
	cfg.SoundCloud.TranscodingConcurrency = viper.GetInt("transcoding-concurrency")
}

func configureYouTube(cfg *core.Config) {
	cfg.YouTube.Enabled = viper.GetBool("youtube-enabled")
	cfg.YouTube.InvidiousInstance = viper.GetString("invidious-instance")
	cfg.YouTube.ViaRelay = viper.GetBool("invidious-via-relay")
}

func configureStore(cfg *core.Config) {
	cfg.Store.Driver = strings.ToLower(viper.GetString("store-driver"))
	cfg.Store.Path = viper.GetString("store-path")
	cfg.Store.RedisAddr = viper.GetString("redis-addr")
	cfg.Store.RedisPassword = viper.GetString("redis-password")
	cfg.Store.RedisDB = viper.GetInt("redis-db")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.RateLimitPerMinute = viper.GetInt("rate-limit-per-minute")
	cfg.Server.TrustProxy = viper.GetBool("trust-proxy")
	cfg.Server.ResolveTimeout = time.Duration(viper.GetInt("resolve-timeout-secs")) * time.Second
	cfg.Log.Level = strings.ToLower(viper.GetString("log-level"))
	cfg.Log.Format = strings.ToLower(viper.GetString("log-format"))
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting AudioLink",
		zap.String("relay_origin", config.Relay.Origin),
		zap.String("store_driver", config.Store.Driver),
		zap.Bool("soundcloud_enabled", config.SoundCloud.Enabled),
		zap.Bool("youtube_enabled", config.YouTube.Enabled))

	metrics := httpserver.NewMetrics()
	svc, err := core.NewService(ctx, config, logger.Named("service"), metrics)
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		if closeErr := svc.Close(context.Background()); closeErr != nil {
			logger.Debug("Failed to close service", zap.Error(closeErr))
		}
	}()

	limiter := flood.NewLimiter(config.Server.RateLimitPerMinute)
	server := httpserver.NewServer(&config.Server, logger.Named("http"), svc, metrics, limiter)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})
	g.Go(func() error {
		return limiter.Run(gCtx)
	})

	logger.Info("AudioLink started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Strings("providers", svc.Providers()))

	if err := g.Wait(); err != nil {
		logger.Error("AudioLink stopped with error", zap.Error(err))
		return err
	}

	logger.Info("AudioLink stopped gracefully")
	return nil
}
