package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"audiolink/internal/store"
	"audiolink/pkg/relay"
	"audiolink/pkg/streamlink"
)

// ScannedScriptsKey is the store key holding the scan ledger between runs.
const ScannedScriptsKey = "soundcloud_scanned_scripts"

// Service owns the provider stack and runs resolutions with logging and metrics.
type Service struct {
	config     *Config
	logger     *zap.Logger
	metrics    Metrics
	store      store.CredentialStore
	ledger     *store.ScanLedger
	fetcher    *relay.Client
	manager    *streamlink.Manager
	soundcloud *streamlink.SoundCloudProvider

	// soundcloudErr is why SoundCloud was left out, if it was.
	soundcloudErr error
}

// NewService validates cfg, opens the configured credential store and builds the providers.
func NewService(ctx context.Context, cfg *Config, logger *zap.Logger, metrics Metrics) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	credStore, err := store.Open(ctx, cfg.Store.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	svc, err := NewServiceWithStore(ctx, cfg, credStore, logger, metrics)
	if err != nil {
		_ = credStore.Close()
		return nil, err
	}
	return svc, nil
}

// NewServiceWithStore builds the providers on top of an already opened store. The service takes
// ownership of credStore and closes it in Close.
func NewServiceWithStore(
	ctx context.Context,
	cfg *Config,
	credStore store.CredentialStore,
	logger *zap.Logger,
	metrics Metrics,
) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	s := &Service{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		store:   credStore,
		ledger:  store.NewScanLedger(cfg.SoundCloud.LedgerCapacity, DefaultLedgerFalsePositive),
		fetcher: relay.NewClient(cfg.Relay.Origin,
			relay.WithTimeout(cfg.Relay.Timeout()),
			relay.WithMaxBodySize(cfg.Relay.MaxBodySize()),
			relay.WithRecorder(metrics)),
	}
	s.loadLedger(ctx)

	var providers []streamlink.Provider

	if cfg.SoundCloud.Enabled {
		sc, err := s.newSoundCloud(ctx)
		if err != nil {
			s.logger.Warn("SoundCloud provider unavailable", zap.Error(err))
			s.soundcloudErr = err
		} else {
			s.soundcloud = sc
			providers = append(providers, sc)
		}
	}

	if cfg.YouTube.Enabled {
		providers = append(providers, streamlink.NewYouTubeProvider(s.fetcher,
			streamlink.WithInvidiousInstance(cfg.YouTube.InvidiousInstance),
			streamlink.WithInvidiousViaRelay(cfg.YouTube.ViaRelay),
			streamlink.WithYouTubeLogger(logger.Named("youtube"))))
	}

	s.manager = streamlink.NewManager(providers...)
	metrics.SetActiveProviders(len(providers))

	s.logger.Info("Providers ready",
		zap.Strings("providers", s.manager.Providers()),
		zap.String("relay_origin", cfg.Relay.Origin),
		zap.String("store", cfg.Store.Driver))

	return s, nil
}

func (s *Service) newSoundCloud(ctx context.Context) (*streamlink.SoundCloudProvider, error) {
	return streamlink.NewSoundCloudProvider(ctx, s.fetcher, s.store,
		streamlink.WithSoundCloudAPIBase(s.config.SoundCloud.APIBase),
		streamlink.WithSoundCloudLandingURL(s.config.SoundCloud.LandingURL),
		streamlink.WithTranscodingConcurrency(s.config.SoundCloud.TranscodingConcurrency),
		streamlink.WithScriptLedger(s.ledger),
		streamlink.WithDiscoveryRecorder(s.metrics),
		streamlink.WithSoundCloudLogger(s.logger.Named("soundcloud")))
}

// Resolve dispatches rawURL to the matching provider.
func (s *Service) Resolve(ctx context.Context, rawURL string) (*streamlink.Song, error) {
	start := time.Now()

	providerName := "none"
	if p, ok := s.manager.Match(rawURL); ok {
		providerName = p.Name()
	}

	song, err := s.manager.Resolve(ctx, rawURL)
	duration := time.Since(start)

	if err != nil {
		kind := ErrorKind(err)
		s.metrics.RecordResolution(providerName, kind, duration)
		if errors.Is(err, streamlink.ErrNoProviderMatched) {
			s.logger.Debug("No provider for URL", zap.String("url", rawURL))
		} else {
			s.logger.Warn("Resolution failed",
				zap.String("provider", providerName),
				zap.String("url", rawURL),
				zap.String("kind", kind),
				zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordResolution(providerName, StatusOK, duration)
	s.logger.Info("Resolved URL",
		zap.String("provider", providerName),
		zap.String("url", rawURL),
		zap.String("title", song.Title),
		zap.Strings("qualities", song.Qualities()),
		zap.Duration("duration", duration))

	return song, nil
}

// Providers returns the active provider names in dispatch order.
func (s *Service) Providers() []string {
	return s.manager.Providers()
}

// Ready reports whether at least one provider is active.
func (s *Service) Ready() bool {
	return len(s.manager.Providers()) > 0
}

// Credential returns the SoundCloud client id in use, or "" without SoundCloud.
func (s *Service) Credential() string {
	if s.soundcloud == nil {
		return ""
	}
	return s.soundcloud.Credential()
}

// Rediscover forces a fresh SoundCloud credential scrape. The stored id is only overwritten
// when the scrape succeeds.
func (s *Service) Rediscover(ctx context.Context) (string, error) {
	if s.soundcloud == nil {
		if s.soundcloudErr != nil {
			return "", fmt.Errorf("soundcloud provider is not active: %w", s.soundcloudErr)
		}
		return "", fmt.Errorf("%w: soundcloud provider is not active", streamlink.ErrCredentialDiscoveryFailed)
	}
	return s.soundcloud.Rediscover(ctx)
}

// Close persists the scan ledger and closes the store.
func (s *Service) Close(ctx context.Context) error {
	if entries := s.ledger.Entries(); len(entries) > 0 {
		if err := s.store.Set(ctx, ScannedScriptsKey, strings.Join(entries, "\n")); err != nil {
			s.logger.Warn("Failed to persist scan ledger", zap.Error(err))
		}
	}
	return s.store.Close()
}

func (s *Service) loadLedger(ctx context.Context) {
	raw, found, err := s.store.Get(ctx, ScannedScriptsKey)
	if err != nil {
		s.logger.Warn("Failed to load scan ledger", zap.Error(err))
		return
	}
	if !found || raw == "" {
		return
	}
	s.ledger.Load(strings.Split(raw, "\n"))
	s.logger.Debug("Loaded scan ledger", zap.Int("entries", s.ledger.Size()))
}
