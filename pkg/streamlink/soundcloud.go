package streamlink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSoundCloudAPIBase is SoundCloud's private v2 API.
	DefaultSoundCloudAPIBase = "https://api-v2.soundcloud.com"
	// DefaultSoundCloudLandingURL is the page scraped for script bundles.
	DefaultSoundCloudLandingURL = "https://soundcloud.com"
	// DefaultTranscodingConcurrency bounds parallel transcoding exchanges per resolution.
	DefaultTranscodingConcurrency = 4

	hlsProtocol             = "hls"
	soundcloudProviderName  = "soundcloud"
	credentialRefreshFlight = "client_id"
	trackAuthorizationParam = "track_authorization"
	clientIDParam           = "client_id"
)

// soundcloudURLRegex is a loose prefix match. Unrelated paths on the same host are accepted.
var soundcloudURLRegex = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.)?soundcloud\.com`)

type scFormat struct {
	Protocol string `json:"protocol"`
	MimeType string `json:"mime_type"`
}

type scTranscoding struct {
	URL     string   `json:"url"`
	Quality string   `json:"quality"`
	Format  scFormat `json:"format"`
}

type scMedia struct {
	Transcodings []scTranscoding `json:"transcodings"`
}

type scTrack struct {
	Kind               string   `json:"kind"`
	Title              string   `json:"title"`
	ArtworkURL         *string  `json:"artwork_url"`
	TrackAuthorization string   `json:"track_authorization"`
	Media              *scMedia `json:"media"`
}

type scStream struct {
	URL string `json:"url"`
}

// SoundCloudProvider resolves SoundCloud track links to HLS streams.
type SoundCloudProvider struct {
	fetcher     Fetcher
	store       CredentialStore
	ledger      ScriptLedger
	discoveries DiscoveryRecorder
	logger      *zap.Logger
	apiBase     string
	landingURL  string
	concurrency int

	mu       sync.RWMutex
	clientID string
	refresh  singleflight.Group
}

// SoundCloudOption configures a SoundCloudProvider.
type SoundCloudOption func(*SoundCloudProvider)

// WithSoundCloudAPIBase sets the API base URL.
func WithSoundCloudAPIBase(apiBase string) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// WithSoundCloudLandingURL sets the page scraped during discovery.
func WithSoundCloudLandingURL(landingURL string) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		p.landingURL = landingURL
	}
}

// WithScriptLedger skips bundles already known to hold no client id.
func WithScriptLedger(ledger ScriptLedger) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		p.ledger = ledger
	}
}

// WithDiscoveryRecorder attaches a discovery outcome recorder.
func WithDiscoveryRecorder(r DiscoveryRecorder) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		p.discoveries = r
	}
}

// WithTranscodingConcurrency bounds parallel transcoding exchanges.
func WithTranscodingConcurrency(n int) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithSoundCloudLogger sets the provider logger.
func WithSoundCloudLogger(logger *zap.Logger) SoundCloudOption {
	return func(p *SoundCloudProvider) {
		p.logger = logger
	}
}

// NewSoundCloudProvider creates a SoundCloud provider, reading the client id from store or
// discovering it. A returned error wraps ErrCredentialDiscoveryFailed and the provider is unusable.
func NewSoundCloudProvider(
	ctx context.Context,
	fetcher Fetcher,
	store CredentialStore,
	opts ...SoundCloudOption,
) (*SoundCloudProvider, error) {
	p := &SoundCloudProvider{
		fetcher:     fetcher,
		store:       store,
		logger:      zap.NewNop(),
		apiBase:     DefaultSoundCloudAPIBase,
		landingURL:  DefaultSoundCloudLandingURL,
		concurrency: DefaultTranscodingConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}

	clientID, err := p.loadCredential(ctx)
	if err != nil {
		return nil, err
	}
	p.clientID = clientID

	return p, nil
}

// Name returns the provider identifier.
func (p *SoundCloudProvider) Name() string {
	return soundcloudProviderName
}

// CanResolve checks if the URL is on soundcloud.com.
func (p *SoundCloudProvider) CanResolve(rawURL string) bool {
	return soundcloudURLRegex.MatchString(strings.TrimSpace(rawURL))
}

// Credential returns the client id currently in use.
func (p *SoundCloudProvider) Credential() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientID
}

// Rediscover scrapes a fresh client id, overwriting the cached one.
func (p *SoundCloudProvider) Rediscover(ctx context.Context) (string, error) {
	return p.refreshCredential(ctx, p.Credential())
}

// refreshCredential replaces stale with a newly discovered client id. Concurrent callers share
// one discovery run; a caller whose stale id was already replaced gets the current one.
func (p *SoundCloudProvider) refreshCredential(ctx context.Context, stale string) (string, error) {
	v, err, _ := p.refresh.Do(credentialRefreshFlight, func() (any, error) {
		if current := p.Credential(); current != stale {
			return current, nil
		}

		clientID, err := p.discover(ctx)
		if err != nil {
			return "", err
		}

		p.mu.Lock()
		p.clientID = clientID
		p.mu.Unlock()
		return clientID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Resolve resolves a SoundCloud track to its HLS streams grouped by quality.
func (p *SoundCloudProvider) Resolve(ctx context.Context, rawURL string) (*Song, error) {
	clientID := p.Credential()

	track, err := p.fetchTrack(ctx, rawURL, clientID)
	if isCredentialRejected(err) {
		p.logger.Warn("Client id rejected, rediscovering",
			zap.String("client_id", maskCredential(clientID)),
			zap.Int("status", statusCode(err)))

		clientID, err = p.refreshCredential(ctx, clientID)
		if err != nil {
			return nil, resolutionFailed(p.Name(), rawURL, "client id rejected and rediscovery failed", err)
		}
		track, err = p.fetchTrack(ctx, rawURL, clientID)
	}
	if err != nil {
		return nil, resolutionFailed(p.Name(), rawURL, "failed to resolve track", err)
	}

	transcodings := lo.Filter(track.Media.Transcodings, func(t scTranscoding, _ int) bool {
		return t.Format.Protocol == hlsProtocol
	})

	streamURLs, err := p.exchangeTranscodings(ctx, transcodings, clientID, track.TrackAuthorization)
	if err != nil {
		return nil, resolutionFailed(p.Name(), rawURL, "failed to fetch stream url", err)
	}

	b := newSongBuilder(track.Title)
	if track.ArtworkURL != nil {
		b.setArtwork(*track.ArtworkURL)
	}
	for i, t := range transcodings {
		if err := b.add(t.Quality, StreamVariant{IsAdaptive: true, MimeType: t.Format.MimeType, URL: streamURLs[i]}); err != nil {
			return nil, resolutionFailed(p.Name(), rawURL, "unexpected transcoding", err)
		}
	}

	song, err := b.build()
	if err != nil {
		return nil, resolutionFailed(p.Name(), rawURL, "unexpected track descriptor", err)
	}

	if len(song.StreamsByQuality) == 0 {
		p.logger.Warn("Track has no HLS transcodings",
			zap.String("url", rawURL),
			zap.Int("transcodings", len(track.Media.Transcodings)))
	}

	return song, nil
}

// ResolveURL returns the API endpoint that describes rawURL.
func (p *SoundCloudProvider) ResolveURL(rawURL, clientID string) string {
	return fmt.Sprintf("%s/resolve?url=%s&%s=%s",
		p.apiBase, url.QueryEscape(rawURL), clientIDParam, url.QueryEscape(clientID))
}

func (p *SoundCloudProvider) fetchTrack(ctx context.Context, rawURL, clientID string) (*scTrack, error) {
	resp, err := p.fetcher.Fetch(ctx, p.ResolveURL(rawURL, clientID))
	if err != nil {
		return nil, networkErr(err)
	}

	var track scTrack
	if err := decodeJSON(resp, &track); err != nil {
		return nil, err
	}
	if track.Media == nil {
		return nil, schemaErr("resource of kind %q has no media", track.Kind)
	}
	return &track, nil
}

// exchangeTranscodings swaps each transcoding descriptor for its direct stream URL. The result is
// index-aligned with transcodings; the first failure cancels the remaining exchanges.
func (p *SoundCloudProvider) exchangeTranscodings(
	ctx context.Context,
	transcodings []scTranscoding,
	clientID, trackAuthorization string,
) ([]string, error) {
	streamURLs := make([]string, len(transcodings))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, t := range transcodings {
		g.Go(func() error {
			streamURL, err := p.exchangeTranscoding(gCtx, t, clientID, trackAuthorization)
			if err != nil {
				return err
			}
			streamURLs[i] = streamURL
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return streamURLs, nil
}

func (p *SoundCloudProvider) exchangeTranscoding(
	ctx context.Context,
	t scTranscoding,
	clientID, trackAuthorization string,
) (string, error) {
	exchangeURL, err := transcodingURL(t.URL, clientID, trackAuthorization)
	if err != nil {
		return "", err
	}

	resp, err := p.fetcher.Fetch(ctx, exchangeURL)
	if err != nil {
		return "", fmt.Errorf("transcoding %s: %w", t.Quality, networkErr(err))
	}

	var stream scStream
	if err := decodeJSON(resp, &stream); err != nil {
		return "", fmt.Errorf("transcoding %s: %w", t.Quality, err)
	}
	if stream.URL == "" {
		return "", schemaErr("transcoding %s: stream response has no url", t.Quality)
	}
	if stream.URL == t.URL {
		return "", schemaErr("transcoding %s: stream url is the descriptor itself", t.Quality)
	}

	p.logger.Debug("Exchanged transcoding", zap.String("quality", t.Quality), zap.String("mime_type", t.Format.MimeType))
	return stream.URL, nil
}

// transcodingURL appends the credential query parameters to a transcoding descriptor URL.
func transcodingURL(descriptor, clientID, trackAuthorization string) (string, error) {
	u, err := url.Parse(descriptor)
	if err != nil || !u.IsAbs() {
		return "", schemaErr("invalid transcoding url %q", descriptor)
	}
	q := u.Query()
	q.Set(clientIDParam, clientID)
	if trackAuthorization != "" {
		q.Set(trackAuthorizationParam, trackAuthorization)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isCredentialRejected(err error) bool {
	if err == nil || !errors.Is(err, ErrNetwork) {
		return false
	}
	code := statusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
