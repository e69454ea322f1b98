package streamlink

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// DefaultInvidiousInstance is the public Invidious mirror queried for video info.
	DefaultInvidiousInstance = "https://invidious.kavin.rocks"
	// invidiousFields limits the mirror response to what the song needs.
	invidiousFields = "adaptiveFormats,title,videoThumbnails"
	// preferredThumbnailQuality is the thumbnail label used as artwork.
	preferredThumbnailQuality = "high"
	// audioMimePrefix selects audio-only adaptive formats.
	audioMimePrefix = "audio"

	youtubeProviderName = "youtube"
)

// youtubeURLRegex captures the 11-character video id from watch, short-link, embed, shorts and live URLs.
// Hosts match case-insensitively; the id does not.
var youtubeURLRegex = regexp.MustCompile(
	`^(?i:(?:https?://)?(?:www\.|m\.|music\.)?(?:youtube\.com/(?:watch\?(?:[^#]*&)?v=|embed/|shorts/|live/)|youtu\.be/))` +
		`([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)

type invidiousFormat struct {
	URL      string `json:"url"`
	Itag     string `json:"itag"`
	MimeType string `json:"type"`
}

type invidiousThumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

type invidiousVideo struct {
	Title           string               `json:"title"`
	AdaptiveFormats []invidiousFormat    `json:"adaptiveFormats"`
	VideoThumbnails []invidiousThumbnail `json:"videoThumbnails"`
}

// YouTubeProvider resolves YouTube links through an Invidious mirror.
type YouTubeProvider struct {
	fetcher  Fetcher
	instance string
	viaRelay bool
	logger   *zap.Logger
}

// YouTubeOption configures a YouTubeProvider.
type YouTubeOption func(*YouTubeProvider)

// WithInvidiousInstance sets the mirror base URL.
func WithInvidiousInstance(instance string) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.instance = strings.TrimRight(instance, "/")
	}
}

// WithInvidiousViaRelay routes mirror requests through the CORS relay.
func WithInvidiousViaRelay(viaRelay bool) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.viaRelay = viaRelay
	}
}

// WithYouTubeLogger sets the provider logger.
func WithYouTubeLogger(logger *zap.Logger) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.logger = logger
	}
}

// NewYouTubeProvider creates a YouTube provider.
func NewYouTubeProvider(fetcher Fetcher, opts ...YouTubeOption) *YouTubeProvider {
	p := &YouTubeProvider{
		fetcher:  fetcher,
		instance: DefaultInvidiousInstance,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *YouTubeProvider) Name() string {
	return youtubeProviderName
}

// CanResolve checks if a video id can be extracted from the URL.
func (p *YouTubeProvider) CanResolve(rawURL string) bool {
	_, ok := extractVideoID(rawURL)
	return ok
}

// extractVideoID extracts the YouTube video ID from the supported URL shapes.
func extractVideoID(rawURL string) (string, bool) {
	matches := youtubeURLRegex.FindStringSubmatch(strings.TrimSpace(rawURL))
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// Resolve fetches the video's audio formats from the mirror.
func (p *YouTubeProvider) Resolve(ctx context.Context, rawURL string) (*Song, error) {
	videoID, ok := extractVideoID(rawURL)
	if !ok {
		return nil, resolutionFailed(p.Name(), rawURL, "no video id in URL", nil)
	}

	video, err := p.fetchVideo(ctx, videoID)
	if err != nil {
		return nil, resolutionFailed(p.Name(), rawURL, "failed to fetch video info", err)
	}

	song, err := p.buildSong(video)
	if err != nil {
		return nil, resolutionFailed(p.Name(), rawURL, "unexpected video info", err)
	}

	p.logger.Debug("Resolved YouTube video",
		zap.String("video_id", videoID),
		zap.Strings("qualities", song.Qualities()))

	return song, nil
}

// VideoAPIURL returns the mirror endpoint queried for a video id.
func (p *YouTubeProvider) VideoAPIURL(videoID string) string {
	return fmt.Sprintf("%s/api/v1/videos/%s?fields=%s", p.instance, url.PathEscape(videoID), invidiousFields)
}

func (p *YouTubeProvider) fetchVideo(ctx context.Context, videoID string) (*invidiousVideo, error) {
	apiURL := p.VideoAPIURL(videoID)
	p.logger.Debug("Fetching video info", zap.String("url", apiURL))

	fetch := p.fetcher.FetchDirect
	if p.viaRelay {
		fetch = p.fetcher.Fetch
	}

	resp, err := fetch(ctx, apiURL)
	if err != nil {
		return nil, networkErr(err)
	}

	var video invidiousVideo
	if err := decodeJSON(resp, &video); err != nil {
		return nil, err
	}
	if video.AdaptiveFormats == nil {
		return nil, schemaErr("missing adaptiveFormats")
	}
	return &video, nil
}

func (p *YouTubeProvider) buildSong(video *invidiousVideo) (*Song, error) {
	b := newSongBuilder(video.Title)

	audioFormats := lo.Filter(video.AdaptiveFormats, func(f invidiousFormat, _ int) bool {
		return strings.HasPrefix(f.MimeType, audioMimePrefix)
	})
	for _, f := range audioFormats {
		if err := b.add(f.Itag, StreamVariant{IsAdaptive: false, MimeType: f.MimeType, URL: f.URL}); err != nil {
			return nil, err
		}
	}

	if thumb, ok := lo.Find(video.VideoThumbnails, func(t invidiousThumbnail) bool {
		return t.Quality == preferredThumbnailQuality
	}); ok {
		b.setArtwork(p.absoluteURL(thumb.URL))
	}

	return b.build()
}

// absoluteURL resolves mirror-relative thumbnail paths against the instance.
func (p *YouTubeProvider) absoluteURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() || ref == "" {
		return ref
	}
	base, err := url.Parse(p.instance)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
