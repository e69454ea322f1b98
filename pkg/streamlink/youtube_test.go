package streamlink

import (
	"context"
	"strings"
	"testing"
)

const (
	testVideoID = "dQw4w9WgXcQ"

	testVideoJSON = `{
		"title": "Never Gonna Give You Up",
		"adaptiveFormats": [
			{"url": "https://rr1.example/videoplayback?itag=137", "itag": "137", "type": "video/mp4; codecs=\"avc1.640028\""},
			{"url": "https://rr1.example/videoplayback?itag=140", "itag": "140", "type": "audio/mp4; codecs=\"mp4a.40.2\""},
			{"url": "https://rr1.example/videoplayback?itag=251", "itag": "251", "type": "audio/webm; codecs=\"opus\""},
			{"url": "https://rr1.example/videoplayback?itag=248", "itag": "248", "type": "video/webm; codecs=\"vp9\""}
		],
		"videoThumbnails": [
			{"quality": "maxres", "url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxres.jpg"},
			{"quality": "high", "url": "/vi/dQw4w9WgXcQ/hqdefault.jpg"},
			{"quality": "default", "url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg"}
		]
	}`
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		ok       bool
	}{
		{name: "Watch URL", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Watch URL with extra params first", url: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Watch URL with trailing params", url: "https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", expected: testVideoID, ok: true},
		{name: "Short link", url: "https://youtu.be/dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Short link with query", url: "https://youtu.be/dQw4w9WgXcQ?si=abc", expected: testVideoID, ok: true},
		{name: "Mobile", url: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Music", url: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Embed", url: "https://www.youtube.com/embed/dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Shorts", url: "https://www.youtube.com/shorts/dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "No scheme", url: "youtu.be/dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Uppercase host keeps id case", url: "HTTPS://WWW.YOUTUBE.COM/watch?v=dQw4w9WgXcQ", expected: testVideoID, ok: true},
		{name: "Id too short", url: "https://youtu.be/dQw4w9WgXc", ok: false},
		{name: "Id too long", url: "https://youtu.be/dQw4w9WgXcQQ", ok: false},
		{name: "Channel page", url: "https://www.youtube.com/@rickastley", ok: false},
		{name: "SoundCloud URL", url: "https://soundcloud.com/artist/track", ok: false},
		{name: "Empty", url: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractVideoID(tt.url)
			if ok != tt.ok {
				t.Fatalf("extractVideoID() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.expected {
				t.Errorf("extractVideoID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestYouTubeProvider_CanResolve(t *testing.T) {
	p := NewYouTubeProvider(nil)

	if !p.CanResolve("https://youtu.be/dQw4w9WgXcQ") {
		t.Error("CanResolve() = false for short link, want true")
	}
	if p.CanResolve("https://vimeo.com/12345") {
		t.Error("CanResolve() = true for vimeo, want false")
	}
}

func TestYouTubeProvider_VideoAPIURL(t *testing.T) {
	p := NewYouTubeProvider(nil, WithInvidiousInstance("https://yewtu.be/"))

	want := "https://yewtu.be/api/v1/videos/dQw4w9WgXcQ?fields=adaptiveFormats,title,videoThumbnails"
	if got := p.VideoAPIURL(testVideoID); got != want {
		t.Errorf("VideoAPIURL() = %q, want %q", got, want)
	}
}

func TestYouTubeProvider_Resolve(t *testing.T) {
	up := newUpstream(t)
	up.videos[testVideoID] = testVideoJSON

	p := NewYouTubeProvider(up.fetcher(), WithInvidiousInstance(up.srv.URL))
	song, err := p.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	if song.Title != "Never Gonna Give You Up" {
		t.Errorf("Title = %q", song.Title)
	}

	wantArtwork := up.srv.URL + "/vi/dQw4w9WgXcQ/hqdefault.jpg"
	if song.ArtworkURL == nil || *song.ArtworkURL != wantArtwork {
		t.Errorf("ArtworkURL = %v, want %q", song.ArtworkURL, wantArtwork)
	}

	if strings.Join(song.Qualities(), ",") != "140,251" {
		t.Fatalf("Qualities() = %v, want [140 251] (video formats dropped)", song.Qualities())
	}

	aac := song.Variants("140")
	if len(aac) != 1 {
		t.Fatalf("len(Variants(140)) = %d, want 1", len(aac))
	}
	if aac[0].IsAdaptive {
		t.Error("YouTube variant marked adaptive")
	}
	if aac[0].MimeType != `audio/mp4; codecs="mp4a.40.2"` {
		t.Errorf("MimeType = %q", aac[0].MimeType)
	}
	if aac[0].URL != "https://rr1.example/videoplayback?itag=140" {
		t.Errorf("URL = %q", aac[0].URL)
	}

	if up.relayCount() != 0 {
		t.Errorf("relay fetches = %d, want 0 (mirror is fetched directly)", up.relayCount())
	}
	if up.directCount() != 1 {
		t.Errorf("direct fetches = %d, want 1", up.directCount())
	}
}

func TestYouTubeProvider_ResolveWithoutHighThumbnail(t *testing.T) {
	up := newUpstream(t)
	up.videos[testVideoID] = `{
		"title": "No Art",
		"adaptiveFormats": [{"url": "https://rr1.example/a", "itag": "140", "type": "audio/mp4"}],
		"videoThumbnails": [{"quality": "default", "url": "https://i.ytimg.com/default.jpg"}]
	}`

	p := NewYouTubeProvider(up.fetcher(), WithInvidiousInstance(up.srv.URL))
	song, err := p.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if song.ArtworkURL != nil {
		t.Errorf("ArtworkURL = %q, want nil", *song.ArtworkURL)
	}
}

func TestYouTubeProvider_ResolveNoAudio(t *testing.T) {
	up := newUpstream(t)
	up.videos[testVideoID] = `{
		"title": "Silent",
		"adaptiveFormats": [{"url": "https://rr1.example/v", "itag": "137", "type": "video/mp4"}],
		"videoThumbnails": []
	}`

	p := NewYouTubeProvider(up.fetcher(), WithInvidiousInstance(up.srv.URL))
	song, err := p.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if len(song.StreamsByQuality) != 0 {
		t.Errorf("StreamsByQuality = %v, want empty", song.StreamsByQuality)
	}
}

func TestYouTubeProvider_ResolveFailures(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		url   string
		cause error
	}{
		{name: "Video unknown to mirror", url: "https://youtu.be/aaaaaaaaaaa", cause: ErrNetwork},
		{name: "Missing adaptiveFormats", body: `{"title": "x", "videoThumbnails": []}`, cause: ErrSchemaMismatch},
		{name: "Not JSON", body: `<html>rate limited</html>`, cause: ErrSchemaMismatch},
		{name: "Missing title", body: `{"adaptiveFormats": []}`, cause: ErrSchemaMismatch},
		{name: "URL without video id", url: "https://www.youtube.com/feed/trending", cause: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t)
			if tt.body != "" {
				up.videos[testVideoID] = tt.body
			}
			rawURL := tt.url
			if rawURL == "" {
				rawURL = "https://youtu.be/dQw4w9WgXcQ"
			}

			p := NewYouTubeProvider(up.fetcher(), WithInvidiousInstance(up.srv.URL))
			song, err := p.Resolve(context.Background(), rawURL)
			if song != nil {
				t.Errorf("Resolve() returned song %+v", song)
			}
			assertResolutionFailed(t, err, tt.cause)
		})
	}
}

func TestYouTubeProvider_ResolveViaRelay(t *testing.T) {
	up := newUpstream(t)

	p := NewYouTubeProvider(up.fetcher(), WithInvidiousInstance(up.srv.URL), WithInvidiousViaRelay(true))
	_, _ = p.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	targets := up.relayedTargets()
	if len(targets) != 1 || targets[0] != p.VideoAPIURL(testVideoID) {
		t.Errorf("relayed targets = %v, want [%s]", targets, p.VideoAPIURL(testVideoID))
	}
	if up.directCount() != 0 {
		t.Errorf("direct fetches = %d, want 0", up.directCount())
	}
}
