// Package streamlink resolves media page URLs from third-party platforms into playable audio stream variants.
package streamlink

import (
	"context"
	"sort"

	"audiolink/pkg/relay"
)

// StreamVariant is one directly fetchable media URL for a quality tier.
type StreamVariant struct {
	IsAdaptive bool   `json:"isAdaptive"` // Must be handed to an HLS-capable player.
	MimeType   string `json:"mimeType"`   // Copied verbatim from upstream.
	URL        string `json:"url"`        // Final, time-limited media URL.
}

// Song is the platform-agnostic result of a resolution.
type Song struct {
	Title            string                     `json:"title"`
	ArtworkURL       *string                    `json:"artworkUrl"`
	StreamsByQuality map[string][]StreamVariant `json:"streamsByQuality"`
}

// Qualities returns the quality labels in sorted order.
func (s *Song) Qualities() []string {
	qualities := make([]string, 0, len(s.StreamsByQuality))
	for q := range s.StreamsByQuality {
		qualities = append(qualities, q)
	}
	sort.Strings(qualities)
	return qualities
}

// Variants returns the variants for a quality label, or nil if the label is unknown.
func (s *Song) Variants(quality string) []StreamVariant {
	return s.StreamsByQuality[quality]
}

// Provider recognizes URLs of one platform and resolves them to songs.
type Provider interface {
	// Name returns a short identifier such as "soundcloud".
	Name() string

	// CanResolve reports whether the URL belongs to this provider. It performs no I/O.
	CanResolve(url string) bool

	// Resolve fetches and normalizes the streams behind the URL.
	Resolve(ctx context.Context, url string) (*Song, error)
}

// Fetcher performs GETs either through the CORS relay or directly.
// *relay.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*relay.Response, error)
	FetchDirect(ctx context.Context, target string) (*relay.Response, error)
}

// CredentialStore is a small persistent key-value capability.
type CredentialStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// ScriptLedger remembers script bundles that were scanned and held no credential.
type ScriptLedger interface {
	Has(scriptURL string) bool
	Add(scriptURL string)
}
