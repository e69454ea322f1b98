package streamlink

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// songBuilder assembles a Song while enforcing the shared invariants: a bucket only exists once it
// holds a variant, and every variant carries an upstream mime type and a final URL.
type songBuilder struct {
	title   string
	artwork *string
	streams map[string][]StreamVariant
}

func newSongBuilder(title string) *songBuilder {
	return &songBuilder{
		title:   norm.NFC.String(strings.TrimSpace(title)),
		streams: make(map[string][]StreamVariant),
	}
}

func (b *songBuilder) setArtwork(artworkURL string) {
	if artworkURL == "" {
		b.artwork = nil
		return
	}
	b.artwork = &artworkURL
}

func (b *songBuilder) add(quality string, v StreamVariant) error {
	if quality == "" {
		return schemaErr("stream variant without quality label")
	}
	if v.MimeType == "" {
		return schemaErr("stream variant %q without mime type", quality)
	}
	if v.URL == "" {
		return schemaErr("stream variant %q without url", quality)
	}
	b.streams[quality] = append(b.streams[quality], v)
	return nil
}

func (b *songBuilder) build() (*Song, error) {
	if b.title == "" {
		return nil, schemaErr("missing title")
	}
	return &Song{
		Title:            b.title,
		ArtworkURL:       b.artwork,
		StreamsByQuality: b.streams,
	}, nil
}
