package streamlink

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// CredentialStoreKey is the store key under which the SoundCloud client id is cached.
	CredentialStoreKey = "soundcloud_client_id"

	// Discovery results reported to the DiscoveryRecorder.
	DiscoveryCached  = "cached"
	DiscoveryFound   = "found"
	DiscoveryFailed  = "failed"
	maskedPrefixSize = 4
)

// Both patterns follow youtube-dl's SoundCloud extractor. They match upstream markup literally and
// break whenever SoundCloud changes how it embeds bundles or the key.
var (
	scriptSrcRegex = regexp.MustCompile(`<script[^>]+src="([^"]+)"`)
	clientIDRegex  = regexp.MustCompile(`client_id["']?\s*[:=]\s*["']?([0-9a-zA-Z]{32})(?:[^0-9a-zA-Z]|$)`)
)

// DiscoveryRecorder observes credential acquisition outcomes.
type DiscoveryRecorder interface {
	RecordDiscovery(result string)
}

// loadCredential reads the cached client id, or discovers and stores a new one.
func (p *SoundCloudProvider) loadCredential(ctx context.Context) (string, error) {
	cached, found, err := p.store.Get(ctx, CredentialStoreKey)
	if err != nil {
		p.recordDiscovery(DiscoveryFailed)
		return "", fmt.Errorf("%w: failed to read cached client id: %w", ErrCredentialDiscoveryFailed, err)
	}
	if found && cached != "" {
		p.logger.Debug("Using client id from store", zap.String("client_id", maskCredential(cached)))
		p.recordDiscovery(DiscoveryCached)
		return cached, nil
	}
	return p.discover(ctx)
}

// discover scrapes the landing page for script bundles and scans them latest-first for a client id.
func (p *SoundCloudProvider) discover(ctx context.Context) (string, error) {
	p.logger.Info("Discovering SoundCloud client id", zap.String("landing_url", p.landingURL))

	srcs, err := p.fetchScriptSources(ctx)
	if err != nil {
		p.recordDiscovery(DiscoveryFailed)
		return "", fmt.Errorf("%w: %w", ErrCredentialDiscoveryFailed, err)
	}

	scanned := 0
	for _, src := range srcs {
		if p.ledger != nil && p.ledger.Has(src) {
			continue
		}

		resp, err := p.fetcher.FetchDirect(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				p.recordDiscovery(DiscoveryFailed)
				return "", fmt.Errorf("%w: %w", ErrCredentialDiscoveryFailed, ctx.Err())
			}
			p.logger.Warn("Failed to fetch script", zap.String("src", src), zap.Error(err))
			continue
		}
		scanned++

		clientID := findClientID(resp.Text())
		if clientID == "" {
			if p.ledger != nil {
				p.ledger.Add(src)
			}
			continue
		}

		p.logger.Info("Discovered SoundCloud client id",
			zap.String("client_id", maskCredential(clientID)),
			zap.String("src", src))

		if err := p.store.Set(ctx, CredentialStoreKey, clientID); err != nil {
			p.logger.Warn("Failed to store client id", zap.Error(err))
		}
		p.recordDiscovery(DiscoveryFound)
		return clientID, nil
	}

	p.recordDiscovery(DiscoveryFailed)
	return "", fmt.Errorf("%w: no client id in %d of %d scripts", ErrCredentialDiscoveryFailed, scanned, len(srcs))
}

// fetchScriptSources returns the landing page's script URLs, last script first.
func (p *SoundCloudProvider) fetchScriptSources(ctx context.Context) ([]string, error) {
	resp, err := p.fetcher.Fetch(ctx, p.landingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", p.landingURL, networkErr(err))
	}

	srcs := extractScriptSources(resp.Text(), p.landingURL)
	p.logger.Debug("Found script sources", zap.Int("count", len(srcs)))
	return lo.Reverse(srcs), nil
}

// extractScriptSources returns every <script src> in document order, resolved against base.
func extractScriptSources(html, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	var srcs []string
	for _, m := range scriptSrcRegex.FindAllStringSubmatch(html, -1) {
		src := m[1]
		if baseURL != nil {
			if ref, err := url.Parse(src); err == nil {
				src = baseURL.ResolveReference(ref).String()
			}
		}
		srcs = append(srcs, src)
	}
	return srcs
}

// findClientID returns the first 32-character client id in a script, or "".
func findClientID(script string) string {
	m := clientIDRegex.FindStringSubmatch(script)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func maskCredential(credential string) string {
	if len(credential) <= maskedPrefixSize {
		return "…"
	}
	return credential[:maskedPrefixSize] + "…"
}

func (p *SoundCloudProvider) recordDiscovery(result string) {
	if p.discoveries != nil {
		p.discoveries.RecordDiscovery(result)
	}
}
