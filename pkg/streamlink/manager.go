package streamlink

import (
	"context"
)

// Manager dispatches URLs to the first registered provider that recognizes them.
type Manager struct {
	providers []Provider
}

// NewManager creates a manager that tries providers in the given order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{
		providers: append([]Provider(nil), providers...),
	}
}

// Resolve resolves the URL with the first matching provider.
func (m *Manager) Resolve(ctx context.Context, url string) (*Song, error) {
	provider, ok := m.Match(url)
	if !ok {
		return nil, ErrNoProviderMatched
	}
	return provider.Resolve(ctx, url)
}

// Match returns the first provider that can resolve the URL.
func (m *Manager) Match(url string) (Provider, bool) {
	for _, provider := range m.providers {
		if provider.CanResolve(url) {
			return provider, true
		}
	}
	return nil, false
}

// CanResolve checks if any provider can handle the given URL.
func (m *Manager) CanResolve(url string) bool {
	_, ok := m.Match(url)
	return ok
}

// Providers returns the names of the registered providers in dispatch order.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for _, provider := range m.providers {
		names = append(names, provider.Name())
	}
	return names
}
