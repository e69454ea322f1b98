package streamlink

import (
	"encoding/json"
	"errors"
	"fmt"

	"audiolink/pkg/relay"
)

var (
	// ErrNoProviderMatched is returned when no registered provider recognizes the URL.
	ErrNoProviderMatched = errors.New("no provider found for URL")
	// ErrCredentialDiscoveryFailed is returned when no API credential could be scraped.
	ErrCredentialDiscoveryFailed = errors.New("credential discovery failed")
	// ErrNetwork marks transport failures and non-2xx responses.
	ErrNetwork = errors.New("network error")
	// ErrSchemaMismatch marks upstream JSON that does not have the expected shape.
	ErrSchemaMismatch = errors.New("upstream schema mismatch")
	// ErrResolutionFailed is the umbrella for failures inside a resolve pipeline.
	ErrResolutionFailed = errors.New("resolution failed")
)

// ResolutionError describes a failed resolution.
// errors.Is matches both ErrResolutionFailed and the wrapped cause.
type ResolutionError struct {
	Provider string
	URL      string
	Reason   string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, ErrResolutionFailed, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, ErrResolutionFailed, e.Reason)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResolutionFailed}
	}
	return []error{ErrResolutionFailed, e.Err}
}

func resolutionFailed(provider, rawURL, reason string, err error) *ResolutionError {
	return &ResolutionError{Provider: provider, URL: rawURL, Reason: reason, Err: err}
}

// networkErr classifies a fetch error as ErrNetwork, keeping the original in the chain.
func networkErr(err error) error {
	if err == nil || errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// schemaErr wraps a decode failure or a missing-field description as ErrSchemaMismatch.
func schemaErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

// decodeJSON unmarshals a relay response, classifying failures as ErrSchemaMismatch.
func decodeJSON(resp *relay.Response, dest any) error {
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return nil
}

// statusCode returns the upstream status code carried by err, or zero.
func statusCode(err error) int {
	var statusErr *relay.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
