package core

import (
	"errors"

	"audiolink/pkg/streamlink"
)

// Error kinds reported to clients and used as metric labels.
const (
	KindUnsupportedLink = "unsupported_link"
	KindNetwork         = "network"
	KindSchemaMismatch  = "schema_mismatch"
	KindCredential      = "credential"
	KindInternal        = "internal"
)

// ErrorKind classifies a resolution error. Transport problems win over credential problems
// because a failed landing page fetch is reported as both.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, streamlink.ErrNoProviderMatched):
		return KindUnsupportedLink
	case errors.Is(err, streamlink.ErrNetwork):
		return KindNetwork
	case errors.Is(err, streamlink.ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, streamlink.ErrCredentialDiscoveryFailed):
		return KindCredential
	default:
		return KindInternal
	}
}
