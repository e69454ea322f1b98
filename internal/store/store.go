// Package store provides credential persistence and script scan bookkeeping.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Supported credential store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// CredentialStore persists small string values by key.
type CredentialStore interface {
	// Get returns the value for key; found is false if the key was never set.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// Options selects and configures a credential store backend.
type Options struct {
	Driver        string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	DialTimeout   time.Duration
}

// Open creates the credential store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (CredentialStore, error) {
	switch opts.Driver {
	case DriverSQLite:
		s, err := NewSQLiteStore(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s, err := NewRedisStore(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
