package cache

import (
	"errors"
	"fmt"
)

// ErrNoLoader is returned by GetOrLoad, GetAll and Refresh when the cache
// was built without a Loader.
var ErrNoLoader = errors.New("cache: no Loader provided")

// ErrInvalidLoad is wrapped in a LoadError when a loader returns a nil
// pointer, interface, func or chan, or when a bulk load omits a requested key.
var ErrInvalidLoad = errors.New("cache: loader returned no value")

// ErrLoaderPanic is wrapped in a LoadError when a loader panics.
var ErrLoaderPanic = errors.New("cache: loader panicked")

// Configuration error kinds. A *ConfigError unwraps to exactly one of them.
var (
	ErrUnknownKey      = errors.New("unknown key")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrMissingValue    = errors.New("missing value")
	ErrUnexpectedValue = errors.New("unexpected value")
	ErrConflictingKeys = errors.New("conflicting keys")
	ErrMalformedValue  = errors.New("malformed value")
	ErrInvalidUnit     = errors.New("invalid time unit")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// ConfigError reports a rejected spec token or builder setting.
type ConfigError struct {
	Key string // offending key, e.g. "maximumSize"
	Err error  // one of the Err* kinds above
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: %s: %s", e.Err, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(kind error, key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Err: kind, Msg: fmt.Sprintf(format, args...)}
}

// LoadError reports a failed load. Shared is true when the caller did not
// run the loader itself but waited on another goroutine's load of the same
// key.
type LoadError struct {
	Err    error
	Shared bool
}

func (e *LoadError) Error() string {
	if e.Shared {
		return "cache: load failed in another goroutine: " + e.Err.Error()
	}
	return "cache: load failed: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }
