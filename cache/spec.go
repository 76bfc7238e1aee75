package cache

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Spec is a parsed cache specification: a compact, comma-separated string
// form of a Config, suitable for flags and config files.
//
//	maximumSize=10000,expireAfterWrite=10m,recordStats
//
// Supported keys:
//
//	initialCapacity=<int>      maximumSize=<int64>    maximumWeight=<int64>
//	concurrencyLevel=<int>     weakKeys               weakValues
//	softValues                 recordStats
//	expireAfterWrite=<dur>     expireAfterAccess=<dur>
//	refreshAfterWrite=<dur>
//
// A duration is a non-negative integer followed by one of the units d, h, m
// or s. Whitespace around keys and values is ignored. Each key may appear
// once; maximumSize and maximumWeight exclude each other, as do weakValues
// and softValues.
type Spec struct {
	cfg  Config
	text string
}

// ParseSpec parses text. The empty string yields a Spec with nothing set.
// A rejected token is reported as a *ConfigError.
func ParseSpec(text string) (Spec, error) {
	s := Spec{cfg: UnsetConfig(), text: text}
	if text == "" {
		return s, nil
	}
	for _, pair := range strings.Split(text, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			return Spec{}, configErrorf(ErrMalformedValue, "", "blank key-value pair in %q", text)
		}
		parts := strings.Split(pair, "=")
		if len(parts) > 2 {
			return Spec{}, configErrorf(ErrMalformedValue, "", "key-value pair %q with more than one equals sign", pair)
		}
		key := strings.TrimSpace(parts[0])
		var value *string
		if len(parts) == 2 {
			v := strings.TrimSpace(parts[1])
			value = &v
		}
		parse, ok := specParsers[key]
		if !ok {
			return Spec{}, configErrorf(ErrUnknownKey, key, "unknown key %q", key)
		}
		if err := parse(&s.cfg, key, value); err != nil {
			return Spec{}, err
		}
	}
	return s, nil
}

// MustParseSpec is like ParseSpec but panics on error.
func MustParseSpec(text string) Spec {
	s, err := ParseSpec(text)
	if err != nil {
		panic(err)
	}
	return s
}

// DisableCaching returns a spec for a cache that stores nothing.
func DisableCaching() Spec { return MustParseSpec("maximumSize=0") }

// Config returns the parsed settings.
func (s Spec) Config() Config { return s.cfg }

// String returns the text the spec was parsed from.
func (s Spec) String() string { return s.text }

// Equal reports whether two specs configure the same cache, regardless of
// how they were written ("expireAfterWrite=60s" equals "expireAfterWrite=1m").
func (s Spec) Equal(o Spec) bool { return s.cfg == o.cfg }

// specParser applies one key. value is nil when the token had no '='.
type specParser func(cfg *Config, key string, value *string) error

var specParsers = map[string]specParser{
	"initialCapacity": intParser(func(cfg *Config, key string, n int64) error {
		if cfg.InitialCapacity != Unset {
			return configErrorf(ErrDuplicateKey, key, "initial capacity was already set to %d", cfg.InitialCapacity)
		}
		cfg.InitialCapacity = int(n)
		return nil
	}, 32),
	"concurrencyLevel": intParser(func(cfg *Config, key string, n int64) error {
		if cfg.ConcurrencyLevel != Unset {
			return configErrorf(ErrDuplicateKey, key, "concurrency level was already set to %d", cfg.ConcurrencyLevel)
		}
		if n == 0 {
			return configErrorf(ErrMalformedValue, key, "concurrency level must be positive")
		}
		cfg.ConcurrencyLevel = int(n)
		return nil
	}, 32),
	"maximumSize": intParser(func(cfg *Config, key string, n int64) error {
		if cfg.MaximumSize != Unset {
			return configErrorf(ErrDuplicateKey, key, "maximum size was already set to %d", cfg.MaximumSize)
		}
		if cfg.MaximumWeight != Unset {
			return configErrorf(ErrConflictingKeys, key, "maximum weight was already set to %d", cfg.MaximumWeight)
		}
		cfg.MaximumSize = n
		return nil
	}, 64),
	"maximumWeight": intParser(func(cfg *Config, key string, n int64) error {
		if cfg.MaximumWeight != Unset {
			return configErrorf(ErrDuplicateKey, key, "maximum weight was already set to %d", cfg.MaximumWeight)
		}
		if cfg.MaximumSize != Unset {
			return configErrorf(ErrConflictingKeys, key, "maximum size was already set to %d", cfg.MaximumSize)
		}
		cfg.MaximumWeight = n
		return nil
	}, 64),
	"weakKeys": flagParser(func(cfg *Config, key string) error {
		if cfg.KeyStrength != Strong {
			return configErrorf(ErrDuplicateKey, key, "%s was already set to %s", key, cfg.KeyStrength)
		}
		cfg.KeyStrength = Weak
		return nil
	}),
	"weakValues": valueStrengthParser(Weak),
	"softValues": valueStrengthParser(Soft),
	"recordStats": flagParser(func(cfg *Config, key string) error {
		if cfg.RecordStats {
			return configErrorf(ErrDuplicateKey, key, "recordStats already set")
		}
		cfg.RecordStats = true
		return nil
	}),
	"expireAfterWrite":  durationParser(func(cfg *Config) *time.Duration { return &cfg.ExpireAfterWrite }),
	"expireAfterAccess": durationParser(func(cfg *Config) *time.Duration { return &cfg.ExpireAfterAccess }),
	"refreshAfterWrite": durationParser(func(cfg *Config) *time.Duration { return &cfg.RefreshAfterWrite }),
}

func requireValue(key string, value *string) (string, error) {
	if value == nil || *value == "" {
		return "", configErrorf(ErrMissingValue, key, "value of key %s omitted", key)
	}
	return *value, nil
}

// intParser parses a non-negative integer of the given bit size.
func intParser(set func(cfg *Config, key string, n int64) error, bitSize int) specParser {
	return func(cfg *Config, key string, value *string) error {
		v, err := requireValue(key, value)
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(v, 10, bitSize)
		if err != nil || n < 0 {
			return configErrorf(ErrMalformedValue, key, "key %s value set to %s, must be a non-negative integer", key, v)
		}
		return set(cfg, key, n)
	}
}

// flagParser accepts only a bare key.
func flagParser(set func(cfg *Config, key string) error) specParser {
	return func(cfg *Config, key string, value *string) error {
		if value != nil {
			return configErrorf(ErrUnexpectedValue, key, "key %s does not take values", key)
		}
		return set(cfg, key)
	}
}

func valueStrengthParser(s Strength) specParser {
	return flagParser(func(cfg *Config, key string) error {
		switch cfg.ValueStrength {
		case Strong:
			cfg.ValueStrength = s
			return nil
		case s:
			return configErrorf(ErrDuplicateKey, key, "%s was already set to %s", key, s)
		default:
			return configErrorf(ErrConflictingKeys, key, "%s conflicts with value strength %s", key, cfg.ValueStrength)
		}
	})
}

var durationUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

func durationParser(field func(cfg *Config) *time.Duration) specParser {
	return func(cfg *Config, key string, value *string) error {
		v, err := requireValue(key, value)
		if err != nil {
			return err
		}
		f := field(cfg)
		if *f != Unset {
			return configErrorf(ErrDuplicateKey, key, "%s already set", key)
		}
		d, err := parseSpecDuration(v)
		if err != nil {
			return configErrorf(unwrapKind(err), key, "key %s value %q: %v", key, v, err)
		}
		*f = d
		return nil
	}
}

var (
	errNoUnit    = errors.New("missing time unit")
	errBadAmount = errors.New("amount must be a non-negative integer")
	errOverflow  = errors.New("duration overflows")
)

// parseSpecDuration parses "<n><unit>" with unit one of d, h, m, s.
func parseSpecDuration(v string) (time.Duration, error) {
	unit, ok := durationUnits[v[len(v)-1]]
	if !ok {
		return 0, errNoUnit
	}
	n, err := strconv.ParseInt(v[:len(v)-1], 10, 64)
	if err != nil || n < 0 {
		return 0, errBadAmount
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, errOverflow
	}
	return time.Duration(n) * unit, nil
}

func unwrapKind(err error) error {
	if errors.Is(err, errNoUnit) {
		return ErrInvalidUnit
	}
	return ErrMalformedValue
}
