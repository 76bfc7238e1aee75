package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/IvanBrykalov/segcache/cache"
)

// Config is the benchmark configuration. It can be read from a TOML file
// with -config; command-line flags given explicitly take precedence.
type Config struct {
	Impl     string `toml:"impl"`     // segcache | lru
	Spec     string `toml:"spec"`     // cache spec, e.g. "maximumSize=100000,recordStats"
	Capacity int    `toml:"capacity"` // entry bound for the lru baseline

	Workers  int     `toml:"workers"`
	Duration string  `toml:"duration"`
	ReadPct  int     `toml:"reads"`
	Keys     int     `toml:"keys"`
	ZipfS    float64 `toml:"zipf_s"`
	ZipfV    float64 `toml:"zipf_v"`
	Seed     int64   `toml:"seed"`
	Preload  int     `toml:"preload"`

	// LoadLatency > 0 switches reads to GetOrLoad with a loader that sleeps
	// this long (segcache only).
	LoadLatency string `toml:"load_latency"`

	PprofAddr   string `toml:"pprof"`
	MetricsAddr string `toml:"http"`

	LogFile       string `toml:"log_file"`
	LogLevel      string `toml:"log_level"`
	LogMaxSize    int    `toml:"log_max_size"`
	LogMaxAge     int    `toml:"log_max_age"`
	LogMaxBackups int    `toml:"log_max_backups"`
}

func newConfig() Config {
	return Config{
		Impl:          "segcache",
		Spec:          "maximumSize=100000,recordStats",
		Capacity:      100_000,
		Workers:       2 * runtime.GOMAXPROCS(0),
		Duration:      "10s",
		ReadPct:       80,
		Keys:          1_000_000,
		ZipfS:         1.1,
		ZipfV:         1.0,
		Seed:          time.Now().UnixNano(),
		MetricsAddr:   ":8080",
		LogLevel:      "info",
		LogMaxSize:    10,
		LogMaxAge:     7,
		LogMaxBackups: 3,
	}
}

// loadConfigFile overlays the settings in path onto cfg. Unknown keys are
// an error.
func loadConfigFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unsupported key in configuration file: [%s]", undecoded[0])
	}
	return nil
}

// settings is the validated form of Config.
type settings struct {
	Config
	spec        cache.Spec
	duration    time.Duration
	loadLatency time.Duration
}

func (c Config) validate() (settings, error) {
	s := settings{Config: c}
	var err error
	switch c.Impl {
	case "segcache":
		if s.spec, err = cache.ParseSpec(c.Spec); err != nil {
			return s, fmt.Errorf("spec: %w", err)
		}
	case "lru":
		if c.Capacity <= 0 {
			return s, fmt.Errorf("capacity must be positive for the lru baseline")
		}
	default:
		return s, fmt.Errorf("unknown impl %q (use segcache or lru)", c.Impl)
	}
	if s.duration, err = time.ParseDuration(c.Duration); err != nil {
		return s, fmt.Errorf("duration: %w", err)
	}
	if c.LoadLatency != "" {
		if s.loadLatency, err = time.ParseDuration(c.LoadLatency); err != nil {
			return s, fmt.Errorf("load_latency: %w", err)
		}
	}
	if c.ReadPct < 0 || c.ReadPct > 100 {
		return s, fmt.Errorf("reads must be in [0, 100], got %d", c.ReadPct)
	}
	if c.Keys < 2 {
		return s, fmt.Errorf("keys must be at least 2")
	}
	if c.ZipfS <= 1 {
		return s, fmt.Errorf("zipf_s must be > 1")
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.Preload == 0 {
		s.Preload = s.Capacity / 2
	}
	return s, nil
}
