package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	cfg := newConfig()
	path := writeConfig(t, `
impl = "segcache"
spec = "maximumSize=500,expireAfterWrite=1m"
duration = "3s"
reads = 95
load_latency = "2ms"
`)
	require.NoError(t, loadConfigFile(path, &cfg))

	s, err := cfg.validate()
	require.NoError(t, err)
	require.Equal(t, int64(500), s.spec.Config().MaximumSize)
	require.Equal(t, time.Minute, s.spec.Config().ExpireAfterWrite)
	require.Equal(t, 3*time.Second, s.duration)
	require.Equal(t, 2*time.Millisecond, s.loadLatency)
	require.Equal(t, 95, s.ReadPct)
}

func TestLoadConfigFile_UnknownKey(t *testing.T) {
	cfg := newConfig()
	path := writeConfig(t, "impl = \"lru\"\ncapasity = 10\n")
	err := loadConfigFile(path, &cfg)
	require.ErrorContains(t, err, "capasity")
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Impl = "arc" },
		func(c *Config) { c.Spec = "maximumSize=1,maximumSize=2" },
		func(c *Config) { c.Duration = "soon" },
		func(c *Config) { c.ReadPct = 101 },
		func(c *Config) { c.ZipfS = 1 },
		func(c *Config) { c.Impl, c.Capacity = "lru", 0 },
	}
	for i, mutate := range bad {
		cfg := newConfig()
		mutate(&cfg)
		_, err := cfg.validate()
		require.Error(t, err, "case %d", i)
	}

	cfg := newConfig()
	cfg.Workers = 0
	s, err := cfg.validate()
	require.NoError(t, err)
	require.Equal(t, 1, s.Workers)
	require.Equal(t, cfg.Capacity/2, s.Preload)
}

func TestTargets(t *testing.T) {
	cfg := newConfig()
	cfg.Spec = "maximumSize=10"
	s, err := cfg.validate()
	require.NoError(t, err)

	seg, err := newSegTarget(s, nil)
	require.NoError(t, err)
	base, err := newLRUTarget(10)
	require.NoError(t, err)

	for _, tg := range []target{seg, base} {
		tg.put("a", "1")
		v, ok := tg.get(t.Context(), "a")
		require.True(t, ok)
		require.Equal(t, "1", v)
		_, ok = tg.get(t.Context(), "zzz")
		require.False(t, ok)
		require.Equal(t, int64(1), tg.size())
	}

	// With a load latency, misses are loaded.
	s.loadLatency = time.Millisecond
	seg, err = newSegTarget(s, nil)
	require.NoError(t, err)
	v, ok := seg.get(t.Context(), "k")
	require.True(t, ok)
	require.Equal(t, "loaded:k", v)
}
