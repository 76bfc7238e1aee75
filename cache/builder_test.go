package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

type blob struct{ b [64]byte }

func TestBuilder_Config(t *testing.T) {
	t.Parallel()

	b := NewBuilder[string, int]().
		InitialCapacity(64).
		ConcurrencyLevel(8).
		MaximumSize(1000).
		ExpireAfterWrite(time.Minute).
		RecordStats()

	cfg := b.Config()
	require.Equal(t, 64, cfg.InitialCapacity)
	require.Equal(t, 8, cfg.ConcurrencyLevel)
	require.Equal(t, int64(1000), cfg.MaximumSize)
	require.Equal(t, int64(Unset), cfg.MaximumWeight)
	require.Equal(t, time.Minute, cfg.ExpireAfterWrite)
	require.Equal(t, time.Duration(Unset), cfg.ExpireAfterAccess)
	require.True(t, cfg.RecordStats)

	_, err := b.Build()
	require.NoError(t, err)
}

func TestBuilder_FromSpec(t *testing.T) {
	t.Parallel()

	spec := MustParseSpec("maximumSize=100,expireAfterAccess=5m")
	b := NewBuilderFromSpec[string, string](spec)
	require.Equal(t, spec.Config(), b.Config())

	c, err := b.Build()
	require.NoError(t, err)
	c.Put("k", "v")
	v, ok := c.GetIfPresent("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	// A setter repeating a spec key is a duplicate.
	_, err = NewBuilderFromSpec[string, string](spec).MaximumSize(5).Build()
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestBuilder_Validation(t *testing.T) {
	t.Parallel()

	weigher := func(string, int) int { return 1 }
	cases := []struct {
		name  string
		build func() error
		kind  error
	}{
		{"negative size", func() error {
			_, err := NewBuilder[string, int]().MaximumSize(-1).Build()
			return err
		}, ErrMalformedValue},
		{"zero concurrency", func() error {
			_, err := NewBuilder[string, int]().ConcurrencyLevel(0).Build()
			return err
		}, ErrMalformedValue},
		{"duplicate expiry", func() error {
			_, err := NewBuilder[string, int]().ExpireAfterAccess(time.Second).ExpireAfterAccess(time.Second).Build()
			return err
		}, ErrDuplicateKey},
		{"negative duration", func() error {
			_, err := NewBuilder[string, int]().ExpireAfterWrite(-time.Second).Build()
			return err
		}, ErrMalformedValue},
		{"size and weight", func() error {
			_, err := NewBuilder[string, int]().MaximumSize(1).MaximumWeight(1).Build()
			return err
		}, ErrConflictingKeys},
		{"weigher with size", func() error {
			_, err := NewBuilder[string, int]().MaximumSize(1).Weigher(weigher).Build()
			return err
		}, ErrConflictingKeys},
		{"weigher without weight", func() error {
			_, err := NewBuilder[string, int]().Weigher(weigher).Build()
			return err
		}, ErrInvalidConfig},
		{"weak string keys", func() error {
			_, err := NewBuilder[string, int]().WeakKeys().Build()
			return err
		}, ErrInvalidConfig},
		{"soft int values", func() error {
			_, err := NewBuilder[string, int]().SoftValues().Build()
			return err
		}, ErrInvalidConfig},
		{"weak then soft", func() error {
			_, err := NewBuilder[string, *blob]().WeakValues().SoftValues().Build()
			return err
		}, ErrConflictingKeys},
		{"zero refresh", func() error {
			_, err := NewBuilder[string, int]().RefreshAfterWrite(0).
				BuildLoading(LoaderFunc[string, int](func(context.Context, string) (int, error) { return 0, nil }))
			return err
		}, ErrMalformedValue},
		{"refresh without loader", func() error {
			_, err := NewBuilder[string, int]().RefreshAfterWrite(time.Second).Build()
			return err
		}, ErrInvalidConfig},
		{"nil loader", func() error {
			_, err := NewBuilder[string, int]().BuildLoading(nil)
			return err
		}, ErrInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			require.ErrorIs(t, err, tc.kind)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
		})
	}
}

// Every problem is reported at once.
func TestBuilder_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder[string, int]().
		MaximumSize(-1).
		WeakKeys().
		WeakValues().
		RefreshAfterWrite(time.Second).
		Build()

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 4)
	require.ErrorIs(t, err, ErrMalformedValue)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewBuilder[string, int]().MaximumWeight(-5).MustBuild() })
	require.Panics(t, func() { NewBuilder[string, int]().MustBuildLoading(nil) })
	require.NotPanics(t, func() { NewBuilder[*blob, string]().WeakKeys().MustBuild() })
}
