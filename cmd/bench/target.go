package main

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/IvanBrykalov/segcache/cache"
)

// target is the cache under test.
type target interface {
	get(ctx context.Context, k string) (string, bool)
	put(k, v string)
	size() int64
}

// segTarget drives a segcache LoadingCache. With a zero loadLatency reads
// use GetIfPresent; otherwise misses are loaded through GetOrLoad.
type segTarget struct {
	c           cache.LoadingCache[string, string]
	loadLatency time.Duration
}

func newSegTarget(s settings, stats cache.StatsCounter) (*segTarget, error) {
	b := cache.NewBuilderFromSpec[string, string](s.spec)
	if s.spec.Config().RecordStats {
		b = b.StatsCounter(stats)
	}
	latency := s.loadLatency
	c, err := b.BuildLoading(cache.LoaderFunc[string, string](func(ctx context.Context, k string) (string, error) {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "loaded:" + k, nil
	}))
	if err != nil {
		return nil, err
	}
	return &segTarget{c: c, loadLatency: latency}, nil
}

func (t *segTarget) get(ctx context.Context, k string) (string, bool) {
	if t.loadLatency <= 0 {
		return t.c.GetIfPresent(k)
	}
	v, err := t.c.GetOrLoad(ctx, k)
	return v, err == nil
}

func (t *segTarget) put(k, v string) { t.c.Put(k, v) }
func (t *segTarget) size() int64    { return t.c.Size() }

// lruTarget is the baseline: a single-lock LRU.
type lruTarget struct{ c *lru.Cache }

func newLRUTarget(capacity int) (*lruTarget, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &lruTarget{c: c}, nil
}

func (t *lruTarget) get(_ context.Context, k string) (string, bool) {
	v, ok := t.c.Get(k)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (t *lruTarget) put(k, v string) { t.c.Add(k, v) }
func (t *lruTarget) size() int64    { return int64(t.c.Len()) }
