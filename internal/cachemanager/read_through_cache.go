package cachemanager

import (
	"context"
	"sync"
	"time"
)

// ReadThroughOptions tunes a ReadThroughCache.
type ReadThroughOptions struct {
	// Bypass sends every Get straight to the loader.
	Bypass bool
	// NegativeTTL remembers loader errors matched by Negative for this long,
	// so repeated lookups of a missing key do not reach the backend.
	NegativeTTL time.Duration
	Negative    func(error) bool
}

type negative struct {
	err     error
	expires time.Time
}

type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// ReadThroughCache serves values from cache and falls back to a loader on a
// miss. Concurrent misses for one key share a single loader call.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache CacheManager[K, V]
	load  func(ctx context.Context, input I) (V, error)
	opts  ReadThroughOptions
	now   func() time.Time

	mu       sync.Mutex
	calls    map[K]*inflight[V]
	negative map[K]negative
}

func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	load func(ctx context.Context, input I) (V, error),
	opts ReadThroughOptions,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:    cache,
		load:     load,
		opts:     opts,
		now:      time.Now,
		calls:    make(map[K]*inflight[V]),
		negative: make(map[K]negative),
	}
}

// Get returns the cached value for key, loading it from input on a miss and
// caching it for ttl.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.opts.Bypass {
		return r.load(ctx, input)
	}
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	r.mu.Lock()
	// A load may have finished between the first check and taking the lock.
	if value, ok := r.cache.Get(ctx, key); ok {
		r.mu.Unlock()
		return value, nil
	}
	if n, ok := r.negative[key]; ok {
		if r.now().Before(n.expires) {
			r.mu.Unlock()
			var zero V
			return zero, n.err
		}
		delete(r.negative, key)
	}
	if call, ok := r.calls[key]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	call := &inflight[V]{done: make(chan struct{})}
	r.calls[key] = call
	r.mu.Unlock()

	call.value, call.err = r.load(ctx, input)

	r.mu.Lock()
	delete(r.calls, key)
	switch {
	case call.err == nil:
		r.cache.Set(ctx, key, call.value, ttl)
	case r.opts.NegativeTTL > 0 && r.opts.Negative != nil && r.opts.Negative(call.err):
		r.negative[key] = negative{err: call.err, expires: r.now().Add(r.opts.NegativeTTL)}
	}
	r.mu.Unlock()
	close(call.done)

	return call.value, call.err
}

// Forget drops key from the cache and from the negative entries.
func (r *ReadThroughCache[K, V, I]) Forget(ctx context.Context, key K) {
	r.mu.Lock()
	delete(r.negative, key)
	r.mu.Unlock()
	_ = r.cache.Delete(ctx, key)
}
