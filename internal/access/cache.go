package access

import (
	"context"
	"sync"
)

type cacheKey struct{}

type requestCache struct {
	mu      sync.Mutex
	entries map[string]any
}

// WithRequestCache attaches a lookup cache to ctx. Resolvers called with the
// returned context hit the store at most once per key. Errors are never cached.
func WithRequestCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(cacheKey{}).(*requestCache); ok {
		return ctx
	}
	return context.WithValue(ctx, cacheKey{}, &requestCache{entries: make(map[string]any)})
}

func cachedLookup[T any](ctx context.Context, key string, load func() (T, error)) (T, error) {
	c, _ := ctx.Value(cacheKey{}).(*requestCache)
	if c == nil {
		return load()
	}

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v.(T), nil
	}
	c.mu.Unlock()

	v, err := load()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	return v, nil
}
