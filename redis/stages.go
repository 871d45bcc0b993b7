package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/flowkit/pipeline"
)

// ListSourceConfig configures a list-backed source.
type ListSourceConfig struct {
	// Key is the list popped from.
	Key string
	// BlockTimeout bounds each BLPOP call. Defaults to one second.
	BlockTimeout time.Duration
	// StopWhenEmpty ends the source at the first empty pop instead of
	// blocking for more work.
	StopWhenEmpty bool
}

// NewListSource creates a source popping values from the head of a list.
// Without StopWhenEmpty it blocks for new values until its context ends.
func NewListSource(c *Client, cfg ListSourceConfig, opts ...pipeline.Option) *pipeline.Source[string] {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	next := func(ctx context.Context) (string, bool, error) {
		if cfg.StopWhenEmpty {
			v, err := c.LPop(ctx, cfg.Key)
			switch {
			case IsNil(err):
				return "", false, nil
			case err != nil:
				return "", false, fmt.Errorf("redis lpop %s: %w", cfg.Key, err)
			}
			return v, true, nil
		}
		for {
			v, err := c.BLPop(ctx, cfg.BlockTimeout, cfg.Key)
			switch {
			case IsNil(err):
				if ctx.Err() != nil {
					return "", false, context.Cause(ctx)
				}
				continue
			case err != nil:
				return "", false, fmt.Errorf("redis blpop %s: %w", cfg.Key, err)
			}
			return v, true, nil
		}
	}
	return pipeline.FromFunc(next, append([]pipeline.Option{pipeline.WithName("redis:" + cfg.Key)}, opts...)...)
}

// NewPushSink creates a stage appending each value to the list at key and
// emitting it once stored.
func NewPushSink(name string, c *Client, key string, opts ...pipeline.Option) *pipeline.Stage[string, string] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, v string) (string, error) {
		if err := c.RPush(ctx, key, v); err != nil {
			return "", fmt.Errorf("redis rpush %s: %w", key, err)
		}
		return v, nil
	}), opts...)
}

// DedupeConfig configures Dedupe.
type DedupeConfig struct {
	// Prefix namespaces the marker keys.
	Prefix string
	// TTL is how long a key counts as seen; zero keeps markers forever.
	TTL time.Duration
}

// Dedupe creates a stage that drops items whose key was already seen by
// any process sharing the Redis server. The first item with a key passes.
func Dedupe[T any](name string, c *Client, cfg DedupeConfig, key func(T) string, opts ...pipeline.Option) *pipeline.Stage[T, T] {
	return pipeline.NewStage(name, func(ctx context.Context, in T) (T, bool, error) {
		k := key(in)
		if cfg.Prefix != "" {
			k = cfg.Prefix + ":" + k
		}
		first, err := c.SetNX(ctx, k, 1, cfg.TTL)
		if err != nil {
			var zero T
			return zero, false, fmt.Errorf("redis dedupe %s: %w", k, err)
		}
		return in, first, nil
	}, opts...)
}

// Cached wraps fn so results are stored in store under key(in) for ttl.
// A hit skips fn. Filtered results (ok == false) are not cached.
func Cached[I, O any](name string, store *TypedStore[O], key func(I) string, ttl time.Duration, fn pipeline.TransformFunc[I, O], opts ...pipeline.Option) *pipeline.Stage[I, O] {
	return pipeline.NewStage(name, func(ctx context.Context, in I) (O, bool, error) {
		var zero O
		k := key(in)
		hit, err := store.Load(ctx, k)
		if err != nil {
			return zero, false, err
		}
		if hit != nil {
			return *hit, true, nil
		}
		out, ok, err := fn(ctx, in)
		if err != nil || !ok {
			return out, ok, err
		}
		if err := store.Save(ctx, k, &out, ttl); err != nil {
			return zero, false, err
		}
		return out, true, nil
	}, opts...)
}
