package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or sits behind
// an open breaker.
var ErrAllFailed = errors.New("all providers failed")

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain holds an ordered list of named providers of the same type, each
// guarded by its own [Breaker]. Entries are tried in registration order;
// the first success wins.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     BreakerConfig
}

// NewChain creates an empty [Chain]. cfg seeds every entry's breaker
// (the Name field is overridden per entry).
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a provider to the end of the chain.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Len returns the number of registered entries.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Names returns entry names in chain order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Run tries fn against each chain entry until one succeeds, returning the
// result and the name of the winning entry. Open breakers are skipped.
// When the chain is exhausted the last error is wrapped in [ErrAllFailed].
//
// Package-level because Go methods cannot introduce the result type parameter.
func Run[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error = errors.New("empty chain")
	)
	for i := range c.entries {
		entry := &c.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(ctx, entry.value)
			return innerErr
		})
		if err == nil {
			return result, entry.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
