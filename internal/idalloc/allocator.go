// Package idalloc hands out identifiers for new records.
package idalloc

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var (
	ErrInvalidRange = errors.New("idalloc: min greater than max")
	ErrExhausted    = errors.New("idalloc: no free identifier found")
)

// Checker reports whether an identifier is already taken.
type Checker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, id int64) (bool, error)

func (f CheckerFunc) Exists(ctx context.Context, id int64) (bool, error) {
	return f(ctx, id)
}

// Allocator draws candidates from a bounded range and skips ones the store already
// holds. The check is advisory: two allocators can pick the same free value, so the
// insert must still be guarded by a unique key.
type Allocator struct {
	checker       Checker
	maxCollisions int
	now           func() time.Time
	random        func() uint64
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithMaxCollisions caps consecutive collisions before giving up.
func WithMaxCollisions(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxCollisions = n
		}
	}
}

// WithSource replaces the clock and random source.
func WithSource(now func() time.Time, random func() uint64) Option {
	return func(a *Allocator) {
		a.now = now
		a.random = random
	}
}

// NewAllocator builds an Allocator backed by checker.
func NewAllocator(checker Checker, opts ...Option) *Allocator {
	a := &Allocator{
		checker:       checker,
		maxCollisions: 64,
		now:           time.Now,
		random:        rand.Uint64,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns an unused identifier in [min, max]. Collisions are retried;
// checker errors are returned as-is.
func (a *Allocator) Allocate(ctx context.Context, min, max int64) (int64, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	for i := 0; i < a.maxCollisions; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		candidate := a.candidate(min, max)
		taken, err := a.checker.Exists(ctx, candidate)
		if err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
	}
	return 0, ErrExhausted
}

func (a *Allocator) candidate(min, max int64) int64 {
	mix := uint64(a.now().UnixNano()) ^ a.random()
	span := uint64(max-min) + 1
	if span == 0 {
		return int64(mix)
	}
	return min + int64(mix%span)
}
