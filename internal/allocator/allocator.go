// Package allocator hands out short auction identifiers of the form
// <PREFIX><1000..9999> by drawing random candidates until one is unused.
package allocator

import (
	"context"
	"fmt"
	"math/rand/v2"

	"auction-settlement/internal/biddingerrors"
)

const (
	// DefaultPrefix is used when no prefix is configured
	DefaultPrefix = "AUC"
	// DefaultMaxAttempts bounds the draws per allocation. The candidate
	// space holds 9000 values.
	DefaultMaxAttempts = 1000

	minSuffix = 1000
	maxSuffix = 9999
)

// ExistenceChecker reports whether an identifier is already taken
type ExistenceChecker interface {
	AuctionExists(ctx context.Context, id string) (bool, error)
}

// Allocator draws identifiers and tests them against storage
type Allocator struct {
	checker     ExistenceChecker
	prefix      string
	maxAttempts int
	intn        func(n int) int
}

// Option customizes an Allocator
type Option func(*Allocator)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(a *Allocator) { a.intn = intn }
}

// New creates an allocator. Empty prefix and non-positive attempts fall back to defaults.
func New(checker ExistenceChecker, prefix string, maxAttempts int, opts ...Option) *Allocator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	a := &Allocator{
		checker:     checker,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		intn:        rand.IntN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Candidate draws one identifier without checking storage
func (a *Allocator) Candidate() string {
	return fmt.Sprintf("%s%d", a.prefix, minSuffix+a.intn(maxSuffix-minSuffix+1))
}

// Next returns the first drawn identifier that storage reports as unused.
// Storage failures abort the allocation; running out of attempts returns
// ErrIDSpaceExhausted.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("allocator: %w", biddingerrors.FromContext(err))
		}
		id := a.Candidate()
		taken, err := a.checker.AuctionExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("allocator: check %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("allocator: %d attempts: %w", a.maxAttempts, biddingerrors.ErrIDSpaceExhausted)
}
