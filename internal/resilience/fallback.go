package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the error of a [Call] in which no entry succeeded.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig is shared by all entries of a [FallbackGroup]. Each entry
// gets its own breaker built from CircuitBreaker with Name set to the
// entry's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// OnFailure, if set, is called for every failed attempt, including
	// attempts skipped because the entry's circuit is open.
	OnFailure func(name string, err error)
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable backends.
//
// Add all entries before sharing the group. [Call] and
// [FallbackGroup.Execute] may then run concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name, fallback, NewCircuitBreaker(bc)})
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// State returns the breaker state of the named entry and whether it exists.
func (fg *FallbackGroup[T]) State(name string) (State, bool) {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			return fg.entries[i].breaker.State(), true
		}
	}
	return 0, false
}

// Execute is [Call] for functions without a result.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := Call(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// Call runs fn against the entries of fg in registration order and returns
// the first success. Entries whose breaker is open are skipped without
// calling fn. A done ctx stops the walk and its error is returned as is, so
// cancellation never reads as a backend outage. Otherwise the final error
// wraps [ErrAllFailed] together with every attempt's error, each prefixed
// with the entry name.
func Call[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero     R
		attempts = make([]error, 0, len(fg.entries))
	)
	for i := range fg.entries {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		out, err := attempt(ctx, &fg.entries[i], fn)
		switch {
		case err == nil:
			return out, nil
		case ctx.Err() != nil:
			return zero, ctx.Err()
		}
		fg.failed(fg.entries[i].name, err)
		attempts = append(attempts, fmt.Errorf("%s: %w", fg.entries[i].name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(attempts...))
}

func attempt[T any, R any](ctx context.Context, e *fallbackEntry[T], fn func(context.Context, T) (R, error)) (R, error) {
	var out R
	err := e.breaker.Execute(func() (err error) {
		out, err = fn(ctx, e.value)
		return err
	})
	return out, err
}

func (fg *FallbackGroup[T]) failed(name string, err error) {
	if fg.cfg.OnFailure != nil {
		fg.cfg.OnFailure(name, err)
	}
	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("backend skipped, circuit open", "backend", name)
		return
	}
	slog.Warn("backend failed, trying next", "backend", name, "err", err)
}
