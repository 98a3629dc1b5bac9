package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrSkip marks a download that will never succeed for this candidate, so
// retrying is pointless.
var ErrSkip = errors.New("acquire: download skipped")

// skipPatterns are matched case-insensitively against download errors.
var skipPatterns = []string{
	"no video results",
	"no suitable video",
	"is not a valid url",
	"unable to extract",
	"video unavailable",
}

// Default retry parameters.
const (
	defaultAttempts = 3
	defaultUnit     = time.Second
)

// IsSkippable reports whether err matches a skip pattern.
func IsSkippable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range skipPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryConfig configures download retries. The wait after failed attempt n
// (0-based) is Delay + 2^n * Unit.
type RetryConfig struct {
	// Attempts is the total number of tries. Defaults to 3 if zero.
	Attempts int

	// Delay is a fixed wait added to every backoff.
	Delay time.Duration

	// Unit scales the exponential part. Defaults to 1s if zero.
	Unit time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = defaultAttempts
	}
	if c.Unit <= 0 {
		c.Unit = defaultUnit
	}
	return c
}

// Backoff returns the wait after the given failed attempt.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	return c.Delay + time.Duration(1<<attempt)*c.Unit
}

// Retry calls fn until it succeeds, the attempts run out, fn returns a
// skippable error, or ctx is done. Skippable errors are wrapped with ErrSkip.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var err error
	for attempt := range cfg.Attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsSkippable(err) {
			return fmt.Errorf("%w: %w", ErrSkip, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == cfg.Attempts-1 {
			break
		}

		wait := cfg.Backoff(attempt)
		slog.Warn("acquire: download failed, retrying",
			"attempt", attempt+1,
			"max_attempts", cfg.Attempts,
			"backoff", wait,
			"err", err,
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("acquire: download failed after %d attempts: %w", cfg.Attempts, err)
}
