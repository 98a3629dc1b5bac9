package health

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/MrWong99/wordsplice/internal/cache"
	"github.com/MrWong99/wordsplice/internal/resilience"
)

// probeKey is read by CacheCheck; it is never written.
const probeKey = "health:probe"

// BinaryCheck verifies that an external tool such as yt-dlp or ffmpeg can be
// found.
func BinaryCheck(name, binary string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if _, err := exec.LookPath(binary); err != nil {
				return fmt.Errorf("%s not found: %w", binary, err)
			}
			return nil
		},
	}
}

// CacheCheck performs a read against store. A miss counts as healthy.
func CacheCheck(store cache.Store) Checker {
	return Checker{
		Name: "cache",
		Check: func(ctx context.Context) error {
			_, err := store.Get(ctx, probeKey)
			if err == nil || errors.Is(err, cache.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

// TranscriberCheck fails when the circuit of every backend in fb is open.
func TranscriberCheck(fb *resilience.TranscriberFallback) Checker {
	return Checker{
		Name: "transcribers",
		Check: func(context.Context) error {
			names := fb.Backends()
			for _, n := range names {
				if st, ok := fb.State(n); ok && st != resilience.StateOpen {
					return nil
				}
			}
			return fmt.Errorf("all transcription circuits open: %v", names)
		},
	}
}
