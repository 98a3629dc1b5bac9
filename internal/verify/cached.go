package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/wordsplice/internal/cache"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/pkg/audio"
)

// cacheEntry is the stored outcome of one verification. Rejections are
// cached too so a clip is never transcribed twice for the same target.
type cacheEntry struct {
	Found  bool         `msgpack:"found"`
	Clip   VerifiedClip `msgpack:"clip"`
	Reason string       `msgpack:"reason,omitempty"`
}

// CachedVerifier memoizes Verifier results keyed by clip content, target
// word, backend name and the verifier's matching settings.
type CachedVerifier struct {
	v       *Verifier
	store   cache.Store
	metrics *observe.Metrics
}

// NewCached wraps v with store.
func NewCached(v *Verifier, store cache.Store) *CachedVerifier {
	return &CachedVerifier{v: v, store: store, metrics: v.metrics}
}

// CacheKey returns the key a clip's verification is stored under. policy
// identifies the settings that shape the outcome; see [Verifier.Policy].
func CacheKey(data []byte, target, backend, policy string) string {
	sum := sha256.Sum256(data)
	return cache.Key("verify", hex.EncodeToString(sum[:]), strings.ToLower(strings.TrimSpace(target)), backend, policy)
}

// VerifyFile verifies the WAV at path, consulting the cache first. Cached
// clips report the id and path of the file just requested, so identical
// content found under another name is reused.
func (c *CachedVerifier) VerifyFile(ctx context.Context, path, target string) (VerifiedClip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VerifiedClip{}, fmt.Errorf("verify: load %s: %w", path, err)
	}
	id := filepath.Base(path)
	key := CacheKey(data, target, c.v.Backend(), c.v.Policy())
	log := observe.Logger(ctx).With("clip", id, "target", target)

	entry, err := cache.GetValue[cacheEntry](ctx, c.store, key)
	switch {
	case err == nil:
		c.metrics.RecordCacheLookup(ctx, true)
		if !entry.Found {
			return VerifiedClip{}, &RejectedError{ClipID: id, Reason: entry.Reason}
		}
		clip := entry.Clip
		clip.ClipID, clip.Path = id, path
		return clip, nil
	case errors.Is(err, cache.ErrNotFound):
		c.metrics.RecordCacheLookup(ctx, false)
	default:
		c.metrics.RecordCacheLookup(ctx, false)
		log.Warn("verify: cache read failed", "err", err)
	}

	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return VerifiedClip{}, fmt.Errorf("verify: decode %s: %w", path, err)
	}
	clip, verr := c.v.Verify(ctx, id, buf, target)

	var rej *RejectedError
	switch {
	case verr == nil:
		clip.Path = path
		entry = cacheEntry{Found: true, Clip: clip}
	case errors.As(verr, &rej):
		entry = cacheEntry{Reason: rej.Reason}
	default:
		// Backend failures are transient; do not remember them.
		return VerifiedClip{}, verr
	}
	if err := cache.SetValue(ctx, c.store, key, entry); err != nil {
		log.Warn("verify: cache write failed", "err", err)
	}
	return clip, verr
}
