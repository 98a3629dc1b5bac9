package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wordsplice/internal/observe"
)

// ClipVerifier verifies one clip file. Verifier and CachedVerifier both
// satisfy it.
type ClipVerifier interface {
	VerifyFile(ctx context.Context, path, target string) (VerifiedClip, error)
}

var (
	_ ClipVerifier = (*Verifier)(nil)
	_ ClipVerifier = (*CachedVerifier)(nil)
)

// PositionSpec names the word for one phrase position and where its
// candidate clips live. Each path is a directory (all *.wav files in it)
// or a single file.
type PositionSpec struct {
	Word  string
	Paths []string
}

// Position is one slot of a WordPool.
type Position struct {
	Word  string
	Clips []VerifiedClip

	// Rejected lists the ids of clips that failed verification.
	Rejected []string
}

// Pool holds the verified clips for every position of a phrase, in phrase
// order.
type Pool struct {
	Positions []Position
}

// Words returns the position words in order.
func (p Pool) Words() []string {
	out := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		out[i] = pos.Word
	}
	return out
}

// PoolOptions tunes BuildPool.
type PoolOptions struct {
	// Workers bounds concurrent verifications. Values below 1 mean 1.
	Workers int

	// Progress, if set, is called after each clip with the number of clips
	// finished and the total. Calls are serialized.
	Progress func(done, total int)
}

type poolJob struct {
	pos  int
	path string
}

type poolResult struct {
	clip VerifiedClip
	ok   bool
}

// BuildPool verifies every clip for every position. Clips keep the sorted
// path order within a position regardless of completion order. Rejections
// and backend failures are recorded per position; only context
// cancellation and unreadable inputs abort the build.
func BuildPool(ctx context.Context, v ClipVerifier, specs []PositionSpec, opts PoolOptions) (Pool, error) {
	var jobs []poolJob
	for i, spec := range specs {
		paths, err := expandPaths(spec.Paths)
		if err != nil {
			return Pool{}, fmt.Errorf("verify: position %d (%q): %w", i, spec.Word, err)
		}
		for _, p := range paths {
			jobs = append(jobs, poolJob{pos: i, path: p})
		}
	}

	results := make([]poolResult, len(jobs))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for i, job := range jobs {
		g.Go(func() error {
			word := specs[job.pos].Word
			clip, err := v.VerifyFile(gctx, job.path, word)
			switch {
			case err == nil:
				results[i] = poolResult{clip: clip, ok: true}
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, ErrNotFound):
				observe.Logger(gctx).Debug("verify: clip rejected", "path", job.path, "word", word, "err", err)
			default:
				observe.Logger(gctx).Warn("verify: clip failed", "path", job.path, "word", word, "err", err)
			}
			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(jobs))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Pool{}, fmt.Errorf("verify: build pool: %w", err)
	}

	pool := Pool{Positions: make([]Position, len(specs))}
	for i, spec := range specs {
		pool.Positions[i].Word = spec.Word
	}
	for i, job := range jobs {
		pos := &pool.Positions[job.pos]
		if results[i].ok {
			pos.Clips = append(pos.Clips, results[i].clip)
		} else {
			pos.Rejected = append(pos.Rejected, filepath.Base(job.path))
		}
	}
	for _, pos := range pool.Positions {
		observe.Logger(ctx).Info("verify: position ready", "word", pos.Word, "verified", len(pos.Clips), "rejected", len(pos.Rejected))
	}
	return pool, nil
}

// expandPaths resolves directories to their WAV files and returns the
// sorted, de-duplicated result.
func expandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.wav"))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
