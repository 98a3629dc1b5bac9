package resolve

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wordsplice/internal/caption"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

// probeResult is the caption outcome for one candidate.
type probeResult struct {
	timestamp float64
	hit       bool
}

// captionPhase probes candidates in order and stops at the first hit.
func (r *Resolver) captionPhase(ctx context.Context, req request) (Resolution, bool, error) {
	if r.captions == nil {
		observe.Logger(ctx).Debug("resolve: no caption backend configured")
		return Resolution{}, false, nil
	}
	if r.cfg.CaptionConcurrency > 1 && len(req.candidates) > 1 {
		return r.captionPhaseParallel(ctx, req)
	}

	for i, c := range req.candidates {
		res := r.probe(ctx, req.raw, c)
		if err := ctx.Err(); err != nil {
			return Resolution{}, false, fmt.Errorf("resolve: %w", err)
		}
		if res.hit {
			return captionResolution(res, c, i+1), true, nil
		}
	}
	return Resolution{}, false, nil
}

// captionPhaseParallel fetches tracks ahead on a bounded pool but reads the
// results strictly in candidate order, so the answer matches sequential
// probing. Outstanding fetches are cancelled once a hit is found.
func (r *Resolver) captionPhaseParallel(ctx context.Context, req request) (Resolution, bool, error) {
	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(r.cfg.CaptionConcurrency)

	results := make([]probeResult, len(req.candidates))
	done := make([]chan struct{}, len(req.candidates))
	for i := range done {
		done[i] = make(chan struct{})
	}

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, c := range req.candidates {
			if gctx.Err() != nil {
				// Unblock readers waiting on candidates never started.
				for _, ch := range done[i:] {
					close(ch)
				}
				return
			}
			g.Go(func() error {
				defer close(done[i])
				results[i] = r.probe(gctx, req.raw, c)
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-launched
		_ = g.Wait()
	}()

	for i, c := range req.candidates {
		select {
		case <-done[i]:
		case <-ctx.Done():
			return Resolution{}, false, fmt.Errorf("resolve: %w", ctx.Err())
		}
		if err := ctx.Err(); err != nil {
			return Resolution{}, false, fmt.Errorf("resolve: %w", err)
		}
		if results[i].hit {
			return captionResolution(results[i], c, i+1), true, nil
		}
	}
	return Resolution{}, false, nil
}

// probe fetches and searches one candidate's captions. Every failure is
// logged and reported as a miss.
func (r *Resolver) probe(ctx context.Context, query string, c media.Candidate) probeResult {
	log := observe.Logger(ctx).With("query", query, "candidate", c.Locator)

	track, err := r.captions.Fetch(ctx, c.Locator, r.cfg.Language)
	if err != nil {
		if errors.Is(err, captions.ErrNoTrack) {
			log.Debug("resolve: no caption track")
		} else if ctx.Err() == nil {
			log.Warn("resolve: caption fetch failed", "err", err)
		}
		return probeResult{}
	}

	cues, err := caption.Parse(track.VTT)
	if err != nil {
		log.Warn("resolve: malformed caption track", "kind", track.Kind, "err", err)
		return probeResult{}
	}
	ts, ok := caption.FindWordTimestamp(cues, query)
	if !ok {
		log.Debug("resolve: query not in captions", "kind", track.Kind, "cues", len(cues))
		return probeResult{}
	}
	return probeResult{timestamp: ts, hit: true}
}

func captionResolution(p probeResult, c media.Candidate, probed int) Resolution {
	return Resolution{
		Method:           MethodCaption,
		Timestamp:        p.timestamp,
		HasTimestamp:     true,
		CandidatesProbed: probed,
		Candidate:        c,
	}
}
