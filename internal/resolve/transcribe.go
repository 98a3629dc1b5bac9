package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MrWong99/wordsplice/internal/match"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// transcribePhase transcribes the first candidate's full audio.
func (r *Resolver) transcribePhase(ctx context.Context, req request) (Resolution, bool, error) {
	c := req.candidates[0]
	tr, err := r.transcribeCandidate(ctx, c)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{}, false, fmt.Errorf("resolve: %w", ctxErr)
		}
		observe.Logger(ctx).Warn("resolve: transcription phase failed", "query", req.raw, "candidate", c.Locator, "err", err)
		return Resolution{}, false, nil
	}

	span, ok := locate(tr, req.query, r.cfg.Window)
	if !ok {
		return Resolution{}, false, nil
	}
	return Resolution{
		Method:           MethodTranscribed,
		Timestamp:        span.StartS,
		HasTimestamp:     true,
		Span:             span,
		CandidatesProbed: len(req.candidates),
		Candidate:        c,
	}, true, nil
}

// FindAll transcribes c and returns every occurrence of query, for pulling
// several clips out of one long recording. Segment text is consulted only
// when no token-level match exists.
func (r *Resolver) FindAll(ctx context.Context, query string, c media.Candidate) ([]match.WordSpan, error) {
	tr, err := r.transcribeCandidate(ctx, c)
	if err != nil {
		return nil, err
	}
	q := match.NewQuery(query)
	spans := match.FindAll(tr.Words(), q, r.cfg.Window)
	if len(spans) == 0 {
		spans = match.SegmentFallbackAll(tr.Segments, q)
	}
	return spans, nil
}

// transcribeCandidate downloads c into a directory owned by this call and
// transcribes it. The directory is removed on every return path.
func (r *Resolver) transcribeCandidate(ctx context.Context, c media.Candidate) (stt.Transcript, error) {
	if r.stt == nil || r.fetcher == nil {
		return stt.Transcript{}, fmt.Errorf("resolve: %w", stt.ErrUnavailable)
	}

	dir, err := os.MkdirTemp(r.cfg.TempDir, "wordsplice-resolve-")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("resolve: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path, err := r.fetcher.FetchFull(ctx, c, dir)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("resolve: download full audio: %w", err)
	}
	buf, err := audio.ReadWAVFile(path)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("resolve: decode full audio: %w", err)
	}

	tr, err := r.transcribe(ctx, stt.Request{Audio: buf, Language: r.cfg.Language})
	if err != nil {
		if errors.Is(err, stt.ErrUnavailable) {
			observe.Logger(ctx).Info("resolve: transcription backend unavailable", "backend", r.sttName)
		}
		return stt.Transcript{}, fmt.Errorf("resolve: transcribe: %w", err)
	}
	return tr, nil
}

// locate applies token matching and then the segment-text fallback. A
// multi-word query must match every word; it never degrades to the first
// word alone.
func locate(tr stt.Transcript, q match.Query, w match.Window) (match.WordSpan, bool) {
	if span, ok := match.FindFirst(tr.Words(), q, w); ok {
		return span, true
	}
	return match.SegmentFallback(tr.Segments, q)
}
