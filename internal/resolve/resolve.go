// Package resolve pins the timestamp of a spoken word or phrase inside one of
// several long-form candidate recordings.
//
// Resolution escalates cost only as needed. Phases run in a fixed order and
// the first one that produces a result wins:
//
//  1. caption: each candidate's caption track is searched in order; the
//     first candidate with a hit ends the search.
//  2. transcribed: the full audio of the first candidate is downloaded into
//     a temporary directory and transcribed with word timing.
//  3. fallback: no timestamp; the caller picks its own default position.
//
// Per-candidate failures (missing or malformed captions, download or
// transcription errors, unavailable backends) are logged and treated as
// "no hit". Only an empty candidate list or context cancellation is
// reported to the caller.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/wordsplice/internal/match"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// ErrNoCandidates is returned when Resolve is called without candidates.
var ErrNoCandidates = errors.New("resolve: no candidates")

// Method names the phase that produced a Resolution.
type Method string

const (
	MethodCaption     Method = "caption"
	MethodTranscribed Method = "transcribed"
	MethodFallback    Method = "fallback"
)

// Resolution is the outcome of one Resolve call.
type Resolution struct {
	Method Method

	// Timestamp is the start of the match in seconds. Valid only when
	// HasTimestamp is true.
	Timestamp    float64
	HasTimestamp bool

	// Span is the matched word span; set for MethodTranscribed only.
	Span match.WordSpan

	// CandidatesProbed counts the candidates this resolution touched.
	CandidatesProbed int

	// Candidate is the candidate the result refers to.
	Candidate media.Candidate
}

// Config tunes the resolver.
type Config struct {
	// Language is passed to the caption and transcription backends.
	Language string

	// Window bounds multi-word matching in transcripts.
	Window match.Window

	// CaptionConcurrency > 1 prefetches caption tracks in parallel. The
	// result is identical to sequential probing.
	CaptionConcurrency int

	// TempDir is the parent of per-query download directories. Empty means
	// the system temp dir.
	TempDir string
}

// DefaultConfig returns the default resolver settings.
func DefaultConfig() Config {
	return Config{
		Language:           "en",
		Window:             match.DefaultWindow,
		CaptionConcurrency: 1,
	}
}

// Option is a functional option for Resolver.
type Option func(*Resolver)

// WithCaptions sets the caption backend. Without one Phase 1 finds nothing.
func WithCaptions(p captions.Provider) Option {
	return func(r *Resolver) {
		r.captions = p
	}
}

// WithTranscriber sets the transcription backend and the name it is
// reported under. Without one Phase 2 finds nothing.
func WithTranscriber(name string, p stt.Provider) Option {
	return func(r *Resolver) {
		r.sttName = name
		r.stt = p
	}
}

// WithFetcher sets the media fetcher used for full-audio downloads.
func WithFetcher(f media.Fetcher) Option {
	return func(r *Resolver) {
		r.fetcher = f
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(r *Resolver) {
		r.cfg = cfg
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// request is the per-call input shared by all phases.
type request struct {
	raw        string
	query      match.Query
	candidates []media.Candidate
}

// phase returns ok=false to hand over to the next phase. A non-nil error
// aborts resolution and is reserved for context cancellation.
type phase struct {
	name string
	run  func(ctx context.Context, req request) (Resolution, bool, error)
}

// Resolver runs the phases. It is safe for concurrent use when its
// backends are.
type Resolver struct {
	captions captions.Provider
	stt      stt.Provider
	sttName  string
	fetcher  media.Fetcher
	cfg      Config
	metrics  *observe.Metrics

	phases []phase
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{cfg: DefaultConfig(), sttName: "stt"}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.phases = []phase{
		{name: string(MethodCaption), run: r.captionPhase},
		{name: string(MethodTranscribed), run: r.transcribePhase},
		{name: string(MethodFallback), run: r.fallbackPhase},
	}
	return r
}

// Resolve finds query in candidates, which must be in relevance order.
func (r *Resolver) Resolve(ctx context.Context, query string, candidates []media.Candidate) (res Resolution, err error) {
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w for %q", ErrNoCandidates, query)
	}
	ctx, span := observe.StartSpan(ctx, "resolve")
	defer func() { observe.EndSpan(span, err) }()

	log := observe.Logger(ctx)
	req := request{raw: query, query: match.NewQuery(query), candidates: candidates}
	for _, p := range r.phases {
		res, ok, err := p.run(ctx, req)
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			log.Debug("resolve: phase found nothing", "query", query, "phase", p.name)
			continue
		}
		span.SetAttributes(
			attribute.String("resolve.method", string(res.Method)),
			attribute.Int("resolve.candidates_probed", res.CandidatesProbed),
		)
		r.metrics.RecordResolve(ctx, string(res.Method), res.CandidatesProbed)
		log.Info("resolved",
			"query", query,
			"method", res.Method,
			"timestamp_s", res.Timestamp,
			"has_timestamp", res.HasTimestamp,
			"candidates_probed", res.CandidatesProbed,
			"candidate", res.Candidate.Locator,
		)
		return res, nil
	}
	return Resolution{}, fmt.Errorf("resolve: no phase produced a result for %q", query)
}

func (r *Resolver) fallbackPhase(_ context.Context, req request) (Resolution, bool, error) {
	return Resolution{
		Method:           MethodFallback,
		CandidatesProbed: len(req.candidates),
		Candidate:        req.candidates[0],
	}, true, nil
}

// transcribe calls the backend and records latency.
func (r *Resolver) transcribe(ctx context.Context, in stt.Request) (stt.Transcript, error) {
	start := time.Now()
	tr, err := r.stt.Transcribe(ctx, in)
	r.metrics.RecordTranscription(ctx, r.sttName, time.Since(start), err)
	return tr, err
}
