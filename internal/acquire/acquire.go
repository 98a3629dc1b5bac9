// Package acquire turns search queries into short WAV clips on disk.
//
// For each query a source is picked by weight, searched, and the candidate
// list handed to a [Resolver] that pins the word's timestamp. The clip window
// is then placed according to how the word was found:
//
//   - caption: the window starts at the caption timestamp.
//   - transcribed: the window is centred on the matched word span.
//   - fallback: the configured [ClipSpec] picks the start.
//
// Every clip gets a JSON sidecar describing where it came from.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/internal/resolve"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

const defaultMaxCandidates = 5

// Resolver pins a query inside a list of candidates.
type Resolver interface {
	Resolve(ctx context.Context, query string, candidates []media.Candidate) (resolve.Resolution, error)
}

// WeightedSource is a source together with its selection weight.
type WeightedSource struct {
	Source media.Source
	Weight int
}

// Result describes one acquired clip.
type Result struct {
	ClipID      string
	Query       string
	Path        string
	SidecarPath string

	// StartS is where the clip window starts in the source.
	StartS     float64
	Resolution resolve.Resolution
}

// Option is a functional option for Acquirer.
type Option func(*Acquirer)

// WithClipSpec sets the clip window used when no timestamp was found. The
// duration applies to every clip.
func WithClipSpec(spec ClipSpec) Option {
	return func(a *Acquirer) {
		a.clip = spec
	}
}

// WithMaxCandidates caps the search results handed to the resolver.
func WithMaxCandidates(n int) Option {
	return func(a *Acquirer) {
		a.maxCandidates = n
	}
}

// WithRetry configures download retries.
func WithRetry(cfg RetryConfig) Option {
	return func(a *Acquirer) {
		a.retry = cfg
	}
}

// WithRand sets the random source for source selection and random clip
// positions.
func WithRand(r *rand.Rand) Option {
	return func(a *Acquirer) {
		a.rng = r
	}
}

// WithWorkers bounds the concurrency of AcquireMany.
func WithWorkers(n int) Option {
	return func(a *Acquirer) {
		a.workers = n
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Acquirer) {
		a.metrics = m
	}
}

// Acquirer downloads clips for queries. It is safe for concurrent use.
type Acquirer struct {
	resolver      Resolver
	sources       map[string]media.Source
	weights       []SourceWeight
	outDir        string
	clip          ClipSpec
	maxCandidates int
	retry         RetryConfig
	workers       int
	metrics       *observe.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Acquirer writing clips into outDir.
func New(resolver Resolver, sources []WeightedSource, outDir string, opts ...Option) (*Acquirer, error) {
	if resolver == nil {
		return nil, errors.New("acquire: resolver must not be nil")
	}
	if len(sources) == 0 {
		return nil, errors.New("acquire: at least one source is required")
	}
	a := &Acquirer{
		resolver:      resolver,
		sources:       make(map[string]media.Source, len(sources)),
		outDir:        outDir,
		clip:          DefaultClipSpec,
		maxCandidates: defaultMaxCandidates,
		workers:       1,
	}
	for _, s := range sources {
		name := s.Source.Name()
		if _, dup := a.sources[name]; dup {
			return nil, fmt.Errorf("acquire: duplicate source %q", name)
		}
		a.sources[name] = s.Source
		a.weights = append(a.weights, SourceWeight{Name: name, Weight: s.Weight})
	}
	for _, o := range opts {
		o(a)
	}
	if err := a.clip.Validate(); err != nil {
		return nil, err
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if !slices.ContainsFunc(a.weights, func(w SourceWeight) bool { return w.Weight > 0 }) {
		return nil, errors.New("acquire: no source with positive weight")
	}
	return a, nil
}

// Acquire fetches one clip for query.
func (a *Acquirer) Acquire(ctx context.Context, query string) (res Result, err error) {
	ctx, span := observe.StartSpan(ctx, "acquire")
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	a.mu.Lock()
	name, err := WeightedSelect(a.weights, a.rng)
	a.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	src := a.sources[name]
	span.SetAttributes(attribute.String("acquire.source", name))

	candidates, err := src.Search(ctx, query, a.maxCandidates)
	a.recordRequest(ctx, name, "search", err)
	if err != nil {
		return Result{}, fmt.Errorf("acquire: search %s for %q: %w", name, query, err)
	}
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("acquire: search %s for %q: %w", name, query, media.ErrNotFound)
	}
	for i := range candidates {
		if candidates[i].Source == "" {
			candidates[i].Source = name
		}
	}

	resolution, err := a.resolver.Resolve(ctx, query, candidates)
	if err != nil {
		return Result{}, fmt.Errorf("acquire: %w", err)
	}
	c := resolution.Candidate
	startS := a.startFor(resolution)

	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("acquire: create output dir: %w", err)
	}
	tmp, err := os.MkdirTemp(a.outDir, ".fetch-")
	if err != nil {
		return Result{}, fmt.Errorf("acquire: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	var fetched string
	err = Retry(ctx, a.retry, func(ctx context.Context) error {
		var ferr error
		fetched, ferr = src.FetchRange(ctx, c, startS, a.clip.DurationS, tmp)
		a.recordRequest(ctx, name, "fetch", ferr)
		return ferr
	})
	if err != nil {
		return Result{}, fmt.Errorf("acquire: fetch %q: %w", c.Locator, err)
	}

	clipID := uuid.NewString()
	suffix := c.ID()
	if suffix == "" {
		suffix = clipID[:8]
	}
	path := clipPath(a.outDir, query, suffix, clipID)
	if err := os.Rename(fetched, path); err != nil {
		return Result{}, fmt.Errorf("acquire: move clip: %w", err)
	}

	meta := SidecarFromCandidate(c, a.clip.DurationS)
	meta["clip_id"] = clipID
	meta["query"] = query
	meta["method"] = string(resolution.Method)
	meta["start_s"] = startS
	meta["candidates_probed"] = resolution.CandidatesProbed
	if resolution.HasTimestamp {
		meta["timestamp_s"] = resolution.Timestamp
	}
	sidecar, err := WriteSidecar(path, meta)
	if err != nil {
		return Result{}, err
	}

	log.Info("acquired clip",
		"query", query,
		"source", name,
		"method", resolution.Method,
		"start_s", startS,
		"path", path,
	)
	return Result{
		ClipID:      clipID,
		Query:       query,
		Path:        path,
		SidecarPath: sidecar,
		StartS:      startS,
		Resolution:  resolution,
	}, nil
}

// clipPath names a clip <query>-<suffix>.wav. When that file already exists,
// from an earlier run against the same candidate, the clip id is appended so
// the earlier clip and its sidecar are kept.
func clipPath(dir, query, suffix, clipID string) string {
	base := filepath.Join(dir, media.SafeName(query)+"-"+media.SafeName(suffix))
	if _, err := os.Lstat(base + ".wav"); err == nil {
		return base + "-" + clipID[:8] + ".wav"
	}
	return base + ".wav"
}

// AcquireMany acquires one clip per query. Results keep query order; failed
// queries are left out and their errors joined. Cancellation aborts the
// whole batch.
func (a *Acquirer) AcquireMany(ctx context.Context, queries []string) ([]Result, error) {
	results := make([]*Result, len(queries))
	errs := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.workers, 1))
	for i, q := range queries {
		g.Go(func() error {
			res, err := a.Acquire(gctx, q)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				observe.Logger(gctx).Warn("acquire: query failed", "query", q, "err", err)
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(queries))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, errors.Join(errs...)
}

// startFor places the clip window for a resolution.
func (a *Acquirer) startFor(r resolve.Resolution) float64 {
	total := r.Candidate.Duration
	switch r.Method {
	case resolve.MethodCaption:
		spec := ClipSpec{Position: PositionTimestamp, DurationS: a.clip.DurationS, TimestampS: r.Timestamp}
		return spec.StartTime(total, nil)
	case resolve.MethodTranscribed:
		return WordCenteredStart(r.Span.StartS, r.Span.EndS, a.clip.DurationS, total)
	default:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.clip.StartTime(total, a.rng)
	}
}

func (a *Acquirer) recordRequest(ctx context.Context, source, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		a.metrics.RecordProviderError(ctx, source, kind)
	}
	a.metrics.RecordProviderRequest(ctx, source, kind, status)
}

// Dispatch returns a media.Fetcher that routes each call to the source named
// by Candidate.Source. It lets one resolver serve several sources.
func Dispatch(sources map[string]media.Source) media.Fetcher {
	return dispatcher(sources)
}

type dispatcher map[string]media.Source

func (d dispatcher) lookup(c media.Candidate) (media.Source, error) {
	if s, ok := d[c.Source]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("acquire: no source %q for candidate %q", c.Source, c.Locator)
}

func (d dispatcher) FetchRange(ctx context.Context, c media.Candidate, startS, durationS float64, dir string) (string, error) {
	s, err := d.lookup(c)
	if err != nil {
		return "", err
	}
	return s.FetchRange(ctx, c, startS, durationS, dir)
}

func (d dispatcher) FetchFull(ctx context.Context, c media.Candidate, dir string) (string, error) {
	s, err := d.lookup(c)
	if err != nil {
		return "", err
	}
	return s.FetchFull(ctx, c, dir)
}
