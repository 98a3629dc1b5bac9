package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/internal/rank"
	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/storage"
)

// ManifestName is the file the manifest is written to.
const ManifestName = "manifest.json"

// ManifestEntry describes one rendered version.
type ManifestEntry struct {
	Version    int         `json:"version"`
	Score      float64     `json:"score"`
	DurationMS int         `json:"duration_ms"`
	Filename   string      `json:"filename"`
	Clips      []ClipEntry `json:"clips"`
}

// Result is the outcome of one RenderTop call.
type Result struct {
	RunID    string
	Manifest []ManifestEntry
}

// Renderer renders ranked sequences to a FileStore.
type Renderer struct {
	asm     *Assembler
	store   storage.FileStore
	dir     string
	workers int
	metrics *observe.Metrics
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithDir places all artifacts under dir inside the store.
func WithDir(dir string) RendererOption {
	return func(r *Renderer) { r.dir = dir }
}

// WithWorkers bounds concurrent renders. Defaults to 4.
func WithWorkers(n int) RendererOption {
	return func(r *Renderer) { r.workers = n }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) RendererOption {
	return func(r *Renderer) { r.metrics = m }
}

// NewRenderer creates a Renderer writing to store.
func NewRenderer(asm *Assembler, store storage.FileStore, opts ...RendererOption) *Renderer {
	r := &Renderer{asm: asm, store: store, workers: 4}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Filename returns the artifact name of version (1-based) with score.
func Filename(version int, score float64) string {
	return fmt.Sprintf("v%02d_score%.1f.wav", version, score)
}

// RenderTop renders the first k sequences of ranked (all when k <= 0) in
// parallel, then writes the manifest in rank order.
func (r *Renderer) RenderTop(ctx context.Context, ranked []rank.ScoredSequence, k int) (res Result, err error) {
	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "render")
	span.SetAttributes(attribute.String("render.run_id", runID), attribute.Int("render.versions", k))
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx).With("run_id", runID)

	manifest := make([]ManifestEntry, k)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.workers, 1))
	for i, seq := range ranked[:k] {
		g.Go(func() error {
			start := time.Now()
			phrase, err := r.asm.Assemble(gctx, seq.Clips)
			if err != nil {
				return fmt.Errorf("version %d: %w", i+1, err)
			}
			name := Filename(i+1, seq.Score)
			data, err := audio.EncodeWAV(phrase.Audio)
			if err != nil {
				return fmt.Errorf("version %d: encode: %w", i+1, err)
			}
			if err := storage.WriteFile(gctx, r.store, storage.Join(r.dir, name), data); err != nil {
				return fmt.Errorf("version %d: %w", i+1, err)
			}
			r.metrics.RecordRender(gctx, time.Since(start))
			manifest[i] = ManifestEntry{
				Version:    i + 1,
				Score:      round(seq.Score, 2),
				DurationMS: phrase.Audio.DurationMs(),
				Filename:   name,
				Clips:      phrase.Clips,
			}
			log.Debug("assemble: rendered", "file", name, "duration_ms", manifest[i].DurationMS)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("assemble: render: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("assemble: encode manifest: %w", err)
	}
	if err := storage.WriteFile(ctx, r.store, storage.Join(r.dir, ManifestName), data); err != nil {
		return Result{}, fmt.Errorf("assemble: %w", err)
	}
	log.Info("assemble: rendered versions", "versions", k, "dir", r.dir)
	return Result{RunID: runID, Manifest: manifest}, nil
}
