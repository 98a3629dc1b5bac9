package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/wordsplice/internal/acquire"
	"github.com/MrWong99/wordsplice/internal/cache"
	"github.com/MrWong99/wordsplice/internal/config"
	"github.com/MrWong99/wordsplice/internal/health"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/internal/resilience"
	"github.com/MrWong99/wordsplice/internal/resolve"
	"github.com/MrWong99/wordsplice/internal/verify"
	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/storage"
	"github.com/MrWong99/wordsplice/pkg/ytdlp"
)

// env holds everything built from the configuration for one command run.
type env struct {
	cfg     *config.Config
	metrics *observe.Metrics

	transcriber *resilience.TranscriberFallback // nil without stt providers
	captions    captions.Provider               // nil when disabled
	sources     []acquire.WeightedSource
	cache       cache.Store // nil when disabled

	health   *health.Handler
	server   *http.Server
	closers  []io.Closer
	shutdown func(context.Context) error
}

type envKey struct{}

func withEnv(ctx context.Context, e *env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFrom(ctx context.Context) *env {
	e, _ := ctx.Value(envKey{}).(*env)
	return e
}

// setup instantiates telemetry, providers, the cache and the metrics
// listener. On error everything created so far is released.
func setup(ctx context.Context, cfg *config.Config) (e *env, err error) {
	e = &env{cfg: cfg}
	defer func() {
		if err != nil {
			_ = e.Close(context.WithoutCancel(ctx))
			e = nil
		}
	}()

	e.shutdown, err = observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	e.metrics = observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if err := e.buildProviders(reg); err != nil {
		return nil, err
	}
	if e.cache, err = openCache(ctx, cfg.Cache); err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.closers = append(e.closers, e.cache)
	}

	checkers := []health.Checker{
		health.BinaryCheck("yt-dlp", ytdlp.DefaultBinary),
		health.BinaryCheck("ffmpeg", "ffmpeg"),
	}
	if e.cache != nil {
		checkers = append(checkers, health.CacheCheck(e.cache))
	}
	if e.transcriber != nil {
		checkers = append(checkers, health.TranscriberCheck(e.transcriber))
	}
	e.health = health.New(checkers...)

	if addr := cfg.Observe.MetricsAddr; addr != "" {
		if err := e.serveMetrics(ctx, addr); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// serveMetrics exposes /metrics and the health probes on addr.
func (e *env) serveMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	e.health.Register(mux)

	e.server = &http.Server{
		Handler:           observe.Middleware(e.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "err", err)
		}
	}()
	slog.Info("metrics listener started", "addr", ln.Addr().String())
	return nil
}

// Close stops the metrics listener, flushes telemetry and releases
// providers and the cache.
func (e *env) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if e.server != nil {
		errs = append(errs, e.server.Shutdown(ctx))
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	if e.shutdown != nil {
		errs = append(errs, e.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// resolver builds a Resolver over the configured backends. fetch routes
// full-audio downloads to the source that produced each candidate.
func (e *env) resolver() *resolve.Resolver {
	rc := e.cfg.Resolver
	opts := []resolve.Option{
		resolve.WithConfig(resolve.Config{
			Language:           rc.Language,
			Window:             rc.Window,
			CaptionConcurrency: rc.CaptionConcurrency,
			TempDir:            rc.TempDir,
		}),
		resolve.WithFetcher(acquire.Dispatch(e.sourceMap())),
		resolve.WithMetrics(e.metrics),
	}
	if e.captions != nil {
		opts = append(opts, resolve.WithCaptions(e.captions))
	}
	if e.transcriber != nil {
		opts = append(opts, resolve.WithTranscriber(e.transcriber.Name(), e.transcriber))
	}
	return resolve.New(opts...)
}

func (e *env) sourceMap() map[string]media.Source {
	m := make(map[string]media.Source, len(e.sources))
	for _, s := range e.sources {
		m[s.Source.Name()] = s.Source
	}
	return m
}

// source returns the named source, or the first one with a positive weight
// when name is empty.
func (e *env) source(name string) (media.Source, error) {
	for _, s := range e.sources {
		if (name == "" && s.Weight > 0) || s.Source.Name() == name {
			return s.Source, nil
		}
	}
	if name == "" {
		return nil, errors.New("no media source configured")
	}
	return nil, fmt.Errorf("media source %q is not configured", name)
}

func (e *env) acquirer() (*acquire.Acquirer, error) {
	ac := e.cfg.Acquire
	spec, err := ac.ClipSpec()
	if err != nil {
		return nil, err
	}
	return acquire.New(e.resolver(), e.sources, ac.OutDir,
		acquire.WithClipSpec(spec),
		acquire.WithMaxCandidates(e.cfg.Resolver.MaxCandidates),
		acquire.WithRetry(acquire.RetryConfig{Attempts: ac.Attempts, Delay: ac.RetryDelay}),
		acquire.WithWorkers(ac.Workers),
		acquire.WithMetrics(e.metrics),
	)
}

// verifier builds the clip verifier, cached when a cache is configured.
func (e *env) verifier() (verify.ClipVerifier, error) {
	if e.transcriber == nil {
		return nil, errors.New("verification needs at least one providers.stt entry")
	}
	vc := e.cfg.Verifier
	v := verify.New(e.transcriber,
		verify.WithBackendName(e.transcriber.Name()),
		verify.WithLanguage(vc.Language),
		verify.WithWindow(vc.Window),
		verify.WithSilenceFloor(vc.SilenceFloorDBFS),
		verify.WithRateLimit(vc.RatePerSecond),
		verify.WithMetrics(e.metrics),
	)
	if e.cache == nil {
		return v, nil
	}
	return verify.NewCached(v, e.cache), nil
}

// fileStore opens the configured artifact storage.
func (e *env) fileStore() (storage.FileStore, error) {
	sc := e.cfg.Storage
	switch sc.Backend {
	case config.StorageS3:
		client := storage.NewS3Client(storage.S3Options{
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
		})
		return storage.NewS3(client, sc.Bucket, sc.Prefix), nil
	default:
		return storage.NewLocal(sc.Dir)
	}
}

// openCache opens the configured verification cache. Returns nil for
// backend "none".
func openCache(ctx context.Context, cc config.CacheConfig) (cache.Store, error) {
	switch cc.Backend {
	case config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheBadger:
		b, err := cache.NewBadger(cache.BadgerOptions{Dir: cc.Dir, Logger: slog.Default()})
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		return b, nil
	case config.CachePostgres:
		p, err := cache.OpenPostgres(ctx, cc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		return p, nil
	}
	return nil, nil
}
