package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/wordsplice/internal/match"
)

// ValidProviderNames lists the built-in provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper", "whisper-native", "openai", "deepgram"},
	"captions": {"ytdlp"},
	"sources":  {"youtube", "local"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		add("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel)
	}

	// Providers
	for i, e := range cfg.Providers.STT {
		if e.Name == "" {
			add("providers.stt[%d].name is required", i)
			continue
		}
		validateProviderName("stt", e.Name)
	}
	validateProviderName("captions", cfg.Providers.Captions.Name)
	positive := false
	seen := make(map[string]int, len(cfg.Providers.Sources))
	for i, s := range cfg.Providers.Sources {
		prefix := fmt.Sprintf("providers.sources[%d]", i)
		if s.Name == "" {
			add("%s.name is required", prefix)
		} else {
			if prev, ok := seen[s.Name]; ok {
				add("%s.name %q is a duplicate of providers.sources[%d]", prefix, s.Name, prev)
			}
			seen[s.Name] = i
			validateProviderName("sources", s.Name)
		}
		if s.Weight < 0 {
			add("%s.weight %d must not be negative", prefix, s.Weight)
		}
		positive = positive || s.Weight > 0
	}
	if len(cfg.Providers.Sources) > 0 && !positive {
		add("providers.sources: at least one source needs a positive weight")
	}
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("providers.stt is empty; transcription and verification are unavailable")
	}

	// Resolver
	if cfg.Resolver.MaxCandidates <= 0 {
		add("resolver.max_candidates must be positive, got %d", cfg.Resolver.MaxCandidates)
	}
	if cfg.Resolver.CaptionConcurrency <= 0 {
		add("resolver.caption_concurrency must be positive, got %d", cfg.Resolver.CaptionConcurrency)
	}
	errs = append(errs, validateWindow("resolver.window", cfg.Resolver.Window)...)

	// Acquire
	if _, err := cfg.Acquire.ClipSpec(); err != nil {
		add("acquire: %w", err)
	}
	if cfg.Acquire.Attempts <= 0 {
		add("acquire.attempts must be positive, got %d", cfg.Acquire.Attempts)
	}
	if cfg.Acquire.RetryDelay < 0 {
		add("acquire.retry_delay must not be negative")
	}
	if cfg.Acquire.Workers <= 0 {
		add("acquire.workers must be positive, got %d", cfg.Acquire.Workers)
	}
	if cfg.Acquire.OutDir == "" {
		add("acquire.out_dir is required")
	}

	// Verifier
	if cfg.Verifier.Workers <= 0 {
		add("verifier.workers must be positive, got %d", cfg.Verifier.Workers)
	}
	if cfg.Verifier.RatePerSecond < 0 || math.IsNaN(cfg.Verifier.RatePerSecond) {
		add("verifier.rate_per_second must not be negative")
	}
	errs = append(errs, validateWindow("verifier.window", cfg.Verifier.Window)...)

	// Ranker
	if err := cfg.Ranker.Weights.Validate(); err != nil {
		add("ranker.weights: %w", err)
	}
	if cfg.Ranker.QuietThreshold < 0 {
		add("ranker.quiet_threshold must not be negative")
	}
	if cfg.Ranker.QuietPenalty < 0 {
		add("ranker.quiet_penalty must not be negative")
	}
	if cfg.Ranker.MaxCombinations < 0 {
		add("ranker.max_combinations must not be negative; use 0 to disable the bound")
	}

	// Assembler
	a := cfg.Assembler
	if a.PadBefore < 0 || a.PadAfter < 0 {
		add("assembler.pad_before and assembler.pad_after must not be negative")
	}
	if a.ZeroCrossingRange < 0 || a.MinSnapSamples < 0 {
		add("assembler.zero_crossing_range and assembler.min_snap_samples must not be negative")
	}
	if a.MinFade < 0 || a.MaxFade < a.MinFade {
		add("assembler: need 0 <= min_fade <= max_fade, got %v and %v", a.MinFade, a.MaxFade)
	}
	if a.Gap < 0 || a.Crossfade < 0 {
		add("assembler.gap and assembler.crossfade must not be negative")
	}
	if a.FillerGapRatio < 0 || a.FillerGapRatio > 1 {
		add("assembler.filler_gap_ratio %.2f is out of range [0, 1]", a.FillerGapRatio)
	}
	if a.TargetDBFS > 0 {
		add("assembler.target_dbfs %.1f must not be above 0", a.TargetDBFS)
	}
	if a.EmptySampleRate <= 0 {
		add("assembler.empty_sample_rate must be positive, got %d", a.EmptySampleRate)
	}

	// Render
	if cfg.Render.TopK < 0 {
		add("render.top_k must not be negative; use 0 to render all")
	}
	if cfg.Render.Workers <= 0 {
		add("render.workers must be positive, got %d", cfg.Render.Workers)
	}

	// Cache
	switch {
	case !cfg.Cache.Backend.IsValid():
		add("cache.backend %q is invalid; valid values: none, memory, badger, postgres", cfg.Cache.Backend)
	case cfg.Cache.Backend == CacheBadger && cfg.Cache.Dir == "":
		add("cache.dir is required when backend is badger")
	case cfg.Cache.Backend == CachePostgres && cfg.Cache.PostgresDSN == "":
		add("cache.postgres_dsn is required when backend is postgres")
	}

	// Storage
	switch {
	case !cfg.Storage.Backend.IsValid():
		add("storage.backend %q is invalid; valid values: local, s3", cfg.Storage.Backend)
	case cfg.Storage.Backend == StorageLocal && cfg.Storage.Dir == "":
		add("storage.dir is required when backend is local")
	case cfg.Storage.Backend == StorageS3 && cfg.Storage.Bucket == "":
		add("storage.bucket is required when backend is s3")
	}

	return errors.Join(errs...)
}

func validateWindow(prefix string, w match.Window) []error {
	var errs []error
	if w.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s.max_tokens must not be negative", prefix))
	}
	if w.MaxSpan < 0 {
		errs = append(errs, fmt.Errorf("%s.max_span must not be negative", prefix))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
