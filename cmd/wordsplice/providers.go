package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/wordsplice/internal/acquire"
	"github.com/MrWong99/wordsplice/internal/config"
	"github.com/MrWong99/wordsplice/internal/resilience"
	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	ytcaptions "github.com/MrWong99/wordsplice/pkg/provider/captions/ytdlp"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/provider/media/local"
	ytmedia "github.com/MrWong99/wordsplice/pkg/provider/media/ytdlp"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
	"github.com/MrWong99/wordsplice/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/wordsplice/pkg/provider/stt/openai"
	"github.com/MrWong99/wordsplice/pkg/provider/stt/whisper"
	"github.com/MrWong99/wordsplice/pkg/ytdlp"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Captions ──────────────────────────────────────────────────────────────

	reg.RegisterCaptions("ytdlp", func(entry config.ProviderEntry) (captions.Provider, error) {
		opts := []ytcaptions.Option{ytcaptions.WithClient(ytdlpClient(entry))}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, ytcaptions.WithDefaultLanguage(lang))
		}
		return ytcaptions.New(opts...), nil
	})

	// ── Media sources ─────────────────────────────────────────────────────────

	reg.RegisterSource(ytmedia.Name, func(entry config.ProviderEntry) (media.Source, error) {
		return ytmedia.New(ytdlpClient(entry)), nil
	})

	reg.RegisterSource(local.Name, func(entry config.ProviderEntry) (media.Source, error) {
		dir := optString(entry.Options, "dir")
		if dir == "" {
			dir = entry.BaseURL
		}
		if dir == "" {
			return nil, fmt.Errorf("local source: options.dir is required")
		}
		var opts []local.Option
		if ff := optString(entry.Options, "ffmpeg"); ff != "" {
			opts = append(opts, local.WithFFmpeg(ff))
		}
		return local.New(dir, opts...), nil
	})

	for _, kind := range []string{"stt", "captions", "sources"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the transcription chain, the caption backend
// and the weighted media sources named in the configuration.
func (e *env) buildProviders(reg *config.Registry) error {
	ps := e.cfg.Providers

	for _, entry := range ps.STT {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		if c, ok := p.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
		if optBool(entry.Options, "serialize") {
			p = stt.Serialize(p)
		}
		if e.transcriber == nil {
			e.transcriber = resilience.NewTranscriberFallback(p, entry.Name, resilience.FallbackConfig{
				CircuitBreaker: resilience.CircuitBreakerConfig{
					OnStateChange: func(name string, from, to resilience.State) {
						e.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
					},
				},
				OnFailure: func(name string, _ error) {
					e.metrics.RecordProviderError(context.Background(), name, "transcribe")
				},
			})
		} else {
			e.transcriber.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	if name := ps.Captions.Name; name != "" {
		p, err := reg.CreateCaptions(ps.Captions)
		if err != nil {
			return fmt.Errorf("create captions provider %q: %w", name, err)
		}
		e.captions = p
		slog.Info("provider created", "kind", "captions", "name", name)
	}

	for _, entry := range ps.Sources {
		src, err := reg.CreateSource(entry.ProviderEntry)
		if err != nil {
			return fmt.Errorf("create media source %q: %w", entry.Name, err)
		}
		e.sources = append(e.sources, acquire.WeightedSource{Source: src, Weight: entry.Weight})
		slog.Info("provider created", "kind", "source", "name", entry.Name, "weight", entry.Weight)
	}
	return nil
}

// ytdlpClient builds a yt-dlp client from the optional "binary" and
// "args" options.
func ytdlpClient(entry config.ProviderEntry) *ytdlp.Client {
	c := &ytdlp.Client{Binary: optString(entry.Options, "binary")}
	if args := optString(entry.Options, "args"); args != "" {
		c.ExtraArgs = strings.Fields(args)
	}
	return c
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}
