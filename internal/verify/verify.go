// Package verify confirms that a target word is spoken in a short clip,
// pins its timing, and measures the acoustic descriptors the ranker uses.
//
// A clip is rejected when it is digitally silent or when the transcription
// backend does not report the target among its word tokens. Unlike the
// resolver, verification never falls back to segment text: a clip without
// word-level evidence is not trusted.
package verify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/MrWong99/wordsplice/internal/match"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// ErrNotFound is wrapped by every rejection.
var ErrNotFound = errors.New("verify: target not found in clip")

// DefaultWindow is the multi-word window shared with the resolver: up to
// eight tokens after the anchor, starting within three seconds of it.
var DefaultWindow = match.DefaultWindow

// Verification outcomes reported to metrics.
const (
	ResultAccepted = "accepted"
	ResultSilent   = "silent"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// RejectedError describes why a clip was rejected. It unwraps to
// ErrNotFound.
type RejectedError struct {
	ClipID string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("verify: %s: %s", e.ClipID, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrNotFound }

// VerifiedClip is a clip known to contain the target word. Acoustic
// fields are always finite.
type VerifiedClip struct {
	ClipID     string `msgpack:"clip_id"`
	Path       string `msgpack:"path"`
	TargetWord string `msgpack:"target_word"`

	Span           match.WordSpan `msgpack:"span"`
	ClipDurationMS int            `msgpack:"clip_duration_ms"`
	WordDurationMS int            `msgpack:"word_duration_ms"`

	OverallDBFS      float64 `msgpack:"overall_dbfs"`
	SpeechRMS        float64 `msgpack:"speech_rms"`
	NoiseRMS         float64 `msgpack:"noise_rms"`
	SpectralCentroid float64 `msgpack:"spectral_centroid"`
}

// Verifier checks clips against a transcription backend. It is safe for
// concurrent use when the backend is.
type Verifier struct {
	stt      stt.Provider
	backend  string
	language string
	window   match.Window
	floor    float64
	limiter  *rate.Limiter
	metrics  *observe.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithBackendName sets the name the backend is reported and cached under.
func WithBackendName(name string) Option {
	return func(v *Verifier) { v.backend = name }
}

// WithLanguage sets the recognition language hint.
func WithLanguage(lang string) Option {
	return func(v *Verifier) { v.language = lang }
}

// WithWindow overrides DefaultWindow.
func WithWindow(w match.Window) Option {
	return func(v *Verifier) { v.window = w }
}

// WithSilenceFloor overrides audio.SilenceFloorDBFS.
func WithSilenceFloor(dbfs float64) Option {
	return func(v *Verifier) { v.floor = dbfs }
}

// WithRateLimit caps backend calls per second. Zero or negative disables
// the limit.
func WithRateLimit(perSecond float64) Option {
	return func(v *Verifier) {
		if perSecond > 0 {
			v.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			v.limiter = nil
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New creates a Verifier backed by p.
func New(p stt.Provider, opts ...Option) *Verifier {
	v := &Verifier{
		stt:     p,
		backend: "stt",
		window:  DefaultWindow,
		floor:   audio.SilenceFloorDBFS,
	}
	for _, o := range opts {
		o(v)
	}
	if v.metrics == nil {
		v.metrics = observe.DefaultMetrics()
	}
	return v
}

// Backend returns the backend name.
func (v *Verifier) Backend() string { return v.backend }

// Policy fingerprints the settings besides the backend that decide whether a
// clip is accepted and where its span lies. Results cached under one policy
// are not reused under another.
func (v *Verifier) Policy() string {
	return fmt.Sprintf("t%d:s%d:f%g:l%s", v.window.MaxTokens, v.window.MaxSpan.Milliseconds(), v.floor, strings.ToLower(v.language))
}

// VerifyFile loads the WAV at path and verifies it. The clip id is the
// file's base name.
func (v *Verifier) VerifyFile(ctx context.Context, path, target string) (VerifiedClip, error) {
	buf, err := audio.ReadWAVFile(path)
	if err != nil {
		return VerifiedClip{}, fmt.Errorf("verify: load %s: %w", path, err)
	}
	clip, err := v.Verify(ctx, filepath.Base(path), buf, target)
	if err != nil {
		return VerifiedClip{}, err
	}
	clip.Path = path
	return clip, nil
}

// Verify checks that target is spoken in buf. Rejections return an error
// wrapping ErrNotFound; backend failures are returned as-is.
func (v *Verifier) Verify(ctx context.Context, clipID string, buf audio.Buffer, target string) (clip VerifiedClip, err error) {
	ctx, span := observe.StartSpan(ctx, "verify")
	span.SetAttributes(attribute.String("verify.clip_id", clipID), attribute.String("verify.target", target))
	defer func() {
		observe.EndSpan(span, err)
		v.metrics.RecordVerify(ctx, outcome(err))
	}()

	log := observe.Logger(ctx).With("clip", clipID, "target", target)

	overall := audio.DBFS(buf.Samples)
	if overall < v.floor {
		log.Debug("verify: clip is silent", "dbfs", overall)
		return VerifiedClip{}, &RejectedError{ClipID: clipID, Reason: "silent"}
	}

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return VerifiedClip{}, fmt.Errorf("verify: %s: %w", clipID, err)
		}
	}
	tr, err := v.stt.Transcribe(ctx, stt.Request{Audio: buf, Language: v.language})
	if err != nil {
		return VerifiedClip{}, fmt.Errorf("verify: %s: transcribe: %w", clipID, err)
	}

	tokens := tr.Words()
	if len(tokens) == 0 {
		log.Debug("verify: no word tokens")
		return VerifiedClip{}, &RejectedError{ClipID: clipID, Reason: "no word tokens"}
	}
	q := match.NewQuery(target)
	ws, ok := match.FindFirst(tokens, q, v.window)
	if !ok {
		if q.Len() > 0 {
			if nm, found := match.Closest(tokens, q.Words[0]); found {
				log.Debug("verify: target not heard", "closest", nm.Token.Word, "similarity", nm.Similarity, "phonetic", nm.Phonetic)
			}
		}
		return VerifiedClip{}, &RejectedError{ClipID: clipID, Reason: fmt.Sprintf("%q not in transcript %q", target, tr.Text)}
	}

	return measure(clipID, target, buf, ws, overall), nil
}

// measure computes the descriptors for the word span in buf. A span that is
// empty after conversion to samples is widened to one sample.
func measure(clipID, target string, buf audio.Buffer, ws match.WordSpan, overall float64) VerifiedClip {
	if buf.SampleRate > 0 && ws.EndS <= ws.StartS {
		ws.EndS = ws.StartS + 1/float64(buf.SampleRate)
	}

	n := buf.Len()
	start := min(max(buf.SampleIndex(ws.StartS), 0), n)
	end := min(buf.SampleIndex(ws.EndS), n)
	if end <= start {
		end = min(start+1, n)
	}

	speech := buf.Samples[start:end]
	noise := make([]float64, 0, n-(end-start))
	noise = append(noise, buf.Samples[:start]...)
	noise = append(noise, buf.Samples[end:]...)

	return VerifiedClip{
		ClipID:           clipID,
		TargetWord:       target,
		Span:             ws,
		ClipDurationMS:   buf.DurationMs(),
		WordDurationMS:   ws.DurationMs(),
		OverallDBFS:      overall,
		SpeechRMS:        audio.RMS(speech),
		NoiseRMS:         audio.RMS(noise),
		SpectralCentroid: audio.SpectralCentroid(speech, buf.SampleRate),
	}
}

func outcome(err error) string {
	var rej *RejectedError
	switch {
	case err == nil:
		return ResultAccepted
	case errors.As(err, &rej) && rej.Reason == "silent":
		return ResultSilent
	case errors.Is(err, ErrNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}
