// Package assemble renders a ranked clip sequence into one spliced phrase.
//
// Each word is cut from its clip at the verified boundaries with a little
// padding, snapped to zero crossings, micro-faded, and level-matched. Words
// are then joined with short silences, crossfading each join so no seam
// clicks.
package assemble

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/wordsplice/internal/verify"
	"github.com/MrWong99/wordsplice/pkg/audio"
)

// Config tunes extraction and joining.
type Config struct {
	PadBefore time.Duration `yaml:"pad_before"`
	PadAfter  time.Duration `yaml:"pad_after"`

	// ZeroCrossingRange is the snap search radius in samples. Extracts of
	// MinSnapSamples or fewer are not snapped.
	ZeroCrossingRange int `yaml:"zero_crossing_range"`
	MinSnapSamples    int `yaml:"min_snap_samples"`

	// The edge fade is len/8 clamped to [MinFade, MaxFade].
	MinFade time.Duration `yaml:"min_fade"`
	MaxFade time.Duration `yaml:"max_fade"`

	TargetDBFS       float64 `yaml:"target_dbfs"`
	SilenceFloorDBFS float64 `yaml:"silence_floor_dbfs"`

	Gap time.Duration `yaml:"gap"`

	// FillerWords get Gap*FillerGapRatio of silence before them.
	FillerWords    []string `yaml:"filler_words"`
	FillerGapRatio float64  `yaml:"filler_gap_ratio"`

	Crossfade time.Duration `yaml:"crossfade"`

	// EmptySampleRate is the rate of the silence rendered for an empty
	// sequence.
	EmptySampleRate int `yaml:"empty_sample_rate"`
}

// DefaultConfig returns the default assembly settings.
func DefaultConfig() Config {
	return Config{
		PadBefore:         20 * time.Millisecond,
		PadAfter:          30 * time.Millisecond,
		ZeroCrossingRange: 64,
		MinSnapSamples:    128,
		MinFade:           time.Millisecond,
		MaxFade:           6 * time.Millisecond,
		TargetDBFS:        -18,
		SilenceFloorDBFS:  audio.SilenceFloorDBFS,
		Gap:               70 * time.Millisecond,
		FillerWords:       []string{"of", "the", "a", "full of"},
		FillerGapRatio:    0.6,
		Crossfade:         20 * time.Millisecond,
		EmptySampleRate:   16000,
	}
}

// emptyDuration is rendered when a sequence has no clips.
const emptyDuration = 100 * time.Millisecond

// ClipEntry is the manifest record of one word in a phrase.
type ClipEntry struct {
	Word       string  `json:"word"`
	Source     string  `json:"source"`
	WordStartS float64 `json:"word_start_s"`
	WordEndS   float64 `json:"word_end_s"`
	RMSDBFS    float64 `json:"rms_dbfs"`
}

// Phrase is an assembled phrase and the provenance of its words.
type Phrase struct {
	Audio audio.Buffer
	Clips []ClipEntry
}

// Loader returns the audio of a verified clip.
type Loader func(ctx context.Context, c verify.VerifiedClip) (audio.Buffer, error)

// LoadFile reads the clip's WAV from its path.
func LoadFile(_ context.Context, c verify.VerifiedClip) (audio.Buffer, error) {
	return audio.ReadWAVFile(c.Path)
}

// Assembler turns clip sequences into phrases. It is safe for concurrent
// use.
type Assembler struct {
	cfg  Config
	load Loader
}

// New creates an Assembler. A nil loader reads clips from disk.
func New(cfg Config, load Loader) *Assembler {
	if load == nil {
		load = LoadFile
	}
	return &Assembler{cfg: cfg, load: load}
}

// Assemble loads, extracts and joins clips in order. All words are
// resampled to the first clip's rate.
func (a *Assembler) Assemble(ctx context.Context, clips []verify.VerifiedClip) (Phrase, error) {
	if len(clips) == 0 {
		rate := a.cfg.EmptySampleRate
		return Phrase{Audio: audio.Buffer{Samples: audio.Silence(durationSamples(emptyDuration, rate)), SampleRate: rate}}, nil
	}

	words := make([]audio.Buffer, len(clips))
	entries := make([]ClipEntry, len(clips))
	rate := 0
	for i, c := range clips {
		if err := ctx.Err(); err != nil {
			return Phrase{}, fmt.Errorf("assemble: %w", err)
		}
		buf, err := a.load(ctx, c)
		if err != nil {
			return Phrase{}, fmt.Errorf("assemble: load %s: %w", c.ClipID, err)
		}
		if i == 0 {
			rate = buf.SampleRate
		}
		if buf.SampleRate != rate {
			if buf, err = audio.Resample(buf, rate); err != nil {
				return Phrase{}, fmt.Errorf("assemble: resample %s: %w", c.ClipID, err)
			}
		}
		word := a.Extract(buf, c)
		audio.NormalizeDBFS(word.Samples, a.cfg.TargetDBFS, a.cfg.SilenceFloorDBFS)
		words[i] = word
		entries[i] = ClipEntry{
			Word:       c.TargetWord,
			Source:     c.ClipID,
			WordStartS: c.Span.StartS,
			WordEndS:   c.Span.EndS,
			RMSDBFS:    round(c.OverallDBFS, 1),
		}
	}

	out := words[0].Samples
	cf := durationSamples(a.cfg.Crossfade, rate)
	for i := 1; i < len(words); i++ {
		gap := audio.Silence(durationSamples(a.gapBefore(clips[i].TargetWord), rate))
		next := append(gap, words[i].Samples...)
		if cf > 0 && len(out) > cf && words[i].Len() > cf {
			out = audio.AppendCrossfade(out, next, cf)
		} else {
			out = append(slices.Clip(out), next...)
		}
	}
	return Phrase{Audio: audio.Buffer{Samples: out, SampleRate: rate}, Clips: entries}, nil
}

// Extract cuts the clip's word from buf with padding, snaps both edges to
// zero crossings and applies short fades. buf is not modified.
func (a *Assembler) Extract(buf audio.Buffer, c verify.VerifiedClip) audio.Buffer {
	rate := buf.SampleRate
	start := max(0, buf.SampleIndex(c.Span.StartS)-durationSamples(a.cfg.PadBefore, rate))
	end := min(buf.Len(), buf.SampleIndex(c.Span.EndS)+durationSamples(a.cfg.PadAfter, rate))
	seg := buf.Slice(start, end).Samples

	if len(seg) > a.cfg.MinSnapSamples {
		s := audio.FindZeroCrossing(seg, 0, a.cfg.ZeroCrossingRange)
		e := audio.FindZeroCrossing(seg, len(seg)-1, a.cfg.ZeroCrossingRange)
		e = max(e, s+1)
		seg = seg[s:e]
	}

	out := audio.Buffer{Samples: slices.Clone(seg), SampleRate: rate}
	fade := min(durationSamples(a.cfg.MaxFade, rate), max(durationSamples(a.cfg.MinFade, rate), out.Len()/8))
	audio.FadeIn(out.Samples, fade)
	audio.FadeOut(out.Samples, fade)
	return out
}

func (a *Assembler) gapBefore(word string) time.Duration {
	w := strings.ToLower(strings.TrimSpace(word))
	if slices.Contains(a.cfg.FillerWords, w) {
		return time.Duration(float64(a.cfg.Gap) * a.cfg.FillerGapRatio)
	}
	return a.cfg.Gap
}

func durationSamples(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
