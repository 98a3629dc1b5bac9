// Package rank scores how well verified clips splice together and ranks
// every word-choice combination of a pool by that score.
//
// Lower scores are better. The pair score weighs noise-floor mismatch
// highest because a jump in room tone is the most audible splice artifact,
// then brightness (spectral centroid), then speech level, which the
// assembler normalizes anyway.
package rank

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/wordsplice/internal/verify"
)

// Weights are the coefficients of the pair score.
type Weights struct {
	Noise    float64 `yaml:"noise"`
	Centroid float64 `yaml:"centroid"`
	Level    float64 `yaml:"level"`
}

// DefaultWeights are the empirically tuned defaults.
var DefaultWeights = Weights{Noise: 80, Centroid: 20, Level: 5}

// Validate rejects non-positive weights and any ordering other than
// Noise > Centroid > Level.
func (w Weights) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{{"noise", w.Noise}, {"centroid", w.Centroid}, {"level", w.Level}} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Errorf("rank: weight %s must be a positive finite number, got %v", f.name, f.v))
		}
	}
	if w.Noise <= w.Centroid || w.Centroid <= w.Level {
		errs = append(errs, fmt.Errorf("rank: weights must satisfy noise > centroid > level, got %v > %v > %v", w.Noise, w.Centroid, w.Level))
	}
	return errors.Join(errs...)
}

// Score returns the splice cost of placing a and b next to each other. It
// is symmetric in its arguments.
func (w Weights) Score(a, b verify.VerifiedClip) float64 {
	noise := math.Abs(a.NoiseRMS - b.NoiseRMS)

	meanCentroid := (a.SpectralCentroid + b.SpectralCentroid) / 2
	centroid := math.Abs(a.SpectralCentroid-b.SpectralCentroid) / max(meanCentroid, 1)

	meanSpeech := (a.SpeechRMS + b.SpeechRMS) / 2
	level := math.Abs(a.SpeechRMS-b.SpeechRMS) / max(meanSpeech, 1e-6)

	return w.Noise*noise + w.Centroid*centroid + w.Level*level
}
