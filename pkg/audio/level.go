package audio

import "math"

// SilenceFloorDBFS is the level below which a signal is treated as silent.
const SilenceFloorDBFS = -80.0

// RMS returns the root-mean-square amplitude of samples, or 0 when empty.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS returns the RMS level of samples relative to full scale. Digital
// silence (and empty input) yields negative infinity.
func DBFS(samples []float64) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// ApplyGain scales samples in place by gainDB decibels.
func ApplyGain(samples []float64, gainDB float64) {
	factor := math.Pow(10, gainDB/20)
	for i := range samples {
		samples[i] *= factor
	}
}

// NormalizeDBFS adjusts samples in place so their level equals target. Signals
// at or below floor are left untouched so that silence is not amplified into
// noise. It reports whether gain was applied.
func NormalizeDBFS(samples []float64, target, floor float64) bool {
	level := DBFS(samples)
	if level <= floor {
		return false
	}
	ApplyGain(samples, target-level)
	return true
}
