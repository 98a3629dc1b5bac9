package audio

import "math"

// FindZeroCrossing returns the sample index nearest to target where the
// waveform changes sign, searching [target-searchRange, target+searchRange)
// clamped to the signal. Index i is a crossing when sign(s[i]) differs from
// sign(s[i+1]). When the window holds fewer than two samples or contains no
// sign change, target is returned unchanged.
func FindZeroCrossing(samples []float64, target, searchRange int) int {
	lo := max(0, target-searchRange)
	hi := min(len(samples)-1, target+searchRange)
	if hi-lo < 2 {
		return target
	}

	best := -1
	bestDist := 0
	for i := lo; i < hi-1; i++ {
		if sign(samples[i]) == sign(samples[i+1]) {
			continue
		}
		d := abs(i - target)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return target
	}
	return best
}

// FadeIn applies a linear ramp from silence over the first n samples in place.
func FadeIn(samples []float64, n int) {
	n = min(n, len(samples))
	for i := range n {
		samples[i] *= float64(i) / float64(n)
	}
}

// FadeOut applies a linear ramp to silence over the last n samples in place.
func FadeOut(samples []float64, n int) {
	n = min(n, len(samples))
	start := len(samples) - n
	for i := range n {
		samples[start+i] *= float64(n-1-i) / float64(n)
	}
}

// Silence returns n zero-valued samples.
func Silence(n int) []float64 {
	return make([]float64, max(0, n))
}

// AppendCrossfade joins b onto a, overlapping the last n samples of a with the
// first n samples of b using complementary linear ramps. The result has
// length len(a)+len(b)-n. When either side is not longer than n, the signals
// are concatenated without overlap.
func AppendCrossfade(a, b []float64, n int) []float64 {
	if n <= 0 || len(a) <= n || len(b) <= n {
		out := make([]float64, 0, len(a)+len(b))
		out = append(out, a...)
		return append(out, b...)
	}

	out := make([]float64, 0, len(a)+len(b)-n)
	out = append(out, a[:len(a)-n]...)
	tail := a[len(a)-n:]
	for i := range n {
		g := float64(i) / float64(n)
		out = append(out, tail[i]*(1-g)+b[i]*g)
	}
	return append(out, b[n:]...)
}

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(s))
	}
	return p
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
