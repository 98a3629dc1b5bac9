package audio

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// minCentroidSamples is the shortest region for which a spectral centroid is
// meaningful.
const minCentroidSamples = 256

// SpectralCentroid returns the energy-weighted mean frequency in Hz of the
// Hann-windowed magnitude spectrum of samples. Regions shorter than 256
// samples, or with a near-zero spectrum, yield 0.
func SpectralCentroid(samples []float64, sampleRate int) float64 {
	n := len(samples)
	if n < minCentroidSamples || sampleRate <= 0 {
		return 0
	}

	windowed := make([]float64, n)
	copy(windowed, samples)
	window.Hann(windowed)

	coeffs := fourier.NewFFT(n).Coefficients(nil, windowed)

	var total, weighted float64
	binHz := float64(sampleRate) / float64(n)
	for k, c := range coeffs {
		mag := cmplx.Abs(c)
		total += mag
		weighted += float64(k) * binHz * mag
	}
	if total < 1e-10 {
		return 0
	}
	return weighted / total
}
