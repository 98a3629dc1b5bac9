package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/wordsplice/pkg/audio"
)

func sine(freq float64, sampleRate, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS([]float64{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("RMS(square) = %v, want 0.5", got)
	}
}

func TestDBFS(t *testing.T) {
	if got := audio.DBFS(make([]float64, 10)); !math.IsInf(got, -1) {
		t.Errorf("DBFS(silence) = %v, want -Inf", got)
	}
	full := []float64{1, -1, 1, -1}
	if got := audio.DBFS(full); math.Abs(got) > 1e-9 {
		t.Errorf("DBFS(full scale square) = %v, want 0", got)
	}
}

func TestNormalizeDBFS(t *testing.T) {
	s := sine(440, 16000, 16000, 0.05)
	if !audio.NormalizeDBFS(s, -18, audio.SilenceFloorDBFS) {
		t.Fatal("expected gain to be applied")
	}
	if got := audio.DBFS(s); math.Abs(got+18) > 1e-6 {
		t.Errorf("level after normalize = %v, want -18", got)
	}

	quiet := make([]float64, 100)
	quiet[0] = 1e-6
	before := quiet[0]
	if audio.NormalizeDBFS(quiet, -18, audio.SilenceFloorDBFS) {
		t.Error("expected near-silent signal to be left alone")
	}
	if quiet[0] != before {
		t.Errorf("sample changed: %v -> %v", before, quiet[0])
	}
}

func TestSpectralCentroid_Sine(t *testing.T) {
	// 1000 Hz falls exactly on bin 256 for n=4096 at 16 kHz.
	s := sine(1000, 16000, 4096, 0.5)
	got := audio.SpectralCentroid(s, 16000)
	if math.Abs(got-1000) > 10 {
		t.Errorf("centroid = %v, want ~1000", got)
	}
}

func TestSpectralCentroid_BrighterIsHigher(t *testing.T) {
	low := audio.SpectralCentroid(sine(300, 16000, 4096, 0.5), 16000)
	high := audio.SpectralCentroid(sine(3000, 16000, 4096, 0.5), 16000)
	if !(high > low) {
		t.Errorf("centroid(3000Hz)=%v should exceed centroid(300Hz)=%v", high, low)
	}
}

func TestSpectralCentroid_Degenerate(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
	}{
		{name: "too short", samples: sine(1000, 16000, 255, 0.5)},
		{name: "silence", samples: make([]float64, 1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := audio.SpectralCentroid(tt.samples, 16000); got != 0 {
				t.Errorf("centroid = %v, want 0", got)
			}
		})
	}
}
