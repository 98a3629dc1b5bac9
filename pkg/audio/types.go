// Package audio holds the acoustic primitives shared by the verifier, the
// resolver and the assembler: mono float buffers, level measurement,
// spectral descriptors, zero-crossing search, fades, crossfaded joins,
// resampling and WAV I/O.
//
// All sample data is mono float64 normalised to [-1.0, 1.0].
package audio

import "time"

// Buffer is a mono audio signal at a fixed sample rate.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Len returns the number of samples in b.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the playback length of b.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// DurationMs returns the playback length of b in whole milliseconds.
func (b Buffer) DurationMs() int {
	if b.SampleRate <= 0 {
		return 0
	}
	return len(b.Samples) * 1000 / b.SampleRate
}

// SampleIndex converts a time offset in seconds to a sample index, truncating
// toward zero. The result is not clamped.
func (b Buffer) SampleIndex(seconds float64) int {
	return int(seconds * float64(b.SampleRate))
}

// MsToSamples converts a millisecond count to a sample count at b's rate.
func (b Buffer) MsToSamples(ms int) int {
	return ms * b.SampleRate / 1000
}

// Slice returns the samples in [from, to) clamped to the buffer bounds. The
// returned buffer shares backing storage with b.
func (b Buffer) Slice(from, to int) Buffer {
	from = max(0, min(from, len(b.Samples)))
	to = max(from, min(to, len(b.Samples)))
	return Buffer{Samples: b.Samples[from:to], SampleRate: b.SampleRate}
}

// Clone returns a deep copy of b.
func (b Buffer) Clone() Buffer {
	s := make([]float64, len(b.Samples))
	copy(s, b.Samples)
	return Buffer{Samples: s, SampleRate: b.SampleRate}
}
