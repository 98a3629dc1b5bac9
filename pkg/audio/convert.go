package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// PCM16ToFloat converts 16-bit signed little-endian PCM to float64 samples
// normalised to [-1.0, 1.0]. Any trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

// FloatToPCM16 converts float samples to 16-bit signed little-endian PCM,
// clipping values outside [-1.0, 1.0].
func FloatToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// FloatToFloat32 narrows samples to float32, the input format of the
// whisper.cpp bindings.
func FloatToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

// ToMono averages interleaved multi-channel samples into a mono signal. With
// channels <= 1 the input is returned unchanged.
func ToMono(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts b to the target sample rate. When the rates already match
// b is returned unchanged.
func Resample(b Buffer, rate int) (Buffer, error) {
	if rate <= 0 {
		return Buffer{}, fmt.Errorf("audio: invalid target sample rate %d", rate)
	}
	if b.SampleRate == rate || len(b.Samples) == 0 {
		return Buffer{Samples: b.Samples, SampleRate: rate}, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(b.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := r.Process(b.Samples)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: resample %d->%d: %w", b.SampleRate, rate, err)
	}
	return Buffer{Samples: out, SampleRate: rate}, nil
}

func floatToInt16(s float64) int16 {
	switch {
	case s >= 1.0:
		return math.MaxInt16
	case s <= -1.0:
		return math.MinInt16
	default:
		return int16(math.Round(s * 32767.0))
	}
}
