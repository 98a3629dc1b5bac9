package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/wordsplice/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCM16ToFloat(t *testing.T) {
	got := audio.PCM16ToFloat(samplesToBytes([]int16{0, 16384, -32768}))
	want := []float64{0, 0.5, -1}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat_OddByteIgnored(t *testing.T) {
	got := audio.PCM16ToFloat([]byte{0x00, 0x40, 0x7f})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestFloatToPCM16_Clipping(t *testing.T) {
	pcm := audio.FloatToPCM16([]float64{2.0, -2.0, 0})
	got := []int16{
		int16(binary.LittleEndian.Uint16(pcm[0:])),
		int16(binary.LittleEndian.Uint16(pcm[2:])),
		int16(binary.LittleEndian.Uint16(pcm[4:])),
	}
	want := []int16{math.MaxInt16, math.MinInt16, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestToMono(t *testing.T) {
	tests := []struct {
		name     string
		in       []float64
		channels int
		want     []float64
	}{
		{name: "mono passthrough", in: []float64{0.1, 0.2}, channels: 1, want: []float64{0.1, 0.2}},
		{name: "stereo average", in: []float64{0.2, 0.4, -0.5, 0.5}, channels: 2, want: []float64{0.3, 0}},
		{name: "partial frame dropped", in: []float64{1, 1, 1}, channels: 2, want: []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.ToMono(tt.in, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResample_SameRateIsPassthrough(t *testing.T) {
	in := audio.Buffer{Samples: []float64{0.1, 0.2, 0.3}, SampleRate: 16000}
	out, err := audio.Resample(in, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SampleRate != 16000 || len(out.Samples) != 3 {
		t.Fatalf("got %d samples at %d Hz, want 3 at 16000", len(out.Samples), out.SampleRate)
	}
}

func TestResample_InvalidRate(t *testing.T) {
	_, err := audio.Resample(audio.Buffer{Samples: []float64{0}, SampleRate: 16000}, 0)
	if err == nil {
		t.Fatal("expected error for zero target rate")
	}
}

func TestBuffer_Slice_Clamps(t *testing.T) {
	b := audio.Buffer{Samples: []float64{1, 2, 3, 4}, SampleRate: 4}
	tests := []struct {
		from, to int
		want     int
	}{
		{from: -5, to: 2, want: 2},
		{from: 1, to: 99, want: 3},
		{from: 3, to: 1, want: 0},
	}
	for _, tt := range tests {
		if got := b.Slice(tt.from, tt.to).Len(); got != tt.want {
			t.Errorf("Slice(%d, %d).Len() = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
	if got := b.DurationMs(); got != 1000 {
		t.Errorf("DurationMs = %d, want 1000", got)
	}
}
