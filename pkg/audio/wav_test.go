package audio_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/wordsplice/pkg/audio"
)

func TestWAV_RoundTrip(t *testing.T) {
	in := audio.Buffer{SampleRate: 22050, Samples: make([]float64, 2205)}
	for i := range in.Samples {
		in.Samples[i] = 0.5 * math.Sin(2*math.Pi*300*float64(i)/22050)
	}

	data, err := audio.EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	out, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != in.SampleRate || out.Len() != in.Len() {
		t.Fatalf("decoded %d samples at %d Hz, want %d at %d", out.Len(), out.SampleRate, in.Len(), in.SampleRate)
	}
	for i := range in.Samples {
		if d := math.Abs(out.Samples[i] - in.Samples[i]); d > 1.0/16384 {
			t.Fatalf("sample %d: %v vs %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestReadWAVFile_StereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	// Left/right pairs: the mono result is their mean.
	frames := []int{16384, 0, -16384, -16384, 8192, 24576}
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           frames,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	buf, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	want := []float64{0.25, -0.5, 0.5}
	if buf.SampleRate != 8000 || buf.Len() != len(want) {
		t.Fatalf("got %d samples at %d Hz", buf.Len(), buf.SampleRate)
	}
	for i, w := range want {
		if math.Abs(buf.Samples[i]-w) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, buf.Samples[i], w)
		}
	}
}

func TestWAV_Errors(t *testing.T) {
	if _, err := audio.DecodeWAV([]byte("RIFF but not really")); !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("DecodeWAV(garbage) = %v, want ErrInvalidWAV", err)
	}
	if _, err := audio.EncodeWAV(audio.Buffer{Samples: []float64{0}}); err == nil {
		t.Error("EncodeWAV with zero sample rate succeeded")
	}
	if _, err := audio.ReadWAVFile(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadWAVFile(missing) = %v, want os.ErrNotExist", err)
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confetti-1.wav")
	in := audio.Buffer{SampleRate: 16000, Samples: []float64{0, 0.25, -0.25, 1, -1}}
	if err := audio.WriteWAVFile(path, in); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	out, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if out.Len() != in.Len() || out.DurationMs() != in.DurationMs() {
		t.Errorf("read back %d samples, want %d", out.Len(), in.Len())
	}
}
