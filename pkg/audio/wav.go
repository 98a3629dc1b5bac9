package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a readable PCM WAV stream.
var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// ReadWAV decodes a PCM WAV stream into a mono buffer. Multi-channel input is
// averaged down to one channel.
func ReadWAV(r io.ReadSeeker) (Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pcm == nil || pcm.Format == nil {
		return Buffer{}, ErrInvalidWAV
	}

	depth := int(d.BitDepth)
	if depth == 0 {
		depth = pcm.SourceBitDepth
	}
	scale := float64(int64(1) << (max(depth, 8) - 1))

	interleaved := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		if depth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		interleaved[i] = float64(v) / scale
	}

	return Buffer{
		Samples:    ToMono(interleaved, pcm.Format.NumChannels),
		SampleRate: pcm.Format.SampleRate,
	}, nil
}

// ReadWAVFile opens path and decodes it with ReadWAV.
func ReadWAVFile(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer f.Close()
	b, err := ReadWAV(f)
	if err != nil {
		return Buffer{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// DecodeWAV decodes an in-memory WAV file.
func DecodeWAV(data []byte) (Buffer, error) {
	return ReadWAV(bytes.NewReader(data))
}

// WriteWAV encodes b as 16-bit mono PCM WAV.
func WriteWAV(w io.WriteSeeker, b Buffer) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", b.SampleRate)
	}
	enc := wav.NewEncoder(w, b.SampleRate, 16, 1, 1)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(floatToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes b to path as 16-bit mono PCM WAV.
func WriteWAVFile(path string, b Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV returns b encoded as an in-memory 16-bit mono PCM WAV file.
func EncodeWAV(b Buffer) ([]byte, error) {
	var ws writeSeeker
	if err := WriteWAV(&ws, b); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once the payload length is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	w.pos = int(next)
	return next, nil
}
