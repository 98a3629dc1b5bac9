package whisper_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/wordsplice/pkg/provider/stt"
	"github.com/MrWong99/wordsplice/pkg/provider/stt/whisper"
)

// loadNative opens the ggml model named by WHISPER_MODEL_PATH or skips.
func loadNative(t *testing.T, opts ...whisper.NativeOption) *whisper.Native {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative(%s): %v", path, err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewNative_BadModel(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "ggml-garbage.bin")
	if err := os.WriteFile(garbage, []byte("not a model"), 0o644); err != nil {
		t.Fatal(err)
	}
	for name, path := range map[string]string{
		"empty":   "",
		"missing": filepath.Join(t.TempDir(), "ggml-base.en.bin"),
		"garbage": garbage,
	} {
		t.Run(name, func(t *testing.T) {
			if p, err := whisper.NewNative(path); err == nil {
				_ = p.Close()
				t.Fatalf("NewNative(%q) succeeded", path)
			}
		})
	}
}

func TestNative_Transcribe(t *testing.T) {
	p := loadNative(t, whisper.WithNativeLanguage("en"), whisper.WithNativeThreads(2))

	// A tone has no words, but decoding must still succeed.
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "en" {
		t.Errorf("Language = %q, want en", tr.Language)
	}
	for _, seg := range tr.Segments {
		for _, w := range seg.Words {
			if w.End < w.Start {
				t.Errorf("word %q ends before it starts", w.Word)
			}
		}
	}
}

func TestNative_ConcurrentCallsSerialize(t *testing.T) {
	p := loadNative(t)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Go(func() {
			_, errs[i] = p.Transcribe(context.Background(), stt.Request{Audio: speechClip(), Language: "en"})
		})
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

func TestNative_CanceledContext(t *testing.T) {
	p := loadNative(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Transcribe(ctx, stt.Request{Audio: speechClip()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Transcribe = %v, want context.Canceled", err)
	}
}

func TestNative_CloseMakesUnavailable(t *testing.T) {
	p := loadNative(t)
	for range 2 {
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()})
	if !errors.Is(err, stt.ErrUnavailable) {
		t.Errorf("Transcribe after Close = %v, want stt.ErrUnavailable", err)
	}
}
