package assemble

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/wordsplice/internal/rank"
	"github.com/MrWong99/wordsplice/internal/verify"
	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/storage"
)

func TestFilename(t *testing.T) {
	if got := Filename(3, 12.345); got != "v03_score12.3.wav" {
		t.Errorf("Filename = %q", got)
	}
}

func TestRenderTop(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	a := New(DefaultConfig(), testLoader().load)
	r := NewRenderer(a, store, WithDir("run"), WithWorkers(2))

	t1 := vclip("t1", "tornado", 0.2, 0.6)
	c1 := vclip("c1", "confetti", 0.1, 0.7)
	f1 := vclip("f1", "confetti", 0.3, 0.5)
	ranked := []rank.ScoredSequence{
		{Clips: []verify.VerifiedClip{t1, c1}, Score: 1.23456},
		{Clips: []verify.VerifiedClip{t1, f1}, Score: 2.5},
		{Clips: []verify.VerifiedClip{f1, c1}, Score: 9.99},
	}

	res, err := r.RenderTop(context.Background(), ranked, 2)
	if err != nil {
		t.Fatalf("RenderTop: %v", err)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if len(res.Manifest) != 2 {
		t.Fatalf("manifest entries = %d, want 2", len(res.Manifest))
	}
	first := res.Manifest[0]
	if first.Version != 1 || first.Score != 1.23 || first.Filename != "v01_score1.2.wav" {
		t.Errorf("first entry = %+v", first)
	}
	if res.Manifest[1].Filename != "v02_score2.5.wav" {
		t.Errorf("second filename = %q", res.Manifest[1].Filename)
	}

	buf, err := audio.ReadWAVFile(filepath.Join(dir, "run", first.Filename))
	if err != nil {
		t.Fatalf("read rendered file: %v", err)
	}
	if diff := buf.DurationMs() - first.DurationMS; diff < -1 || diff > 1 {
		t.Errorf("file duration %d ms, manifest says %d", buf.DurationMs(), first.DurationMS)
	}
	if _, err := os.Stat(filepath.Join(dir, "run", "v03_score10.0.wav")); !os.IsNotExist(err) {
		t.Error("version beyond k should not be rendered")
	}

	data, err := os.ReadFile(filepath.Join(dir, "run", ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("manifest is not a JSON array: %v", err)
	}
	clips := raw[0]["clips"].([]any)
	c0 := clips[0].(map[string]any)
	for _, key := range []string{"word", "source", "word_start_s", "word_end_s", "rms_dbfs"} {
		if _, ok := c0[key]; !ok {
			t.Errorf("clip entry missing %q", key)
		}
	}
}

func TestRenderTop_AllWhenKZero(t *testing.T) {
	store, _ := storage.NewLocal(t.TempDir())
	r := NewRenderer(New(DefaultConfig(), testLoader().load), store)
	ranked := []rank.ScoredSequence{
		{Clips: []verify.VerifiedClip{vclip("t1", "tornado", 0.2, 0.6)}, Score: 0},
		{Clips: []verify.VerifiedClip{vclip("c1", "confetti", 0.1, 0.7)}, Score: 1},
	}
	res, err := r.RenderTop(context.Background(), ranked, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Manifest) != 2 {
		t.Errorf("manifest entries = %d, want 2", len(res.Manifest))
	}
}

func TestRenderTop_Error(t *testing.T) {
	store, _ := storage.NewLocal(t.TempDir())
	r := NewRenderer(New(DefaultConfig(), testLoader().load), store)
	_, err := r.RenderTop(context.Background(), []rank.ScoredSequence{
		{Clips: []verify.VerifiedClip{vclip("nope", "x", 0, 0.1)}},
	}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}
