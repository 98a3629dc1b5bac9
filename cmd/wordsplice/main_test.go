package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/wordsplice/internal/config"
)

func TestParsePositions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hello-a.wav", "hello-b.wav", "hello world-c.wav", "other-d.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	specs, err := parsePositions([]string{"hello", "world=x.wav, y/ ,", "missing"}, dir)
	if err != nil {
		t.Fatalf("parsePositions: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}

	wantHello := []string{filepath.Join(dir, "hello-a.wav"), filepath.Join(dir, "hello-b.wav")}
	if specs[0].Word != "hello" || !slices.Equal(specs[0].Paths, wantHello) {
		t.Errorf("specs[0] = %+v, want hello %v", specs[0], wantHello)
	}
	if specs[1].Word != "world" || !slices.Equal(specs[1].Paths, []string{"x.wav", "y/"}) {
		t.Errorf("specs[1] = %+v", specs[1])
	}
	if specs[2].Word != "missing" || len(specs[2].Paths) != 0 {
		t.Errorf("specs[2] = %+v, want no paths", specs[2])
	}
}

func TestParsePositions_Errors(t *testing.T) {
	for _, args := range [][]string{{"=a.wav"}, {"word="}, {" "}} {
		if _, err := parsePositions(args, t.TempDir()); err == nil {
			t.Errorf("parsePositions(%q): expected error", args)
		}
	}
}

func TestPhraseDir(t *testing.T) {
	if got := phraseDir([]string{"full", "of=a.wav", "con/fetti"}); got != "full_of_confetti" {
		t.Errorf("phraseDir = %q", got)
	}
}

func TestOptHelpers(t *testing.T) {
	opts := map[string]any{"s": "v", "i": 4, "f": 2.0, "b": true, "wrong": 1}
	if got := optString(opts, "s"); got != "v" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(opts, "wrong"); got != "" {
		t.Errorf("optString(non-string) = %q", got)
	}
	if got := optString(nil, "s"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}
	if optInt(opts, "i") != 4 || optInt(opts, "f") != 2 || optInt(opts, "s") != 0 {
		t.Error("optInt mismatch")
	}
	if !optBool(opts, "b") || optBool(opts, "s") || optBool(nil, "b") {
		t.Error("optBool mismatch")
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, want := range config.ValidProviderNames {
		got := reg.Names(kind)
		want = slices.Sorted(slices.Values(want))
		if !slices.Equal(got, want) {
			t.Errorf("%s providers = %v, want %v", kind, got, want)
		}
	}

	if _, err := reg.CreateSource(config.ProviderEntry{Name: "local"}); err == nil {
		t.Error("local source without dir: expected error")
	}
	src, err := reg.CreateSource(config.ProviderEntry{Name: "local", Options: map[string]any{"dir": t.TempDir()}})
	if err != nil || src.Name() != "local" {
		t.Errorf("CreateSource(local) = %v, %v", src, err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "openai"}); err == nil {
		t.Error("openai without api key: expected error")
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "vosk"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown stt err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestNewLogger(t *testing.T) {
	if !newLogger(config.LogDebug).Handler().Enabled(t.Context(), -4) {
		t.Error("debug logger should enable debug records")
	}
	if newLogger(config.LogError).Handler().Enabled(t.Context(), 0) {
		t.Error("error logger should drop info records")
	}
}
