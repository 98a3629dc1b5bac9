package openai

import (
	"math"
	"testing"
	"time"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("key", "", WithLanguage("en"), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", p.model)
	}
	if p.language != "en" {
		t.Errorf("language = %q, want en", p.language)
	}
}

// TestParseVerbose_AssignsWordsToSegments verifies words reported at the top
// level end up in the segment that contains them.
func TestParseVerbose_AssignsWordsToSegments(t *testing.T) {
	body := `{
	  "language": "english", "duration": 4.0, "text": "Hello there. Tornado warning.",
	  "segments": [
	    {"text": " Hello there.", "start": 0.0, "end": 1.5},
	    {"text": " Tornado warning.", "start": 1.5, "end": 3.0}
	  ],
	  "words": [
	    {"word": "Hello", "start": 0.1, "end": 0.4},
	    {"word": "there", "start": 0.5, "end": 0.9},
	    {"word": "Tornado", "start": 1.6, "end": 2.1},
	    {"word": "warning", "start": 2.2, "end": 2.8}
	  ]
	}`
	tr, err := parseVerbose([]byte(body))
	if err != nil {
		t.Fatalf("parseVerbose: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(tr.Segments))
	}
	if n := len(tr.Segments[0].Words); n != 2 {
		t.Errorf("segment 0 words = %d, want 2", n)
	}
	if n := len(tr.Segments[1].Words); n != 2 {
		t.Errorf("segment 1 words = %d, want 2", n)
	}
	if w := tr.Segments[1].Words[0].Word; w != "Tornado" {
		t.Errorf("segment 1 first word = %q, want Tornado", w)
	}
}

func TestParseVerbose_NoSegments(t *testing.T) {
	tr, err := parseVerbose([]byte(`{"text":"confetti","duration":1.0,"words":[{"word":"confetti","start":0.2,"end":1.4}]}`))
	if err != nil {
		t.Fatalf("parseVerbose: %v", err)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(tr.Segments))
	}
	if got := tr.Segments[0].End.Seconds(); math.Abs(got-1.4) > 1e-6 {
		t.Errorf("segment end = %v, want 1.4", got)
	}
	if len(tr.Words()) != 1 {
		t.Errorf("words = %d, want 1", len(tr.Words()))
	}
}

func TestParseVerbose_Invalid(t *testing.T) {
	if _, err := parseVerbose([]byte("nope")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
