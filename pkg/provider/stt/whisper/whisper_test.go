package whisper_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
	"github.com/MrWong99/wordsplice/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

const verboseBody = `{
  "language": "en",
  "text": " a tornado full of confetti",
  "segments": [
    {"text": " a tornado full of confetti", "start": 0.0, "end": 2.4,
     "words": [
       {"word": " a", "start": 0.10, "end": 0.20, "probability": 0.9},
       {"word": " tornado", "start": 0.20, "end": 0.80, "probability": 0.95},
       {"word": " full", "start": 0.90, "end": 1.10, "probability": 0.8},
       {"word": " of", "start": 1.10, "end": 1.20, "probability": 0.8},
       {"word": " confetti", "start": 1.30, "end": 2.00, "probability": 0.7}
     ]},
    {"text": " (applause)", "start": 2.4, "end": 3.0}
  ]
}`

// newMockServer creates a test server that responds to POST /inference with
// body. It increments *callCount on every matched request and records the
// submitted form fields in *fields.
func newMockServer(t *testing.T, status int, body string, callCount *atomic.Int32, fields map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fields != nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
		}
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

// speechClip generates one second of a 440 Hz tone at 16 kHz.
func speechClip() audio.Buffer {
	s := make([]float64, 16000)
	for i := range s {
		s[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	return audio.Buffer{Samples: s, SampleRate: 16000}
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
		whisper.WithSampleRate(16000),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestTranscribe_ParsesWordTimestamps(t *testing.T) {
	var calls atomic.Int32
	fields := map[string]string{}
	srv := newMockServer(t, http.StatusOK, verboseBody, &calls, fields)
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if fields["response_format"] != "verbose_json" {
		t.Errorf("response_format = %q, want verbose_json", fields["response_format"])
	}
	if fields["language"] != "en" {
		t.Errorf("language = %q, want en", fields["language"])
	}

	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(tr.Segments))
	}
	words := tr.Words()
	if len(words) != 5 {
		t.Fatalf("words = %d, want 5", len(words))
	}
	if words[1].Word != "tornado" {
		t.Errorf("words[1] = %q, want tornado", words[1].Word)
	}
	if got := words[4].Start.Seconds(); math.Abs(got-1.3) > 1e-6 {
		t.Errorf("confetti start = %v, want 1.3", got)
	}
	if tr.Segments[1].Words != nil {
		t.Errorf("segment without words should have nil Words, got %v", tr.Segments[1].Words)
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	fields := map[string]string{}
	srv := newMockServer(t, http.StatusOK, verboseBody, nil, fields)
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip(), Language: "fr"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if fields["language"] != "fr" {
		t.Errorf("language = %q, want fr", fields["language"])
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := newMockServer(t, http.StatusInternalServerError, "", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, "{not json", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()}); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, verboseBody, &calls, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: speechClip()}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0", calls.Load())
	}
}

func TestTranscribe_PlainTextResponse(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"text":" hello"}`, nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: speechClip()})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("text = %q, want hello", tr.Text)
	}
	if len(tr.Words()) != 0 {
		t.Errorf("expected no words, got %d", len(tr.Words()))
	}
}
