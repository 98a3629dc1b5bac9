// Package mock provides a test double for the media.Source interface.
//
// Fetch calls write real WAV files so callers that decode the result can be
// exercised end to end.
package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

// FetchCall records one FetchRange or FetchFull invocation.
type FetchCall struct {
	Locator   string
	Full      bool
	StartS    float64
	DurationS float64
	Dir       string
}

// Source is a configurable media.Source.
type Source struct {
	mu sync.Mutex

	// SourceName is returned by Name; defaults to "mock".
	SourceName string

	// Candidates is returned by Search, truncated to max.
	Candidates []media.Candidate

	// SearchErr is returned by Search when set.
	SearchErr error

	// Audio maps locator to the full recording served by the fetch methods.
	// Unknown locators get one second of silence at 16 kHz.
	Audio map[string]audio.Buffer

	// FetchErr is returned by both fetch methods when set.
	FetchErr error

	// FetchErrs overrides FetchErr for the first len(FetchErrs) fetch calls.
	FetchErrs []error

	Searches []string
	Fetches  []FetchCall
}

var _ media.Source = (*Source)(nil)

// Name implements media.Source.
func (s *Source) Name() string {
	if s.SourceName == "" {
		return "mock"
	}
	return s.SourceName
}

// Search implements media.Searcher.
func (s *Source) Search(_ context.Context, query string, max int) ([]media.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Searches = append(s.Searches, query)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	out := s.Candidates
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return append([]media.Candidate(nil), out...), nil
}

// FetchRange implements media.Fetcher.
func (s *Source) FetchRange(_ context.Context, c media.Candidate, startS, durationS float64, dir string) (string, error) {
	buf, seq, err := s.record(FetchCall{Locator: c.Locator, StartS: startS, DurationS: durationS, Dir: dir})
	if err != nil {
		return "", err
	}
	n := buf.SampleIndex(durationS)
	from := max(0, min(buf.SampleIndex(startS), buf.Len()-n))
	return write(buf.Slice(from, from+n), dir, seq)
}

// FetchFull implements media.Fetcher.
func (s *Source) FetchFull(_ context.Context, c media.Candidate, dir string) (string, error) {
	buf, seq, err := s.record(FetchCall{Locator: c.Locator, Full: true, Dir: dir})
	if err != nil {
		return "", err
	}
	return write(buf, dir, seq)
}

// FetchCount returns the number of fetch calls.
func (s *Source) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Fetches)
}

func (s *Source) record(call FetchCall) (audio.Buffer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches = append(s.Fetches, call)
	seq := len(s.Fetches)
	if i := seq - 1; i < len(s.FetchErrs) && s.FetchErrs[i] != nil {
		return audio.Buffer{}, seq, s.FetchErrs[i]
	}
	if s.FetchErr != nil {
		return audio.Buffer{}, seq, s.FetchErr
	}
	if buf, ok := s.Audio[call.Locator]; ok {
		return buf, seq, nil
	}
	return audio.Buffer{Samples: make([]float64, 16000), SampleRate: 16000}, seq, nil
}

func write(buf audio.Buffer, dir string, n int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("mock-%03d.wav", n))
	if err := audio.WriteWAVFile(path, buf); err != nil {
		return "", err
	}
	return path, nil
}
