// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, a
// whisper-server instance, or a hosted API such as OpenAI or Deepgram) and
// exposes a uniform batch interface: one complete recording in, one
// Transcript out. Word-level timing is the whole point of the abstraction;
// providers request it from their backend whenever the backend supports it
// and populate Segment.Words accordingly.
//
// Implementations document whether they are safe for concurrent use. Wrap a
// provider with Serialize when it is shared across workers and its backend is
// not reentrant.
package stt

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/wordsplice/pkg/audio"
)

// ErrUnavailable is returned when a transcription backend is not usable in
// this deployment (no model configured, server unreachable at startup, API key
// missing). Callers treat it like a miss rather than a fatal error.
var ErrUnavailable = errors.New("stt: transcription backend unavailable")

// Request describes one transcription job.
type Request struct {
	// Audio is the mono recording to transcribe. Providers resample internally
	// when their backend needs a specific rate.
	Audio audio.Buffer

	// Language is the BCP-47 language tag for recognition (e.g., "en"). An empty
	// string uses the provider default.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe runs recognition over req.Audio with word-level timing and
	// returns the segments in chronological order.
	//
	// Returns an error if the backend fails or ctx is cancelled. A backend that
	// cannot run at all returns an error wrapping ErrUnavailable.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// Serialize returns a Provider that forwards to p while allowing at most one
// Transcribe call in flight.
func Serialize(p Provider) Provider {
	if _, ok := p.(*serialized); ok {
		return p
	}
	return &serialized{inner: p}
}

type serialized struct {
	mu    sync.Mutex
	inner Provider
}

func (s *serialized) Transcribe(ctx context.Context, req Request) (Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	return s.inner.Transcribe(ctx, req)
}
