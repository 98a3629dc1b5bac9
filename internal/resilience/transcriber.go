package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Provider] with automatic failover across
// several transcription backends. Each backend has its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional backend.
func (f *TranscriberFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the backend names in the order they are tried.
func (f *TranscriberFallback) Backends() []string {
	return f.group.Names()
}

// Name joins the backend names with "+", e.g. "whisper+openai".
func (f *TranscriberFallback) Name() string {
	return strings.Join(f.group.Names(), "+")
}

// State reports the breaker state of the named backend.
func (f *TranscriberFallback) State(name string) (State, bool) {
	return f.group.State(name)
}

// Transcribe sends req to the first healthy backend, moving down the list on
// failure.
func (f *TranscriberFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	return Call(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}
