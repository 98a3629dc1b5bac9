// Package captions defines the Provider interface for caption-track backends.
//
// A caption provider returns the WebVTT text of one subtitle track for a
// media locator. Parsing and word search happen in the caller; providers only
// pick the track and download it. Manually authored tracks are preferred over
// auto-generated ones when both exist.
package captions

import (
	"context"
	"errors"
)

// ErrNoTrack is returned when the candidate has no caption track in the
// requested language.
var ErrNoTrack = errors.New("captions: no caption track")

// Kind distinguishes authored subtitles from automatic captions.
type Kind int

const (
	// KindManual is a track uploaded by a person.
	KindManual Kind = iota

	// KindAuto is a speech-recognition track generated by the host.
	KindAuto
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindManual:
		return "manual"
	case KindAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Track is one fetched caption track.
type Track struct {
	Kind     Kind
	Language string

	// VTT is the raw WebVTT payload.
	VTT string
}

// Provider fetches caption tracks.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Fetch returns the preferred track for locator in lang. It returns an
	// error wrapping ErrNoTrack when no track exists.
	Fetch(ctx context.Context, locator, lang string) (Track, error)
}
