// Package media defines the candidate-search and media-fetch collaborators.
//
// A [Source] finds candidate recordings for a query and fetches their audio,
// either a bounded time range (the clip that ends up in a word pool) or the
// full track (used for transcription when captions are missing). Fetched
// audio is always written as a WAV file into a caller-owned directory.
package media

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// ErrNotFound is returned when a search produced no candidates.
var ErrNotFound = errors.New("media: no candidates")

// Candidate is one search result.
type Candidate struct {
	// Source is the name of the source that produced the candidate.
	Source string

	Title string

	// Locator is the playable URL or file path.
	Locator string

	// Duration is the total length in seconds; 0 when unknown.
	Duration float64

	// Metadata carries source-specific fields (id, uploader, query, ...).
	Metadata map[string]string
}

// ID returns Metadata["id"] or an empty string.
func (c Candidate) ID() string {
	return c.Metadata["id"]
}

// Searcher finds candidates for a query.
type Searcher interface {
	// Search returns up to max candidates in relevance order.
	Search(ctx context.Context, query string, max int) ([]Candidate, error)
}

// Fetcher retrieves candidate audio as WAV files.
type Fetcher interface {
	// FetchRange writes [startS, startS+durationS) of c into dir and returns
	// the file path. Ranges past the end of the source are clamped.
	FetchRange(ctx context.Context, c Candidate, startS, durationS float64, dir string) (string, error)

	// FetchFull writes the whole audio track of c into dir.
	FetchFull(ctx context.Context, c Candidate, dir string) (string, error)
}

// Source combines search and fetch under a registry name.
type Source interface {
	Searcher
	Fetcher

	// Name identifies the source in logs, sidecars and the registry.
	Name() string
}

// SafeName keeps letters, digits and "._- " from s and trims the result. An
// empty result becomes "download".
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "download"
	}
	return out
}
