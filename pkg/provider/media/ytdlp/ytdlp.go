// Package ytdlp implements media.Source on top of yt-dlp search and audio
// extraction.
package ytdlp

import (
	"context"
	"fmt"

	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/ytdlp"
)

// Name is the registry name of this source.
const Name = "youtube"

// Source implements media.Source.
type Source struct {
	client *ytdlp.Client
}

var _ media.Source = (*Source)(nil)

// New creates a Source. A nil client uses yt-dlp from PATH.
func New(client *ytdlp.Client) *Source {
	if client == nil {
		client = &ytdlp.Client{}
	}
	return &Source{client: client}
}

// Name implements media.Source.
func (s *Source) Name() string { return Name }

// Search implements media.Searcher.
func (s *Source) Search(ctx context.Context, query string, max int) ([]media.Candidate, error) {
	infos, err := s.client.Search(ctx, query, max)
	if err != nil {
		return nil, fmt.Errorf("media ytdlp: search %q: %w", query, err)
	}
	out := make([]media.Candidate, 0, len(infos))
	for _, info := range infos {
		locator := info.WebpageURL
		if locator == "" && info.ID != "" {
			locator = "https://www.youtube.com/watch?v=" + info.ID
		}
		if locator == "" {
			continue
		}
		out = append(out, media.Candidate{
			Source:   Name,
			Title:    info.Title,
			Locator:  locator,
			Duration: info.Duration,
			Metadata: map[string]string{
				"id":       info.ID,
				"uploader": info.Uploader,
				"query":    query,
			},
		})
	}
	return out, nil
}

// FetchRange implements media.Fetcher.
func (s *Source) FetchRange(ctx context.Context, c media.Candidate, startS, durationS float64, dir string) (string, error) {
	if durationS <= 0 {
		return "", fmt.Errorf("media ytdlp: duration must be positive, got %v", durationS)
	}
	path, err := s.client.Download(ctx, ytdlp.DownloadRequest{
		URL:       c.Locator,
		Dir:       dir,
		Name:      outputName(c),
		StartS:    startS,
		DurationS: durationS,
	})
	if err != nil {
		return "", fmt.Errorf("media ytdlp: fetch range: %w", err)
	}
	return path, nil
}

// FetchFull implements media.Fetcher.
func (s *Source) FetchFull(ctx context.Context, c media.Candidate, dir string) (string, error) {
	path, err := s.client.Download(ctx, ytdlp.DownloadRequest{
		URL:  c.Locator,
		Dir:  dir,
		Name: outputName(c),
	})
	if err != nil {
		return "", fmt.Errorf("media ytdlp: fetch full: %w", err)
	}
	return path, nil
}

// outputName builds "<safe query or title>-%(id)s".
func outputName(c media.Candidate) string {
	base := c.Metadata["query"]
	if base == "" {
		base = c.Title
	}
	return media.SafeName(base) + "-%(id)s"
}
