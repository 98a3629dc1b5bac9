// Package ytdlp implements captions.Provider using yt-dlp metadata. The
// track list is read from the info dict and the chosen WebVTT rendition is
// downloaded over HTTP.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	"github.com/MrWong99/wordsplice/pkg/ytdlp"
)

const (
	defaultLanguage = "en"

	// maxTrackBytes caps a single caption download.
	maxTrackBytes = 8 << 20
)

// ErrTrackTooLarge is returned when a caption track is bigger than the
// download cap. The track is rejected rather than cut short.
var ErrTrackTooLarge = errors.New("captions ytdlp: track too large")

// Option is a functional option for Provider.
type Option func(*Provider)

// WithClient sets the yt-dlp client used for metadata lookups.
func WithClient(c *ytdlp.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithHTTPClient sets the HTTP client used to download tracks.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.http = c
	}
}

// WithDefaultLanguage sets the language used when Fetch receives none.
func WithDefaultLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider implements captions.Provider.
type Provider struct {
	client   *ytdlp.Client
	http     *http.Client
	language string
}

var _ captions.Provider = (*Provider)(nil)

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		client:   &ytdlp.Client{},
		http:     &http.Client{Timeout: 30 * time.Second},
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Fetch implements captions.Provider.
func (p *Provider) Fetch(ctx context.Context, locator, lang string) (captions.Track, error) {
	if lang == "" {
		lang = p.language
	}
	// Local files never carry remote captions.
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return captions.Track{}, fmt.Errorf("captions ytdlp: %q is not a URL: %w", locator, captions.ErrNoTrack)
	}
	info, err := p.client.Info(ctx, locator)
	if err != nil {
		return captions.Track{}, fmt.Errorf("captions ytdlp: %w", err)
	}
	url, kind, ok := selectTrack(info, lang)
	if !ok {
		return captions.Track{}, fmt.Errorf("captions ytdlp: %q lang %q: %w", locator, lang, captions.ErrNoTrack)
	}

	body, err := p.download(ctx, url)
	if err != nil {
		return captions.Track{}, err
	}
	return captions.Track{Kind: kind, Language: lang, VTT: body}, nil
}

func (p *Provider) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("captions ytdlp: build request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("captions ytdlp: download track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("captions ytdlp: download track: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes+1))
	if err != nil {
		return "", fmt.Errorf("captions ytdlp: read track: %w", err)
	}
	if len(data) > maxTrackBytes {
		return "", fmt.Errorf("captions ytdlp: track exceeds %d bytes: %w", maxTrackBytes, ErrTrackTooLarge)
	}
	return string(data), nil
}

// selectTrack returns the WebVTT URL for lang, preferring manual subtitles
// over automatic captions.
func selectTrack(info *ytdlp.Info, lang string) (string, captions.Kind, bool) {
	if url, ok := vttURL(info.Subtitles[lang]); ok {
		return url, captions.KindManual, true
	}
	if url, ok := vttURL(info.AutomaticCaptions[lang]); ok {
		return url, captions.KindAuto, true
	}
	return "", 0, false
}

func vttURL(formats []ytdlp.Format) (string, bool) {
	for _, f := range formats {
		if f.Ext == "vtt" && f.URL != "" {
			return f.URL, true
		}
	}
	return "", false
}
