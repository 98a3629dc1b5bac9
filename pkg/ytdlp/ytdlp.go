// Package ytdlp wraps the yt-dlp command-line tool. It is shared by the
// caption and media providers: metadata is read with --dump-single-json and
// audio is extracted to WAV through yt-dlp's ffmpeg post-processor.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBinary is looked up on PATH when no explicit binary is configured.
const DefaultBinary = "yt-dlp"

// ErrNoOutput is returned when a download finished without producing a WAV.
var ErrNoOutput = errors.New("ytdlp: download produced no output file")

// Format describes one downloadable subtitle rendition.
type Format struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

// Info is the subset of yt-dlp's info dict used by the providers.
type Info struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	WebpageURL        string              `json:"webpage_url"`
	Duration          float64             `json:"duration"`
	Uploader          string              `json:"uploader"`
	Subtitles         map[string][]Format `json:"subtitles"`
	AutomaticCaptions map[string][]Format `json:"automatic_captions"`
	Entries           []*Info             `json:"entries"`
}

// Client runs yt-dlp. The zero value uses DefaultBinary.
type Client struct {
	// Binary is the yt-dlp executable path.
	Binary string

	// ExtraArgs are appended to every invocation (cookies, proxies, ...).
	ExtraArgs []string
}

func (c *Client) binary() string {
	if c == nil || c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

// Available reports whether the configured binary can be found.
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.binary())
	return err == nil
}

// Info fetches metadata for target without downloading any media.
func (c *Client) Info(ctx context.Context, target string) (*Info, error) {
	out, err := c.run(ctx, "--dump-single-json", "--skip-download", "--no-playlist", target)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse info for %q: %w", target, err)
	}
	return &info, nil
}

// Search returns up to n search results for query. Entries yt-dlp could not
// resolve are dropped.
func (c *Client) Search(ctx context.Context, query string, n int) ([]*Info, error) {
	if n <= 0 {
		n = 1
	}
	target := "ytsearch" + strconv.Itoa(n) + ":" + query
	out, err := c.run(ctx, "--dump-single-json", "--skip-download", target)
	if err != nil {
		return nil, err
	}
	var playlist Info
	if err := json.Unmarshal(out, &playlist); err != nil {
		return nil, fmt.Errorf("ytdlp: parse search results: %w", err)
	}
	results := make([]*Info, 0, len(playlist.Entries))
	for _, e := range playlist.Entries {
		if e != nil {
			results = append(results, e)
		}
	}
	return results, nil
}

// DownloadRequest describes one audio extraction.
type DownloadRequest struct {
	URL string

	// Dir receives the output file.
	Dir string

	// Name is the output basename without extension. yt-dlp template fields
	// such as %(id)s are allowed.
	Name string

	// StartS and DurationS select a section; DurationS <= 0 downloads the
	// full track.
	StartS    float64
	DurationS float64
}

// Download extracts audio as WAV and returns the path of the new file.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return "", fmt.Errorf("ytdlp: create output dir: %w", err)
	}
	before, err := wavSet(req.Dir)
	if err != nil {
		return "", err
	}

	args := []string{
		"--format", "bestaudio/best",
		"--extract-audio", "--audio-format", "wav",
		"--no-playlist",
		"--paths", req.Dir,
		"--output", req.Name + ".%(ext)s",
	}
	if req.DurationS > 0 {
		args = append(args,
			"--download-sections", "*"+formatSeconds(req.StartS)+"-"+formatSeconds(req.StartS+req.DurationS),
			"--force-keyframes-at-cuts",
		)
	}
	args = append(args, req.URL)

	slog.Debug("ytdlp: downloading", "url", req.URL, "start_s", req.StartS, "duration_s", req.DurationS)
	if _, err := c.run(ctx, args...); err != nil {
		return "", err
	}

	after, err := wavSet(req.Dir)
	if err != nil {
		return "", err
	}
	for path := range after {
		if !before[path] {
			return path, nil
		}
	}
	return "", ErrNoOutput
}

// run executes yt-dlp and returns stdout. Failures carry yt-dlp's stderr so
// callers can classify them by message.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"--quiet", "--no-warnings"}, args...)
	if c != nil {
		full = append(full, c.ExtraArgs...)
	}
	cmd := exec.CommandContext(ctx, c.binary(), full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ytdlp: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ytdlp: %w", err)
		}
		return nil, fmt.Errorf("ytdlp: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// ---- helpers ----

func wavSet(dir string) (map[string]bool, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, fmt.Errorf("ytdlp: glob output dir: %w", err)
	}
	set := make(map[string]bool, len(matches))
	for _, m := range matches {
		set[m] = true
	}
	return set, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(max(s, 0), 'f', 3, 64)
}
