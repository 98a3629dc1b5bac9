// Package local implements media.Source over audio files on disk. The search
// query is a filename glob; matching files are sampled at random. WAV files
// are sliced natively, other formats are decoded with ffmpeg.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"

	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

// Name is the registry name of this source.
const Name = "local"

// SupportedExtensions lists the file types Search considers.
var SupportedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".flac": true, ".ogg": true, ".aif": true, ".aiff": true,
}

// Option is a functional option for Source.
type Option func(*Source)

// WithRand sets the random source used to sample search results.
func WithRand(r *rand.Rand) Option {
	return func(s *Source) {
		s.rng = r
	}
}

// WithFFmpeg sets the ffmpeg executable used for non-WAV input.
func WithFFmpeg(path string) Option {
	return func(s *Source) {
		s.ffmpeg = path
	}
}

// Source implements media.Source.
type Source struct {
	base   string
	ffmpeg string

	mu  sync.Mutex
	rng *rand.Rand
}

var _ media.Source = (*Source)(nil)

// New creates a Source rooted at base. An empty base means the working
// directory.
func New(base string, opts ...Option) *Source {
	if base == "" {
		base = "."
	}
	s := &Source{
		base:   base,
		ffmpeg: "ffmpeg",
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements media.Source.
func (s *Source) Name() string { return Name }

// Search walks the base directory for supported files whose name matches the
// glob query ("*" for all) and returns a random selection of up to max.
func (s *Source) Search(ctx context.Context, query string, max int) ([]media.Candidate, error) {
	if query == "" {
		query = "*"
	}
	if _, err := filepath.Match(query, ""); err != nil {
		return nil, fmt.Errorf("media local: invalid pattern %q: %w", query, err)
	}

	var files []string
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if ok, _ := filepath.Match(query, d.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("media local: walk %s: %w", s.base, err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	s.rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	s.mu.Unlock()
	if max > 0 && len(files) > max {
		files = files[:max]
	}

	out := make([]media.Candidate, 0, len(files))
	for _, f := range files {
		dur, err := s.probeDuration(ctx, f)
		if err != nil {
			slog.Debug("media local: duration unknown", "file", f, "err", err)
		}
		out = append(out, media.Candidate{
			Source:   Name,
			Title:    filepath.Base(f),
			Locator:  f,
			Duration: dur,
			Metadata: map[string]string{
				"base_path": s.base,
				"query":     query,
			},
		})
	}
	return out, nil
}

// FetchRange implements media.Fetcher. A source shorter than durationS is
// returned whole.
func (s *Source) FetchRange(ctx context.Context, c media.Candidate, startS, durationS float64, dir string) (string, error) {
	if durationS <= 0 {
		return "", fmt.Errorf("media local: duration must be positive, got %v", durationS)
	}
	buf, err := s.load(ctx, c.Locator)
	if err != nil {
		return "", err
	}

	n := buf.SampleIndex(durationS)
	if buf.Len() > n {
		from := buf.SampleIndex(startS)
		from = max(0, min(from, buf.Len()-n))
		buf = buf.Slice(from, from+n)
	}
	return s.write(buf, c, "_clip", dir)
}

// FetchFull implements media.Fetcher.
func (s *Source) FetchFull(ctx context.Context, c media.Candidate, dir string) (string, error) {
	buf, err := s.load(ctx, c.Locator)
	if err != nil {
		return "", err
	}
	return s.write(buf, c, "_full", dir)
}

func (s *Source) write(buf audio.Buffer, c media.Candidate, suffix, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media local: create output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(c.Locator), filepath.Ext(c.Locator))
	out := filepath.Join(dir, media.SafeName(stem)+suffix+".wav")
	if err := audio.WriteWAVFile(out, buf); err != nil {
		return "", fmt.Errorf("media local: write %s: %w", out, err)
	}
	return out, nil
}

// load decodes path into a mono buffer, going through ffmpeg for anything
// that is not WAV.
func (s *Source) load(ctx context.Context, path string) (audio.Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err := audio.ReadWAVFile(path)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("media local: %w", err)
		}
		return buf, nil
	}

	tmp, err := os.MkdirTemp("", "wordsplice-decode-")
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("media local: %w", err)
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "decoded.wav")
	cmd := exec.CommandContext(ctx, s.ffmpeg, "-v", "error", "-i", path, "-ac", "1", "-c:a", "pcm_s16le", "-y", out)
	if b, err := cmd.CombinedOutput(); err != nil {
		return audio.Buffer{}, fmt.Errorf("media local: ffmpeg decode %s: %w\n%s", path, err, string(b))
	}
	buf, err := audio.ReadWAVFile(out)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("media local: %w", err)
	}
	return buf, nil
}

// probeDuration reads the WAV header, or asks ffprobe for other formats.
func (s *Source) probeDuration(ctx context.Context, path string) (float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		d, err := wav.NewDecoder(f).Duration()
		if err != nil {
			return 0, err
		}
		return d.Seconds(), nil
	}

	probe := filepath.Join(filepath.Dir(s.ffmpeg), "ffprobe")
	if s.ffmpeg == "ffmpeg" {
		probe = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}
