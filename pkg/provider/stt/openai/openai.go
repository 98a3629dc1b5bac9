// Package openai provides an STT provider backed by the OpenAI audio
// transcription API, requesting verbose JSON with word-level timestamps.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/wordsplice/pkg/audio"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model. Word timestamps
// are only available from whisper-1.
const DefaultModel = oai.AudioModelWhisper1

// uploadSampleRate keeps uploads small; whisper-1 resamples to 16 kHz anyway.
const uploadSampleRate = 16000

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API. It is safe for
// concurrent use.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	language     string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithLanguage sets the default ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, language: cfg.language}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	clip, err := audio.Resample(req.Audio, uploadSampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:                  oai.AudioModel(p.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return parseVerbose([]byte(resp.RawJSON()))
}

// verboseTranscription is the verbose_json payload. With word granularity the
// API reports words at the top level rather than per segment.
type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// parseVerbose converts the payload into a Transcript, attaching each word to
// the segment whose time range contains the word's start. Without segments
// all words land in a single segment spanning the recording.
func parseVerbose(data []byte) (stt.Transcript, error) {
	var v verboseTranscription
	if err := json.Unmarshal(data, &v); err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: parse response: %w", err)
	}

	tr := stt.Transcript{Text: strings.TrimSpace(v.Text), Language: v.Language}
	if len(v.Segments) == 0 {
		end := v.Duration
		if n := len(v.Words); n > 0 {
			end = max(end, v.Words[n-1].End)
		}
		tr.Segments = []stt.Segment{{Text: tr.Text, Start: 0, End: stt.Seconds(end)}}
	} else {
		for _, s := range v.Segments {
			tr.Segments = append(tr.Segments, stt.Segment{
				Text:  strings.TrimSpace(s.Text),
				Start: stt.Seconds(s.Start),
				End:   stt.Seconds(s.End),
			})
		}
	}

	for _, w := range v.Words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			continue
		}
		d := stt.WordDetail{Word: word, Start: stt.Seconds(w.Start), End: stt.Seconds(w.End)}
		// Last segment starting at or before the word.
		i := sort.Search(len(tr.Segments), func(i int) bool { return tr.Segments[i].Start > d.Start }) - 1
		i = max(i, 0)
		tr.Segments[i].Words = append(tr.Segments[i].Words, d)
	}
	return tr, nil
}
