// Package caption parses WebVTT caption tracks into cues and searches them
// for spoken words.
package caption

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/wordsplice/internal/match"
)

// ErrMalformed is returned when a payload contains no parseable cue.
var ErrMalformed = errors.New("caption: no parseable cues")

// Cue is one timed caption entry. Text has markup stripped and whitespace
// collapsed.
type Cue struct {
	StartS float64
	EndS   float64
	Text   string
}

var (
	timingRE  = regexp.MustCompile(`(\d{1,2}:)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{1,2}:)?(\d{2}):(\d{2})\.(\d{3})`)
	tagRE     = regexp.MustCompile(`<[^>]+>`)
	blankRE   = regexp.MustCompile(`\n\s*\n`)
	spaceRE   = regexp.MustCompile(`\s+`)
	lineBreak = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// ParseVTT splits a WebVTT payload into cues.
//
// Blocks without a timing line (the header, NOTE and STYLE blocks) are
// skipped, as is anything before the timing line of a cue (its identifier).
// Positioning settings after the timing are ignored. Cues whose text is
// empty after tag stripping are dropped.
func ParseVTT(vtt string) []Cue {
	var cues []Cue
	body := strings.TrimSpace(lineBreak.Replace(vtt))
	for _, block := range blankRE.Split(body, -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		at := -1
		var m []string
		for i, line := range lines {
			if m = timingRE.FindStringSubmatch(line); m != nil {
				at = i
				break
			}
		}
		if at < 0 {
			continue
		}

		text := tagRE.ReplaceAllString(strings.Join(lines[at+1:], " "), "")
		text = strings.TrimSpace(spaceRE.ReplaceAllString(text, " "))
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			StartS: timestamp(m[1], m[2], m[3], m[4]),
			EndS:   timestamp(m[5], m[6], m[7], m[8]),
			Text:   text,
		})
	}
	return cues
}

// Parse is ParseVTT that reports ErrMalformed when the payload is neither
// headed by WEBVTT nor contains a single timing line. A valid track without
// usable cues returns no cues and no error.
func Parse(vtt string) ([]Cue, error) {
	cues := ParseVTT(vtt)
	if len(cues) == 0 && !looksLikeVTT(vtt) {
		return nil, ErrMalformed
	}
	return cues, nil
}

// FindWordTimestamp returns the start of the earliest cue mentioning any
// word of query. Each word is matched independently with word boundaries,
// case-insensitively, and only its first cue counts.
func FindWordTimestamp(cues []Cue, query string) (float64, bool) {
	best, found := 0.0, false
	for _, w := range match.ParseQuery(query) {
		re := match.Pattern(w)
		for _, c := range cues {
			if re.MatchString(c.Text) {
				if !found || c.StartS < best {
					best, found = c.StartS, true
				}
				break
			}
		}
	}
	return best, found
}

func timestamp(hours, minutes, seconds, millis string) float64 {
	h := 0
	if hours != "" {
		h, _ = strconv.Atoi(strings.TrimSuffix(hours, ":"))
	}
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	ms, _ := strconv.Atoi(millis)
	return float64(h*3600+m*60+s) + float64(ms)/1000
}

func looksLikeVTT(vtt string) bool {
	t := strings.TrimSpace(vtt)
	return strings.HasPrefix(t, "WEBVTT") || timingRE.MatchString(t)
}
