// Package match locates query words in transcribed tokens.
//
// Matching is case-insensitive and respects word boundaries, so "tornado"
// matches "Tornado," but not "tornadoes". Multi-word queries anchor on the
// first token matching the first query word and then scan forward greedily
// for the remaining words, in order but not necessarily contiguous. The
// first anchor whose scan completes wins; a later anchor that would give a
// tighter span is never considered.
package match

import (
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// SegmentSpan is the duration assumed for a word located only through
// segment text.
const SegmentSpan = 300 * time.Millisecond

// WordSpan is the [StartS, EndS] interval of a matched word or phrase.
type WordSpan struct {
	StartS float64
	EndS   float64
}

// DurationMs returns the span length in whole milliseconds.
func (s WordSpan) DurationMs() int {
	return int((s.EndS - s.StartS) * 1000)
}

// Window bounds the forward scan of a multi-word match, measured from the
// anchor token. A zero field leaves that dimension unbounded; when both are
// set the scan stops at whichever bound is reached first.
type Window struct {
	// MaxTokens is the number of tokens after the anchor that may be
	// examined.
	MaxTokens int `yaml:"max_tokens"`

	// MaxSpan limits how far a token's start may lie after the anchor's
	// start.
	MaxSpan time.Duration `yaml:"max_span"`
}

// DefaultWindow applies both the 3 second span and the 8 token bound.
var DefaultWindow = Window{MaxTokens: 8, MaxSpan: 3 * time.Second}

func (w Window) exceeded(anchor, offset int, tokens []stt.WordDetail) bool {
	if w.MaxTokens > 0 && offset-anchor > w.MaxTokens {
		return true
	}
	if w.MaxSpan > 0 && tokens[offset].Start-tokens[anchor].Start > w.MaxSpan {
		return true
	}
	return false
}

// Query is a target split into lowercase words.
type Query struct {
	Words    []string
	patterns []*regexp.Regexp
}

// NewQuery splits target on whitespace and compiles one pattern per word.
func NewQuery(target string) Query {
	words := ParseQuery(target)
	q := Query{Words: words, patterns: make([]*regexp.Regexp, len(words))}
	for i, w := range words {
		q.patterns[i] = Pattern(w)
	}
	return q
}

// ParseQuery splits target into lowercase words.
func ParseQuery(target string) []string {
	return strings.Fields(strings.ToLower(target))
}

// Pattern compiles a case-insensitive matcher for a literal word that must
// not be preceded or followed by a letter, mark, digit or underscore. The
// boundary is spelled out because RE2's \b only knows ASCII word characters,
// which would make "café" or "über" unmatchable.
func Pattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|` + nonWord + `)` + regexp.QuoteMeta(word) + `(?:$|` + nonWord + `)`)
}

const nonWord = `[^\p{L}\p{M}\p{N}_]`

// Len returns the number of query words.
func (q Query) Len() int { return len(q.Words) }

// Matches reports whether text contains query word i.
func (q Query) Matches(i int, text string) bool {
	return q.patterns[i].MatchString(text)
}

// FindFirst returns the span of the first occurrence of q in tokens.
func FindFirst(tokens []stt.WordDetail, q Query, w Window) (WordSpan, bool) {
	switch q.Len() {
	case 0:
		return WordSpan{}, false
	case 1:
		for _, t := range tokens {
			if q.Matches(0, t.Word) {
				return tokenSpan(t, t), true
			}
		}
		return WordSpan{}, false
	}
	for i := range tokens {
		if last, ok := scan(tokens, q, w, i); ok {
			return tokenSpan(tokens[i], tokens[last]), true
		}
	}
	return WordSpan{}, false
}

// FindAll returns every occurrence of q in anchor order. Tokens consumed by
// an accepted multi-word match are never part of another match.
func FindAll(tokens []stt.WordDetail, q Query, w Window) []WordSpan {
	var spans []WordSpan
	switch q.Len() {
	case 0:
		return nil
	case 1:
		for _, t := range tokens {
			if q.Matches(0, t.Word) {
				spans = append(spans, tokenSpan(t, t))
			}
		}
		return spans
	}

	used := make(map[int]bool)
	for i := range tokens {
		if used[i] {
			continue
		}
		last, ok := scanUnused(tokens, q, w, i, used)
		if !ok {
			continue
		}
		spans = append(spans, tokenSpan(tokens[i], tokens[last]))
	}
	return spans
}

// SegmentFallback looks for the first query word in the text of segments
// that carry no word tokens and returns [segment start, start+SegmentSpan].
func SegmentFallback(segments []stt.Segment, q Query) (WordSpan, bool) {
	spans := SegmentFallbackAll(segments, q)
	if len(spans) == 0 {
		return WordSpan{}, false
	}
	return spans[0], true
}

// SegmentFallbackAll is SegmentFallback returning every matching segment.
func SegmentFallbackAll(segments []stt.Segment, q Query) []WordSpan {
	if q.Len() == 0 {
		return nil
	}
	var spans []WordSpan
	for _, s := range segments {
		if len(s.Words) == 0 && q.Matches(0, s.Text) {
			spans = append(spans, WordSpan{
				StartS: s.Start.Seconds(),
				EndS:   (s.Start + SegmentSpan).Seconds(),
			})
		}
	}
	return spans
}

// scan anchors at i and returns the index of the token matching the last
// query word.
func scan(tokens []stt.WordDetail, q Query, w Window, i int) (int, bool) {
	return scanUnused(tokens, q, w, i, nil)
}

func scanUnused(tokens []stt.WordDetail, q Query, w Window, i int, used map[int]bool) (int, bool) {
	if !q.Matches(0, tokens[i].Word) {
		return 0, false
	}
	matched := []int{i}
	next := 1
	for j := i + 1; j < len(tokens) && next < q.Len(); j++ {
		if w.exceeded(i, j, tokens) {
			break
		}
		if used[j] {
			continue
		}
		if q.Matches(next, tokens[j].Word) {
			matched = append(matched, j)
			next++
		}
	}
	if next < q.Len() {
		return 0, false
	}
	if used != nil {
		for _, m := range matched {
			used[m] = true
		}
	}
	return matched[len(matched)-1], true
}

func tokenSpan(first, last stt.WordDetail) WordSpan {
	return WordSpan{StartS: first.Start.Seconds(), EndS: last.End.Seconds()}
}
