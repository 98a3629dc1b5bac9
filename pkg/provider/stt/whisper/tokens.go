package whisper

import (
	"strings"
	"time"

	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// tokenPiece is one decoded whisper token with its timing.
type tokenPiece struct {
	text       string
	start, end time.Duration
	p          float64
}

// foldTokens merges BPE tokens into words. A token that begins with a space
// starts a new word; any other token extends the current one. Confidence is
// the minimum token probability within the word.
func foldTokens(pieces []tokenPiece) []stt.WordDetail {
	var (
		words []stt.WordDetail
		cur   *stt.WordDetail
		text  strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Word = strings.TrimSpace(text.String())
		if cur.Word != "" {
			words = append(words, *cur)
		}
		cur = nil
		text.Reset()
	}

	for _, t := range pieces {
		if strings.TrimSpace(t.text) == "" {
			continue
		}
		if cur == nil || strings.HasPrefix(t.text, " ") {
			flush()
			cur = &stt.WordDetail{Start: t.start, End: t.end, Confidence: t.p}
		}
		text.WriteString(t.text)
		cur.End = max(cur.End, t.end)
		cur.Confidence = min(cur.Confidence, t.p)
	}
	flush()
	return words
}
