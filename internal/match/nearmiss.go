package match

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// NearMiss describes the transcribed token closest to a word that was not
// found. It is diagnostic only and never counts as a match.
type NearMiss struct {
	Token stt.WordDetail

	// Similarity is the Jaro-Winkler score in [0, 1].
	Similarity float64

	// Phonetic is true when the Double Metaphone codes overlap.
	Phonetic bool
}

// Closest returns the token most similar to word. Phonetic candidates are
// preferred over purely textual ones; ties keep the earlier token.
func Closest(tokens []stt.WordDetail, word string) (NearMiss, bool) {
	target := normalize(word)
	if target == "" {
		return NearMiss{}, false
	}
	tp, ts := matchr.DoubleMetaphone(target)

	var best NearMiss
	found := false
	for _, t := range tokens {
		text := normalize(t.Word)
		if text == "" {
			continue
		}
		p, s := matchr.DoubleMetaphone(text)
		phonetic := codesOverlap(tp, ts, p, s)
		score := matchr.JaroWinkler(target, text, false)

		better := !found ||
			(phonetic && !best.Phonetic) ||
			(phonetic == best.Phonetic && score > best.Similarity)
		if better {
			best = NearMiss{Token: t, Similarity: score, Phonetic: phonetic}
			found = true
		}
	}
	return best, found
}

func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}

// normalize lowercases and strips surrounding punctuation.
func normalize(s string) string {
	return strings.TrimFunc(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
