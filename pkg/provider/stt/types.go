package stt

import "time"

// Transcript is the result of transcribing one recording.
type Transcript struct {
	// Text is the full transcribed speech content.
	Text string

	// Language is the detected or requested language, when reported.
	Language string

	// Segments are the recognised utterances in chronological order.
	Segments []Segment
}

// Segment is one recognised utterance.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration

	// Words contains per-word timing. Nil when the backend produced no
	// word-level output for this segment.
	Words []WordDetail
}

// WordDetail holds per-word timing from STT providers.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Words returns every word token across all segments, in order.
func (t Transcript) Words() []WordDetail {
	var n int
	for _, s := range t.Segments {
		n += len(s.Words)
	}
	words := make([]WordDetail, 0, n)
	for _, s := range t.Segments {
		words = append(words, s.Words...)
	}
	return words
}

// Seconds converts a float second count to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
