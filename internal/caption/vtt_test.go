package caption

import (
	"errors"
	"math"
	"testing"
)

const autoCaptions = `WEBVTT
Kind: captions
Language: en

00:00:01.000 --> 00:00:03.500 align:start position:0%
the storm<00:00:01.500><c> is</c><00:00:02.000><c> coming</c>

00:00:03.500 --> 00:00:06.000 align:start position:0%

1
00:00:06.000 --> 00:00:08.250
watch   out for
the TORNADO!

NOTE this block has no timing

cue-id
01:02:03.004 --> 01:02:05.000
full of confetti
`

func TestParseVTT(t *testing.T) {
	cues := ParseVTT(autoCaptions)
	if len(cues) != 3 {
		t.Fatalf("cues = %d, want 3: %+v", len(cues), cues)
	}

	tests := []struct {
		start, end float64
		text       string
	}{
		{1.0, 3.5, "the storm is coming"},
		{6.0, 8.25, "watch out for the TORNADO!"},
		{3723.004, 3725.0, "full of confetti"},
	}
	for i, tt := range tests {
		c := cues[i]
		if math.Abs(c.StartS-tt.start) > 1e-9 || math.Abs(c.EndS-tt.end) > 1e-9 {
			t.Errorf("cue %d span = [%v, %v], want [%v, %v]", i, c.StartS, c.EndS, tt.start, tt.end)
		}
		if c.Text != tt.text {
			t.Errorf("cue %d text = %q, want %q", i, c.Text, tt.text)
		}
	}
}

func TestParseVTT_HourlessAndCRLF(t *testing.T) {
	cues := ParseVTT("WEBVTT\r\n\r\n00:05.250 --> 00:07.000\r\nhello <b>there</b>\r\n")
	if len(cues) != 1 {
		t.Fatalf("cues = %d, want 1", len(cues))
	}
	if cues[0].StartS != 5.25 || cues[0].Text != "hello there" {
		t.Errorf("cue = %+v", cues[0])
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse("<html>rate limited</html>"); !errors.Is(err, ErrMalformed) {
		t.Errorf("html payload err = %v, want ErrMalformed", err)
	}
	if _, err := Parse(""); !errors.Is(err, ErrMalformed) {
		t.Errorf("empty payload err = %v, want ErrMalformed", err)
	}
	cues, err := Parse("WEBVTT\n\n")
	if err != nil || len(cues) != 0 {
		t.Errorf("header-only = %v, %v; want no cues, no error", cues, err)
	}
}

func TestFindWordTimestamp(t *testing.T) {
	cues := []Cue{
		{StartS: 1, EndS: 2, Text: "a tornado warning"},
		{StartS: 4, EndS: 5, Text: "full of hope"},
		{StartS: 9, EndS: 10, Text: "Tornadoes and confetti"},
	}
	tests := []struct {
		name   string
		query  string
		want   float64
		wantOK bool
	}{
		{name: "single word", query: "confetti", want: 9, wantOK: true},
		{name: "case insensitive", query: "TORNADO", want: 1, wantOK: true},
		{name: "word boundary", query: "tornadoe", wantOK: false},
		{name: "multi word earliest", query: "full of confetti", want: 4, wantOK: true},
		{name: "multi word any", query: "hope confetti", want: 4, wantOK: true},
		{name: "no match", query: "hurricane", wantOK: false},
		{name: "empty", query: "  ", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindWordTimestamp(cues, tt.query)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("timestamp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindWordTimestamp_RegexMetacharacters(t *testing.T) {
	cues := []Cue{{StartS: 2, EndS: 3, Text: "price is 3.50 today"}}
	if _, ok := FindWordTimestamp(cues, "3x50"); ok {
		t.Error("dot in query must be literal")
	}
	if got, ok := FindWordTimestamp(cues, "3.50"); !ok || got != 2 {
		t.Errorf("got (%v, %v), want (2, true)", got, ok)
	}
}

func TestFindWordTimestamp_NonASCII(t *testing.T) {
	cues := []Cue{
		{StartS: 1, EndS: 2, Text: "ein Cafébesuch"},
		{StartS: 3, EndS: 4, Text: "Über den Wolken"},
		{StartS: 5, EndS: 6, Text: "un café, s'il vous plaît"},
		{StartS: 7, EndS: 8, Text: "naïve Ölkanne"},
	}
	tests := []struct {
		query  string
		want   float64
		wantOK bool
	}{
		{query: "café", want: 5, wantOK: true},
		{query: "über", want: 3, wantOK: true},
		{query: "plaît", want: 5, wantOK: true},
		{query: "ÖLKANNE", want: 7, wantOK: true},
		{query: "naïve", want: 7, wantOK: true},
		// "Cafébesuch" contains "café" followed by a letter.
		{query: "cafébe", wantOK: false},
		{query: "ber", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := FindWordTimestamp(cues, tt.query)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("FindWordTimestamp(%q) = (%v, %v), want (%v, %v)", tt.query, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
