package acquire

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    Position
		wantTS  float64
		wantErr bool
	}{
		{in: "midpoint", want: PositionMidpoint},
		{in: "random", want: PositionRandom},
		{in: "12.5", want: PositionTimestamp, wantTS: 12.5},
		{in: "0", want: PositionTimestamp},
		{in: "-1", wantErr: true},
		{in: "middle", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ts, err := ParsePosition(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want || ts != tt.wantTS {
				t.Errorf("ParsePosition(%q) = %v, %v; want %v, %v", tt.in, got, ts, tt.want, tt.wantTS)
			}
		})
	}
}

func TestParseClipSpec_InvalidDuration(t *testing.T) {
	for _, d := range []float64{0, -1, math.NaN()} {
		if _, err := ParseClipSpec("midpoint", d); err == nil {
			t.Errorf("duration %v: expected error", d)
		}
	}
}

func TestStartTime(t *testing.T) {
	tests := []struct {
		name  string
		spec  ClipSpec
		total float64
		want  float64
	}{
		{name: "midpoint", spec: ClipSpec{Position: PositionMidpoint, DurationS: 2}, total: 10, want: 4},
		{name: "midpoint short source", spec: ClipSpec{Position: PositionMidpoint, DurationS: 5}, total: 3, want: 0},
		{name: "timestamp", spec: ClipSpec{Position: PositionTimestamp, DurationS: 1, TimestampS: 3}, total: 10, want: 3},
		{name: "timestamp clamped", spec: ClipSpec{Position: PositionTimestamp, DurationS: 2, TimestampS: 9.5}, total: 10, want: 8},
		{name: "timestamp unknown total", spec: ClipSpec{Position: PositionTimestamp, DurationS: 2, TimestampS: 42}, total: 0, want: 42},
		{name: "midpoint unknown total", spec: ClipSpec{Position: PositionMidpoint, DurationS: 2}, total: 0, want: 0},
		{name: "random unknown total", spec: ClipSpec{Position: PositionRandom, DurationS: 2}, total: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.StartTime(tt.total, nil); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("StartTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartTime_RandomStaysInMargins(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	spec := ClipSpec{Position: PositionRandom, DurationS: 1}
	for range 1000 {
		got := spec.StartTime(100, rng)
		if got < 5 || got > 94 {
			t.Fatalf("StartTime = %v, want within [5, 94]", got)
		}
	}
}

func TestStartTime_RandomShortSourceDropsMargins(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	spec := ClipSpec{Position: PositionRandom, DurationS: 1}
	for range 1000 {
		got := spec.StartTime(1.05, rng)
		if got < 0 || got > 0.05+1e-9 {
			t.Fatalf("StartTime = %v, want within [0, 0.05]", got)
		}
	}
}

func TestWordCenteredStart(t *testing.T) {
	tests := []struct {
		name                   string
		start, end, dur, total float64
		want                   float64
	}{
		{name: "centred", start: 8.3, end: 8.7, dur: 1, total: 60, want: 8},
		{name: "near start", start: 0.1, end: 0.3, dur: 1, total: 60, want: 0},
		{name: "near end", start: 59.8, end: 59.9, dur: 1, total: 60, want: 59},
		{name: "unknown total", start: 100, end: 101, dur: 2, total: 0, want: 99.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordCenteredStart(tt.start, tt.end, tt.dur, tt.total); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WordCenteredStart = %v, want %v", got, tt.want)
			}
		})
	}
}
