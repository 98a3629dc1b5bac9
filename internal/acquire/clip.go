package acquire

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
)

// Position selects where in a source the clip window starts.
type Position int

const (
	PositionMidpoint Position = iota
	PositionRandom
	PositionTimestamp
)

func (p Position) String() string {
	switch p {
	case PositionMidpoint:
		return "midpoint"
	case PositionRandom:
		return "random"
	case PositionTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// randomMargin is the fraction of a source skipped at either end when
// picking a random start, to avoid intros and outros.
const randomMargin = 0.05

// ClipSpec describes the window cut from a source.
type ClipSpec struct {
	Position  Position
	DurationS float64

	// TimestampS is the requested start for PositionTimestamp.
	TimestampS float64
}

// DefaultClipSpec is a one second window from the middle of the source.
var DefaultClipSpec = ClipSpec{Position: PositionMidpoint, DurationS: 1}

// ParsePosition parses "midpoint", "random" or a non-negative number of
// seconds. The timestamp is only meaningful for PositionTimestamp.
func ParsePosition(s string) (Position, float64, error) {
	switch s {
	case "midpoint":
		return PositionMidpoint, 0, nil
	case "random":
		return PositionRandom, 0, nil
	}
	ts, err := strconv.ParseFloat(s, 64)
	if err != nil || ts < 0 || math.IsInf(ts, 0) || math.IsNaN(ts) {
		return 0, 0, fmt.Errorf("acquire: invalid clip position %q: use midpoint, random, or a non-negative number of seconds", s)
	}
	return PositionTimestamp, ts, nil
}

// ParseClipSpec builds a validated ClipSpec from a position string and a
// duration.
func ParseClipSpec(position string, durationS float64) (ClipSpec, error) {
	pos, ts, err := ParsePosition(position)
	if err != nil {
		return ClipSpec{}, err
	}
	spec := ClipSpec{Position: pos, DurationS: durationS, TimestampS: ts}
	return spec, spec.Validate()
}

// Validate checks the duration and timestamp.
func (s ClipSpec) Validate() error {
	if !(s.DurationS > 0) {
		return fmt.Errorf("acquire: clip duration must be positive, got %v", s.DurationS)
	}
	if s.Position == PositionTimestamp && s.TimestampS < 0 {
		return errors.New("acquire: clip timestamp must not be negative")
	}
	return nil
}

// StartTime returns the window start for a source of totalS seconds. A
// non-positive totalS means the length is unknown: timestamps are used as
// given and every other position starts at 0.
func (s ClipSpec) StartTime(totalS float64, rng *rand.Rand) float64 {
	if totalS <= 0 {
		if s.Position == PositionTimestamp {
			return s.TimestampS
		}
		return 0
	}

	switch s.Position {
	case PositionMidpoint:
		return max((totalS-s.DurationS)/2, 0)
	case PositionRandom:
		earliest := totalS * randomMargin
		latest := totalS - earliest - s.DurationS
		if latest <= earliest {
			earliest, latest = 0, max(totalS-s.DurationS, 0)
		}
		return earliest + rng.Float64()*(latest-earliest)
	default:
		return min(s.TimestampS, max(totalS-s.DurationS, 0))
	}
}

// WordCenteredStart returns the start of a durS window centred on the span
// [spanStart, spanEnd], kept inside a source of totalS seconds (unknown
// when non-positive).
func WordCenteredStart(spanStart, spanEnd, durS, totalS float64) float64 {
	start := (spanStart+spanEnd)/2 - durS/2
	if totalS > 0 {
		start = min(start, totalS-durS)
	}
	return max(start, 0)
}
