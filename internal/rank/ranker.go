package rank

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MrWong99/wordsplice/internal/verify"
)

// ErrTooManyCombinations is returned when a pool's cross-product exceeds
// Config.MaxCombinations.
var ErrTooManyCombinations = errors.New("rank: too many combinations")

// MissingWordError names every phrase position without verified clips.
type MissingWordError struct {
	Positions []string
}

func (e *MissingWordError) Error() string {
	return fmt.Sprintf("rank: no verified clips for %s", strings.Join(quoteAll(e.Positions), ", "))
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// Config tunes the ranker.
type Config struct {
	Weights Weights `yaml:"weights"`

	// QuietThreshold is the speech RMS below which a clip is penalized.
	QuietThreshold float64 `yaml:"quiet_threshold"`

	// QuietPenalty is added once per quiet clip in a sequence.
	QuietPenalty float64 `yaml:"quiet_penalty"`

	// MaxCombinations bounds the cross-product size. Zero disables the
	// bound.
	MaxCombinations int `yaml:"max_combinations"`
}

// DefaultConfig returns the default ranking settings.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights,
		QuietThreshold:  0.01,
		QuietPenalty:    3.0,
		MaxCombinations: 100_000,
	}
}

// ScoredSequence is one clip per phrase position with its total score.
type ScoredSequence struct {
	Clips []verify.VerifiedClip
	Score float64
}

// Ranker enumerates and ranks pool combinations. It holds no mutable state.
type Ranker struct {
	cfg Config
}

// New validates cfg and returns a Ranker.
func New(cfg Config) (*Ranker, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.QuietPenalty < 0 || cfg.QuietThreshold < 0 || cfg.MaxCombinations < 0 {
		return nil, errors.New("rank: quiet threshold, quiet penalty and max combinations must not be negative")
	}
	return &Ranker{cfg: cfg}, nil
}

// Count returns the number of combinations pool produces, saturating at
// math.MaxInt.
func Count(pool verify.Pool) int {
	if len(pool.Positions) == 0 {
		return 0
	}
	n := 1
	for _, pos := range pool.Positions {
		k := len(pos.Clips)
		if k == 0 {
			return 0
		}
		if n > math.MaxInt/k {
			return math.MaxInt
		}
		n *= k
	}
	return n
}

// ScoreSequence sums the pair scores of adjacent clips and adds the quiet
// penalty for every clip below the threshold.
func (r *Ranker) ScoreSequence(clips []verify.VerifiedClip) float64 {
	var total float64
	for i := 1; i < len(clips); i++ {
		total += r.cfg.Weights.Score(clips[i-1], clips[i])
	}
	for _, c := range clips {
		if c.SpeechRMS < r.cfg.QuietThreshold {
			total += r.cfg.QuietPenalty
		}
	}
	return total
}

// Rank scores the full cross-product of pool and returns it sorted by
// ascending score. Ties keep enumeration order, in which the last position
// varies fastest. topK <= 0 returns every sequence.
func (r *Ranker) Rank(pool verify.Pool, topK int) ([]ScoredSequence, error) {
	var missing []string
	for _, pos := range pool.Positions {
		if len(pos.Clips) == 0 {
			missing = append(missing, pos.Word)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingWordError{Positions: missing}
	}
	if len(pool.Positions) == 0 {
		return nil, nil
	}

	total := Count(pool)
	if r.cfg.MaxCombinations > 0 && total > r.cfg.MaxCombinations {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrTooManyCombinations, total, r.cfg.MaxCombinations)
	}

	seqs := make([]ScoredSequence, 0, total)
	idx := make([]int, len(pool.Positions))
	for {
		clips := make([]verify.VerifiedClip, len(idx))
		for p, i := range idx {
			clips[p] = pool.Positions[p].Clips[i]
		}
		seqs = append(seqs, ScoredSequence{Clips: clips, Score: r.ScoreSequence(clips)})

		// Advance the odometer from the last position.
		p := len(idx) - 1
		for ; p >= 0; p-- {
			idx[p]++
			if idx[p] < len(pool.Positions[p].Clips) {
				break
			}
			idx[p] = 0
		}
		if p < 0 {
			break
		}
	}

	slices.SortStableFunc(seqs, func(a, b ScoredSequence) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})
	if topK > 0 && topK < len(seqs) {
		seqs = seqs[:topK]
	}
	return seqs, nil
}
