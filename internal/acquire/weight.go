package acquire

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// SourceWeight pairs a source name with its selection weight.
type SourceWeight struct {
	Name   string
	Weight int
}

// ParseWeight parses "name" or "name:weight". The weight defaults to 1 and
// must be an integer.
func ParseWeight(spec string) (SourceWeight, error) {
	name, w := spec, ""
	i := strings.LastIndex(spec, ":")
	ok := i >= 0
	if ok {
		name, w = spec[:i], spec[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return SourceWeight{}, fmt.Errorf("acquire: empty source name in %q", spec)
	}
	if !ok {
		return SourceWeight{Name: name, Weight: 1}, nil
	}
	weight, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return SourceWeight{}, fmt.Errorf("acquire: invalid weight in %q: %q is not an integer", spec, w)
	}
	return SourceWeight{Name: name, Weight: weight}, nil
}

// WeightedSelect picks a name with probability proportional to its weight.
// Entries with non-positive weight are never picked.
func WeightedSelect(ws []SourceWeight, rng *rand.Rand) (string, error) {
	total := 0
	for _, w := range ws {
		total += max(w.Weight, 0)
	}
	if total == 0 {
		return "", errors.New("acquire: no source with positive weight")
	}
	n := rng.IntN(total)
	for _, w := range ws {
		if w.Weight <= 0 {
			continue
		}
		if n < w.Weight {
			return w.Name, nil
		}
		n -= w.Weight
	}
	return ws[len(ws)-1].Name, nil
}
