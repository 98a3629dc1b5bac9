package acquire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

// Sidecar is the JSON metadata written next to every acquired clip.
type Sidecar map[string]any

// SidecarPath returns the sidecar path for a clip: the clip path with its
// extension replaced by ".json".
func SidecarPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".json"
}

// WriteSidecar writes meta next to clipPath, adding created_at (RFC 3339,
// UTC) when it is missing. meta is not modified.
func WriteSidecar(clipPath string, meta Sidecar) (string, error) {
	out := maps.Clone(meta)
	if out == nil {
		out = Sidecar{}
	}
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("acquire: encode sidecar: %w", err)
	}
	path := SidecarPath(clipPath)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("acquire: write sidecar: %w", err)
	}
	return path, nil
}

// ReadSidecar reads the sidecar for clipPath. A missing sidecar yields an
// empty map and no error.
func ReadSidecar(clipPath string) (Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(clipPath))
	if errors.Is(err, fs.ErrNotExist) {
		return Sidecar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire: read sidecar: %w", err)
	}
	meta := Sidecar{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("acquire: parse sidecar %s: %w", SidecarPath(clipPath), err)
	}
	return meta, nil
}

// MergeSidecar adds fields to the existing sidecar of clipPath. Keys that
// already exist keep their value.
func MergeSidecar(clipPath string, fields Sidecar) (Sidecar, error) {
	meta, err := ReadSidecar(clipPath)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	if _, err := WriteSidecar(clipPath, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SidecarFromCandidate builds the base sidecar for a clip cut from c. The
// candidate's own metadata is merged in without overriding the base keys.
func SidecarFromCandidate(c media.Candidate, clipDurationS float64) Sidecar {
	meta := Sidecar{
		"source":           c.Source,
		"title":            c.Title,
		"url":              c.Locator,
		"duration_s":       c.Duration,
		"clip_duration_ms": int(clipDurationS*1000 + 0.5),
	}
	for k, v := range c.Metadata {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	return meta
}
