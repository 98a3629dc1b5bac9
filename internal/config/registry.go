package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/wordsplice/pkg/provider/captions"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
	"github.com/MrWong99/wordsplice/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]func(ProviderEntry) (stt.Provider, error)
	captions map[string]func(ProviderEntry) (captions.Provider, error)
	sources  map[string]func(ProviderEntry) (media.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]func(ProviderEntry) (stt.Provider, error)),
		captions: make(map[string]func(ProviderEntry) (captions.Provider, error)),
		sources:  make(map[string]func(ProviderEntry) (media.Source, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterCaptions registers a caption provider factory under name.
func (r *Registry) RegisterCaptions(name string, factory func(ProviderEntry) (captions.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captions[name] = factory
}

// RegisterSource registers a media source factory under name.
func (r *Registry) RegisterSource(name string, factory func(ProviderEntry) (media.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, r.notRegistered("stt", entry.Name)
	}
	return factory(entry)
}

// CreateCaptions instantiates a caption provider using the factory registered under entry.Name.
func (r *Registry) CreateCaptions(entry ProviderEntry) (captions.Provider, error) {
	r.mu.RLock()
	factory, ok := r.captions[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, r.notRegistered("captions", entry.Name)
	}
	return factory(entry)
}

// CreateSource instantiates a media source using the factory registered under entry.Name.
func (r *Registry) CreateSource(entry ProviderEntry) (media.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, r.notRegistered("sources", entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted names registered for kind ("stt", "captions" or
// "sources").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return slices.Sorted(maps.Keys(r.stt))
	case "captions":
		return slices.Sorted(maps.Keys(r.captions))
	case "sources":
		return slices.Sorted(maps.Keys(r.sources))
	}
	return nil
}

func (r *Registry) notRegistered(kind, name string) error {
	valid := r.Names(kind)
	if len(valid) == 0 {
		return fmt.Errorf("%w: %s/%q (none registered)", ErrProviderNotRegistered, kind, name)
	}
	return fmt.Errorf("%w: %s/%q; valid names: %s", ErrProviderNotRegistered, kind, name, strings.Join(valid, ", "))
}
