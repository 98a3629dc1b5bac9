// Package mock provides a test double for the captions.Provider interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/wordsplice/pkg/provider/captions"
)

// FetchCall records one invocation of Fetch.
type FetchCall struct {
	Locator  string
	Language string
}

// Provider serves canned tracks keyed by locator. Locators without an entry
// in Tracks or Errs yield captions.ErrNoTrack.
type Provider struct {
	mu sync.Mutex

	// Tracks maps locator to the track returned for it.
	Tracks map[string]captions.Track

	// Errs maps locator to an error returned instead of a track.
	Errs map[string]error

	// Calls records every Fetch invocation in order.
	Calls []FetchCall
}

var _ captions.Provider = (*Provider)(nil)

// Fetch implements captions.Provider.
func (p *Provider) Fetch(_ context.Context, locator, lang string) (captions.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, FetchCall{Locator: locator, Language: lang})
	if err, ok := p.Errs[locator]; ok {
		return captions.Track{}, err
	}
	if tr, ok := p.Tracks[locator]; ok {
		return tr, nil
	}
	return captions.Track{}, fmt.Errorf("mock: %q: %w", locator, captions.ErrNoTrack)
}

// CallCount returns the number of Fetch invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Locators returns the probed locators in call order.
func (p *Provider) Locators() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Locator
	}
	return out
}
