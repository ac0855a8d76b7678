// Package scraper defines the capability contract every platform scraper
// satisfies and the fixed registry the recommendation engine fans out over.
package scraper

import (
	"context"
	"fmt"

	"github.com/kalambet/dealscout/internal/product"
)

// Scraper is the single capability the core requires from a platform:
// search listings matching a resolved query. Implementations may perform
// network I/O and must honor ctx cancellation.
type Scraper interface {
	Platform() string
	Search(ctx context.Context, q product.Query) ([]product.Candidate, error)
}

// Registry is a fixed-at-startup collection of scrapers keyed by platform.
// It is never mutated after construction, so concurrent reads need no lock.
type Registry struct {
	order    []Scraper
	byPlatfm map[string]Scraper
}

// NewRegistry builds a registry from the given scrapers. Platform names
// must be unique.
func NewRegistry(scrapers ...Scraper) (*Registry, error) {
	r := &Registry{byPlatfm: make(map[string]Scraper, len(scrapers))}
	for _, s := range scrapers {
		name := s.Platform()
		if _, dup := r.byPlatfm[name]; dup {
			return nil, fmt.Errorf("duplicate scraper registration for platform %q", name)
		}
		r.byPlatfm[name] = s
		r.order = append(r.order, s)
	}
	return r, nil
}

// All returns the scrapers in registration order.
func (r *Registry) All() []Scraper {
	return r.order
}

// Get returns the scraper registered for the platform, if any.
func (r *Registry) Get(platform string) (Scraper, bool) {
	s, ok := r.byPlatfm[platform]
	return s, ok
}
