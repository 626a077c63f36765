package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Photoroom/dataroom/internal/domain"
)

// DefaultTTL is how long a catalog snapshot is served before reloading.
const DefaultTTL = 5 * time.Minute

// source is the consumer interface over the catalog repository (ISP).
type source interface {
	Attributes(ctx context.Context) ([]domain.AttributeField, error)
	LatentTypes(ctx context.Context) ([]domain.LatentType, error)
}

// Registry serves cached catalog snapshots. Concurrent readers share one
// snapshot; a reload happens at most once per expiry.
type Registry struct {
	source source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cached  *Schema
	expires time.Time
}

// NewRegistry creates a registry with the default TTL.
func NewRegistry(src source) *Registry {
	return &Registry{
		source: src,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

// WithTTL overrides the snapshot lifetime.
func (r *Registry) WithTTL(ttl time.Duration) *Registry {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

// WithClock overrides the time source, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// Current returns the cached snapshot, reloading it from the catalog when
// expired. A reload failure keeps serving the stale snapshot if one exists.
func (r *Registry) Current(ctx context.Context) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.now().Before(r.expires) {
		return r.cached, nil
	}

	s, err := r.load(ctx)
	if err != nil {
		if r.cached != nil {
			return r.cached, nil
		}
		return nil, err
	}
	r.cached = s
	r.expires = r.now().Add(r.ttl)
	return s, nil
}

// Invalidate drops the cached snapshot so the next Current reloads.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.expires = time.Time{}
}

func (r *Registry) load(ctx context.Context) (*Schema, error) {
	attrs, err := r.source.Attributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	latents, err := r.source.LatentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latent types: %w", err)
	}
	return NewSchema(attrs, latents), nil
}
