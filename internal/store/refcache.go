package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	refCacheTTL     = 10 * time.Minute
	refCacheCleanup = 15 * time.Minute
)

// ReferenceCache serves theme and art style reads through an in-process cache.
// Reference data changes rarely while every story run reads it, so lookups are
// cached with a short TTL and invalidated on preview updates.
type ReferenceCache struct {
	store *Store
	cache *gocache.Cache
}

// NewReferenceCache wraps a store with cached reference lookups.
func NewReferenceCache(store *Store) *ReferenceCache {
	return &ReferenceCache{
		store: store,
		cache: gocache.New(refCacheTTL, refCacheCleanup),
	}
}

// Theme returns a theme by ID, serving repeat lookups from cache.
func (r *ReferenceCache) Theme(ctx context.Context, id string) (*Theme, error) {
	key := "theme:" + id
	if cached, ok := r.cache.Get(key); ok {
		if theme, ok := cached.(*Theme); ok {
			return theme, nil
		}
	}
	theme, err := r.store.GetTheme(ctx, id)
	if err != nil {
		return nil, err
	}
	if theme != nil {
		r.cache.Set(key, theme, gocache.DefaultExpiration)
	}
	return theme, nil
}

// ArtStyle returns an art style by ID, serving repeat lookups from cache.
func (r *ReferenceCache) ArtStyle(ctx context.Context, id string) (*ArtStyle, error) {
	key := "style:" + id
	if cached, ok := r.cache.Get(key); ok {
		if style, ok := cached.(*ArtStyle); ok {
			return style, nil
		}
	}
	style, err := r.store.GetArtStyle(ctx, id)
	if err != nil {
		return nil, err
	}
	if style != nil {
		r.cache.Set(key, style, gocache.DefaultExpiration)
	}
	return style, nil
}

// InvalidateTheme drops a theme from the cache after a write.
func (r *ReferenceCache) InvalidateTheme(id string) {
	r.cache.Delete("theme:" + id)
}

// InvalidateArtStyle drops an art style from the cache after a write.
func (r *ReferenceCache) InvalidateArtStyle(id string) {
	r.cache.Delete("style:" + id)
}
