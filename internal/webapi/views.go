package webapi

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"graphql-admin/internal/listview"
)

// ErrViewNotFound is returned for unknown or evicted view IDs.
var ErrViewNotFound = errors.New("view not found")

const defaultMaxViews = 256

// Views holds open list views. The least recently used view is closed once the
// registry is full.
type Views struct {
	cache *lru.Cache[string, *listview.Controller]
}

// NewViews creates a registry bounded to size views.
func NewViews(size int) (*Views, error) {
	if size <= 0 {
		size = defaultMaxViews
	}
	cache, err := lru.NewWithEvict(size, func(_ string, ctrl *listview.Controller) {
		ctrl.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create view registry: %w", err)
	}
	return &Views{cache: cache}, nil
}

// Add registers a view under a new ID.
func (v *Views) Add(ctrl *listview.Controller) string {
	id := uuid.NewString()
	v.cache.Add(id, ctrl)
	return id
}

// Get returns a view and marks it recently used.
func (v *Views) Get(id string) (*listview.Controller, error) {
	ctrl, ok := v.cache.Get(id)
	if !ok {
		return nil, ErrViewNotFound
	}
	return ctrl, nil
}

// Remove closes and forgets a view.
func (v *Views) Remove(id string) error {
	if !v.cache.Remove(id) {
		return ErrViewNotFound
	}
	return nil
}

// Each calls fn for every open view without changing recency.
func (v *Views) Each(fn func(id string, ctrl *listview.Controller)) {
	for _, id := range v.cache.Keys() {
		if ctrl, ok := v.cache.Peek(id); ok {
			fn(id, ctrl)
		}
	}
}

// Len reports the number of open views.
func (v *Views) Len() int {
	return v.cache.Len()
}

// Purge closes every view.
func (v *Views) Purge() {
	v.cache.Purge()
}
