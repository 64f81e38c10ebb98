package entitymeta

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"graphql-admin/internal/schemamodel"
)

// Cache memoizes metadata per (schema fingerprint, list field).
// A new fingerprint naturally misses, so no explicit invalidation is needed.
type Cache struct {
	entries *lru.Cache[cacheKey, *Metadata]
}

type cacheKey struct {
	fingerprint string
	listField   string
}

// NewCache creates a cache holding up to size entries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	entries, err := lru.New[cacheKey, *Metadata](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// ForListField returns cached metadata or builds and stores it.
// Degraded results are not cached so a later schema can replace them.
func (c *Cache) ForListField(fingerprint string, model *schemamodel.Model, listField string) *Metadata {
	key := cacheKey{fingerprint: fingerprint, listField: listField}
	if meta, ok := c.entries.Get(key); ok {
		return meta
	}
	meta := ForListField(model, listField)
	if !meta.Degraded {
		c.entries.Add(key, meta)
	}
	return meta
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}
