// Package renderers holds per-column display formatters. Keys are matched without
// regard to case, typically "Entity.column" or a bare "column".
package renderers

import (
	"log/slog"
	"strings"
	"sync"
)

// Context carries everything a renderer may look at.
type Context struct {
	Entity string
	Field  string
	Row    map[string]any
	Value  any
}

// Renderer formats one cell for display.
type Renderer func(ctx Context) string

// Registry maps lower-cased keys to renderers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Renderer
	logger  *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger discards debug output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{entries: make(map[string]Renderer), logger: logger}
}

// Register stores a renderer under key, replacing any previous one.
func (r *Registry) Register(key string, renderer Renderer) {
	normalized := strings.ToLower(key)
	r.mu.Lock()
	r.entries[normalized] = renderer
	r.mu.Unlock()
	r.logger.Debug("column renderer registered", slog.String("key", key), slog.String("normalized_key", normalized))
}

// Get resolves a renderer by exact (case-insensitive) key.
func (r *Registry) Get(key string) (Renderer, bool) {
	r.mu.RLock()
	renderer, ok := r.entries[strings.ToLower(key)]
	r.mu.RUnlock()
	return renderer, ok
}

// Resolve returns the renderer of the first key that has one.
func (r *Registry) Resolve(keys ...string) (Renderer, bool) {
	for _, key := range keys {
		if renderer, ok := r.Get(key); ok {
			return renderer, true
		}
	}
	return nil, false
}

// Clear removes every renderer.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]Renderer)
	r.mu.Unlock()
}

// Default is the process-wide registry.
var Default = NewRegistry(nil)

// Register adds a renderer to the default registry.
func Register(key string, renderer Renderer) {
	Default.Register(key, renderer)
}

// Resolve looks up a renderer in the default registry.
func Resolve(keys ...string) (Renderer, bool) {
	return Default.Resolve(keys...)
}
