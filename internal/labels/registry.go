// Package labels resolves human-readable text for entities and columns across locales.
// Function labels live in a process-wide registry populated at start-up; static labels are
// fetched per locale from a Store and cached by each Resolver.
package labels

import (
	"strings"
	"sync"
)

// Context is passed to function labels.
type Context struct {
	Entity string
	Field  string
}

// Value is either literal text or a function of the lookup context.
type Value struct {
	text string
	fn   func(Context) string
}

// Text returns a literal label value.
func Text(s string) Value {
	return Value{text: s}
}

// Func returns a computed label value.
func Func(fn func(Context) string) Value {
	return Value{fn: fn}
}

// Render evaluates the value for a context.
func (v Value) Render(ctx Context) string {
	if v.fn != nil {
		return v.fn(ctx)
	}
	return v.text
}

// Registry holds function-based labels per locale. Registrations merge over earlier ones.
type Registry struct {
	mu       sync.RWMutex
	byLocale map[string]map[string]Value
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLocale: make(map[string]map[string]Value)}
}

// Register merges values into the locale's table; the last write wins per key.
func (r *Registry) Register(locale string, values map[string]Value) {
	locale = NormalizeLocale(locale, "")
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.byLocale[locale]
	if !ok {
		table = make(map[string]Value, len(values))
		r.byLocale[locale] = table
	}
	for key, value := range values {
		table[key] = value
	}
}

// Lookup returns the value registered for key in locale.
func (r *Registry) Lookup(locale, key string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byLocale[locale][key]
	return v, ok
}

// Locales lists locales with at least one registration.
func (r *Registry) Locales() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byLocale))
	for locale := range r.byLocale {
		out = append(out, locale)
	}
	return out
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLocale = make(map[string]map[string]Value)
}

// Default is the process-wide registry used when a Resolver is built without one.
var Default = NewRegistry()

// Register merges values into the default registry.
func Register(locale string, values map[string]Value) {
	Default.Register(locale, values)
}

// Reset clears the default registry. Tests call it between cases.
func Reset() {
	Default.Reset()
}

// NormalizeLocale lower-cases a locale tag and strips its region ("es-AR" -> "es").
// An empty input resolves to fallback.
func NormalizeLocale(locale, fallback string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if idx := strings.IndexAny(locale, "-_"); idx >= 0 {
		locale = locale[:idx]
	}
	if locale == "" {
		return strings.ToLower(strings.TrimSpace(fallback))
	}
	return locale
}
