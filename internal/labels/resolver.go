package labels

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"graphql-admin/internal/logging"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Store         Store
	Registry      *Registry
	Logger        *logging.Logger
	DefaultLocale string
}

// Resolver looks up labels for the active locale.
type Resolver struct {
	store         Store
	registry      *Registry
	logger        *logging.Logger
	defaultLocale string

	mu     sync.RWMutex
	locale string
	static map[string]string
}

// NewResolver creates a resolver with an empty static table. Call SetLocale to load one.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Registry == nil {
		cfg.Registry = Default
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	defaultLocale := NormalizeLocale(cfg.DefaultLocale, "en")
	return &Resolver{
		store:         cfg.Store,
		registry:      cfg.Registry,
		logger:        cfg.Logger.WithFields(slog.String("component", "labels")),
		defaultLocale: defaultLocale,
		locale:        defaultLocale,
		static:        map[string]string{},
	}
}

// Locale returns the active locale.
func (r *Resolver) Locale() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locale
}

// SetLocale switches the active locale and re-fetches its static table.
// A store failure leaves an empty static table and is returned; function labels are
// unaffected.
func (r *Resolver) SetLocale(ctx context.Context, locale string) error {
	locale = NormalizeLocale(locale, r.defaultLocale)

	static := map[string]string{}
	var loadErr error
	if r.store != nil {
		loaded, err := r.store.Load(ctx, locale)
		if err != nil {
			r.logger.Warn("failed to load static labels",
				slog.String("locale", locale),
				slog.String("error", err.Error()),
			)
			loadErr = err
		} else if loaded != nil {
			static = loaded
		}
	}

	r.mu.Lock()
	r.locale = locale
	r.static = static
	r.mu.Unlock()
	return loadErr
}

// Resolve tries each key in order. For a key, a function label registered for the active
// locale wins, then a static label; the first key with any hit wins. Without a hit the
// fallback is returned verbatim.
func (r *Resolver) Resolve(keys []string, lc Context, fallback string) string {
	r.mu.RLock()
	locale := r.locale
	static := r.static
	r.mu.RUnlock()

	for _, key := range keys {
		if value, ok := r.registry.Lookup(locale, key); ok {
			return value.Render(lc)
		}
		if text, ok := static[key]; ok {
			return text
		}
	}
	return fallback
}

// AvailableLocales lists the locales a user can switch to: the default locale, every
// locale with function labels, and the locales the store reports when it can list them.
// A listing failure is logged and the store's locales are left out.
func AvailableLocales(ctx context.Context, store Store, registry *Registry, defaultLocale string, logger *logging.Logger) []string {
	if registry == nil {
		registry = Default
	}
	seen := map[string]struct{}{NormalizeLocale(defaultLocale, "en"): {}}
	for _, locale := range registry.Locales() {
		seen[NormalizeLocale(locale, "")] = struct{}{}
	}
	if lister, ok := store.(LocaleLister); ok {
		locales, err := lister.Locales(ctx)
		if err != nil && logger != nil {
			logger.Warn("failed to list label locales", slog.String("error", err.Error()))
		}
		for _, locale := range locales {
			seen[NormalizeLocale(locale, "")] = struct{}{}
		}
	}
	delete(seen, "")

	out := make([]string, 0, len(seen))
	for locale := range seen {
		out = append(out, locale)
	}
	slices.Sort(out)
	return out
}
