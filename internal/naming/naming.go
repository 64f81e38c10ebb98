// Package naming derives label lookup keys and readable fallback text from
// GraphQL field and type names.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Config overrides the inflection rules for irregular words.
type Config struct {
	// PluralOverrides maps singular to plural, e.g. {"person": "people"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps plural to singular, e.g. {"series": "serie"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig has no overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}

// Namer turns schema names into candidate label keys and humanized fallbacks.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	if cfg.PluralOverrides == nil {
		cfg.PluralOverrides = map[string]string{}
	}
	if cfg.SingularOverrides == nil {
		cfg.SingularOverrides = map[string]string{}
	}
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// ColumnKeys returns the lookup keys for a column header, most specific first.
// Example: ("Episode", "date") -> ["Episode.date", "date"]
// Example: ("Episode", "season.number") -> ["Episode.season.number", "season.number", "number"]
func (n *Namer) ColumnKeys(entity, column string) []string {
	keys := make([]string, 0, 3)
	if entity != "" {
		keys = append(keys, entity+"."+column)
	}
	keys = append(keys, column)
	if idx := strings.LastIndex(column, "."); idx >= 0 && idx < len(column)-1 {
		keys = append(keys, column[idx+1:])
	}
	return dedupe(keys)
}

// EntityKeys returns the lookup keys for a navigation entry.
// Example: ("episodes", "Episode") -> ["episodes", "Episode", "episode"]
// Example: ("allEpisodes", "Episode") -> ["allEpisodes", "Episode", "allEpisode", "episodes"]
func (n *Namer) EntityKeys(listField, elementType string) []string {
	keys := []string{listField}
	if elementType != "" {
		keys = append(keys, elementType)
	}
	keys = append(keys, n.Singularize(listField))
	if elementType != "" {
		keys = append(keys, n.Pluralize(lowerFirst(elementType)))
	}
	return dedupe(keys)
}

// Pluralize returns the plural of word. Overrides win over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	return inflect(word, n.config.PluralOverrides, inflection.Plural)
}

// Singularize returns the singular of word. Overrides win over the inflection rules.
func (n *Namer) Singularize(word string) string {
	return inflect(word, n.config.SingularOverrides, inflection.Singular)
}

func inflect(word string, overrides map[string]string, rule func(string) string) string {
	if override, ok := overrides[word]; ok {
		return override
	}
	return rule(word)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Humanize renders an identifier as sentence-case words.
// Example: "createdAt" -> "Created at", "season.number" -> "Season number", "userID" -> "User ID"
func (n *Namer) Humanize(name string) string {
	words := splitWords(name)
	if len(words) == 0 {
		return name
	}
	for i, w := range words {
		if isAcronym(w) {
			continue
		}
		w = strings.ToLower(w)
		if i == 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// EntityTitle is the fallback heading for a list field.
// Example: "tv_series" -> "Tv series"
func (n *Namer) EntityTitle(listField string) string {
	return n.Humanize(listField)
}

// splitWords breaks snake_case, dotted and camelCase identifiers into words.
func splitWords(name string) []string {
	var words []string
	runes := []rune(name)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if r == '_' || r == '.' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		if unicode.IsUpper(r) {
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush(i)
				start = i
			}
		}
	}
	flush(len(runes))
	return words
}

func isAcronym(word string) bool {
	if len([]rune(word)) < 2 {
		return false
	}
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
