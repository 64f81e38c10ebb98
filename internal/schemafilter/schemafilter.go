// Package schemafilter hides list fields and columns of an introspected schema before
// list metadata is derived from it.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"graphql-admin/internal/schemamodel"
)

// Config controls allow/deny filters for list fields and columns. Patterns use
// path.Match syntax and match case-insensitively.
type Config struct {
	// AllowListFields and DenyListFields apply to list fields of the query root.
	AllowListFields []string `mapstructure:"allow_list_fields"`
	DenyListFields  []string `mapstructure:"deny_list_fields"`
	// DenyFields maps a type name, or "*" for every type, to field patterns to hide.
	// Type names match case-insensitively.
	DenyFields map[string][]string `mapstructure:"deny_fields"`
}

// Empty reports whether the config filters nothing.
func (c Config) Empty() bool {
	return len(c.AllowListFields) == 0 && len(c.DenyListFields) == 0 && len(c.DenyFields) == 0
}

// Apply returns a filtered copy of model. Missing allow lists default to allow-all;
// deny rules always win. Non-list query root fields are left alone.
func Apply(model *schemamodel.Model, cfg Config) *schemamodel.Model {
	if model == nil || cfg.Empty() {
		return model
	}
	return model.WithoutFields(func(typeName string, field schemamodel.FieldDescriptor) bool {
		if typeName == model.QueryType && schemamodel.IsList(field.Type) {
			return !listFieldAllowed(field.Name, cfg.AllowListFields, cfg.DenyListFields)
		}
		return matchesAny(field.Name, mergePatterns(cfg.DenyFields, typeName))
	})
}

// ListFieldAllowed reports whether a query root list field survives the filter.
func ListFieldAllowed(name string, cfg Config) bool {
	return listFieldAllowed(name, cfg.AllowListFields, cfg.DenyListFields)
}

func listFieldAllowed(name string, allow, deny []string) bool {
	if matchesAny(name, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(name, allow)
}

func mergePatterns(patterns map[string][]string, typeName string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	for key, fields := range patterns {
		if key != "*" && strings.EqualFold(key, typeName) {
			combined = append(combined, fields...)
		}
	}
	return slices.Compact(combined)
}

// ValidPattern reports whether pattern is well-formed.
func ValidPattern(pattern string) bool {
	_, err := path.Match(pattern, "")
	return err == nil
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
