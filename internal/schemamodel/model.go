// Package schemamodel normalizes a GraphQL introspection result into an in-memory type model.
// Parsing never fails: a missing or malformed document yields an empty model so callers can
// render in degraded mode until a schema arrives.
package schemamodel

import (
	"bytes"
	"encoding/json"
)

// Kind is the introspection kind of a type or type reference.
type Kind string

const (
	KindScalar      Kind = "SCALAR"
	KindObject      Kind = "OBJECT"
	KindInterface   Kind = "INTERFACE"
	KindUnion       Kind = "UNION"
	KindEnum        Kind = "ENUM"
	KindInputObject Kind = "INPUT_OBJECT"
	KindList        Kind = "LIST"
	KindNonNull     Kind = "NON_NULL"
)

// IsLeafKind reports whether values of the kind are rendered as a single cell.
func IsLeafKind(kind Kind) bool {
	return kind == KindScalar || kind == KindEnum
}

// TypeRef is a possibly wrapped reference to a named type.
type TypeRef struct {
	Kind   Kind
	Name   string
	OfType *TypeRef
}

// Unwrap strips NON_NULL and LIST wrappers down to the named type.
func Unwrap(ref TypeRef) TypeRef {
	current := ref
	for (current.Kind == KindNonNull || current.Kind == KindList) && current.OfType != nil {
		current = *current.OfType
	}
	return current
}

// IsList reports whether the reference is a LIST once NON_NULL wrappers are removed.
func IsList(ref TypeRef) bool {
	current := ref
	for current.Kind == KindNonNull && current.OfType != nil {
		current = *current.OfType
	}
	return current.Kind == KindList
}

// FieldDescriptor describes one field of an object type.
type FieldDescriptor struct {
	Name string
	Type TypeRef
	// ListOfObject is set when the field is a list whose element type is an object.
	ListOfObject bool
}

// TypeDescriptor describes one named type.
type TypeDescriptor struct {
	Name   string
	Kind   Kind
	Fields []FieldDescriptor
}

// Field returns the named field, if declared.
func (t *TypeDescriptor) Field(name string) (FieldDescriptor, bool) {
	if t == nil {
		return FieldDescriptor{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Model is the normalized view of an introspected schema.
type Model struct {
	QueryType string
	types     map[string]*TypeDescriptor
	order     []string
}

// Empty returns a model with no types.
func Empty() *Model {
	return &Model{types: map[string]*TypeDescriptor{}}
}

// Empty reports whether the model carries no usable query root.
func (m *Model) Empty() bool {
	return m == nil || len(m.types) == 0 || m.QueryType == ""
}

// Type looks up a named type.
func (m *Model) Type(name string) (*TypeDescriptor, bool) {
	if m == nil {
		return nil, false
	}
	t, ok := m.types[name]
	return t, ok
}

// TypeNames returns the type names in document order.
func (m *Model) TypeNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

// ListFieldNames returns the query root fields whose type unwraps to a LIST, in declaration order.
func (m *Model) ListFieldNames() []string {
	root, ok := m.Type(m.queryTypeName())
	if !ok {
		return []string{}
	}
	names := make([]string, 0, len(root.Fields))
	for _, f := range root.Fields {
		if IsList(f.Type) {
			names = append(names, f.Name)
		}
	}
	return names
}

// ElementTypeOf returns the named type behind a query root field.
func (m *Model) ElementTypeOf(fieldName string) (string, bool) {
	root, ok := m.Type(m.queryTypeName())
	if !ok {
		return "", false
	}
	field, ok := root.Field(fieldName)
	if !ok {
		return "", false
	}
	named := Unwrap(field.Type)
	if named.Name == "" {
		return "", false
	}
	return named.Name, true
}

// WithoutFields returns a copy of the model without the fields for which drop reports
// true. Types themselves are kept.
func (m *Model) WithoutFields(drop func(typeName string, field FieldDescriptor) bool) *Model {
	if m == nil {
		return Empty()
	}
	out := &Model{
		QueryType: m.QueryType,
		types:     make(map[string]*TypeDescriptor, len(m.types)),
		order:     append([]string(nil), m.order...),
	}
	for name, t := range m.types {
		fields := make([]FieldDescriptor, 0, len(t.Fields))
		for _, f := range t.Fields {
			if !drop(name, f) {
				fields = append(fields, f)
			}
		}
		out.types[name] = &TypeDescriptor{Name: t.Name, Kind: t.Kind, Fields: fields}
	}
	return out
}

func (m *Model) queryTypeName() string {
	if m == nil {
		return ""
	}
	return m.QueryType
}

// wire shapes of the introspection payload

type introspectionEnvelope struct {
	Data   *introspectionData `json:"data"`
	Schema *schemaPayload     `json:"__schema"`
}

type introspectionData struct {
	Schema *schemaPayload `json:"__schema"`
}

type schemaPayload struct {
	QueryType *struct {
		Name string `json:"name"`
	} `json:"queryType"`
	Types []fullType `json:"types"`
}

type fullType struct {
	Kind   Kind         `json:"kind"`
	Name   string       `json:"name"`
	Fields []fieldEntry `json:"fields"`
}

type fieldEntry struct {
	Name string   `json:"name"`
	Type *typeRef `json:"type"`
}

type typeRef struct {
	Kind   Kind     `json:"kind"`
	Name   *string  `json:"name"`
	OfType *typeRef `json:"ofType"`
}

// Parse builds a model from an introspection response. It accepts either the full
// response ({"data":{"__schema":...}}) or the bare {"__schema":...} object.
func Parse(payload []byte) *Model {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Empty()
	}

	var env introspectionEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Empty()
	}

	schema := env.Schema
	if schema == nil && env.Data != nil {
		schema = env.Data.Schema
	}
	if schema == nil {
		return Empty()
	}
	return fromPayload(schema)
}

func fromPayload(schema *schemaPayload) *Model {
	model := Empty()
	if schema.QueryType != nil {
		model.QueryType = schema.QueryType.Name
	}

	for _, t := range schema.Types {
		if t.Name == "" {
			continue
		}
		desc := &TypeDescriptor{Name: t.Name, Kind: t.Kind}
		for _, f := range t.Fields {
			if f.Name == "" || f.Type == nil {
				continue
			}
			ref := convertRef(f.Type, 0)
			desc.Fields = append(desc.Fields, FieldDescriptor{Name: f.Name, Type: ref})
		}
		if _, exists := model.types[t.Name]; !exists {
			model.order = append(model.order, t.Name)
		}
		model.types[t.Name] = desc
	}

	// ListOfObject depends on the kind of the element type, so it is resolved after all types are known.
	for _, desc := range model.types {
		for i := range desc.Fields {
			f := &desc.Fields[i]
			if !IsList(f.Type) {
				continue
			}
			if elem, ok := model.types[Unwrap(f.Type).Name]; ok && elem.Kind == KindObject {
				f.ListOfObject = true
			}
		}
	}

	if _, ok := model.types[model.QueryType]; !ok {
		model.QueryType = ""
	}
	return model
}

// maxWrapDepth bounds wrapper nesting; real schemas never exceed a handful.
const maxWrapDepth = 16

func convertRef(ref *typeRef, depth int) TypeRef {
	out := TypeRef{Kind: ref.Kind}
	if ref.Name != nil {
		out.Name = *ref.Name
	}
	if ref.OfType != nil && depth < maxWrapDepth {
		inner := convertRef(ref.OfType, depth+1)
		out.OfType = &inner
	}
	return out
}
