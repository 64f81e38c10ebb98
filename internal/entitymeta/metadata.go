// Package entitymeta derives list-view metadata (columns, selection set, sort paths,
// scalar types and value extraction) for an entity type from the schema model.
package entitymeta

import (
	"strings"

	"graphql-admin/internal/schemamodel"
)

// ValueResolver extracts a column's raw value from a result row.
type ValueResolver func(row map[string]any) any

// Metadata describes how to list one entity type. It is immutable once built.
type Metadata struct {
	ElementType string
	Columns     []string
	Selection   string
	// SortFieldByColumn is the dotted field path used for sort and filter arguments.
	SortFieldByColumn map[string]string
	// FieldTypeByColumn is the named scalar (or enum) type behind each column.
	FieldTypeByColumn map[string]string
	ValueResolvers    map[string]ValueResolver
	// Degraded is set when the element type could not be resolved.
	Degraded bool
}

const idColumn = "id"

// Degraded returns the single-id metadata used while no schema is available.
func Degraded(elementType string) *Metadata {
	return &Metadata{
		ElementType:       elementType,
		Columns:           []string{idColumn},
		Selection:         idColumn,
		SortFieldByColumn: map[string]string{idColumn: idColumn},
		FieldTypeByColumn: map[string]string{idColumn: "ID"},
		ValueResolvers:    map[string]ValueResolver{idColumn: fieldResolver(idColumn)},
		Degraded:          true,
	}
}

// ForListField resolves the element type of a query root list field and builds its metadata.
func ForListField(model *schemamodel.Model, listField string) *Metadata {
	elementType, ok := model.ElementTypeOf(listField)
	if !ok {
		return Degraded("")
	}
	return Build(model, elementType)
}

// Build walks the element type's fields. Leaf fields become columns; to-one object
// fields expand exactly one level into "<field>.<subfield>" columns; list fields are skipped.
func Build(model *schemamodel.Model, elementType string) *Metadata {
	typ, ok := model.Type(elementType)
	if !ok || !expandable(typ.Kind) {
		return Degraded(elementType)
	}

	meta := &Metadata{
		ElementType:       elementType,
		SortFieldByColumn: make(map[string]string),
		FieldTypeByColumn: make(map[string]string),
		ValueResolvers:    make(map[string]ValueResolver),
	}
	fragments := make([]string, 0, len(typ.Fields))

	for _, field := range idFirst(typ.Fields) {
		if schemamodel.IsList(field.Type) || field.ListOfObject {
			continue
		}
		named := schemamodel.Unwrap(field.Type)

		if schemamodel.IsLeafKind(named.Kind) {
			meta.addColumn(field.Name, field.Name, named.Name, fieldResolver(field.Name))
			fragments = append(fragments, field.Name)
			continue
		}

		if named.Kind != schemamodel.KindObject && named.Kind != schemamodel.KindInterface {
			continue
		}
		child, ok := model.Type(named.Name)
		if !ok {
			continue
		}

		subfields := make([]string, 0, len(child.Fields))
		for _, sub := range idFirst(child.Fields) {
			if schemamodel.IsList(sub.Type) {
				continue
			}
			subNamed := schemamodel.Unwrap(sub.Type)
			if !schemamodel.IsLeafKind(subNamed.Kind) {
				continue
			}
			path := field.Name + "." + sub.Name
			meta.addColumn(path, path, subNamed.Name, nestedResolver(field.Name, sub.Name))
			subfields = append(subfields, sub.Name)
		}
		if len(subfields) > 0 {
			fragments = append(fragments, field.Name+" { "+strings.Join(subfields, " ")+" }")
		}
	}

	if len(meta.Columns) == 0 {
		return Degraded(elementType)
	}
	meta.Selection = strings.Join(fragments, " ")
	return meta
}

func (m *Metadata) addColumn(column, sortPath, scalarType string, resolver ValueResolver) {
	if _, exists := m.SortFieldByColumn[column]; exists {
		return
	}
	m.Columns = append(m.Columns, column)
	m.SortFieldByColumn[column] = sortPath
	m.FieldTypeByColumn[column] = scalarType
	m.ValueResolvers[column] = resolver
}

// SortPath returns the sort/filter path for a column. Unknown columns map to themselves.
func (m *Metadata) SortPath(column string) string {
	if m != nil {
		if path, ok := m.SortFieldByColumn[column]; ok {
			return path
		}
	}
	return column
}

// FieldType returns the scalar type name behind a column, or "" when unknown.
func (m *Metadata) FieldType(column string) string {
	if m == nil {
		return ""
	}
	return m.FieldTypeByColumn[column]
}

// IsObjectColumn reports whether the column reads through a to-one relation.
func (m *Metadata) IsObjectColumn(column string) bool {
	return strings.Contains(m.SortPath(column), ".")
}

// HasColumn reports whether column is part of the metadata.
func (m *Metadata) HasColumn(column string) bool {
	if m == nil {
		return false
	}
	_, ok := m.SortFieldByColumn[column]
	return ok
}

// Value extracts a column's raw value from a row. Missing data yields nil.
func (m *Metadata) Value(column string, row map[string]any) any {
	if m == nil || row == nil {
		return nil
	}
	resolve, ok := m.ValueResolvers[column]
	if !ok {
		return row[column]
	}
	return resolve(row)
}

func fieldResolver(name string) ValueResolver {
	return func(row map[string]any) any {
		return row[name]
	}
}

func nestedResolver(field, subfield string) ValueResolver {
	return func(row map[string]any) any {
		nested, ok := row[field].(map[string]any)
		if !ok {
			return nil
		}
		return nested[subfield]
	}
}

func expandable(kind schemamodel.Kind) bool {
	return kind == schemamodel.KindObject || kind == schemamodel.KindInterface
}

func isIDLike(name string) bool {
	return name == "id" || name == "_id"
}

// idFirst returns fields with id-like fields moved to the front, otherwise in declaration order.
func idFirst(fields []schemamodel.FieldDescriptor) []schemamodel.FieldDescriptor {
	out := make([]schemamodel.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if isIDLike(f.Name) {
			out = append(out, f)
		}
	}
	for _, f := range fields {
		if !isIDLike(f.Name) {
			out = append(out, f)
		}
	}
	return out
}
