package filter

import (
	"strings"

	"graphql-admin/internal/entitymeta"
)

// Entry is one (operator, value) pair entered for a column.
type Entry struct {
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// State maps a column to the filter entries entered for it, in entry order.
type State map[string][]Entry

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for column, entries := range s {
		out[column] = append([]Entry(nil), entries...)
	}
	return out
}

// Active reports whether any column has an entry with a set value.
func (s State) Active() bool {
	for _, entries := range s {
		for _, e := range entries {
			if len(nonEmptyItems(e.Value)) > 0 {
				return true
			}
		}
	}
	return false
}

type term struct {
	path  string
	op    Operator
	value string
}

// Translate compiles filter state into the comma-joined argument fragments of a list
// query. Columns are visited in metadata column order; columns unknown to the metadata
// are ignored. The boolean is false when no fragment was produced.
//
// A column is omitted entirely when any of its set entries uses an operator outside
// the column type's allow-list. Entries whose value cannot be encoded for the column
// type are dropped individually. Scalar columns emit only their first remaining entry;
// object columns emit every entry as a term, grouped with the other columns that read
// through the same relation.
func Translate(state State, meta *entitymeta.Metadata) (string, bool) {
	if len(state) == 0 || meta == nil {
		return "", false
	}

	var fragments []fragment
	groups := make(map[string][]term)

	for _, column := range meta.Columns {
		entries, ok := state[column]
		if !ok {
			continue
		}
		terms := columnTerms(entries, meta.FieldType(column))
		if len(terms) == 0 {
			continue
		}

		path := meta.SortPath(column)
		if !meta.IsObjectColumn(column) {
			first := terms[0]
			fragments = append(fragments, fragment{text: path + ": { operator: " + string(first.op) + ", value: " + first.value + " }"})
			continue
		}

		root, sub, _ := strings.Cut(path, ".")
		if _, seen := groups[root]; !seen {
			// The group keeps the position of its first column.
			fragments = append(fragments, fragment{group: root})
		}
		for _, t := range terms {
			t.path = sub
			groups[root] = append(groups[root], t)
		}
	}

	if len(fragments) == 0 {
		return "", false
	}
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.group != "" {
			out = append(out, renderGroup(f.group, groups[f.group]))
			continue
		}
		out = append(out, f.text)
	}
	return strings.Join(out, ", "), true
}

// fragment is either rendered text or the name of a relation whose terms are rendered last.
type fragment struct {
	text  string
	group string
}

func columnTerms(entries []Entry, scalarType string) []term {
	encoder := newEncoder(scalarType)
	terms := make([]term, 0, len(entries))
	for _, entry := range entries {
		if len(nonEmptyItems(entry.Value)) == 0 {
			continue
		}
		op := Canonical(entry.Operator)
		if !Allows(encoder.category, op) {
			return nil
		}
		literal, ok := encoder.encode(op, entry.Value)
		if !ok {
			continue
		}
		terms = append(terms, term{op: op, value: literal})
	}
	return terms
}

func renderGroup(root string, terms []term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, "{ path: "+quote(t.path)+", operator: "+string(t.op)+", value: "+t.value+" }")
	}
	return root + ": { terms: [ " + strings.Join(parts, ", ") + " ] }"
}
