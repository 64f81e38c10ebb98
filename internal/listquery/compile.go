// Package listquery assembles the paginated list query sent to the upstream API.
// It is pure string assembly; nothing here executes a query.
package listquery

import (
	"strings"

	"graphql-admin/internal/entitymeta"
	"graphql-admin/internal/filter"
)

// OperationName is the name of every compiled list operation.
const OperationName = "DynamicList"

const header = "query " + OperationName + "($page: Int!, $size: Int!, $count: Boolean!) { "

const paginationArg = "pagination: { page: $page, size: $size, count: $count }"

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts "asc"/"desc" in any case; anything else is ASC.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// SortTerm is one active sort column.
type SortTerm struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// Variables is the fixed variable contract of a list query.
type Variables struct {
	Page  int  `json:"page"`
	Size  int  `json:"size"`
	Count bool `json:"count"`
}

// Map returns the variables as a JSON-ready map.
func (v Variables) Map() map[string]any {
	return map[string]any{"page": v.Page, "size": v.Size, "count": v.Count}
}

// Params is the UI state a list query is compiled from. Page is 0-based.
type Params struct {
	Page     int
	PageSize int
	Sort     []SortTerm
	Filters  filter.State
}

// Query is a compiled list query.
type Query struct {
	Field     string
	Text      string
	Variables Variables
}

// SortBlock renders the sort argument with one term per sort column, in the given order.
// Columns unknown to the metadata sort by their own name; names that are not
// dotted GraphQL field paths are skipped.
func SortBlock(terms []SortTerm, meta *entitymeta.Metadata) (string, bool) {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		path := meta.SortPath(t.Column)
		if !isFieldPath(path) {
			continue
		}
		direction := t.Direction
		if direction != Desc {
			direction = Asc
		}
		parts = append(parts, `{ field: "`+path+`", order: `+string(direction)+` }`)
	}
	if len(parts) == 0 {
		return "", false
	}
	return "sort: { terms: [ " + strings.Join(parts, ", ") + " ] }", true
}

// Compile assembles the query document. Empty sort or filter blocks are omitted.
func Compile(listField, selection, sortBlock, filterBlock string) string {
	if strings.TrimSpace(selection) == "" {
		selection = "id"
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString(listField)
	b.WriteString("(")
	b.WriteString(paginationArg)
	if sortBlock != "" {
		b.WriteString(", ")
		b.WriteString(sortBlock)
	}
	if filterBlock != "" {
		b.WriteString(", ")
		b.WriteString(filterBlock)
	}
	b.WriteString(") { ")
	b.WriteString(selection)
	b.WriteString(" } }")
	return b.String()
}

// Build compiles the query for a list field and UI state. The wire page is 1-based.
func Build(meta *entitymeta.Metadata, listField string, params Params) Query {
	sortBlock, _ := SortBlock(params.Sort, meta)
	filterBlock, _ := filter.Translate(params.Filters, meta)

	selection := ""
	if meta != nil {
		selection = meta.Selection
	}

	page := params.Page
	if page < 0 {
		page = 0
	}

	return Query{
		Field: listField,
		Text:  Compile(listField, selection, sortBlock, filterBlock),
		Variables: Variables{
			Page:  page + 1,
			Size:  params.PageSize,
			Count: true,
		},
	}
}

func isFieldPath(path string) bool {
	if path == "" {
		return false
	}
	for _, name := range strings.Split(path, ".") {
		if name == "" {
			return false
		}
		for i, r := range name {
			letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			digit := r >= '0' && r <= '9'
			if !letter && (i == 0 || !digit) {
				return false
			}
		}
	}
	return true
}
