package listview

import (
	"slices"

	"graphql-admin/internal/entitymeta"
	"graphql-admin/internal/filter"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/listquery"
	"graphql-admin/internal/naming"
	"graphql-admin/internal/renderers"
)

// Column is a rendered column header.
type Column struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Object   bool   `json:"object"`
}

// Cell is one rendered value.
type Cell struct {
	Column  string `json:"column"`
	Value   Value  `json:"value"`
	Display string `json:"display"`
}

// Row holds a row's cells in column order.
type Row []Cell

// Snapshot is the render-ready state of a view.
type Snapshot struct {
	ListField       string               `json:"listField"`
	ElementType     string               `json:"elementType"`
	Title           string               `json:"title"`
	Locale          string               `json:"locale"`
	Columns         []Column             `json:"columns"`
	Rows            []Row                `json:"rows"`
	TotalCount      *int                 `json:"totalCount"`
	Status          Status               `json:"status"`
	Error           string               `json:"error,omitempty"`
	Page            int                  `json:"page"`
	PageSize        int                  `json:"pageSize"`
	PageSizeOptions []int                `json:"pageSizeOptions"`
	HasNextPage     bool                 `json:"hasNextPage"`
	Sort            []listquery.SortTerm `json:"sort"`
	Filters         filter.State         `json:"filters"`
	StagedFilters   filter.State         `json:"stagedFilters"`
	FiltersActive   bool                 `json:"filtersActive"`
	Generation      uint64               `json:"generation"`
	QueryHash       string               `json:"queryHash,omitempty"`
	Degraded        bool                 `json:"degraded"`
}

// Snapshot returns the current state with labels and renderers applied.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	meta := c.meta
	params := c.params
	snap := Snapshot{
		ListField:       c.listField,
		ElementType:     meta.ElementType,
		Status:          c.status,
		Error:           c.errMessage,
		Page:            params.Page,
		PageSize:        params.PageSize,
		PageSizeOptions: slices.Clone(PageSizeOptions),
		Sort:            slices.Clone(params.Sort),
		Filters:         params.Filters.Clone(),
		StagedFilters:   c.staged.Clone(),
		FiltersActive:   params.Filters.Active(),
		Generation:      c.generation,
		QueryHash:       c.queryHash,
		Degraded:        meta.Degraded,
	}
	if snap.Sort == nil {
		snap.Sort = []listquery.SortTerm{}
	}
	if c.total != nil {
		total := *c.total
		snap.TotalCount = &total
	}
	rows := c.rows
	c.mu.Unlock()

	snap.Locale = c.labels.Locale()
	snap.Title = ResolveTitle(c.labels, c.namer, c.listField, meta, c.humanizeLabels)
	snap.Columns = ResolveColumns(c.labels, c.namer, meta, c.humanizeLabels)
	snap.Rows = c.renderRows(meta, rows)
	snap.HasNextPage = hasNextPage(params.Page, params.PageSize, len(rows), snap.TotalCount)
	return snap
}

// Metadata returns the metadata the view currently compiles against.
func (c *Controller) Metadata() *entitymeta.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// ResolveTitle looks up the heading of a list field. Without a label the list field
// name is used, humanized when requested.
func ResolveTitle(res *labels.Resolver, namer *naming.Namer, listField string, meta *entitymeta.Metadata, humanize bool) string {
	fallback := listField
	if humanize {
		fallback = namer.EntityTitle(listField)
	}
	return res.Resolve(
		namer.EntityKeys(listField, meta.ElementType),
		labels.Context{Entity: meta.ElementType},
		fallback,
	)
}

// ResolveColumns builds the header of every metadata column. Without a label the
// column name is used, humanized when requested.
func ResolveColumns(res *labels.Resolver, namer *naming.Namer, meta *entitymeta.Metadata, humanize bool) []Column {
	columns := make([]Column, 0, len(meta.Columns))
	for _, name := range meta.Columns {
		scalarType := meta.FieldType(name)
		fallback := name
		if humanize {
			fallback = namer.Humanize(name)
		}
		columns = append(columns, Column{
			Name: name,
			Label: res.Resolve(
				namer.ColumnKeys(meta.ElementType, name),
				labels.Context{Entity: meta.ElementType, Field: name},
				fallback,
			),
			Type:     scalarType,
			Category: filter.Classify(scalarType).String(),
			Object:   meta.IsObjectColumn(name),
		})
	}
	return columns
}

func (c *Controller) renderRows(meta *entitymeta.Metadata, rows []map[string]any) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		cells := make(Row, 0, len(meta.Columns))
		for _, column := range meta.Columns {
			raw := meta.Value(column, row)
			value := NewValue(meta.FieldType(column), raw)
			display := value.Text
			if renderer, ok := c.renderers.Resolve(meta.ElementType+"."+column, column); ok {
				display = renderer(renderers.Context{
					Entity: meta.ElementType,
					Field:  column,
					Row:    row,
					Value:  raw,
				})
			}
			cells = append(cells, Cell{Column: column, Value: value, Display: display})
		}
		out = append(out, cells)
	}
	return out
}

// hasNextPage uses the total when known; otherwise a full page implies more rows.
func hasNextPage(page, pageSize, rowCount int, total *int) bool {
	if total != nil {
		return (page+1)*pageSize < *total
	}
	return pageSize > 0 && rowCount >= pageSize
}
