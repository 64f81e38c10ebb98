package entitymeta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-admin/internal/schemamodel"
)

const episodeSchema = `{"data": {"__schema": {
  "queryType": {"name": "Query"},
  "types": [
    {"kind": "OBJECT", "name": "Query", "fields": [
      {"name": "episodes", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Episode"}}},
      {"name": "seasons", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Season"}}},
      {"name": "tags", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Tag"}}},
      {"name": "ghosts", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Ghost"}}}
    ]},
    {"kind": "OBJECT", "name": "Episode", "fields": [
      {"name": "name", "type": {"kind": "SCALAR", "name": "String"}},
      {"name": "date", "type": {"kind": "SCALAR", "name": "Date"}},
      {"name": "id", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "ID"}}},
      {"name": "season", "type": {"kind": "OBJECT", "name": "Season"}},
      {"name": "stars", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Star"}}},
      {"name": "keywords", "type": {"kind": "LIST", "ofType": {"kind": "SCALAR", "name": "String"}}},
      {"name": "rating", "type": {"kind": "SCALAR", "name": "Float"}},
      {"name": "status", "type": {"kind": "ENUM", "name": "Status"}}
    ]},
    {"kind": "OBJECT", "name": "Season", "fields": [
      {"name": "number", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "Int"}}},
      {"name": "id", "type": {"kind": "SCALAR", "name": "ID"}},
      {"name": "serie", "type": {"kind": "OBJECT", "name": "Serie"}},
      {"name": "episodes", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Episode"}}}
    ]},
    {"kind": "OBJECT", "name": "Serie", "fields": [
      {"name": "id", "type": {"kind": "SCALAR", "name": "ID"}},
      {"name": "title", "type": {"kind": "SCALAR", "name": "String"}}
    ]},
    {"kind": "OBJECT", "name": "Star", "fields": [
      {"name": "id", "type": {"kind": "SCALAR", "name": "ID"}}
    ]},
    {"kind": "OBJECT", "name": "Tag", "fields": [
      {"name": "_id", "type": {"kind": "SCALAR", "name": "ID"}},
      {"name": "label", "type": {"kind": "SCALAR", "name": "String"}}
    ]},
    {"kind": "OBJECT", "name": "Ghost", "fields": [
      {"name": "haunts", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Episode"}}}
    ]},
    {"kind": "ENUM", "name": "Status"},
    {"kind": "SCALAR", "name": "String"},
    {"kind": "SCALAR", "name": "ID"},
    {"kind": "SCALAR", "name": "Int"},
    {"kind": "SCALAR", "name": "Float"},
    {"kind": "SCALAR", "name": "Date"}
  ]
}}}`

func testModel(t *testing.T) *schemamodel.Model {
	t.Helper()
	model := schemamodel.Parse([]byte(episodeSchema))
	require.False(t, model.Empty())
	return model
}

func TestBuild_ColumnsAndSelection(t *testing.T) {
	meta := Build(testModel(t), "Episode")

	require.False(t, meta.Degraded)
	assert.Equal(t, "Episode", meta.ElementType)
	assert.Equal(t, []string{"id", "name", "date", "season.id", "season.number", "rating", "status"}, meta.Columns)
	assert.Equal(t, "id name date season { id number } rating status", meta.Selection)
}

func TestBuild_ScalarTypesAndSortPaths(t *testing.T) {
	meta := Build(testModel(t), "Episode")

	assert.Equal(t, "ID", meta.FieldType("id"))
	assert.Equal(t, "Date", meta.FieldType("date"))
	assert.Equal(t, "Int", meta.FieldType("season.number"))
	assert.Equal(t, "Status", meta.FieldType("status"))

	assert.Equal(t, "season.number", meta.SortPath("season.number"))
	assert.Equal(t, "name", meta.SortPath("name"))
	assert.Equal(t, "unknown", meta.SortPath("unknown"))

	assert.True(t, meta.IsObjectColumn("season.number"))
	assert.False(t, meta.IsObjectColumn("date"))
}

func TestBuild_ObjectExpansionIsOneLevelDeep(t *testing.T) {
	meta := Build(testModel(t), "Episode")

	assert.NotContains(t, meta.Selection, "serie")
	assert.NotContains(t, meta.Selection, "title")
	assert.NotContains(t, meta.Selection, "stars")
	assert.NotContains(t, meta.Selection, "keywords")
	assert.NotContains(t, meta.Selection, "episodes")

	for _, column := range meta.Columns {
		if !meta.IsObjectColumn(column) {
			continue
		}
		parts := strings.Split(column, ".")
		assert.Len(t, parts, 2, column)
		assert.Contains(t, meta.Selection, parts[0]+" { ")
	}
}

func TestBuild_MapsAreConsistentWithColumns(t *testing.T) {
	model := testModel(t)
	for _, elementType := range []string{"Episode", "Season", "Tag", "Ghost", "Missing"} {
		meta := Build(model, elementType)
		assert.Len(t, meta.SortFieldByColumn, len(meta.Columns), elementType)
		assert.Len(t, meta.FieldTypeByColumn, len(meta.Columns), elementType)
		assert.Len(t, meta.ValueResolvers, len(meta.Columns), elementType)
		for _, column := range meta.Columns {
			assert.Contains(t, meta.SortFieldByColumn, column)
			assert.Contains(t, meta.FieldTypeByColumn, column)
			assert.Contains(t, meta.ValueResolvers, column)
		}
	}
}

func TestBuild_UnderscoreIDComesFirst(t *testing.T) {
	meta := Build(testModel(t), "Tag")
	assert.Equal(t, []string{"_id", "label"}, meta.Columns)
}

func TestBuild_ValueResolvers(t *testing.T) {
	meta := Build(testModel(t), "Episode")

	row := map[string]any{
		"id":     "e1",
		"name":   "Pilot",
		"season": map[string]any{"id": "s1", "number": 1},
	}
	assert.Equal(t, "Pilot", meta.Value("name", row))
	assert.Equal(t, 1, meta.Value("season.number", row))
	assert.Nil(t, meta.Value("rating", row))

	row["season"] = nil
	assert.Nil(t, meta.Value("season.number", row))
	assert.Nil(t, meta.Value("name", nil))
}

func TestBuild_DegradedMetadata(t *testing.T) {
	tests := []struct {
		name        string
		model       *schemamodel.Model
		elementType string
	}{
		{name: "no schema", model: schemamodel.Empty(), elementType: "Episode"},
		{name: "nil model", model: nil, elementType: "Episode"},
		{name: "unknown type", model: testModel(t), elementType: "Missing"},
		{name: "scalar type", model: testModel(t), elementType: "String"},
		{name: "only list fields", model: testModel(t), elementType: "Ghost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Build(tt.model, tt.elementType)
			assert.True(t, meta.Degraded)
			assert.Equal(t, []string{"id"}, meta.Columns)
			assert.Equal(t, "id", meta.Selection)
			assert.Equal(t, "x", meta.Value("id", map[string]any{"id": "x"}))
		})
	}
}

func TestForListField(t *testing.T) {
	model := testModel(t)

	meta := ForListField(model, "seasons")
	require.False(t, meta.Degraded)
	assert.Equal(t, "Season", meta.ElementType)
	assert.Equal(t, []string{"id", "number", "serie.id", "serie.title"}, meta.Columns)
	assert.Equal(t, "id number serie { id title }", meta.Selection)

	unknown := ForListField(model, "nope")
	assert.True(t, unknown.Degraded)
	assert.Equal(t, []string{"id"}, unknown.Columns)
}

func TestCache_ReusesPerFingerprint(t *testing.T) {
	cache, err := NewCache(4)
	require.NoError(t, err)
	model := testModel(t)

	first := cache.ForListField("fp1", model, "episodes")
	second := cache.ForListField("fp1", model, "episodes")
	assert.Same(t, first, second)

	third := cache.ForListField("fp2", model, "episodes")
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Columns, third.Columns)
	assert.Equal(t, 2, cache.Len())

	cache.ForListField("fp1", schemamodel.Empty(), "other")
	assert.Equal(t, 2, cache.Len(), "degraded metadata is not cached")

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}
