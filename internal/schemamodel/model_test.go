package schemamodel

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const episodesPayload = `{
  "data": {
    "__schema": {
      "queryType": {"name": "Query"},
      "types": [
        {"kind": "OBJECT", "name": "Query", "fields": [
          {"name": "series", "type": {"kind": "LIST", "name": null, "ofType": {"kind": "OBJECT", "name": "Serie", "ofType": null}}},
          {"name": "episodes", "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "LIST", "name": null, "ofType": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "OBJECT", "name": "Episode", "ofType": null}}}}},
          {"name": "episode", "type": {"kind": "OBJECT", "name": "Episode", "ofType": null}},
          {"name": "version", "type": {"kind": "SCALAR", "name": "String", "ofType": null}}
        ]},
        {"kind": "OBJECT", "name": "Episode", "fields": [
          {"name": "name", "type": {"kind": "SCALAR", "name": "String", "ofType": null}},
          {"name": "id", "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}},
          {"name": "stars", "type": {"kind": "LIST", "name": null, "ofType": {"kind": "OBJECT", "name": "Star", "ofType": null}}}
        ]},
        {"kind": "OBJECT", "name": "Serie", "fields": [
          {"name": "id", "type": {"kind": "SCALAR", "name": "ID", "ofType": null}}
        ]},
        {"kind": "OBJECT", "name": "Star", "fields": [
          {"name": "id", "type": {"kind": "SCALAR", "name": "ID", "ofType": null}}
        ]},
        {"kind": "SCALAR", "name": "String", "fields": null},
        {"kind": "SCALAR", "name": "ID", "fields": null}
      ]
    }
  }
}`

func TestParse_ListFieldNamesInDeclarationOrder(t *testing.T) {
	model := Parse([]byte(episodesPayload))

	require.False(t, model.Empty())
	assert.Equal(t, "Query", model.QueryType)
	assert.Equal(t, []string{"series", "episodes"}, model.ListFieldNames())
}

func TestParse_ElementTypeOfStripsWrappers(t *testing.T) {
	model := Parse([]byte(episodesPayload))

	name, ok := model.ElementTypeOf("episodes")
	require.True(t, ok)
	assert.Equal(t, "Episode", name)

	name, ok = model.ElementTypeOf("series")
	require.True(t, ok)
	assert.Equal(t, "Serie", name)

	_, ok = model.ElementTypeOf("missing")
	assert.False(t, ok)
}

func TestParse_MarksListOfObjectFields(t *testing.T) {
	model := Parse([]byte(episodesPayload))

	episode, ok := model.Type("Episode")
	require.True(t, ok)

	stars, ok := episode.Field("stars")
	require.True(t, ok)
	assert.True(t, stars.ListOfObject)

	id, ok := episode.Field("id")
	require.True(t, ok)
	assert.False(t, id.ListOfObject)
	assert.Equal(t, TypeRef{Kind: KindScalar, Name: "ID"}, Unwrap(id.Type))
}

func TestParse_BareSchemaObject(t *testing.T) {
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(episodesPayload), &env))

	model := Parse(env["data"])
	assert.Equal(t, []string{"series", "episodes"}, model.ListFieldNames())
}

func TestParse_DegradesOnMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "not json", payload: "<html>bad gateway</html>"},
		{name: "no schema", payload: `{"data": null}`},
		{name: "errors only", payload: `{"errors": [{"message": "introspection disabled"}]}`},
		{name: "query type missing", payload: `{"__schema": {"queryType": {"name": "Nope"}, "types": []}}`},
		{name: "wrong shape", payload: `{"__schema": {"types": "oops"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := Parse([]byte(tt.payload))
			require.NotNil(t, model)
			assert.True(t, model.Empty())
			assert.Empty(t, model.ListFieldNames())
			_, ok := model.ElementTypeOf("episodes")
			assert.False(t, ok)
		})
	}
}

func TestParse_NilModelIsSafe(t *testing.T) {
	var model *Model
	assert.True(t, model.Empty())
	assert.Empty(t, model.ListFieldNames())
	_, ok := model.Type("Query")
	assert.False(t, ok)
}

func TestParse_GraphQLGoIntrospection(t *testing.T) {
	seasonType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Season",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"number": &graphql.Field{Type: graphql.Int},
		},
	})
	episodeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Episode",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":   &graphql.Field{Type: graphql.String},
			"season": &graphql.Field{Type: seasonType},
		},
	})
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"episodes": &graphql.Field{Type: graphql.NewList(episodeType)},
			"seasons":  &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(seasonType)))},
			"ping":     &graphql.Field{Type: graphql.String},
		},
	})
	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{Schema: schema, RequestString: IntrospectionQuery})
	require.False(t, result.HasErrors(), "introspection errors: %v", result.Errors)

	payload, err := json.Marshal(result)
	require.NoError(t, err)

	model := Parse(payload)
	require.False(t, model.Empty())

	lists := model.ListFieldNames()
	sort.Strings(lists)
	assert.Equal(t, []string{"episodes", "seasons"}, lists)

	elem, ok := model.ElementTypeOf("seasons")
	require.True(t, ok)
	assert.Equal(t, "Season", elem)

	episode, ok := model.Type("Episode")
	require.True(t, ok)
	season, ok := episode.Field("season")
	require.True(t, ok)
	assert.Equal(t, KindObject, Unwrap(season.Type).Kind)
}
