package gqldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listDocument = `query DynamicList($page: Int!, $size: Int!, $count: Boolean!) { episodes(pagination: { page: $page, size: $size, count: $count }, sort: { terms: [ { field: "name", order: ASC } ] }, season: { terms: [ { path: "number", operator: EQ, value: 1 } ] }) { id name season { id number } } }`

func TestAnalyze_ListDocument(t *testing.T) {
	analysis, err := Analyze(listDocument)
	require.NoError(t, err)

	assert.Equal(t, "DynamicList", analysis.OperationName)
	assert.Equal(t, "query", analysis.OperationType)
	assert.Equal(t, "episodes", analysis.RootField)
	assert.Equal(t, []string{"pagination", "sort", "season"}, analysis.RootArguments)
	assert.Equal(t, []string{"page", "size", "count"}, analysis.VariableNames)
	assert.Equal(t, 6, analysis.FieldCount)
	assert.Equal(t, 3, analysis.SelectionDepth)
	assert.NotEmpty(t, analysis.CanonicalOperation)
	assert.Len(t, analysis.OperationHash, 64)
}

func TestAnalyze_HashIgnoresWhitespace(t *testing.T) {
	compact, err := Analyze(`query Q { items { id } }`)
	require.NoError(t, err)
	spaced, err := Analyze("query Q {\n  items {\n    id\n  }\n}\n")
	require.NoError(t, err)

	assert.Equal(t, compact.OperationHash, spaced.OperationHash)

	other, err := Analyze(`query Q { items { id name } }`)
	require.NoError(t, err)
	assert.NotEqual(t, compact.OperationHash, other.OperationHash)
}

func TestAnalyze_AnonymousOperation(t *testing.T) {
	analysis, err := Analyze(`{ items { id } }`)
	require.NoError(t, err)
	assert.Equal(t, "<anonymous>", analysis.OperationName)
	assert.Equal(t, 2, analysis.FieldCount)
	assert.Equal(t, 2, analysis.SelectionDepth)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "empty", query: "   "},
		{name: "malformed", query: `query { items { `},
		{name: "two operations", query: `query A { a } query B { b }`},
		{name: "fragment only", query: `fragment F on T { id }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := Analyze(tt.query)
			assert.Error(t, err)
			assert.Nil(t, analysis)
		})
	}
}

func TestFingerprint_Framing(t *testing.T) {
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	assert.Equal(t, Fingerprint("a", "b"), Fingerprint("a", "b"))
}
