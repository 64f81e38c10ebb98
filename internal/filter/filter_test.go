package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-admin/internal/entitymeta"
)

// episodeMeta mirrors what entitymeta.Build produces for an Episode type.
func episodeMeta() *entitymeta.Metadata {
	columns := []struct {
		name, path, scalar string
	}{
		{"id", "id", "ID"},
		{"name", "name", "String"},
		{"date", "date", "Date"},
		{"aired", "aired", "Boolean"},
		{"rating", "rating", "Float"},
		{"views", "views", "Int"},
		{"status", "status", "Status"},
		{"season.id", "season.id", "ID"},
		{"season.number", "season.number", "Int"},
		{"director.name", "director.name", "String"},
	}
	meta := &entitymeta.Metadata{
		ElementType:       "Episode",
		SortFieldByColumn: map[string]string{},
		FieldTypeByColumn: map[string]string{},
		ValueResolvers:    map[string]entitymeta.ValueResolver{},
	}
	for _, c := range columns {
		meta.Columns = append(meta.Columns, c.name)
		meta.SortFieldByColumn[c.name] = c.path
		meta.FieldTypeByColumn[c.name] = c.scalar
	}
	return meta
}

func TestTranslate_DateBetweenEncodesEpochMillis(t *testing.T) {
	state := State{"date": {{Operator: "btw", Value: []any{"2020-01-01", "2020-12-31"}}}}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t, "date: { operator: BTW, value: [1577836800000, 1609372800000] }", block)
}

func TestTranslate_TextContainsBecomesLike(t *testing.T) {
	state := State{"name": {{Operator: "contains", Value: "abc"}}}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t, `name: { operator: LIKE, value: "abc" }`, block)
}

func TestTranslate_DisallowedOperatorOmitsColumn(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{name: "like on boolean", state: State{"aired": {{Operator: "contains", Value: "yes"}}}},
		{name: "like on numeric", state: State{"rating": {{Operator: "startsWith", Value: "4"}}}},
		{name: "range on text", state: State{"name": {{Operator: ">", Value: "m"}}}},
		{name: "between on text", state: State{"name": {{Operator: "btw", Value: []any{"a", "m"}}}}},
		{name: "in on boolean", state: State{"aired": {{Operator: "in", Value: []any{"true"}}}}},
		{name: "later entry disallowed", state: State{"name": {
			{Operator: "equals", Value: "Pilot"},
			{Operator: ">", Value: "P"},
		}}},
		{name: "object column", state: State{"season.number": {{Operator: "contains", Value: "1"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, ok := Translate(tt.state, episodeMeta())
			assert.False(t, ok)
			assert.Empty(t, block)
		})
	}
}

func TestTranslate_DisallowedColumnDoesNotAffectOthers(t *testing.T) {
	state := State{
		"aired": {{Operator: "contains", Value: "x"}},
		"views": {{Operator: ">", Value: json.Number("100")}},
	}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t, "views: { operator: GT, value: 100 }", block)
}

func TestTranslate_ScalarColumnUsesFirstEntry(t *testing.T) {
	state := State{"rating": {
		{Operator: ">", Value: 1},
		{Operator: "<", Value: 5},
	}}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t, "rating: { operator: GT, value: 1 }", block)
}

func TestTranslate_ObjectColumnsGroupByRelation(t *testing.T) {
	state := State{
		"season.number": {
			{Operator: ">=", Value: 2},
			{Operator: "<=", Value: 4},
		},
		"season.id":     {{Operator: "in", Value: "s1"}},
		"director.name": {{Operator: "endsWith", Value: "Lynch"}},
		"name":          {{Operator: "is", Value: "Pilot"}},
	}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t,
		`name: { operator: EQ, value: "Pilot" }, `+
			`season: { terms: [ { path: "id", operator: IN, value: ["s1"] }, { path: "number", operator: GTE, value: 2 }, { path: "number", operator: LTE, value: 4 } ] }, `+
			`director: { terms: [ { path: "name", operator: LIKE, value: "Lynch" } ] }`,
		block)
}

func TestTranslate_EmptyValuesEmitNothing(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{name: "nil state", state: nil},
		{name: "no entries", state: State{"name": {}}},
		{name: "nil value", state: State{"name": {{Operator: "contains", Value: nil}}}},
		{name: "blank string", state: State{"name": {{Operator: "contains", Value: "  "}}}},
		{name: "empty list", state: State{"name": {{Operator: "in", Value: []any{}}}}},
		{name: "list of blanks", state: State{"views": {{Operator: "btw", Value: []any{"", nil}}}}},
		{name: "unknown column", state: State{"missing": {{Operator: "equals", Value: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, ok := Translate(tt.state, episodeMeta())
			assert.False(t, ok)
			assert.Empty(t, block)
		})
	}
}

func TestTranslate_NilMetadata(t *testing.T) {
	_, ok := Translate(State{"id": {{Operator: "equals", Value: "1"}}}, nil)
	assert.False(t, ok)
}

func TestTranslate_ListEncoding(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected string
	}{
		{
			name:     "singleton promotion",
			state:    State{"name": {{Operator: "isAnyOf", Value: "Pilot"}}},
			expected: `name: { operator: IN, value: ["Pilot"] }`,
		},
		{
			name:     "not in",
			state:    State{"name": {{Operator: "nin", Value: []string{"a", "", "b"}}}},
			expected: `name: { operator: NIN, value: ["a", "b"] }`,
		},
		{
			name:     "numeric in",
			state:    State{"views": {{Operator: "in", Value: []any{json.Number("1"), "2", 3.5}}}},
			expected: `views: { operator: IN, value: [1, 2, 3.5] }`,
		},
		{
			name:     "between repeats single bound",
			state:    State{"views": {{Operator: "btw", Value: []any{"10"}}}},
			expected: `views: { operator: BTW, value: [10, 10] }`,
		},
		{
			name:     "between uses first two bounds",
			state:    State{"views": {{Operator: "btw", Value: []any{1, 2, 3}}}},
			expected: `views: { operator: BTW, value: [1, 2] }`,
		},
		{
			name:     "between with blank lower bound",
			state:    State{"views": {{Operator: "btw", Value: []any{"", "7"}}}},
			expected: `views: { operator: BTW, value: [7, 7] }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, ok := Translate(tt.state, episodeMeta())
			require.True(t, ok)
			assert.Equal(t, tt.expected, block)
		})
	}
}

func TestTranslate_LiteralEncoding(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected string
	}{
		{
			name:     "boolean from string",
			state:    State{"aired": {{Operator: "equals", Value: "true"}}},
			expected: "aired: { operator: EQ, value: true }",
		},
		{
			name:     "boolean native",
			state:    State{"aired": {{Operator: "!=", Value: false}}},
			expected: "aired: { operator: NE, value: false }",
		},
		{
			name:     "numeric normalizes text",
			state:    State{"views": {{Operator: "=", Value: "007"}}},
			expected: "views: { operator: EQ, value: 7 }",
		},
		{
			name:     "float",
			state:    State{"rating": {{Operator: "lessThanOrEqual", Value: "4.50"}}},
			expected: "rating: { operator: LTE, value: 4.5 }",
		},
		{
			name:     "text escaping",
			state:    State{"name": {{Operator: "equals", Value: "he said \"hi\"\n\\"}}},
			expected: `name: { operator: EQ, value: "he said \"hi\"\n\\" }`,
		},
		{
			name:     "text keeps markup characters",
			state:    State{"name": {{Operator: "equals", Value: "<b>&</b>"}}},
			expected: `name: { operator: EQ, value: "<b>&</b>" }`,
		},
		{
			name:     "number on text column is quoted",
			state:    State{"name": {{Operator: "equals", Value: json.Number("42")}}},
			expected: `name: { operator: EQ, value: "42" }`,
		},
		{
			name:     "enum column is text",
			state:    State{"status": {{Operator: "contains", Value: "AIR"}}},
			expected: `status: { operator: LIKE, value: "AIR" }`,
		},
		{
			name:     "date time",
			state:    State{"date": {{Operator: ">", Value: "2020-01-01T00:00:01Z"}}},
			expected: "date: { operator: GT, value: 1577836801000 }",
		},
		{
			name:     "date already epoch",
			state:    State{"date": {{Operator: "<", Value: json.Number("1577836800000")}}},
			expected: "date: { operator: LT, value: 1577836800000 }",
		},
		{
			name:     "unknown operator is EQ",
			state:    State{"id": {{Operator: "sameAs", Value: "e1"}}},
			expected: `id: { operator: EQ, value: "e1" }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, ok := Translate(tt.state, episodeMeta())
			require.True(t, ok)
			assert.Equal(t, tt.expected, block)
		})
	}
}

func TestTranslate_UnencodableEntryIsDropped(t *testing.T) {
	state := State{"rating": {
		{Operator: "=", Value: "abc"},
		{Operator: "=", Value: "4.5"},
	}}

	block, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	assert.Equal(t, "rating: { operator: EQ, value: 4.5 }", block)

	_, ok = Translate(State{"date": {{Operator: "=", Value: "yesterday"}}}, episodeMeta())
	assert.False(t, ok)
}

func TestTranslate_DeterministicColumnOrder(t *testing.T) {
	state := State{
		"views": {{Operator: "=", Value: 1}},
		"name":  {{Operator: "=", Value: "a"}},
		"id":    {{Operator: "=", Value: "x"}},
	}

	first, ok := Translate(state, episodeMeta())
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		again, _ := Translate(state, episodeMeta())
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `id: { operator: EQ, value: "x" }, name: { operator: EQ, value: "a" }, views: { operator: EQ, value: 1 }`, first)
}

func TestCanonical(t *testing.T) {
	tests := map[string]Operator{
		"contains": OpLike, "startsWith": OpLike, "endsWith": OpLike,
		"equals": OpEQ, "=": OpEQ, "is": OpEQ,
		"!=": OpNE, "not": OpNE,
		">": OpGT, "greaterThan": OpGT,
		">=": OpGTE, "greaterThanOrEqual": OpGTE,
		"<": OpLT, "lessThan": OpLT,
		"<=": OpLTE, "lessThanOrEqual": OpLTE,
		"isAnyOf": OpIn, "in": OpIn,
		"nin": OpNin, "btw": OpBtw,
		"EQ": OpEQ, "NE": OpNE, "GT": OpGT, "GTE": OpGTE, "LT": OpLT, "LTE": OpLTE,
		"LIKE": OpLike, "IN": OpIn, "NIN": OpNin, "BTW": OpBtw,
		"like": OpEQ, "whatever": OpEQ, "": OpEQ,
	}
	for raw, expected := range tests {
		assert.Equal(t, expected, Canonical(raw), raw)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Category{
		"Int": CategoryNumeric, "Float": CategoryNumeric, "BigDecimal": CategoryNumeric,
		"Date": CategoryNumeric, "DateTime": CategoryNumeric, "Timestamp": CategoryNumeric,
		"Boolean": CategoryBoolean,
		"String": CategoryText, "ID": CategoryText, "Status": CategoryText, "": CategoryText,
		"LocalDateTime": CategoryNumeric, "ISODate": CategoryNumeric, "created_time": CategoryNumeric,
		"Instant": CategoryNumeric, "timestamptz": CategoryNumeric,
		"TimeZone": CategoryText, "Runtime": CategoryText, "Candidate": CategoryText, "Updater": CategoryText,
	}
	for scalar, expected := range tests {
		assert.Equal(t, expected, Classify(scalar), scalar)
	}
}

func TestIsDateLike_MatchesWholeWords(t *testing.T) {
	assert.True(t, IsDateLike("DateTime"))
	assert.True(t, IsDateLike("Time"))
	assert.False(t, IsDateLike("TimeZone"))
	assert.False(t, IsDateLike("Datetimeformat"))
	assert.Equal(t, []string{"iso", "date"}, nameWords("ISODate"))
	assert.Equal(t, []string{"local", "date", "time"}, nameWords("LocalDateTime"))
	assert.Equal(t, []string{"created", "at"}, nameWords("created_at"))
}

func TestTranslate_TextScalarNamedLikeTime(t *testing.T) {
	meta := episodeMeta()
	meta.Columns = append(meta.Columns, "zone")
	meta.SortFieldByColumn["zone"] = "zone"
	meta.FieldTypeByColumn["zone"] = "TimeZone"

	block, ok := Translate(State{"zone": {{Operator: "equals", Value: "Europe/Paris"}}}, meta)
	require.True(t, ok)
	assert.Equal(t, `zone: { operator: EQ, value: "Europe/Paris" }`, block)

	block, ok = Translate(State{"zone": {{Operator: "contains", Value: "Europe"}}}, meta)
	require.True(t, ok)
	assert.Equal(t, `zone: { operator: LIKE, value: "Europe" }`, block)
}

func TestAllowLists(t *testing.T) {
	assert.True(t, Allows(CategoryNumeric, OpBtw))
	assert.False(t, Allows(CategoryNumeric, OpLike))
	assert.Equal(t, []Operator{OpEQ, OpNE}, Operators(CategoryBoolean))
	assert.ElementsMatch(t, []Operator{OpEQ, OpNE, OpLike, OpIn, OpNin}, Operators(CategoryText))
}

func TestState_CloneAndActive(t *testing.T) {
	state := State{"name": {{Operator: "contains", Value: "a"}}}
	clone := state.Clone()
	clone["name"][0].Value = "b"

	assert.Equal(t, "a", state["name"][0].Value)
	assert.True(t, state.Active())
	assert.False(t, State{"name": {{Operator: "contains", Value: ""}}}.Active())
	assert.NotNil(t, State(nil).Clone())
}
