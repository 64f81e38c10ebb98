// Package filter translates grid filter state into GraphQL argument text for list queries.
package filter

import (
	"strings"
	"unicode"
)

// Operator is a canonical filter operator tag understood by the upstream API.
type Operator string

const (
	OpEQ   Operator = "EQ"
	OpNE   Operator = "NE"
	OpGT   Operator = "GT"
	OpGTE  Operator = "GTE"
	OpLT   Operator = "LT"
	OpLTE  Operator = "LTE"
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
	OpNin  Operator = "NIN"
	OpBtw  Operator = "BTW"
)

var operatorAliases = map[string]Operator{
	"contains":           OpLike,
	"startsWith":         OpLike,
	"endsWith":           OpLike,
	"equals":             OpEQ,
	"=":                  OpEQ,
	"is":                 OpEQ,
	"!=":                 OpNE,
	"not":                OpNE,
	">":                  OpGT,
	"greaterThan":        OpGT,
	">=":                 OpGTE,
	"greaterThanOrEqual": OpGTE,
	"<":                  OpLT,
	"lessThan":           OpLT,
	"<=":                 OpLTE,
	"lessThanOrEqual":    OpLTE,
	"isAnyOf":            OpIn,
	"in":                 OpIn,
	"nin":                OpNin,
	"btw":                OpBtw,
}

var canonicalTags = map[Operator]struct{}{
	OpEQ: {}, OpNE: {}, OpGT: {}, OpGTE: {}, OpLT: {}, OpLTE: {},
	OpLike: {}, OpIn: {}, OpNin: {}, OpBtw: {},
}

// Canonical maps a UI operator name to its tag. Canonical tags pass through;
// anything unrecognized becomes EQ.
func Canonical(raw string) Operator {
	if op, ok := operatorAliases[raw]; ok {
		return op
	}
	if _, ok := canonicalTags[Operator(raw)]; ok {
		return Operator(raw)
	}
	return OpEQ
}

// Category groups scalar types by the operators they accept.
type Category int

const (
	CategoryText Category = iota
	CategoryNumeric
	CategoryBoolean
)

func (c Category) String() string {
	switch c {
	case CategoryNumeric:
		return "numeric"
	case CategoryBoolean:
		return "boolean"
	default:
		return "text"
	}
}

var numericScalars = map[string]struct{}{
	"int": {}, "float": {}, "long": {}, "short": {}, "byte": {}, "bigint": {},
	"decimal": {}, "bigdecimal": {}, "double": {}, "number": {},
}

// Classify returns the operator category for a scalar type name.
// Date and time scalars classify as numeric. Unknown types, ID and enums are text.
func Classify(scalarType string) Category {
	name := strings.ToLower(scalarType)
	switch {
	case name == "boolean" || name == "bool":
		return CategoryBoolean
	case IsDateLike(scalarType):
		return CategoryNumeric
	}
	if _, ok := numericScalars[name]; ok {
		return CategoryNumeric
	}
	return CategoryText
}

var dateWords = map[string]struct{}{
	"date": {}, "time": {}, "datetime": {}, "timestamp": {}, "timestamptz": {}, "instant": {},
}

// IsDateLike reports whether a scalar carries a date or time. The last word of the
// name decides, so DateTime and LocalDate match while TimeZone and Runtime do not.
func IsDateLike(scalarType string) bool {
	words := nameWords(scalarType)
	if len(words) == 0 {
		return false
	}
	_, ok := dateWords[words[len(words)-1]]
	return ok
}

// nameWords splits a camel-case or snake-case name into lower-cased words.
// Acronym runs stay together: ISODate gives [iso date].
func nameWords(name string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return words
}

var allowLists = map[Category][]Operator{
	CategoryNumeric: {OpEQ, OpNE, OpGT, OpGTE, OpLT, OpLTE, OpIn, OpNin, OpBtw},
	CategoryBoolean: {OpEQ, OpNE},
	CategoryText:    {OpEQ, OpNE, OpLike, OpIn, OpNin},
}

// Operators lists the operators a category accepts.
func Operators(c Category) []Operator {
	return append([]Operator(nil), allowLists[c]...)
}

// Allows reports whether op is valid for the category.
func Allows(c Category, op Operator) bool {
	for _, allowed := range allowLists[c] {
		if allowed == op {
			return true
		}
	}
	return false
}
