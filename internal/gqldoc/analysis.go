// Package gqldoc parses compiled list documents and derives the facts logged and
// reported alongside each fetch: operation name, root field, shape and a stable hash.
package gqldoc

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Analysis stores parsed and derived metadata for one document.
type Analysis struct {
	Document  *ast.Document
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string
	RootField     string
	// RootArguments lists the argument names of the root field in document order.
	RootArguments []string
	VariableNames []string

	FieldCount     int
	SelectionDepth int

	CanonicalOperation string
	OperationHash      string
}

// Analyze parses a single-operation document.
func Analyze(query string) (*Analysis, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("document is empty")
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "list-query",
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	op, err := singleOperation(doc)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Document:      doc,
		Operation:     op,
		OperationName: effectiveOperationName(op),
		OperationType: string(op.Operation),
	}
	for _, def := range op.VariableDefinitions {
		if def != nil && def.Variable != nil && def.Variable.Name != nil {
			analysis.VariableNames = append(analysis.VariableNames, def.Variable.Name.Value)
		}
	}

	if root := firstField(op.SelectionSet); root != nil {
		analysis.RootField = root.Name.Value
		for _, arg := range root.Arguments {
			if arg != nil && arg.Name != nil {
				analysis.RootArguments = append(analysis.RootArguments, arg.Name.Value)
			}
		}
	}

	analysis.FieldCount, analysis.SelectionDepth = countFieldsAndDepth(op.SelectionSet, 1)

	canonical, hash, err := canonicalOperationAndHash(op)
	if err != nil {
		return nil, err
	}
	analysis.CanonicalOperation = canonical
	analysis.OperationHash = hash
	return analysis, nil
}

func singleOperation(doc *ast.Document) (*ast.OperationDefinition, error) {
	var found *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok || op == nil {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("document has more than one operation")
		}
		found = op
	}
	if found == nil {
		return nil, fmt.Errorf("document does not include an operation")
	}
	return found, nil
}

func firstField(selectionSet *ast.SelectionSet) *ast.Field {
	if selectionSet == nil {
		return nil
	}
	for _, selection := range selectionSet.Selections {
		if field, ok := selection.(*ast.Field); ok && field.Name != nil {
			return field
		}
	}
	return nil
}

func countFieldsAndDepth(selectionSet *ast.SelectionSet, currentDepth int) (fields, maxDepth int) {
	if selectionSet == nil {
		return 0, currentDepth - 1
	}

	maxDepth = currentDepth
	for _, selection := range selectionSet.Selections {
		var nested *ast.SelectionSet
		depth := currentDepth
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			nested = sel.SelectionSet
			depth = currentDepth + 1
		case *ast.InlineFragment:
			nested = sel.SelectionSet
		}
		if nested == nil {
			continue
		}
		nestedFields, nestedDepth := countFieldsAndDepth(nested, depth)
		fields += nestedFields
		if nestedDepth > maxDepth {
			maxDepth = nestedDepth
		}
	}
	return fields, maxDepth
}
