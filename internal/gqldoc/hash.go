package gqldoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// canonicalOperationAndHash prints the operation in graphql-go's canonical form so that
// whitespace differences do not change the hash.
func canonicalOperationAndHash(op *ast.OperationDefinition) (string, string, error) {
	printed := printer.Print(ast.NewDocument(&ast.Document{Definitions: []ast.Node{op}}))
	canonical, ok := printed.(string)
	if !ok {
		return "", "", fmt.Errorf("unexpected canonical document type %T", printed)
	}
	return canonical, framedSHA256(canonical, effectiveOperationName(op)), nil
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// Fingerprint hashes arbitrary parts with length framing, so ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...string) string {
	return framedSHA256(parts...)
}

func framedSHA256(parts ...string) string {
	hash := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
