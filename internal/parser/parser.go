// Package parser provides the pluggable JS→AST converter collaborator.
// Esprima/Acorn/Babel-class tooling is out of scope for this module;
// parser ships two concrete implementations of the same contract so the
// rest of xguard never has to know which one produced a tree.
package parser

import (
	"context"

	"github.com/viant/xguard/internal/ast"
)

// SourceType names the three accepted ECMAScript source flavors.
type SourceType string

const (
	Script   SourceType = "script"
	Module   SourceType = "module"
	CommonJS SourceType = "commonjs"
)

// Parser converts one JS source file into xguard's internal AST.
type Parser interface {
	Parse(ctx context.Context, path string, sourceType SourceType) (*ast.Node, []byte, error)
}
