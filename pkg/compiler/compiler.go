// Package compiler wraps the Jsonnet toolchain behind a small interface: parse
// text to a syntax tree, evaluate it to JSON, and map between output paths
// and source positions.
package compiler

import (
	"context"

	"github.com/google/go-jsonnet/ast"

	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/pathmap"
	"github.com/walteh/jsonnetls/pkg/position"
)

// Library is a named in-memory source that imports can resolve to by exact
// specifier.
type Library struct {
	Name    string
	Content string
}

// ImportResolver loads the target of an import statement.
type ImportResolver interface {
	Load(importingPath, specifier string) (foundAt string, content string, err error)
}

type EvaluateRequest struct {
	Path     string
	Content  string
	Resolver ImportResolver
	ExtVars  map[string]string
	TLAVars  map[string]string
}

// PathLocation is the result of mapping a source position to the output.
type PathLocation struct {
	Path  jsonpath.Path
	Kind  pathmap.NodeKind
	Range position.Range
	// Value holds the literal's value when Kind is a literal kind.
	Value any
	// Source is the literal's text as written (numbers) or its string value.
	Source string
}

type Compiler interface {
	Parse(path, text string) (ast.Node, error)
	Evaluate(ctx context.Context, req EvaluateRequest) (string, error)
	PathAtLocation(path, text string, at position.Place) (*PathLocation, error)
	LocateByPath(root ast.Node, p jsonpath.Path) (position.Range, bool)
}

var (
	_ Compiler = (*JsonnetCompiler)(nil)
	_ Compiler = (*Lazy)(nil)
)
