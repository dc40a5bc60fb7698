package pathmap

import (
	"github.com/google/go-jsonnet/ast"

	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/position"
)

// FindAddressableRoot strips the wrappers that do not change the shape of
// the output (local bindings and parentheses) and returns the first node
// whose value maps onto the output document. It returns nil when no such
// node exists.
func FindAddressableRoot(node ast.Node) ast.Node {
	for node != nil {
		switch n := node.(type) {
		case *ast.Local:
			node = n.Body
		case *ast.Parens:
			node = n.Inner
		default:
			if Kind(node).Addressable() {
				return node
			}
			return nil
		}
	}
	return nil
}

// unwrap is FindAddressableRoot that keeps the original node when nothing
// addressable sits beneath it, so callers still get the closest node.
func unwrap(node ast.Node) ast.Node {
	if r := FindAddressableRoot(node); r != nil {
		return r
	}
	return node
}

// Resolve walks p from root and returns the deepest node reached. It never
// fails: a key that cannot be followed stops the walk at its parent.
func Resolve(root ast.Node, p jsonpath.Path) ast.Node {
	node, _ := ResolveDepth(root, p)
	return node
}

// ResolveDepth is Resolve that also reports how many keys of p were consumed.
func ResolveDepth(root ast.Node, p jsonpath.Path) (ast.Node, int) {
	if root == nil {
		return nil, 0
	}
	cur := root
	for i, key := range p {
		next, ok := child(cur, key)
		if !ok {
			return cur, i
		}
		cur = next
	}
	return cur, len(p)
}

func child(node ast.Node, key jsonpath.Key) (ast.Node, bool) {
	if key.IsIndex {
		arr, ok := node.(*ast.Array)
		if !ok || key.Index < 0 || key.Index >= len(arr.Elements) {
			return nil, false
		}
		return unwrap(arr.Elements[key.Index].Expr), true
	}

	for _, f := range fieldsOf(node) {
		if f.name == key.Name {
			return unwrap(f.body), true
		}
	}
	return nil, false
}

type field struct {
	name   string
	body   ast.Node
	loc    ast.LocationRange
	hasLoc bool
}

func fieldsOf(node ast.Node) []field {
	var out []field
	switch n := node.(type) {
	case *ast.DesugaredObject:
		for _, f := range n.Fields {
			name, ok := staticName(f.Name)
			if !ok || f.Body == nil {
				continue
			}
			out = append(out, field{name: name, body: f.Body, loc: f.LocRange, hasLoc: f.LocRange.Begin.Line > 0})
		}
	case *ast.Object:
		for _, f := range n.Fields {
			var (
				name string
				ok   bool
			)
			switch f.Kind {
			case ast.ObjectFieldID:
				if f.Id != nil {
					name, ok = string(*f.Id), true
				}
			case ast.ObjectFieldStr, ast.ObjectFieldExpr:
				name, ok = staticName(f.Expr1)
			}
			if !ok || f.Expr2 == nil {
				continue
			}
			out = append(out, field{name: name, body: f.Expr2, loc: f.LocRange, hasLoc: f.LocRange.Begin.Line > 0})
		}
	}
	return out
}

func staticName(node ast.Node) (string, bool) {
	if s, ok := node.(*ast.LiteralString); ok {
		return s.Value, true
	}
	return "", false
}

// LocationOf converts a node's source location to a zero-based range. Nodes
// without a location map to the start of the document.
func LocationOf(node ast.Node) position.Range {
	if node == nil {
		return position.DocumentStart()
	}
	return rangeOf(node.Loc())
}

func rangeOf(loc *ast.LocationRange) position.Range {
	if loc == nil || loc.Begin.Line <= 0 {
		return position.DocumentStart()
	}
	return position.FromOneBased(loc.Begin.Line, loc.Begin.Column, loc.End.Line, loc.End.Column)
}

func hasLocation(node ast.Node) bool {
	if node == nil {
		return false
	}
	loc := node.Loc()
	return loc != nil && loc.Begin.Line > 0
}

// PathAt returns the output path of the deepest addressable node whose
// source range contains the zero-based (line, col), together with that node.
// A position on a field name resolves to the field's value.
func PathAt(root ast.Node, at position.Place) (jsonpath.Path, ast.Node, bool) {
	if root == nil || !hasLocation(root) || !LocationOf(root).Contains(at) {
		return nil, nil, false
	}

	p := jsonpath.Path{}
	cur := root
	for {
		next, key, ok := childAt(cur, at)
		if !ok {
			return p, cur, true
		}
		p = p.Append(key)
		cur = next
	}
}

func childAt(node ast.Node, at position.Place) (ast.Node, jsonpath.Key, bool) {
	if arr, ok := node.(*ast.Array); ok {
		for i, el := range arr.Elements {
			if el.Expr == nil || !hasLocation(el.Expr) {
				continue
			}
			if LocationOf(el.Expr).Contains(at) {
				return unwrap(el.Expr), jsonpath.Index(i), true
			}
		}
		return nil, jsonpath.Key{}, false
	}

	for _, f := range fieldsOf(node) {
		var r position.Range
		switch {
		case f.hasLoc:
			r = rangeOf(&f.loc)
		case hasLocation(f.body):
			r = LocationOf(f.body)
		default:
			continue
		}
		if r.Contains(at) {
			return unwrap(f.body), jsonpath.Field(f.name), true
		}
	}
	return nil, jsonpath.Key{}, false
}
