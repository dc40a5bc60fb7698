package pathmap

import (
	"strconv"

	"github.com/google/go-jsonnet/ast"
)

// NodeKind is the closed set of syntax node categories the language tools
// care about. Anything not listed is KindOther.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindArray
	KindObject
	KindStringLiteral
	KindNumberLiteral
	KindBooleanLiteral
	KindNullLiteral
	KindLocal
	KindIndex
	KindFunction
	KindApply
	KindConditional
	KindVar
	KindSelf
	KindDollar
	KindBinary
	KindUnary
	KindError
	KindImport
	KindArrayComp
	KindObjectComp
	KindSuperIndex
	KindInSuper
	KindAssert
	KindParens
)

var kindNames = map[NodeKind]string{
	KindOther:          "Other",
	KindArray:          "Array",
	KindObject:         "Object",
	KindStringLiteral:  "LiteralString",
	KindNumberLiteral:  "LiteralNumber",
	KindBooleanLiteral: "LiteralBoolean",
	KindNullLiteral:    "LiteralNull",
	KindLocal:          "Local",
	KindIndex:          "Index",
	KindFunction:       "Function",
	KindApply:          "Apply",
	KindConditional:    "Conditional",
	KindVar:            "Var",
	KindSelf:           "Self",
	KindDollar:         "Dollar",
	KindBinary:         "Binary",
	KindUnary:          "Unary",
	KindError:          "Error",
	KindImport:         "Import",
	KindArrayComp:      "ArrayComp",
	KindObjectComp:     "ObjectComp",
	KindSuperIndex:     "SuperIndex",
	KindInSuper:        "InSuper",
	KindAssert:         "Assert",
	KindParens:         "Parens",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Other"
}

func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Addressable kinds are the ones whose value has a stable place in the
// evaluated JSON output.
func (k NodeKind) Addressable() bool {
	switch k {
	case KindArray, KindObject, KindStringLiteral, KindNumberLiteral, KindBooleanLiteral, KindNullLiteral:
		return true
	}
	return false
}

func (k NodeKind) IsLiteral() bool {
	switch k {
	case KindStringLiteral, KindNumberLiteral, KindBooleanLiteral, KindNullLiteral:
		return true
	}
	return false
}

// Kind classifies a syntax node.
func Kind(node ast.Node) NodeKind {
	switch node.(type) {
	case *ast.Array:
		return KindArray
	case *ast.Object, *ast.DesugaredObject:
		return KindObject
	case *ast.LiteralString:
		return KindStringLiteral
	case *ast.LiteralNumber:
		return KindNumberLiteral
	case *ast.LiteralBoolean:
		return KindBooleanLiteral
	case *ast.LiteralNull:
		return KindNullLiteral
	case *ast.Local:
		return KindLocal
	case *ast.Index, *ast.Slice:
		return KindIndex
	case *ast.Function:
		return KindFunction
	case *ast.Apply, *ast.ApplyBrace:
		return KindApply
	case *ast.Conditional:
		return KindConditional
	case *ast.Var:
		return KindVar
	case *ast.Self:
		return KindSelf
	case *ast.Dollar:
		return KindDollar
	case *ast.Binary:
		return KindBinary
	case *ast.Unary:
		return KindUnary
	case *ast.Error:
		return KindError
	case *ast.Import, *ast.ImportStr:
		return KindImport
	case *ast.ArrayComp:
		return KindArrayComp
	case *ast.ObjectComp:
		return KindObjectComp
	case *ast.SuperIndex:
		return KindSuperIndex
	case *ast.InSuper:
		return KindInSuper
	case *ast.Assert:
		return KindAssert
	case *ast.Parens:
		return KindParens
	default:
		return KindOther
	}
}

// LiteralValue returns the Go value of a literal node: string, float64
// (numbers keep their source text in the second result), bool or nil.
func LiteralValue(node ast.Node) (any, string, bool) {
	switch n := node.(type) {
	case *ast.LiteralString:
		return n.Value, n.Value, true
	case *ast.LiteralNumber:
		f, err := strconv.ParseFloat(n.OriginalString, 64)
		if err != nil {
			return n.OriginalString, n.OriginalString, true
		}
		return f, n.OriginalString, true
	case *ast.LiteralBoolean:
		if n.Value {
			return true, "true", true
		}
		return false, "false", true
	case *ast.LiteralNull:
		return nil, "null", true
	}
	return nil, "", false
}
