package diagnostic_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-jsonnet"
	"github.com/google/go-jsonnet/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/diagnostic"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/position"
)

const source = "{a: {b: 1, c: [10, 20]}}"

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	node, err := jsonnet.SnippetToAST("main.jsonnet", src)
	require.NoError(t, err)
	return node
}

type fixedLocator struct {
	r     position.Range
	calls int
}

func (l *fixedLocator) LocateByPath(ast.Node, jsonpath.Path) (position.Range, bool) {
	l.calls++
	return l.r, true
}

func TestMapperMap(t *testing.T) {
	root := parse(t, source)
	compiled := `{"a": {"b": 1, "c": [10, 20]}}`

	tests := []struct {
		name      string
		diag      diagnostic.JSONDiagnostic
		wantRange position.Range
		wantMsg   string
	}{
		{
			name:    "empty path goes to document start",
			diag:    diagnostic.JSONDiagnostic{Message: "missing property x", HasPath: true, Path: jsonpath.Path{}},
			wantMsg: "missing property x",
			wantRange: position.Range{
				Start: position.Place{Line: 0, Character: 0},
				End:   position.Place{Line: 0, Character: 1},
			},
		},
		{
			name:    "path to array element",
			diag:    diagnostic.JSONDiagnostic{Message: "must be < 15", HasPath: true, Path: jsonpath.ParseDotted("a.c.1")},
			wantMsg: "must be < 15 (a.c.1)",
			wantRange: position.Range{
				Start: position.Place{Line: 0, Character: 19},
				End:   position.Place{Line: 0, Character: 21},
			},
		},
		{
			name:    "unresolvable tail stops at the deepest ancestor",
			diag:    diagnostic.JSONDiagnostic{Message: "bad", HasPath: true, Path: jsonpath.ParseDotted("a.zzz")},
			wantMsg: "bad (a.zzz)",
			wantRange: position.Range{
				Start: position.Place{Line: 0, Character: 4},
				End:   position.Place{Line: 0, Character: 23},
			},
		},
		{
			name:    "offset into compiled json",
			diag:    diagnostic.JSONDiagnostic{Message: "wrong type", StartOffset: strings.Index(compiled, "1,"), EndOffset: strings.Index(compiled, "1,") + 1},
			wantMsg: "wrong type (a.b)",
			wantRange: position.Range{
				Start: position.Place{Line: 0, Character: 8},
				End:   position.Place{Line: 0, Character: 9},
			},
		},
	}

	m := diagnostic.NewMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Map(context.Background(), compiled, root, []diagnostic.JSONDiagnostic{tt.diag})
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantRange, got[0].Range)
			assert.Equal(t, tt.wantMsg, got[0].Message)
			assert.Equal(t, diagnostic.SeverityError, got[0].Severity)
			assert.Equal(t, diagnostic.SourceSchema, got[0].Source)
		})
	}
}

func TestMapperNilRoot(t *testing.T) {
	m := diagnostic.NewMapper()
	got := m.Map(context.Background(), `{}`, nil, []diagnostic.JSONDiagnostic{
		{Message: "x", HasPath: true, Path: jsonpath.ParseDotted("a.b")},
	})
	require.Len(t, got, 1)
	assert.Equal(t, position.DocumentStart(), got[0].Range)
}

func TestMapperLocatorOnlyForCompilerOrigin(t *testing.T) {
	want := position.Range{Start: position.Place{Line: 3, Character: 3}, End: position.Place{Line: 3, Character: 4}}
	loc := &fixedLocator{r: want}
	m := diagnostic.NewMapper(diagnostic.WithLocator(loc))
	root := parse(t, source)

	got := m.Map(context.Background(), "{}", root, []diagnostic.JSONDiagnostic{
		{Message: "schema", HasPath: true, Path: jsonpath.ParseDotted("a.b"), Origin: diagnostic.OriginSchema},
		{Message: "compiler", HasPath: true, Path: jsonpath.ParseDotted("a.b"), Origin: diagnostic.OriginCompiler},
	})
	require.Len(t, got, 2)
	assert.NotEqual(t, want, got[0].Range)
	assert.Equal(t, want, got[1].Range)
	assert.Equal(t, 1, loc.calls)
}

func TestFromError(t *testing.T) {
	r := position.Range{Start: position.Place{Line: 2, Character: 1}, End: position.Place{Line: 2, Character: 5}}

	tests := []struct {
		name      string
		err       error
		ok        bool
		wantRange position.Range
		contains  []string
	}{
		{
			name:      "parse",
			err:       &compiler.ParseError{Path: "main.jsonnet", Message: "unexpected", Range: r},
			ok:        true,
			wantRange: r,
			contains:  []string{"unexpected"},
		},
		{
			name:      "compile without range",
			err:       errors.Errorf("compiling: %w", &compiler.CompileError{Path: "main.jsonnet", Message: "boom"}),
			ok:        true,
			wantRange: position.DocumentStart(),
			contains:  []string{"boom"},
		},
		{
			name:      "import",
			err:       &compiler.ImportError{ImportingPath: "main.jsonnet", Specifier: "missing.libsonnet", Target: "missing.libsonnet", Range: r, HasRange: true},
			ok:        true,
			wantRange: r,
			contains:  []string{"missing.libsonnet", "main.jsonnet"},
		},
		{
			name: "unrelated",
			err:  context.Canceled,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := diagnostic.FromError(tt.err)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantRange, d.Range)
			assert.Equal(t, diagnostic.SeverityError, d.Severity)
			assert.Equal(t, diagnostic.SourceJsonnet, d.Source)
			for _, c := range tt.contains {
				assert.Contains(t, d.Message, c)
			}
		})
	}
}
