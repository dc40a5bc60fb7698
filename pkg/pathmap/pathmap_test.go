package pathmap_test

import (
	"strings"
	"testing"

	"github.com/google/go-jsonnet"
	"github.com/google/go-jsonnet/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/pathmap"
	"github.com/walteh/jsonnetls/pkg/position"
)

const nested = "{a: {b: 1, c: [10, 20]}}"

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	node, err := jsonnet.SnippetToAST("test.jsonnet", src)
	require.NoError(t, err)
	return node
}

func TestFindAddressableRoot(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want pathmap.NodeKind
	}{
		{name: "object", src: "{a: 1}", want: pathmap.KindObject},
		{name: "locals and parens", src: "local x = 1; local y = 2; ({a: x})", want: pathmap.KindObject},
		{name: "array", src: "[1, 2]", want: pathmap.KindArray},
		{name: "literal", src: "'hello'", want: pathmap.KindStringLiteral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := pathmap.FindAddressableRoot(parse(t, tt.src))
			require.NotNil(t, root)
			assert.Equal(t, tt.want, pathmap.Kind(root))
		})
	}

	t.Run("function call has no root", func(t *testing.T) {
		assert.Nil(t, pathmap.FindAddressableRoot(parse(t, "std.length([1])")))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, pathmap.FindAddressableRoot(nil))
	})
}

func TestResolveLiteralRoundTrip(t *testing.T) {
	root := pathmap.FindAddressableRoot(parse(t, nested))
	require.NotNil(t, root)

	p := jsonpath.Path{jsonpath.Field("a"), jsonpath.Field("c"), jsonpath.Index(1)}
	node := pathmap.Resolve(root, p)
	require.NotNil(t, node)
	assert.Equal(t, pathmap.KindNumberLiteral, pathmap.Kind(node))

	r := pathmap.LocationOf(node)
	assert.Equal(t, position.Range{
		Start: position.Place{Line: 0, Character: 19},
		End:   position.Place{Line: 0, Character: 21},
	}, r)
	assert.Equal(t, "20", nested[r.Start.Character:r.End.Character])

	got, at, ok := pathmap.PathAt(root, r.Start)
	require.True(t, ok)
	assert.Equal(t, "a.c.1", got.String())
	assert.Same(t, node, at)
}

func TestResolveDepthIsMonotonic(t *testing.T) {
	root := pathmap.FindAddressableRoot(parse(t, nested))

	tests := []struct {
		name      string
		path      jsonpath.Path
		wantDepth int
		wantKind  pathmap.NodeKind
	}{
		{name: "empty", path: jsonpath.Path{}, wantDepth: 0, wantKind: pathmap.KindObject},
		{name: "missing key", path: jsonpath.ParseDotted("zzz.q"), wantDepth: 0, wantKind: pathmap.KindObject},
		{name: "partial", path: jsonpath.ParseDotted("a.nope"), wantDepth: 1, wantKind: pathmap.KindObject},
		{name: "index past end", path: jsonpath.ParseDotted("a.c.9"), wantDepth: 2, wantKind: pathmap.KindArray},
		{name: "index into object", path: jsonpath.ParseDotted("a.0"), wantDepth: 1, wantKind: pathmap.KindObject},
		{name: "key into array", path: jsonpath.Path{jsonpath.Field("a"), jsonpath.Field("c"), jsonpath.Field("x")}, wantDepth: 2, wantKind: pathmap.KindArray},
		{name: "full", path: jsonpath.ParseDotted("a.b"), wantDepth: 2, wantKind: pathmap.KindNumberLiteral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, depth := pathmap.ResolveDepth(root, tt.path)
			require.NotNil(t, node)
			assert.Equal(t, tt.wantDepth, depth)
			assert.Equal(t, tt.wantKind, pathmap.Kind(node))

			for i := 0; i <= len(tt.path); i++ {
				_, prefixDepth := pathmap.ResolveDepth(root, tt.path[:i])
				assert.LessOrEqual(t, prefixDepth, depth, "prefix %d", i)
			}
		})
	}
}

func TestResolveNeverPanics(t *testing.T) {
	sources := []string{
		nested,
		"local f(x) = x; { a: f(1), b: [std.length('x')], c: if true then 1 else 2 }",
		"{ [k]: 1 for k in ['x'] }",
		"[x for x in [1, 2]]",
		"{ 'quoted key': { \"double\": null } }",
	}
	paths := []jsonpath.Path{
		nil,
		jsonpath.ParseDotted("a"),
		jsonpath.ParseDotted("a.0.b.1"),
		jsonpath.ParseDotted("b.0"),
		jsonpath.ParseDotted("quoted key.double"),
		{jsonpath.Index(-1)},
	}

	for _, src := range sources {
		root := pathmap.FindAddressableRoot(parse(t, src))
		for _, p := range paths {
			assert.NotPanics(t, func() {
				pathmap.Resolve(root, p)
				_ = pathmap.LocationOf(pathmap.Resolve(root, p))
			}, "%s @ %s", src, p)
		}
	}

	assert.Nil(t, pathmap.Resolve(nil, jsonpath.ParseDotted("a")))
	assert.Equal(t, position.DocumentStart(), pathmap.LocationOf(nil))
}

func TestResolveStopsAtComputedValue(t *testing.T) {
	src := "{ a: std.join(',', ['x']), b: { c: 1 } }"
	root := pathmap.FindAddressableRoot(parse(t, src))

	node, depth := pathmap.ResolveDepth(root, jsonpath.ParseDotted("a.0"))
	assert.Equal(t, 1, depth)
	assert.Equal(t, pathmap.KindApply, pathmap.Kind(node))
}

func TestPathAt(t *testing.T) {
	src := strings.Join([]string{
		"local base = { x: 1 };",
		"{",
		"  name: 'svc',",
		"  ports: [80, 443],",
		"  'meta': { labels: { app: true } },",
		"}",
	}, "\n")
	root := pathmap.FindAddressableRoot(parse(t, src))
	require.NotNil(t, root)

	tests := []struct {
		name     string
		at       position.Place
		wantPath string
		wantKind pathmap.NodeKind
	}{
		{name: "string value", at: position.Place{Line: 2, Character: 10}, wantPath: "name", wantKind: pathmap.KindStringLiteral},
		{name: "field name", at: position.Place{Line: 2, Character: 3}, wantPath: "name", wantKind: pathmap.KindStringLiteral},
		{name: "second port", at: position.Place{Line: 3, Character: 14}, wantPath: "ports.1", wantKind: pathmap.KindNumberLiteral},
		{name: "nested bool", at: position.Place{Line: 4, Character: 29}, wantPath: "meta.labels.app", wantKind: pathmap.KindBooleanLiteral},
		{name: "object body", at: position.Place{Line: 1, Character: 0}, wantPath: "", wantKind: pathmap.KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, node, ok := pathmap.PathAt(root, tt.at)
			require.True(t, ok)
			assert.Equal(t, tt.wantPath, p.String())
			assert.Equal(t, tt.wantKind, pathmap.Kind(node))
		})
	}

	t.Run("outside the root", func(t *testing.T) {
		_, _, ok := pathmap.PathAt(root, position.Place{Line: 0, Character: 3})
		assert.False(t, ok)
	})
}

func TestLiteralValue(t *testing.T) {
	root := pathmap.FindAddressableRoot(parse(t, "[1.5, 'x', true, null]"))

	tests := []struct {
		idx     int
		want    any
		wantSrc string
	}{
		{0, 1.5, "1.5"},
		{1, "x", "x"},
		{2, true, "true"},
		{3, nil, "null"},
	}
	for _, tt := range tests {
		v, src, ok := pathmap.LiteralValue(pathmap.Resolve(root, jsonpath.Path{jsonpath.Index(tt.idx)}))
		require.True(t, ok)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.wantSrc, src)
	}
}
