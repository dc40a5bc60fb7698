package completion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/completion"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/pathmap"
	"github.com/walteh/jsonnetls/pkg/position"
	"github.com/walteh/jsonnetls/pkg/schema"
)

type fixedPaths struct {
	loc *compiler.PathLocation
	err error
}

func (f fixedPaths) PathAt(context.Context, string, position.Place) (*compiler.PathLocation, string, error) {
	return f.loc, "", f.err
}

const serviceSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "Service name"},
    "replicas": {"type": "integer"},
    "kind": {"type": "string", "enum": ["web", "worker"], "enumDescriptions": ["http", "jobs"]},
    "app.io/team": {"type": "string"}
  }
}`

func store() *schema.Store {
	s := schema.NewStore()
	s.Configure([]schema.Association{{FileMatch: []string{"*.jsonnet"}, Schema: serviceSchema}}, false)
	return s
}

func labels(list *completion.List) []string {
	out := make([]string, 0, len(list.Items))
	for _, it := range list.Items {
		out = append(out, it.Label)
	}
	return out
}

func TestCompleteProperties(t *testing.T) {
	text := "{\n  na\n}"
	at := position.Place{Line: 1, Character: 4}

	e := completion.NewEngine(fixedPaths{loc: &compiler.PathLocation{
		Path:  jsonpath.Path{},
		Kind:  pathmap.KindObject,
		Range: position.Range{End: position.Place{Line: 2, Character: 1}},
	}}, store())

	list, err := e.Complete(context.Background(), "file:///svc.jsonnet", text, at)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.io/team", "kind", "name", "replicas"}, labels(list))

	byLabel := map[string]completion.Item{}
	for _, it := range list.Items {
		byLabel[it.Label] = it
	}

	name := byLabel["name"]
	assert.Equal(t, completion.KindProperty, name.Kind)
	assert.Equal(t, "name: '$1'", name.InsertText, "closing brace follows, so no separator")
	assert.Equal(t, "Service name", name.Documentation)
	assert.Equal(t, []string{":"}, name.CommitCharacters)
	require.NotNil(t, name.TextEdit)
	assert.Equal(t, position.Range{
		Start: position.Place{Line: 1, Character: 2},
		End:   position.Place{Line: 1, Character: 4},
	}, name.TextEdit.Range, "replaces the partial word")

	assert.Equal(t, "'app.io/team': '$1'", byLabel["app.io/team"].InsertText)
	assert.Equal(t, "'app.io/team'", byLabel["app.io/team"].FilterText)
	assert.Equal(t, "replicas: ${1:0}", byLabel["replicas"].InsertText)
	assert.Equal(t, "kind: $1", byLabel["kind"].InsertText)
}

func TestCompleteSeparator(t *testing.T) {
	text := "{\n  na\n  other: 1,\n}"
	e := completion.NewEngine(fixedPaths{loc: &compiler.PathLocation{Path: jsonpath.Path{}, Kind: pathmap.KindObject}}, store())

	list, err := e.Complete(context.Background(), "svc.jsonnet", text, position.Place{Line: 1, Character: 4})
	require.NoError(t, err)
	require.NotEmpty(t, list.Items)
	for _, it := range list.Items {
		assert.Equal(t, ",", it.InsertText[len(it.InsertText)-1:], it.Label)
	}
}

func TestCompleteEnumInsideLiteral(t *testing.T) {
	text := "{ kind: 'we' }"
	lit := position.Range{Start: position.Place{Character: 8}, End: position.Place{Character: 12}}

	e := completion.NewEngine(fixedPaths{loc: &compiler.PathLocation{
		Path:  jsonpath.ParseDotted("kind"),
		Kind:  pathmap.KindStringLiteral,
		Range: lit,
		Value: "we",
	}}, store())

	list, err := e.Complete(context.Background(), "svc.jsonnet", text, position.Place{Character: 11})
	require.NoError(t, err)
	require.Equal(t, []string{"web", "worker"}, labels(list))

	web := list.Items[0]
	assert.Equal(t, completion.KindValue, web.Kind)
	assert.Equal(t, "web", web.InsertText)
	assert.Equal(t, "http", web.Documentation)
	assert.Equal(t, []string{",", "}", "]"}, web.CommitCharacters)
	assert.Equal(t, lit, web.TextEdit.Range, "overwrites the whole literal")
}

func TestCompleteNothingUnderCursor(t *testing.T) {
	e := completion.NewEngine(fixedPaths{}, store())

	list, err := e.Complete(context.Background(), "svc.jsonnet", "local x = 1; x", position.Place{Character: 3})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestCompletePropagatesNotLoaded(t *testing.T) {
	e := completion.NewEngine(fixedPaths{err: compiler.ErrCompilerNotLoaded}, store())

	_, err := e.Complete(context.Background(), "svc.jsonnet", "{}", position.Place{})
	assert.ErrorIs(t, err, compiler.ErrCompilerNotLoaded)
}

func TestCompleteUnavailableSchemaIsEmpty(t *testing.T) {
	s := schema.NewStore()
	s.Configure([]schema.Association{{FileMatch: []string{"*.jsonnet"}, URI: "https://schemas.example.com/svc.json"}}, false)

	e := completion.NewEngine(fixedPaths{loc: &compiler.PathLocation{
		Path: jsonpath.Path{},
		Kind: pathmap.KindObject,
	}}, s)

	list, err := e.Complete(context.Background(), "file:///svc.jsonnet", "{\n  \n}", position.Place{Line: 1, Character: 2})
	require.NoError(t, err)
	assert.False(t, list.IsIncomplete)
	assert.Empty(t, list.Items)
}
