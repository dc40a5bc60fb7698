package lsp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/config"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/lsp"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

const svcSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "title": "Service name"},
    "replicas": {"type": "integer", "maximum": 5},
    "kind": {"type": "string", "enum": ["web", "worker"]}
  }
}`

type session struct {
	t      *testing.T
	ctx    context.Context
	client *jrpc2.Client
	notes  chan *jrpc2.Request
	server *lsp.Server
}

func start(t *testing.T) *session {
	t.Helper()

	cfg := &config.Config{
		CacheSize:      10,
		ParseCacheSize: 10,
		Debounce:       10 * time.Millisecond,
		LogLevel:       "info",
		Root:           t.TempDir(),
	}
	server := lsp.NewServer(cfg, lsp.WithFileSet(vfs.New()), lsp.WithVersion("test"))

	cch, sch := channel.Direct()
	srv := server.Start(context.Background(), sch)

	notes := make(chan *jrpc2.Request, 64)
	client := jrpc2.NewClient(cch, &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			notes <- req
		},
	})

	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})

	return &session{t: t, ctx: context.Background(), client: client, notes: notes, server: server}
}

func (s *session) call(method string, params, result any) error {
	s.t.Helper()
	return s.client.CallResult(s.ctx, method, params, result)
}

func (s *session) notify(method string, params any) {
	s.t.Helper()
	require.NoError(s.t, s.client.Notify(s.ctx, method, params))
}

func (s *session) initialize(options map[string]any) lsp.InitializeResult {
	s.t.Helper()
	raw, err := json.Marshal(options)
	require.NoError(s.t, err)

	var res lsp.InitializeResult
	require.NoError(s.t, s.call("initialize", lsp.InitializeParams{InitializationOptions: raw}, &res))
	s.notify("initialized", map[string]any{})
	return res
}

// diagnostics waits for the next publishDiagnostics for uri.
func (s *session) diagnostics(uri string) lsp.PublishDiagnosticsParams {
	s.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case req := <-s.notes:
			if req.Method() != "textDocument/publishDiagnostics" {
				continue
			}
			var params lsp.PublishDiagnosticsParams
			require.NoError(s.t, req.UnmarshalParams(&params))
			if params.URI == uri {
				return params
			}
		case <-timeout:
			s.t.Fatalf("no diagnostics published for %s", uri)
		}
	}
}

func (s *session) open(uri, text string, version int32) {
	s.t.Helper()
	s.notify("textDocument/didOpen", lsp.DidOpenTextDocumentParams{TextDocument: lsp.TextDocumentItem{
		URI: uri, LanguageID: "jsonnet", Version: version, Text: text,
	}})
}

func svcOptions() map[string]any {
	return map[string]any{
		"schemas": []any{map[string]any{"fileMatch": []any{"svc*.jsonnet"}, "schema": svcSchema}},
	}
}

func TestInitializeCapabilities(t *testing.T) {
	s := start(t)
	res := s.initialize(nil)

	assert.Equal(t, "jsonnetls", res.ServerInfo.Name)
	assert.Equal(t, "test", res.ServerInfo.Version)
	assert.True(t, res.Capabilities.HoverProvider)
	assert.True(t, res.Capabilities.DocumentFormattingProvider)
	assert.Equal(t, lsp.SyncIncremental, res.Capabilities.TextDocumentSync.Change)
	assert.Equal(t, []string{" ", ":"}, res.Capabilities.CompletionProvider.TriggerCharacters)
}

func TestRequestsBeforeInitializeFail(t *testing.T) {
	s := start(t)
	s.open("file:///main.jsonnet", "{a: 1}", 1)

	var res lsp.CompileResult
	err := s.call("jsonnet/compile", lsp.CompileParams{TextDocument: lsp.TextDocumentIdentifier{URI: "file:///main.jsonnet"}}, &res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")
}

func TestDiagnosticsFollowEdits(t *testing.T) {
	s := start(t)
	s.initialize(svcOptions())

	uri := "file:///svc.jsonnet"
	s.open(uri, "{\n  name: 'api',\n  replicas: 9,\n}", 1)

	first := s.diagnostics(uri)
	require.NotNil(t, first.Version)
	assert.Equal(t, int32(1), *first.Version)
	require.Len(t, first.Diagnostics, 1)
	assert.Contains(t, first.Diagnostics[0].Message, "(replicas)")
	assert.Equal(t, lsp.Range{
		Start: lsp.Position{Line: 2, Character: 12},
		End:   lsp.Position{Line: 2, Character: 13},
	}, first.Diagnostics[0].Range)
	assert.Equal(t, "json-schema", first.Diagnostics[0].Source)

	s.notify("textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{URI: uri, Version: 2},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{
			Range: &lsp.Range{Start: lsp.Position{Line: 2, Character: 12}, End: lsp.Position{Line: 2, Character: 13}},
			Text:  "2",
		}},
	})

	second := s.diagnostics(uri)
	require.NotNil(t, second.Version)
	assert.Equal(t, int32(2), *second.Version)
	assert.Empty(t, second.Diagnostics)

	doc, ok := s.server.Documents().Get(uri)
	require.True(t, ok)
	assert.Equal(t, "{\n  name: 'api',\n  replicas: 2,\n}", doc.Content)

	s.notify("textDocument/didClose", lsp.DidCloseTextDocumentParams{TextDocument: lsp.TextDocumentIdentifier{URI: uri}})
	closed := s.diagnostics(uri)
	assert.Nil(t, closed.Version)
	assert.Empty(t, closed.Diagnostics)
}

func TestParseErrorDiagnostic(t *testing.T) {
	s := start(t)
	s.initialize(nil)

	s.open("file:///main.jsonnet", "{a: }", 1)
	got := s.diagnostics("file:///main.jsonnet")
	require.Len(t, got.Diagnostics, 1)
	assert.Equal(t, 1, got.Diagnostics[0].Severity)
	assert.Equal(t, 0, got.Diagnostics[0].Range.Start.Line)
}

func TestHoverAndCompletion(t *testing.T) {
	s := start(t)
	s.initialize(svcOptions())

	uri := "file:///svc.jsonnet"
	s.open(uri, "{\n  name: 'api',\n  kind: 'web',\n}", 1)
	s.diagnostics(uri)

	var hover lsp.Hover
	require.NoError(t, s.call("textDocument/hover", lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: 1, Character: 10},
	}, &hover))
	assert.Equal(t, "markdown", hover.Contents.Kind)
	assert.Equal(t, "Service name", hover.Contents.Value)

	var list lsp.CompletionList
	require.NoError(t, s.call("textDocument/completion", lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: 2, Character: 10},
	}, &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "web", list.Items[0].Label)
	assert.Equal(t, 12, list.Items[0].Kind)
}

func TestCustomMethods(t *testing.T) {
	s := start(t)
	s.initialize(map[string]any{"jsonnet": map[string]any{"extVars": map[string]any{"env": "'prod'"}}})

	uri := "file:///main.jsonnet"
	s.open(uri, "{a: {b: 1, c: [10, 20]}, env: std.extVar('env')}", 1)
	s.diagnostics(uri)

	var compiled lsp.CompileResult
	require.NoError(t, s.call("jsonnet/compile", lsp.CompileParams{TextDocument: lsp.TextDocumentIdentifier{URI: uri}}, &compiled))
	assert.JSONEq(t, `{"a": {"b": 1, "c": [10, 20]}, "env": "prod"}`, compiled.Output)

	var ranges []*lsp.Range
	require.NoError(t, s.call("jsonnet/locatePaths", lsp.LocatePathsParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Paths:        []jsonpath.Path{jsonpath.ParseDotted("a.c.1")},
	}, &ranges))
	require.Len(t, ranges, 1)
	require.NotNil(t, ranges[0])
	assert.Equal(t, lsp.Range{
		Start: lsp.Position{Line: 0, Character: 19},
		End:   lsp.Position{Line: 0, Character: 21},
	}, *ranges[0])
}

func TestConfigurationChangeRevalidates(t *testing.T) {
	s := start(t)
	s.initialize(nil)

	uri := "file:///svc.jsonnet"
	s.open(uri, "{\n  replicas: 9,\n}", 1)
	assert.Empty(t, s.diagnostics(uri).Diagnostics)

	settings, err := json.Marshal(map[string]any{"jsonnet": svcOptions()})
	require.NoError(t, err)
	s.notify("workspace/didChangeConfiguration", lsp.DidChangeConfigurationParams{Settings: settings})

	got := s.diagnostics(uri)
	require.Len(t, got.Diagnostics, 1)
	assert.Contains(t, got.Diagnostics[0].Message, "(replicas)")
	assert.Len(t, s.server.Config().Schemas, 1)
}

func TestFormatting(t *testing.T) {
	s := start(t)
	s.initialize(nil)

	uri := "file:///main.jsonnet"
	s.open(uri, "{a:1}", 1)

	var edits []lsp.TextEdit
	require.NoError(t, s.call("textDocument/formatting", lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	}, &edits))
	require.Len(t, edits, 1)
	assert.Equal(t, "{ a: 1 }\n", edits[0].NewText)
	assert.Equal(t, lsp.Range{End: lsp.Position{Line: 0, Character: 5}}, edits[0].Range)
}
