package lsp

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/walteh/jsonnetls/pkg/completion"
	"github.com/walteh/jsonnetls/pkg/diagnostic"
	"github.com/walteh/jsonnetls/pkg/format"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/position"
)

// Language Server Protocol 3.17 wire types. Only the fields this server reads
// or writes are declared.

type MessageType int

const (
	Error   MessageType = 1
	Warning MessageType = 2
	Info    MessageType = 3
	Log     MessageType = 4
)

func (mt MessageType) String() string {
	switch mt {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "log"
	}
}

func ParseMessageTypeFromZerolog(level string) MessageType {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return Log
	}
	switch l {
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return Error
	case zerolog.WarnLevel:
		return Warning
	case zerolog.InfoLevel:
		return Info
	default:
		return Log
	}
}

type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (p Position) place() position.Place {
	return position.Place{Line: p.Line, Character: p.Character}
}

func toRange(r position.Range) Range {
	return Range{
		Start: Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   Position{Line: r.End.Line, Character: r.End.Character},
	}
}

func (r Range) internal() position.Range {
	return position.Range{Start: r.Start.place(), End: r.End.place()}
}

type InitializeParams struct {
	ProcessID             int             `json:"processId,omitempty"`
	RootURI               string          `json:"rootUri,omitempty"`
	InitializationOptions json.RawMessage `json:"initializationOptions,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type SaveOptions struct {
	IncludeText bool `json:"includeText"`
}

// TextDocumentSyncKind values.
const (
	SyncFull        = 1
	SyncIncremental = 2
)

type TextDocumentSyncOptions struct {
	OpenClose bool        `json:"openClose"`
	Change    int         `json:"change"`
	Save      SaveOptions `json:"save"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
}

type ServerCapabilities struct {
	TextDocumentSync           TextDocumentSyncOptions `json:"textDocumentSync"`
	HoverProvider              bool                    `json:"hoverProvider"`
	CompletionProvider         CompletionOptions       `json:"completionProvider"`
	DocumentFormattingProvider bool                    `json:"documentFormattingProvider"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// TextDocumentContentChangeEvent replaces Range with Text, or the whole
// document when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type CompletionItem struct {
	Label            string    `json:"label"`
	Kind             int       `json:"kind,omitempty"`
	Documentation    string    `json:"documentation,omitempty"`
	FilterText       string    `json:"filterText,omitempty"`
	InsertText       string    `json:"insertText,omitempty"`
	InsertTextFormat int       `json:"insertTextFormat,omitempty"`
	TextEdit         *TextEdit `json:"textEdit,omitempty"`
	CommitCharacters []string  `json:"commitCharacters,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int32       `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CompileParams asks for the compiled JSON of a document.
type CompileParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type CompileResult struct {
	Output string `json:"output"`
}

// LocatePathsParams asks where each output path is defined in the source.
type LocatePathsParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Paths        []jsonpath.Path        `json:"paths"`
}

func toDiagnostics(in []diagnostic.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(in))
	for _, d := range in {
		out = append(out, Diagnostic{
			Range:    toRange(d.Range),
			Severity: int(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return out
}

func toTextEdits(in []format.TextEdit) []TextEdit {
	out := make([]TextEdit, 0, len(in))
	for _, e := range in {
		out = append(out, TextEdit{Range: toRange(e.Range), NewText: e.NewText})
	}
	return out
}

func toCompletionList(in *completion.List) *CompletionList {
	out := &CompletionList{IsIncomplete: in.IsIncomplete, Items: make([]CompletionItem, 0, len(in.Items))}
	for _, it := range in.Items {
		item := CompletionItem{
			Label:            it.Label,
			Kind:             int(it.Kind),
			Documentation:    it.Documentation,
			FilterText:       it.FilterText,
			InsertText:       it.InsertText,
			InsertTextFormat: it.InsertTextFormat,
			CommitCharacters: it.CommitCharacters,
		}
		if it.TextEdit != nil {
			item.TextEdit = &TextEdit{Range: toRange(it.TextEdit.Range), NewText: it.TextEdit.NewText}
		}
		out.Items = append(out.Items, item)
	}
	return out
}
