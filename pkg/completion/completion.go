// Package completion proposes object properties and enum values from the
// JSON Schemas that apply at the cursor.
package completion

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/position"
	"github.com/walteh/jsonnetls/pkg/schema"
)

// Kind mirrors the LSP CompletionItemKind values used here.
type Kind int

const (
	KindProperty Kind = 10
	KindValue    Kind = 12
)

// InsertTextFormatSnippet marks insert text containing $1 style tab stops.
const InsertTextFormatSnippet = 2

type TextEdit struct {
	Range   position.Range
	NewText string
}

type Item struct {
	Label            string
	Kind             Kind
	FilterText       string
	InsertText       string
	InsertTextFormat int
	TextEdit         *TextEdit
	Documentation    string
	CommitCharacters []string
}

type List struct {
	IsIncomplete bool
	Items        []Item
}

var (
	propertyCommitCharacters = []string{":"}
	valueCommitCharacters    = []string{",", "}", "]"}
)

// PathFinder locates the output path under a cursor. It returns the text
// the location was computed on, which may be an older, compilable version of
// the document. A nil location means nothing addressable is under the cursor.
type PathFinder interface {
	PathAt(ctx context.Context, uri string, at position.Place) (*compiler.PathLocation, string, error)
}

type Engine struct {
	paths   PathFinder
	schemas schema.Resolver
}

func NewEngine(paths PathFinder, schemas schema.Resolver) *Engine {
	return &Engine{paths: paths, schemas: schemas}
}

// Complete lists proposals for the cursor position in uri.
func (e *Engine) Complete(ctx context.Context, uri, text string, at position.Place) (*List, error) {
	list := &List{Items: []Item{}}

	loc, located, err := e.paths.PathAt(ctx, uri, at)
	if err != nil {
		return nil, errors.Errorf("locating completion path: %w", err)
	}
	if loc == nil {
		zerolog.Ctx(ctx).Debug().Str("uri", uri).Stringer("at", at).Msg("no addressable node under cursor")
		return list, nil
	}

	frags, err := e.schemas.Fetch(ctx, uri, loc.Path)
	if err != nil {
		var fetchErr *schema.SchemaFetchError
		if errors.As(err, &fetchErr) {
			zerolog.Ctx(ctx).Debug().Err(err).Str("uri", uri).Msg("schema unavailable for completion")
			return list, nil
		}
		return nil, errors.Errorf("fetching schema for %s: %w", loc.Path, err)
	}

	// ranges are computed on the text the location came from
	if located != "" {
		text = located
	}

	overwrite := overwriteRange(text, at, loc)
	sep := separatorAfter(text, position.OffsetOf(text, overwrite.End))

	seen := map[string]bool{}
	add := func(item Item) {
		key := item.Label + "\x00" + item.InsertText
		if seen[key] {
			return
		}
		seen[key] = true
		item.TextEdit = &TextEdit{Range: overwrite, NewText: item.InsertText}
		list.Items = append(list.Items, item)
	}

	for _, f := range frags {
		switch f.Type {
		case "object":
			for _, name := range f.PropertyNames() {
				prop := f.Property(name)
				add(Item{
					Label:            label(name),
					Kind:             KindProperty,
					FilterText:       jsonnetValue(name),
					InsertText:       propertyInsertText(name, prop, sep),
					InsertTextFormat: InsertTextFormatSnippet,
					Documentation:    documentation(prop),
					CommitCharacters: propertyCommitCharacters,
				})
			}
		case "string":
			for i, v := range f.Enum {
				s, ok := v.(string)
				if !ok {
					continue
				}
				doc := ""
				if i < len(f.EnumDescriptions) {
					doc = f.EnumDescriptions[i]
				}
				add(Item{
					Label:            label(s),
					Kind:             KindValue,
					FilterText:       jsonnetValue(s),
					InsertText:       escapePlain(jsonnetValue(s)) + sep,
					InsertTextFormat: InsertTextFormatSnippet,
					Documentation:    doc,
					CommitCharacters: valueCommitCharacters,
				})
			}
		}
	}

	return list, nil
}

func documentation(f *schema.Fragment) string {
	if f == nil {
		return ""
	}
	if f.MarkdownDescription != "" {
		return f.MarkdownDescription
	}
	return f.Description
}

const wordStops = " \t\n\r\v\":{[,]}"

// overwriteRange is the span a proposal replaces: the whole literal under
// the cursor, or the partial word before it (including an opening quote).
func overwriteRange(text string, at position.Place, loc *compiler.PathLocation) position.Range {
	if loc != nil && loc.Kind.IsLiteral() && loc.Range.Contains(at) {
		return loc.Range
	}

	offset := position.OffsetOf(text, at)
	start := offset
	for start > 0 && !strings.ContainsRune(wordStops, rune(text[start-1])) {
		start--
	}
	if start > 0 && (text[start-1] == '\'' || text[start-1] == '"') {
		start--
	}
	return position.SpanBetween(text, start, offset).GetRange(text)
}

// separatorAfter is "," unless the next meaningful character already ends
// the element.
func separatorAfter(text string, offset int) string {
	for i := offset; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r', '\v':
			continue
		case ',', '}', ']':
			return ""
		default:
			return ","
		}
	}
	return ""
}
