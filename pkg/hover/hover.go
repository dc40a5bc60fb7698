// Package hover provides functionality for generating hover information.
package hover

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/position"
	"github.com/walteh/jsonnetls/pkg/schema"
)

// HoverInfo represents the information to be displayed in a hover tooltip
type HoverInfo struct {
	// Content is markdown
	Content string
	Range   position.Range
}

// PathFinder locates the output path under a cursor; see completion.PathFinder.
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

// Hover describes the value under the cursor from its schema title and
// description. It returns nil when there is nothing to say.
func (e *Engine) Hover(ctx context.Context, uri string, at position.Place) (*HoverInfo, error) {
	loc, _, err := e.paths.PathAt(ctx, uri, at)
	if err != nil {
		return nil, errors.Errorf("locating hover path: %w", err)
	}
	if loc == nil {
		return nil, nil
	}

	frags, err := e.schemas.Fetch(ctx, uri, loc.Path)
	if err != nil {
		var fetchErr *schema.SchemaFetchError
		if errors.As(err, &fetchErr) {
			zerolog.Ctx(ctx).Debug().Err(err).Str("uri", uri).Msg("schema unavailable for hover")
			return nil, nil
		}
		return nil, errors.Errorf("fetching schema for %s: %w", loc.Path, err)
	}

	var title, description, enumValue, enumDescription string
	for _, f := range frags {
		if title == "" {
			title = f.Title
		}
		if description == "" {
			switch {
			case f.MarkdownDescription != "":
				description = f.MarkdownDescription
			case f.Description != "":
				description = toMarkdown(f.Description)
			}
		}
		if enumDescription == "" && loc.Kind.IsLiteral() {
			for i, v := range f.Enum {
				if !sameValue(v, loc.Value) {
					continue
				}
				enumValue = fmt.Sprintf("%v", v)
				switch {
				case i < len(f.MarkdownEnumDescriptions) && f.MarkdownEnumDescriptions[i] != "":
					enumDescription = f.MarkdownEnumDescriptions[i]
				case i < len(f.EnumDescriptions) && f.EnumDescriptions[i] != "":
					enumDescription = toMarkdown(f.EnumDescriptions[i])
				}
				break
			}
		}
	}

	var parts []string
	if title != "" {
		parts = append(parts, toMarkdown(title))
	}
	if description != "" {
		parts = append(parts, description)
	}
	if enumDescription != "" {
		parts = append(parts, fmt.Sprintf("`%s`: %s", toMarkdownCodeBlock(enumValue), enumDescription))
	}

	if len(parts) == 0 {
		zerolog.Ctx(ctx).Debug().Str("uri", uri).Stringer("at", at).Msg("no schema documentation for hover")
		return nil, nil
	}

	return &HoverInfo{
		Content: strings.Join(parts, "\n\n"),
		Range:   loc.Range,
	}, nil
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case int:
		bv, ok := b.(float64)
		return ok && float64(av) == bv
	case float64, string, bool, nil:
		return a == b
	}
	return false
}

var (
	markdownSpecial = regexp.MustCompile("([\\\\`*_{}\\[\\]()#+\\-.!])")
	singleNewline   = regexp.MustCompile(`([^\n\r])(\r?\n)([^\n\r])`)
)

// toMarkdown escapes markdown syntax in plain text and turns single line
// breaks into paragraph breaks.
func toMarkdown(plain string) string {
	res := singleNewline.ReplaceAllString(plain, "$1\n\n$3")
	return markdownSpecial.ReplaceAllString(res, `\$1`)
}

func toMarkdownCodeBlock(content string) string {
	if strings.Contains(content, "`") {
		return "`` " + content + " ``"
	}
	return content
}
