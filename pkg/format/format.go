// Package format pretty-prints Jsonnet documents, honoring .editorconfig
// settings for indentation and quote style.
package format

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"github.com/google/go-jsonnet/formatter"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/position"
)

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   position.Range
	NewText string
}

// OptionsFor returns the formatter defaults adjusted by any .editorconfig
// that applies to diskPath. diskPath may be empty or point at a file that
// does not exist.
func OptionsFor(ctx context.Context, diskPath string) formatter.Options {
	opts := formatter.DefaultOptions()
	if diskPath == "" {
		return opts
	}

	abs, err := filepath.Abs(diskPath)
	if err != nil {
		return opts
	}

	def, err := editorconfig.GetDefinitionForFilename(abs)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", abs).Msg("reading editorconfig")
		return opts
	}

	if def.IndentStyle == editorconfig.IndentStyleSpaces || def.IndentStyle == "" {
		if n, err := strconv.Atoi(def.IndentSize); err == nil && n > 0 {
			opts.Indent = n
		}
	}
	switch def.Raw["quote_type"] {
	case "single":
		opts.StringStyle = formatter.StringStyleSingle
	case "double":
		opts.StringStyle = formatter.StringStyleDouble
	}
	if def.InsertFinalNewline != nil && !*def.InsertFinalNewline {
		zerolog.Ctx(ctx).Debug().Str("path", abs).Msg("editorconfig disables final newline; jsonnetfmt always writes one")
	}
	return opts
}

// Format returns the formatted text of content.
func Format(path, content string, opts formatter.Options) (string, error) {
	out, err := formatter.Format(path, content, opts)
	if err != nil {
		return "", errors.Errorf("formatting %s: %w", path, err)
	}
	return out, nil
}

// Edits is Format expressed as edits: none when the text is already
// formatted, otherwise one edit replacing the whole document.
func Edits(path, content string, opts formatter.Options) ([]TextEdit, error) {
	out, err := Format(path, content, opts)
	if err != nil {
		return nil, err
	}
	if out == content {
		return []TextEdit{}, nil
	}
	return []TextEdit{{
		Range:   position.Range{Start: position.Place{}, End: position.EndOf(content)},
		NewText: out,
	}}, nil
}
