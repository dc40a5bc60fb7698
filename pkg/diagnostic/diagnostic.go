package diagnostic

import (
	"context"
	"fmt"

	"github.com/google/go-jsonnet/ast"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/pathmap"
	"github.com/walteh/jsonnetls/pkg/position"
)

// Severity follows the LSP numbering.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	}
	return "unknown"
}

// Origin says which stage produced a JSON diagnostic.
type Origin int

const (
	OriginSchema Origin = iota
	OriginCompiler
)

const (
	SourceJsonnet = "jsonnet"
	SourceSchema  = "json-schema"
)

// Diagnostic is a problem placed in a source document.
type Diagnostic struct {
	Range    position.Range
	Message  string
	Severity Severity
	Source   string
	Path     jsonpath.Path
}

// JSONDiagnostic is a problem found in the compiled JSON output. It is
// placed either by Path (when HasPath) or by a byte offset into the JSON.
type JSONDiagnostic struct {
	Message     string
	Severity    Severity
	Source      string
	Origin      Origin
	Path        jsonpath.Path
	HasPath     bool
	StartOffset int
	EndOffset   int
}

// Locator finds the source range of an output path with full knowledge of
// the compiler's syntax tree.
type Locator interface {
	LocateByPath(root ast.Node, p jsonpath.Path) (position.Range, bool)
}

// Mapper turns JSON diagnostics into source diagnostics.
type Mapper struct {
	locator Locator
}

type MapperOption func(*Mapper)

// WithLocator makes the mapper ask locator first for compiler-origin
// diagnostics.
func WithLocator(locator Locator) MapperOption {
	return func(m *Mapper) {
		m.locator = locator
	}
}

func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map places every diagnostic in the document the JSON was compiled from.
// root may be nil, in which case everything lands at the document start.
func (m *Mapper) Map(ctx context.Context, compiledJSON string, root ast.Node, diags []JSONDiagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	addressable := pathmap.FindAddressableRoot(root)

	for _, d := range diags {
		p := d.Path
		if !d.HasPath {
			var err error
			p, err = jsonpath.AtOffset(compiledJSON, d.StartOffset)
			if err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Msg("locating diagnostic offset in compiled json")
				p = jsonpath.Path{}
			}
		}

		source := d.Source
		if source == "" {
			source = SourceSchema
		}
		severity := d.Severity
		if severity == 0 {
			severity = SeverityError
		}

		if len(p) == 0 {
			out = append(out, Diagnostic{
				Range:    position.DocumentStart(),
				Message:  d.Message,
				Severity: severity,
				Source:   source,
				Path:     p,
			})
			continue
		}

		out = append(out, Diagnostic{
			Range:    m.locate(addressable, root, p, d.Origin),
			Message:  fmt.Sprintf("%s (%s)", d.Message, p.String()),
			Severity: severity,
			Source:   source,
			Path:     p,
		})
	}

	return out
}

func (m *Mapper) locate(addressable, root ast.Node, p jsonpath.Path, origin Origin) position.Range {
	if origin == OriginCompiler && m.locator != nil {
		if r, ok := m.locator.LocateByPath(root, p); ok {
			return r
		}
	}
	if addressable == nil {
		return position.DocumentStart()
	}
	return pathmap.LocationOf(pathmap.Resolve(addressable, p))
}

// FromError converts a compiler failure into a diagnostic. It reports false
// for errors that are not about the document, such as cancellation.
func FromError(err error) (Diagnostic, bool) {
	var (
		pe *compiler.ParseError
		ce *compiler.CompileError
		ie *compiler.ImportError
	)

	switch {
	case errors.As(err, &pe):
		return Diagnostic{Range: pe.Range, Message: pe.Message, Severity: SeverityError, Source: SourceJsonnet}, true
	case errors.As(err, &ie):
		r := position.DocumentStart()
		if ie.HasRange {
			r = ie.Range
		}
		return Diagnostic{Range: r, Message: ie.Error(), Severity: SeverityError, Source: SourceJsonnet}, true
	case errors.As(err, &ce):
		r := position.DocumentStart()
		if ce.HasRange {
			r = ce.Range
		}
		return Diagnostic{Range: r, Message: ce.Message, Severity: SeverityError, Source: SourceJsonnet}, true
	}

	return Diagnostic{}, false
}
