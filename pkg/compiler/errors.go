package compiler

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/go-jsonnet/ast"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/position"
)

// ErrCompilerNotLoaded is returned by every operation of a Lazy compiler
// until its backend has been loaded.
var ErrCompilerNotLoaded = errors.Base("jsonnet compiler not loaded")

// ParseError is a syntax error found before evaluation.
type ParseError struct {
	Path    string
	Message string
	Range   position.Range
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Range.Start.Line+1, e.Range.Start.Character+1, e.Message)
}

// CompileError is a failure during evaluation. HasRange is false when the
// failure could not be attributed to a place in the evaluated file.
type CompileError struct {
	Path     string
	Message  string
	Range    position.Range
	HasRange bool
}

func (e *CompileError) Error() string {
	if !e.HasRange {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Range.Start.Line+1, e.Range.Start.Character+1, e.Message)
}

// ImportError reports an import that no file or library satisfied.
type ImportError struct {
	ImportingPath string
	Specifier     string
	Target        string
	Range         position.Range
	HasRange      bool
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("couldn't resolve import %q from %s (looked for %s)", e.Specifier, e.ImportingPath, e.Target)
}

type locatable interface {
	Loc() ast.LocationRange
}

// "file:L:C", "file:L:C-C" and "file:(L:C)-(L:C)" followed by the message.
var locPrefix = regexp.MustCompile(`^(?:.*?):(?:(\d+):(\d+)(?:-(\d+))?|\((\d+):(\d+)\)-\((\d+):(\d+)\))\s+(.*)$`)

// splitLocation extracts the location and bare message from a go-jsonnet
// error. It prefers the structured location and falls back to the textual
// prefix go-jsonnet prints.
func splitLocation(err error) (position.Range, string, bool) {
	msg := err.Error()

	var loc locatable
	if errors.As(err, &loc) {
		lr := loc.Loc()
		if lr.Begin.Line > 0 {
			prefix := lr.String() + " "
			if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
				msg = msg[len(prefix):]
			}
			return rangeOf(lr), msg, true
		}
	}

	return parseLocation(msg)
}

func parseLocation(msg string) (position.Range, string, bool) {
	m := locPrefix.FindStringSubmatch(msg)
	if m == nil {
		return position.Range{}, msg, false
	}
	n := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}
	if m[1] != "" {
		line, col := n(m[1]), n(m[2])
		end := col + 1
		if m[3] != "" {
			end = n(m[3])
		}
		return position.FromOneBased(line, col, line, end), m[8], true
	}
	return position.FromOneBased(n(m[4]), n(m[5]), n(m[6]), n(m[7])), m[8], true
}

func rangeOf(lr ast.LocationRange) position.Range {
	end := lr.End
	if end.Line == 0 {
		end = ast.Location{Line: lr.Begin.Line, Column: lr.Begin.Column + 1}
	}
	if end.Line == lr.Begin.Line && end.Column <= lr.Begin.Column {
		end.Column = lr.Begin.Column + 1
	}
	return position.FromOneBased(lr.Begin.Line, lr.Begin.Column, end.Line, end.Column)
}
