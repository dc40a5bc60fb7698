// Package diff renders line diffs between two versions of a document.
package diff

import (
	"strings"

	"github.com/fatih/color"
	"github.com/kylelemons/godebug/diff"
)

var (
	added   = color.New(color.FgGreen).SprintFunc()
	removed = color.New(color.FgRed).SprintFunc()
	header  = color.New(color.Bold).SprintFunc()
)

// Lines returns the diff turning before into after, one line per entry,
// prefixed with "+", "-" or " ". It is empty when the texts are equal.
func Lines(before, after string) string {
	if before == after {
		return ""
	}
	return diff.Diff(before, after)
}

// File is Lines with a header naming path and colored markers.
func File(path, before, after string) string {
	d := Lines(before, after)
	if d == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(header("--- " + path))
	b.WriteByte('\n')
	b.WriteString(header("+++ " + path + " (formatted)"))
	b.WriteByte('\n')
	for _, line := range strings.Split(d, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			b.WriteString(added(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(removed(line))
		default:
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
