package position

import (
	"fmt"
	"strings"
)

// Place is a zero-based line/character pair. Character counts bytes from the
// start of the line.
type Place struct {
	Line      int
	Character int
}

func (p Place) Before(o Place) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

func (p Place) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a half-open span of source text. Both ends are zero-based.
type Range struct {
	Start Place
	End   Place
}

// DocumentStart is the range reported for anything that cannot be placed more
// precisely: the first character of the document.
func DocumentStart() Range {
	return Range{Start: Place{Line: 0, Character: 0}, End: Place{Line: 0, Character: 1}}
}

// FromOneBased converts a 1-based begin/end pair, where the end column points
// one past the last character, into a zero-based Range. Components that would
// become negative are clamped to zero.
func FromOneBased(beginLine, beginCol, endLine, endCol int) Range {
	return Range{
		Start: Place{Line: clamp(beginLine - 1), Character: clamp(beginCol - 1)},
		End:   Place{Line: clamp(endLine - 1), Character: clamp(endCol - 1)},
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Contains reports whether p falls inside the range. The end is inclusive so
// that a cursor sitting right after a token still counts as inside it.
func (r Range) Contains(p Place) bool {
	return !p.Before(r.Start) && !r.End.Before(p)
}

func (r Range) IsZero() bool {
	return r == Range{}
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// RawPosition is a span of source text identified by its byte offset.
type RawPosition struct {
	Offset int
	Text   string
}

func (p RawPosition) Length() int {
	return len(p.Text)
}

// SpanBetween is the text of fileText from start up to end.
func SpanBetween(fileText string, start, end int) RawPosition {
	start = min(clamp(start), len(fileText))
	end = min(max(end, start), len(fileText))
	return NewBasicPosition(fileText[start:end], start)
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// OffsetOf converts a Place into a byte offset into text. Lines past the end
// of the text map to len(text); characters past the end of a line map to the
// end of that line.
func OffsetOf(text string, p Place) int {
	if p.Line < 0 {
		return 0
	}
	offset := 0
	for i := 0; i < p.Line; i++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return len(text)
		}
		offset += nl + 1
	}
	lineEnd := strings.IndexByte(text[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text) - offset
	}
	return offset + min(clamp(p.Character), lineEnd)
}

// PlaceAt is the inverse of OffsetOf.
func PlaceAt(text string, offset int) Place {
	offset = min(clamp(offset), len(text))
	line := strings.Count(text[:offset], "\n")
	lastNewline := strings.LastIndexByte(text[:offset], '\n')
	return Place{Line: line, Character: offset - lastNewline - 1}
}

// GetRange calculates the half-open line/column range covered by the position.
func (p RawPosition) GetRange(fileText string) Range {
	return Range{
		Start: PlaceAt(fileText, p.Offset),
		End:   PlaceAt(fileText, p.Offset+p.Length()),
	}
}

func (p RawPosition) String() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

// EndOf returns the place just past the last character of text.
func EndOf(text string) Place {
	return PlaceAt(text, len(text))
}
