package jsonpath

import (
	"encoding/json"
	"io"
	"strings"

	"gitlab.com/tozd/go/errors"
)

type frame struct {
	path      Path
	start     int
	isArray   bool
	index     int
	key       string
	expectKey bool
}

// AtOffset returns the path of the innermost value (or object key) of doc
// that spans the byte offset. Offsets outside every value resolve to the root.
func AtOffset(doc string, offset int) (Path, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()

	var (
		stack []*frame
		best  = Path{}
		found bool
	)

	consider := func(p Path, start, end int) {
		if start <= offset && offset < end && (!found || len(p) >= len(best)) {
			best = p
			found = true
		}
	}

	valuePath := func() Path {
		if len(stack) == 0 {
			return Path{}
		}
		top := stack[len(stack)-1]
		if top.isArray {
			top.index++
			return top.path.Append(Index(top.index))
		}
		return top.path.Append(Field(top.key))
	}

	valueDone := func() {
		if len(stack) > 0 && !stack[len(stack)-1].isArray {
			stack[len(stack)-1].expectKey = true
		}
	}

	for {
		start := skipSeparators(doc, int(dec.InputOffset()))
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Errorf("scanning json: %w", err)
		}
		end := int(dec.InputOffset())

		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				stack = append(stack, &frame{
					path:      valuePath(),
					start:     start,
					isArray:   d == '[',
					index:     -1,
					expectKey: d == '{',
				})
			case '}', ']':
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				consider(top.path, top.start, end)
				valueDone()
			}
			continue
		}

		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if !top.isArray && top.expectKey {
				key, _ := tok.(string)
				top.key = key
				top.expectKey = false
				consider(top.path.Append(Field(key)), start, end)
				continue
			}
		}

		consider(valuePath(), start, end)
		valueDone()
	}

	if len(stack) > 0 {
		return nil, errors.New("scanning json: unexpected end of input")
	}

	return best, nil
}

func skipSeparators(doc string, i int) int {
	for i < len(doc) {
		switch doc[i] {
		case ' ', '\t', '\r', '\n', ':', ',':
			i++
		default:
			return i
		}
	}
	return i
}
