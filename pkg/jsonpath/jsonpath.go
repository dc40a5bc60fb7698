// Package jsonpath models locations inside a JSON document as a sequence of
// object keys and array indices.
package jsonpath

import (
	"encoding/json"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Key is one step of a Path: either an object key or an array index.
type Key struct {
	Name    string
	Index   int
	IsIndex bool
}

func Field(name string) Key {
	return Key{Name: name}
}

func Index(i int) Key {
	return Key{Index: i, IsIndex: true}
}

func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return k.Name
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.IsIndex {
		return json.Marshal(k.Index)
	}
	return json.Marshal(k.Name)
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Errorf("decoding path key: %w", err)
	}
	key, err := keyOf(raw)
	if err != nil {
		return err
	}
	*k = key
	return nil
}

func keyOf(raw any) (Key, error) {
	switch v := raw.(type) {
	case string:
		return Field(v), nil
	case float64:
		if v != float64(int(v)) || v < 0 {
			return Key{}, errors.Errorf("path index %v is not a non-negative integer", v)
		}
		return Index(int(v)), nil
	case json.Number:
		i, err := strconv.Atoi(v.String())
		if err != nil || i < 0 {
			return Key{}, errors.Errorf("path index %q is not a non-negative integer", v.String())
		}
		return Index(i), nil
	case int:
		return Index(v), nil
	default:
		return Key{}, errors.Errorf("unsupported path key %T", raw)
	}
}

// Path is an ordered list of keys from the document root. The empty path
// addresses the root itself.
type Path []Key

// FromValues builds a Path from decoded JSON values (strings and numbers).
func FromValues(values []any) (Path, error) {
	p := make(Path, 0, len(values))
	for _, v := range values {
		k, err := keyOf(v)
		if err != nil {
			return nil, err
		}
		p = append(p, k)
	}
	return p, nil
}

// ParseDotted parses the dot-joined form produced by String. Segments made
// only of digits become indices.
func ParseDotted(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if i, err := strconv.Atoi(part); err == nil && i >= 0 {
			p = append(p, Index(i))
			continue
		}
		p = append(p, Field(part))
	}
	return p
}

// Append returns a new path with k added; p is never modified.
func (p Path) Append(k Key) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, k)
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// String joins the keys with dots, e.g. a.c.1.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = k.String()
	}
	return strings.Join(parts, ".")
}

// FromPointer converts an RFC 6901 JSON pointer into a Path. doc is the
// decoded document the pointer refers to; a numeric segment only becomes an
// index when the value it steps into is an array.
func FromPointer(ptr string, doc any) Path {
	ptr = strings.TrimPrefix(ptr, "#")
	if ptr == "" {
		return Path{}
	}
	segments := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	p := make(Path, 0, len(segments))
	cur := doc
	for _, seg := range segments {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		switch v := cur.(type) {
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 {
				p = append(p, Field(seg))
				cur = nil
				continue
			}
			p = append(p, Index(i))
			if i < len(v) {
				cur = v[i]
			} else {
				cur = nil
			}
		case map[string]any:
			p = append(p, Field(seg))
			cur = v[seg]
		default:
			p = append(p, Field(seg))
			cur = nil
		}
	}
	return p
}
