package schema

import (
	"sort"
	"strconv"
	"strings"
)

// Fragment is one JSON Schema node as seen by completion and hover. Child
// schemas are materialized on demand so recursive schemas stay cheap.
type Fragment struct {
	Type                     string
	Title                    string
	Description              string
	MarkdownDescription      string
	Enum                     []any
	EnumDescriptions         []string
	MarkdownEnumDescriptions []string
	Default                  any
	HasDefault               bool
	Examples                 []any
	DefaultSnippets          []any

	raw map[string]any
	doc map[string]any
}

func newFragment(raw, doc map[string]any) *Fragment {
	raw = deref(raw, doc, 0)

	f := &Fragment{
		Title:                    str(raw["title"]),
		Description:              str(raw["description"]),
		MarkdownDescription:      str(raw["markdownDescription"]),
		Enum:                     list(raw["enum"]),
		EnumDescriptions:         strs(raw["enumDescriptions"]),
		MarkdownEnumDescriptions: strs(raw["markdownEnumDescriptions"]),
		Examples:                 list(raw["examples"]),
		raw:                      raw,
		doc:                      doc,
	}

	switch t := raw["type"].(type) {
	case string:
		f.Type = t
	case []any:
		if len(t) > 0 {
			f.Type = str(t[0])
		}
	}
	if f.Type == "" {
		switch {
		case raw["properties"] != nil:
			f.Type = "object"
		case raw["items"] != nil:
			f.Type = "array"
		}
	}

	if c, ok := raw["const"]; ok && len(f.Enum) == 0 {
		f.Enum = []any{c}
	}
	if d, ok := raw["default"]; ok {
		f.Default = d
		f.HasDefault = true
	}
	for _, s := range list(raw["defaultSnippets"]) {
		if m, ok := s.(map[string]any); ok {
			if body, ok := m["body"]; ok {
				f.DefaultSnippets = append(f.DefaultSnippets, body)
			}
		}
	}

	return f
}

const maxRefDepth = 32

// deref follows local "$ref"s ("#/definitions/x", "#/$defs/x") inside doc.
func deref(raw, doc map[string]any, depth int) map[string]any {
	ref, ok := raw["$ref"].(string)
	if !ok || depth > maxRefDepth || !strings.HasPrefix(ref, "#") {
		return raw
	}
	target, ok := pointer(doc, strings.TrimPrefix(ref, "#")).(map[string]any)
	if !ok {
		return raw
	}
	return deref(target, doc, depth+1)
}

func pointer(doc any, ptr string) any {
	if ptr == "" {
		return doc
	}
	cur := doc
	for _, seg := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		switch v := cur.(type) {
		case map[string]any:
			cur = v[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		default:
			return nil
		}
	}
	return cur
}

// PropertyNames lists the declared properties in sorted order.
func (f *Fragment) PropertyNames() []string {
	props, _ := f.raw["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property returns the schema of a declared property, or nil.
func (f *Fragment) Property(name string) *Fragment {
	props, _ := f.raw["properties"].(map[string]any)
	if p, ok := props[name].(map[string]any); ok {
		return newFragment(p, f.doc)
	}
	return nil
}

// child returns the schema governing the value under key: a named property,
// then additionalProperties for objects; tuple or list items for indices.
func (f *Fragment) child(name string, index int, isIndex bool) *Fragment {
	if isIndex {
		if prefix := list(f.raw["prefixItems"]); index < len(prefix) {
			if m, ok := prefix[index].(map[string]any); ok {
				return newFragment(m, f.doc)
			}
		}
		switch items := f.raw["items"].(type) {
		case map[string]any:
			return newFragment(items, f.doc)
		case []any:
			if index < len(items) {
				if m, ok := items[index].(map[string]any); ok {
					return newFragment(m, f.doc)
				}
			}
		}
		return nil
	}

	if p := f.Property(name); p != nil {
		return p
	}
	if ap, ok := f.raw["additionalProperties"].(map[string]any); ok {
		return newFragment(ap, f.doc)
	}
	return nil
}

// expand returns f followed by every schema it composes through allOf,
// anyOf and oneOf.
func (f *Fragment) expand() []*Fragment {
	return f.expandDepth(0)
}

func (f *Fragment) expandDepth(depth int) []*Fragment {
	out := []*Fragment{f}
	if depth > maxRefDepth {
		return out
	}
	for _, key := range []string{"allOf", "anyOf", "oneOf"} {
		for _, sub := range list(f.raw[key]) {
			if m, ok := sub.(map[string]any); ok {
				out = append(out, newFragment(m, f.doc).expandDepth(depth+1)...)
			}
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func strs(v any) []string {
	var out []string
	for _, s := range list(v) {
		out = append(out, str(s))
	}
	return out
}
