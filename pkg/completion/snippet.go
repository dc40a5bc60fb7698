package completion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/apparentlymart/go-textseg/v13/textseg"

	"github.com/walteh/jsonnetls/pkg/schema"
)

const (
	maxLabelLength = 60
	truncatedLabel = 57
)

var bareWord = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// jsonnetValue renders a key or string as Jsonnet source: bare when it is a
// plain word, single quoted otherwise.
func jsonnetValue(s string) string {
	if bareWord.MatchString(s) {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(s) + "'"
}

var plainEscaper = strings.NewReplacer(`\`, `\\`, `$`, `\$`, `}`, `\}`)

// escapePlain makes text safe inside snippet syntax.
func escapePlain(s string) string {
	return plainEscaper.Replace(s)
}

// label shows newlines as ↵ and truncates long labels on grapheme
// boundaries.
func label(s string) string {
	s = strings.ReplaceAll(s, "\n", "↵")
	clusters, err := textseg.AllTokens([]byte(s), textseg.ScanGraphemeClusters)
	if err != nil || len(clusters) <= maxLabelLength {
		return s
	}
	var b strings.Builder
	for _, c := range clusters[:truncatedLabel] {
		b.Write(c)
	}
	return strings.TrimRight(b.String(), " ") + "..."
}

// propertyInsertText builds "key: value" where value is a concrete
// suggestion when the schema offers exactly one, and a typed placeholder
// otherwise.
func propertyInsertText(key string, prop *schema.Fragment, sep string) string {
	text := escapePlain(jsonnetValue(key))
	if prop == nil {
		return text + ": $1" + sep
	}

	value := ""
	proposals := 0

	if n := len(prop.DefaultSnippets); n > 0 {
		if n == 1 {
			value = snippetValue(prop.DefaultSnippets[0])
		}
		proposals += n
	}
	if n := len(prop.Enum); n > 0 {
		if value == "" && n == 1 {
			value = guessedValue(prop.Enum[0])
		}
		proposals += n
	}
	if prop.HasDefault {
		if value == "" {
			value = guessedValue(prop.Default)
		}
		proposals++
	}
	if n := len(prop.Examples); n > 0 {
		if value == "" {
			value = guessedValue(prop.Examples[0])
		}
		proposals += n
	}

	if proposals == 0 {
		switch prop.Type {
		case "boolean":
			value = "$1"
		case "string":
			value = "'$1'"
		case "object":
			value = "{$1}"
		case "array":
			value = "[$1]"
		case "number", "integer":
			value = "${1:0}"
		case "null":
			value = "${1:null}"
		default:
			return text
		}
	}

	if value == "" || proposals > 1 {
		value = "$1"
	}
	return text + ": " + value + sep
}

// guessedValue turns a schema-provided value into a placeholder holding it.
func guessedValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "${1:null}"
	case string:
		return "'${1:" + escapePlain(strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(t)) + "}'"
	case bool, float64, int, int64, json.Number:
		return fmt.Sprintf("${1:%v}", t)
	case []any:
		if len(t) == 0 {
			return "[$1]"
		}
	case map[string]any:
		if len(t) == 0 {
			return "{$1}"
		}
	}
	return snippetValue(v)
}

// snippetValue renders a JSON value as Jsonnet source with its keys in
// Jsonnet form.
func snippetValue(v any) string {
	return escapePlain(render(v))
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(t) + "'"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = render(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = jsonnetValue(k) + ": " + render(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}
