package diff_test

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/walteh/jsonnetls/pkg/diff"
)

func TestLines(t *testing.T) {
	assert.Empty(t, diff.Lines("{}\n", "{}\n"))

	lines := strings.Split(diff.Lines("{a:1}", "{ a: 1 }"), "\n")
	assert.ElementsMatch(t, []string{"-{a:1}", "+{ a: 1 }"}, lines)
}

func TestFile(t *testing.T) {
	color.NoColor = true

	assert.Empty(t, diff.File("a.jsonnet", "x", "x"))

	got := diff.File("a.jsonnet", "{\na:1\n}", "{\n  a: 1,\n}")
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	assert.Equal(t, []string{"--- a.jsonnet", "+++ a.jsonnet (formatted)"}, lines[:2])
	assert.Equal(t, " {", lines[2])
	assert.ElementsMatch(t, []string{"-a:1", "+  a: 1,"}, lines[3:5])
	assert.Equal(t, " }", lines[5])
}
