package debug_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/debug"
)

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		in       string
		pkg, fun string
	}{
		{"github.com/walteh/jsonnetls/pkg/lsp.(*Server).didOpen", "github.com/walteh/jsonnetls/pkg/lsp", "(*Server).didOpen"},
		{"main.main", "main", "main"},
		{"noDot", "noDot", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			pkg, fun := debug.SplitFuncName(tt.in)
			assert.Equal(t, tt.pkg, pkg)
			assert.Equal(t, tt.fun, fun)
		})
	}
}

func TestFormatCaller(t *testing.T) {
	assert.Equal(t, "pkg/lsp:server.go:12", debug.FormatCaller("pkg/lsp", "/src/pkg/lsp/server.go", 12, false))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := debug.NewLogger(&buf, zerolog.InfoLevel, false)

	logger.Debug().Msg("dropped")
	logger.Info().Str("uri", "file:///a.jsonnet").Msg("compiled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "compiled", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry["caller"], "debug_test.go")
	assert.NotEmpty(t, entry["time"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, debug.ParseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, debug.ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, debug.ParseLevel("loud"))
}
