package fmt_cmd_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fmt_cmd "github.com/walteh/jsonnetls/cmd/jsonnetls/fmt"
)

func TestFmt(t *testing.T) {
	color.NoColor = true

	setup := func(t *testing.T) (string, string) {
		dir := t.TempDir()
		messy := filepath.Join(dir, "messy.jsonnet")
		tidy := filepath.Join(dir, "tidy.jsonnet")
		require.NoError(t, os.WriteFile(messy, []byte("{a:1}"), 0o644))
		require.NoError(t, os.WriteFile(tidy, []byte("{ a: 1 }\n"), 0o644))
		return messy, tidy
	}

	t.Run("stdout", func(t *testing.T) {
		messy, _ := setup(t)
		var out bytes.Buffer
		require.NoError(t, fmt_cmd.NewHandler(&out, false, false).Run(context.Background(), []string{messy}))
		assert.Equal(t, "{ a: 1 }\n", out.String())
	})

	t.Run("check", func(t *testing.T) {
		messy, tidy := setup(t)
		var out bytes.Buffer
		err := fmt_cmd.NewHandler(&out, false, true).Run(context.Background(), []string{messy, tidy})
		require.ErrorIs(t, err, fmt_cmd.ErrUnformatted)
		assert.Equal(t, messy+"\n", out.String())
	})

	t.Run("diff", func(t *testing.T) {
		messy, tidy := setup(t)
		var out bytes.Buffer
		err := fmt_cmd.NewHandler(&out, false, false).WithDiff().Run(context.Background(), []string{messy, tidy})
		require.ErrorIs(t, err, fmt_cmd.ErrUnformatted)
		assert.Contains(t, out.String(), "--- "+messy)
		assert.Contains(t, out.String(), "+{ a: 1 }")
		assert.NotContains(t, out.String(), tidy)
	})

	t.Run("write", func(t *testing.T) {
		messy, _ := setup(t)
		var out bytes.Buffer
		require.NoError(t, fmt_cmd.NewHandler(&out, true, false).Run(context.Background(), []string{messy}))
		data, err := os.ReadFile(messy)
		require.NoError(t, err)
		assert.Equal(t, "{ a: 1 }\n", string(data))
		assert.Empty(t, out.String())
	})

	t.Run("syntax errors are reported", func(t *testing.T) {
		dir := t.TempDir()
		bad := filepath.Join(dir, "bad.jsonnet")
		require.NoError(t, os.WriteFile(bad, []byte("{a: "), 0o644))
		var out bytes.Buffer
		err := fmt_cmd.NewHandler(&out, false, false).Run(context.Background(), []string{bad, filepath.Join(dir, "missing.jsonnet")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.jsonnet")
		assert.Contains(t, err.Error(), "missing.jsonnet")
	})
}
