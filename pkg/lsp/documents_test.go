package lsp_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/lsp"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

func TestDocumentManagerChanges(t *testing.T) {
	files := vfs.New()
	m := lsp.NewDocumentManager(files)
	uri := "file:///app/main.jsonnet"

	require.NoError(t, m.Open(&lsp.Document{URI: uri, Version: 1, Content: "{\n  a: 1,\n}"}))
	text, ok := files.Read("app/main.jsonnet")
	require.True(t, ok)
	assert.Equal(t, "{\n  a: 1,\n}", text)

	tests := []struct {
		name    string
		version int32
		changes []lsp.TextDocumentContentChangeEvent
		want    string
	}{
		{
			name:    "incremental replace",
			version: 2,
			changes: []lsp.TextDocumentContentChangeEvent{{
				Range: &lsp.Range{Start: lsp.Position{Line: 1, Character: 5}, End: lsp.Position{Line: 1, Character: 6}},
				Text:  "42",
			}},
			want: "{\n  a: 42,\n}",
		},
		{
			name:    "insert then delete",
			version: 3,
			changes: []lsp.TextDocumentContentChangeEvent{
				{Range: &lsp.Range{Start: lsp.Position{Line: 1, Character: 8}, End: lsp.Position{Line: 1, Character: 8}}, Text: " b: 2,"},
				{Range: &lsp.Range{Start: lsp.Position{Line: 1, Character: 2}, End: lsp.Position{Line: 1, Character: 9}}, Text: ""},
			},
			want: "{\n  b: 2,\n}",
		},
		{
			name:    "full replace",
			version: 4,
			changes: []lsp.TextDocumentContentChangeEvent{{Text: "{}"}},
			want:    "{}",
		},
		{
			name:    "range past the end clamps",
			version: 5,
			changes: []lsp.TextDocumentContentChangeEvent{{
				Range: &lsp.Range{Start: lsp.Position{Line: 0, Character: 2}, End: lsp.Position{Line: 9, Character: 0}},
				Text:  "\n",
			}},
			want: "{}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := m.Change(context.Background(), uri, tt.version, tt.changes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Content)
			assert.Equal(t, tt.version, doc.Version)

			text, ok := files.Read("app/main.jsonnet")
			require.True(t, ok)
			assert.Equal(t, tt.want, text)
		})
	}

	require.NoError(t, m.Close(uri))
	_, ok = m.Get(uri)
	assert.False(t, ok)
	assert.False(t, files.Open("app/main.jsonnet"))

	_, err := m.Change(context.Background(), uri, 9, nil)
	assert.Error(t, err)
}

func TestDebouncerKeepsLastSchedule(t *testing.T) {
	d := lsp.NewDebouncer(20 * time.Millisecond)
	var runs, last atomic.Int32

	for i := int32(1); i <= 5; i++ {
		d.Schedule("a", func() {
			runs.Add(1)
			last.Store(i)
		})
	}
	assert.True(t, d.Pending("a"))

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), last.Load())
	assert.False(t, d.Pending("a"))
}

func TestDebouncerCancel(t *testing.T) {
	d := lsp.NewDebouncer(10 * time.Millisecond)
	var runs atomic.Int32

	d.Schedule("a", func() { runs.Add(1) })
	d.Schedule("b", func() { runs.Add(1) })
	d.Cancel("a")

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}
