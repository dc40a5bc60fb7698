package lsp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jsonnetls/pkg/config"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

type publishRecorder struct {
	mu        sync.Mutex
	published []PublishDiagnosticsParams
}

func (r *publishRecorder) Notify(_ context.Context, method string, params any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := params.(PublishDiagnosticsParams); ok && method == "textDocument/publishDiagnostics" {
		r.published = append(r.published, p)
	}
	return nil
}

func (r *publishRecorder) all() []PublishDiagnosticsParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishDiagnosticsParams(nil), r.published...)
}

func TestValidateDropsResultForOutdatedVersion(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{CacheSize: 10, ParseCacheSize: 10, Debounce: time.Hour, Root: t.TempDir()}
	s := NewServer(cfg, WithFileSet(vfs.New()))
	require.NoError(t, s.reload(ctx, cfg))

	rec := &publishRecorder{}
	s.notifier = rec

	uri := "file:///main.jsonnet"
	require.NoError(t, s.documents.Open(&Document{URI: uri, Version: 1, Content: "{a: }"}))

	// version 2 lands while the run for version 1 is still outstanding
	_, err := s.documents.Change(ctx, uri, 2, []TextDocumentContentChangeEvent{{Text: "{a: 1}"}})
	require.NoError(t, err)

	s.validate(ctx, uri, 1)
	assert.Empty(t, rec.all(), "nothing is published for version 1")

	s.validate(ctx, uri, 2)
	got := rec.all()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Version)
	assert.Equal(t, int32(2), *got[0].Version)
	assert.Empty(t, got[0].Diagnostics)
}
