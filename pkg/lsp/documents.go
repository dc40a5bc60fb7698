package lsp

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/position"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

// Document is an open editor buffer.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Content    string
}

// DocumentManager tracks open documents and mirrors their text into the
// file set the compiler reads imports from.
type DocumentManager struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	files *vfs.FileSet
}

func NewDocumentManager(files *vfs.FileSet) *DocumentManager {
	return &DocumentManager{
		docs:  map[string]*Document{},
		files: files,
	}
}

func (m *DocumentManager) Open(doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.files.Set(vfs.PathFromURI(doc.URI), doc.Content); err != nil {
		return errors.Errorf("opening %s: %w", doc.URI, err)
	}
	cp := *doc
	m.docs[doc.URI] = &cp
	return nil
}

// Get returns a copy of the document.
func (m *DocumentManager) Get(uri string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Version reports the current version of uri, or false if it is not open.
func (m *DocumentManager) Version(uri string) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[uri]
	if !ok {
		return 0, false
	}
	return doc.Version, true
}

// Change applies edits in order and records the new version.
func (m *DocumentManager) Change(ctx context.Context, uri string, version int32, changes []TextDocumentContentChangeEvent) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return Document{}, errors.Errorf("document not found: %s", uri)
	}

	content := doc.Content
	for _, change := range changes {
		if change.Range == nil {
			content = change.Text
			continue
		}
		content = replaceRange(content, change.Range.internal(), change.Text)
	}
	zerolog.Ctx(ctx).Trace().Str("uri", uri).Int32("version", version).Int("changes", len(changes)).Msg("applied changes")

	if err := m.files.Set(vfs.PathFromURI(uri), content); err != nil {
		return Document{}, errors.Errorf("updating %s: %w", uri, err)
	}
	doc.Content = content
	doc.Version = version
	return *doc, nil
}

// Replace sets the full text without changing the version, as a save with
// included text does.
func (m *DocumentManager) Replace(uri, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[uri]
	if !ok {
		return errors.Errorf("document not found: %s", uri)
	}
	if err := m.files.Set(vfs.PathFromURI(uri), content); err != nil {
		return errors.Errorf("updating %s: %w", uri, err)
	}
	doc.Content = content
	return nil
}

func (m *DocumentManager) Close(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, uri)
	if err := m.files.Remove(vfs.PathFromURI(uri)); err != nil {
		return errors.Errorf("closing %s: %w", uri, err)
	}
	return nil
}

func (m *DocumentManager) URIs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for uri := range m.docs {
		out = append(out, uri)
	}
	return out
}

func replaceRange(content string, r position.Range, text string) string {
	start := position.OffsetOf(content, r.Start)
	end := position.OffsetOf(content, r.End)
	if end < start {
		end = start
	}
	return content[:start] + text + content[end:]
}
