// Package vfs holds the text of every document the server knows about. Open
// documents live in an in-memory layer; anything else is read through an
// optional read-only disk layer.
package vfs

import (
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// FileSet maps normalized paths to document text. Paths are slash separated,
// relative to the file set root and carry no leading or trailing separator.
type FileSet struct {
	mem     afero.Fs
	overlay afero.Fs
}

type Option func(*FileSet)

// WithDisk layers the in-memory documents over base, which is only ever read.
func WithDisk(base afero.Fs) Option {
	return func(s *FileSet) {
		s.overlay = afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(base), s.mem)
	}
}

// WithDiskRoot reads unknown paths from the OS file system below root.
func WithDiskRoot(root string) Option {
	return WithDisk(afero.NewBasePathFs(afero.NewOsFs(), root))
}

func New(opts ...Option) *FileSet {
	mem := afero.NewMemMapFs()
	s := &FileSet{mem: mem, overlay: mem}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clean normalizes p the way every key of a FileSet is normalized.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// PathFromURI turns a document URI into a FileSet path: the authority
// followed by the URI path. Strings that do not parse as URIs are treated as
// plain paths.
func PathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return Clean(uri)
	}
	if u.Opaque != "" {
		return Clean(u.Opaque)
	}
	return Clean(u.Host + "/" + u.Path)
}

func abs(p string) string {
	return "/" + Clean(p)
}

// Set creates or replaces the in-memory text of p.
func (s *FileSet) Set(p, content string) error {
	p = abs(p)
	if err := s.mem.MkdirAll(path.Dir(p), 0o755); err != nil {
		return errors.Errorf("creating parent of %s: %w", p, err)
	}
	if err := afero.WriteFile(s.mem, p, []byte(content), 0o644); err != nil {
		return errors.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// Remove drops the in-memory text of p. Removing an unknown path is not an
// error.
func (s *FileSet) Remove(p string) error {
	if err := s.mem.Remove(abs(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("removing %s: %w", p, err)
	}
	return nil
}

// Read returns the text of p from memory, falling back to disk.
func (s *FileSet) Read(p string) (string, bool) {
	data, err := afero.ReadFile(s.overlay, abs(p))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Open reports whether p is held in memory.
func (s *FileSet) Open(p string) bool {
	ok, err := afero.Exists(s.mem, abs(p))
	return err == nil && ok
}

// Snapshot copies every in-memory document.
func (s *FileSet) Snapshot() (map[string]string, error) {
	out := map[string]string{}
	err := afero.Walk(s.mem, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := afero.ReadFile(s.mem, p)
		if err != nil {
			return errors.Errorf("reading %s: %w", p, err)
		}
		out[Clean(p)] = string(data)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking documents: %w", err)
	}
	return out, nil
}

// Paths lists the in-memory documents in sorted order.
func (s *FileSet) Paths() ([]string, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
