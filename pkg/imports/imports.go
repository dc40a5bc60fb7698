// Package imports resolves Jsonnet import specifiers against the document
// file set and a collection of named libraries.
package imports

import (
	"path"
	"strings"
	"sync"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

// Files is the read side of a file set.
type Files interface {
	Read(path string) (string, bool)
}

type key struct {
	from      string
	specifier string
}

type result struct {
	foundAt string
	content string
	err     error
}

// Resolver answers imports for a single compilation. Repeated imports of the
// same specifier from the same file return the memoized result.
type Resolver struct {
	files     Files
	libraries map[string]string

	mu   sync.Mutex
	memo map[key]result
}

var _ compiler.ImportResolver = (*Resolver)(nil)

func New(files Files, libraries []compiler.Library) *Resolver {
	libs := make(map[string]string, len(libraries))
	for _, l := range libraries {
		libs[l.Name] = l.Content
	}
	return &Resolver{files: files, libraries: libs, memo: map[key]result{}}
}

// Target computes the file set path a specifier refers to. Absolute
// specifiers are taken from the file set root, relative ones from the
// directory of the importing file.
func Target(importingPath, specifier string) string {
	if strings.HasPrefix(specifier, "/") {
		return vfs.Clean(specifier)
	}
	return vfs.Clean(path.Join(path.Dir(vfs.Clean(importingPath)), specifier))
}

// Load resolves specifier. Files shadow libraries of the same name.
func (r *Resolver) Load(importingPath, specifier string) (string, string, error) {
	k := key{from: importingPath, specifier: specifier}

	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.memo[k]; ok {
		return res.foundAt, res.content, res.err
	}

	res := r.resolve(importingPath, specifier)
	r.memo[k] = res
	return res.foundAt, res.content, res.err
}

func (r *Resolver) resolve(importingPath, specifier string) result {
	target := Target(importingPath, specifier)

	if r.files != nil {
		if content, ok := r.files.Read(target); ok {
			return result{foundAt: target, content: content}
		}
	}

	if content, ok := r.libraries[specifier]; ok {
		return result{foundAt: specifier, content: content}
	}

	return result{err: &compiler.ImportError{
		ImportingPath: importingPath,
		Specifier:     specifier,
		Target:        target,
	}}
}
