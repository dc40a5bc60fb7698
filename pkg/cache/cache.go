// Package cache memoizes compilation output keyed by document path and
// parse trees keyed by content.
package cache

import (
	"sync"

	"github.com/google/go-jsonnet/ast"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

const DefaultMaxEntries = 100

// Artifact is the result of one successful compilation.
type Artifact struct {
	Path        string
	Content     string
	Fingerprint uint64
	JSON        string
	AST         ast.Node
}

// Fingerprint hashes document content. Equal fingerprints are only a hint;
// callers still compare the content itself.
func Fingerprint(content string) uint64 {
	return xxh3.HashString(content)
}

// CompileCache holds at most one artifact per path. An entry is only served
// for exactly the content it was compiled from; a lookup with different
// content drops the stale entry.
type CompileCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *Artifact]
}

func NewCompileCache(maxEntries int) *CompileCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, *Artifact](maxEntries)
	if err != nil {
		panic(err)
	}
	return &CompileCache{entries: entries}
}

// Get returns the cached JSON for path when it was compiled from content.
func (c *CompileCache) Get(path, content string) (string, bool) {
	a, ok := c.Artifact(path, content)
	if !ok {
		return "", false
	}
	return a.JSON, true
}

// Artifact is Get returning the whole artifact. A hit refreshes the entry's
// recency.
func (c *CompileCache) Artifact(path, content string) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.entries.Peek(path)
	if !ok {
		return nil, false
	}
	if a.Fingerprint != Fingerprint(content) || a.Content != content {
		c.entries.Remove(path)
		return nil, false
	}
	c.entries.Get(path)
	return a, true
}

// Put stores the compilation of content at path, evicting the least
// recently used entry when full.
func (c *CompileCache) Put(path, content, json string, node ast.Node) *Artifact {
	a := NewArtifact(path, content, json, node)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(path, a)
	return a
}

// NewArtifact builds an artifact without caching it.
func NewArtifact(path, content, json string, node ast.Node) *Artifact {
	return &Artifact{
		Path:        path,
		Content:     content,
		Fingerprint: Fingerprint(content),
		JSON:        json,
		AST:         node,
	}
}

func (c *CompileCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(path)
}

// Purge drops every entry, e.g. after compile settings change.
func (c *CompileCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func (c *CompileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Paths lists cached paths from least to most recently used.
func (c *CompileCache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}
