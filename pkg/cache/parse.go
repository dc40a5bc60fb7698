package cache

import (
	"github.com/google/go-jsonnet/ast"
	lru "github.com/hashicorp/golang-lru/v2"
)

type parsed struct {
	content string
	node    ast.Node
}

// ParseCache maps document content to its parse tree. It satisfies
// compiler.ASTCache.
type ParseCache struct {
	entries *lru.Cache[uint64, parsed]
}

func NewParseCache(maxEntries int) *ParseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[uint64, parsed](maxEntries)
	if err != nil {
		panic(err)
	}
	return &ParseCache{entries: entries}
}

func (c *ParseCache) Get(content string) (ast.Node, bool) {
	p, ok := c.entries.Get(Fingerprint(content))
	if !ok || p.content != content {
		return nil, false
	}
	return p.node, true
}

func (c *ParseCache) Put(content string, node ast.Node) {
	c.entries.Add(Fingerprint(content), parsed{content: content, node: node})
}

func (c *ParseCache) Len() int {
	return c.entries.Len()
}
