package compiler

import (
	"context"
	"sync"

	"github.com/google/go-jsonnet/ast"

	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/position"
)

// Lazy is a Compiler whose backend is installed after construction. Until
// Load is called every operation fails with ErrCompilerNotLoaded.
type Lazy struct {
	mu    sync.RWMutex
	inner Compiler
}

func NewLazy() *Lazy {
	return &Lazy{}
}

// Load installs (or replaces) the backend.
func (l *Lazy) Load(c Compiler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner = c
}

func (l *Lazy) Loaded() bool {
	_, err := l.get()
	return err == nil
}

func (l *Lazy) get() (Compiler, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.inner == nil {
		return nil, ErrCompilerNotLoaded
	}
	return l.inner, nil
}

func (l *Lazy) Parse(path, text string) (ast.Node, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.Parse(path, text)
}

func (l *Lazy) Evaluate(ctx context.Context, req EvaluateRequest) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", err
	}
	return c.Evaluate(ctx, req)
}

func (l *Lazy) PathAtLocation(path, text string, at position.Place) (*PathLocation, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.PathAtLocation(path, text, at)
}

func (l *Lazy) LocateByPath(root ast.Node, p jsonpath.Path) (position.Range, bool) {
	c, err := l.get()
	if err != nil {
		return position.Range{}, false
	}
	return c.LocateByPath(root, p)
}
