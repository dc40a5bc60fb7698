package compiler

import (
	"context"
	"strings"
	"sync"

	"github.com/google/go-jsonnet"
	"github.com/google/go-jsonnet/ast"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/pathmap"
	"github.com/walteh/jsonnetls/pkg/position"
)

// ASTCache memoizes parse results by content.
type ASTCache interface {
	Get(content string) (ast.Node, bool)
	Put(content string, node ast.Node)
}

type Option func(*JsonnetCompiler)

// WithStripNonASCII removes every non-ASCII character before parsing or
// evaluating. Positions reported afterwards are relative to the stripped text.
func WithStripNonASCII(strip bool) Option {
	return func(c *JsonnetCompiler) {
		c.stripNonASCII = strip
	}
}

func WithParseCache(cache ASTCache) Option {
	return func(c *JsonnetCompiler) {
		c.parseCache = cache
	}
}

// WithMaxStack bounds evaluation recursion depth.
func WithMaxStack(n int) Option {
	return func(c *JsonnetCompiler) {
		c.maxStack = n
	}
}

// JsonnetCompiler is the go-jsonnet backed Compiler. It is safe for concurrent
// use: every evaluation runs on its own VM.
type JsonnetCompiler struct {
	stripNonASCII bool
	maxStack      int
	parseCache    ASTCache
}

func NewJsonnetCompiler(opts ...Option) *JsonnetCompiler {
	c := &JsonnetCompiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StripNonASCII drops every byte outside the ASCII range.
func StripNonASCII(text string) string {
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return -1
		}
		return r
	}, text)
}

func (c *JsonnetCompiler) prepare(text string) string {
	if c.stripNonASCII {
		return StripNonASCII(text)
	}
	return text
}

func (c *JsonnetCompiler) Parse(path, text string) (ast.Node, error) {
	text = c.prepare(text)

	if c.parseCache != nil {
		if node, ok := c.parseCache.Get(text); ok {
			return node, nil
		}
	}

	node, err := jsonnet.SnippetToAST(path, text)
	if err != nil {
		r, msg, ok := splitLocation(err)
		if !ok {
			r = position.DocumentStart()
		}
		return nil, &ParseError{Path: path, Message: msg, Range: r}
	}

	if c.parseCache != nil {
		c.parseCache.Put(text, node)
	}
	return node, nil
}

type evalResult struct {
	json string
	err  error
}

func (c *JsonnetCompiler) Evaluate(ctx context.Context, req EvaluateRequest) (string, error) {
	vm := jsonnet.MakeVM()
	if c.maxStack > 0 {
		vm.MaxStack = c.maxStack
	}

	capture := &capturingFormatter{}
	vm.ErrorFormatter = capture

	imp := &vmImporter{resolver: req.Resolver, strip: c.stripNonASCII}
	vm.Importer(imp)

	for k, v := range req.ExtVars {
		vm.ExtCode(k, v)
	}
	for k, v := range req.TLAVars {
		vm.TLACode(k, v)
	}

	content := c.prepare(req.Content)
	done := make(chan evalResult, 1)

	go func() {
		out, err := vm.EvaluateAnonymousSnippet(req.Path, content)
		done <- evalResult{json: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", errors.Errorf("evaluating %s: %w", req.Path, ctx.Err())
	case res := <-done:
		if res.err == nil {
			return res.json, nil
		}
		cause := capture.last()
		if cause == nil {
			cause = res.err
		}
		err := classify(req.Path, cause, imp.failure())
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", req.Path).Msg("evaluation failed")
		return "", err
	}
}

func classify(path string, cause error, failed *ImportError) error {
	r, msg, ok := locate(path, cause)

	if failed != nil && strings.Contains(cause.Error(), failed.Specifier) {
		failed.Range = r
		failed.HasRange = ok
		return failed
	}

	var static locatable
	if errors.As(cause, &static) && !isRuntime(cause) {
		if !ok {
			r = position.DocumentStart()
		}
		return &ParseError{Path: path, Message: msg, Range: r}
	}

	return &CompileError{Path: path, Message: msg, Range: r, HasRange: ok}
}

func isRuntime(err error) bool {
	var rt jsonnet.RuntimeError
	if errors.As(err, &rt) {
		return true
	}
	var prt *jsonnet.RuntimeError
	return errors.As(err, &prt)
}

// locate finds where in path the error happened. Runtime errors use the
// innermost stack frame that belongs to path.
func locate(path string, err error) (position.Range, string, bool) {
	var frames []jsonnet.TraceFrame
	msg := ""

	var rt jsonnet.RuntimeError
	var prt *jsonnet.RuntimeError
	switch {
	case errors.As(err, &rt):
		frames, msg = rt.StackTrace, rt.Msg
	case errors.As(err, &prt) && prt != nil:
		frames, msg = prt.StackTrace, prt.Msg
	default:
		return splitLocation(err)
	}

	for _, f := range frames {
		if f.Loc.Begin.Line > 0 && f.Loc.FileName == path {
			return rangeOf(f.Loc), msg, true
		}
	}
	return position.Range{}, msg, false
}

func (c *JsonnetCompiler) PathAtLocation(path, text string, at position.Place) (*PathLocation, error) {
	node, err := c.Parse(path, text)
	if err != nil {
		return nil, err
	}

	p, found, ok := pathmap.PathAt(pathmap.FindAddressableRoot(node), at)
	if !ok {
		return nil, nil
	}

	loc := &PathLocation{
		Path:  p,
		Kind:  pathmap.Kind(found),
		Range: pathmap.LocationOf(found),
	}
	if v, src, ok := pathmap.LiteralValue(found); ok {
		loc.Value = v
		loc.Source = src
	}
	return loc, nil
}

func (c *JsonnetCompiler) LocateByPath(root ast.Node, p jsonpath.Path) (position.Range, bool) {
	addressable := pathmap.FindAddressableRoot(root)
	if addressable == nil {
		return position.Range{}, false
	}
	return pathmap.LocationOf(pathmap.Resolve(addressable, p)), true
}

// capturingFormatter keeps the structured error go-jsonnet would otherwise
// flatten into a string.
type capturingFormatter struct {
	mu  sync.Mutex
	err error
}

func (f *capturingFormatter) Format(err error) string {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return err.Error()
}

func (f *capturingFormatter) SetMaxStackTraceSize(int) {}

func (f *capturingFormatter) SetColorFormatter(jsonnet.ColorFormatter) {}

func (f *capturingFormatter) last() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// vmImporter adapts an ImportResolver to go-jsonnet and remembers the first
// import that failed.
type vmImporter struct {
	resolver ImportResolver
	strip    bool

	mu     sync.Mutex
	failed *ImportError
}

func (i *vmImporter) Import(importedFrom, importedPath string) (jsonnet.Contents, string, error) {
	if i.resolver == nil {
		err := &ImportError{ImportingPath: importedFrom, Specifier: importedPath, Target: importedPath}
		i.record(err)
		return jsonnet.Contents{}, "", err
	}

	foundAt, content, err := i.resolver.Load(importedFrom, importedPath)
	if err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			i.record(ie)
		}
		return jsonnet.Contents{}, "", err
	}

	if i.strip {
		content = StripNonASCII(content)
	}
	return jsonnet.MakeContents(content), foundAt, nil
}

func (i *vmImporter) record(err *ImportError) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failed == nil {
		i.failed = err
	}
}

func (i *vmImporter) failure() *ImportError {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.failed
}
