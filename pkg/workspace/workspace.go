// Package workspace ties the language features together over one set of
// documents: compile with caching, validate against schemas, and answer
// completion, hover, formatting and path lookups.
package workspace

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-jsonnet/ast"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/singleflight"

	"github.com/walteh/jsonnetls/pkg/cache"
	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/completion"
	"github.com/walteh/jsonnetls/pkg/diagnostic"
	"github.com/walteh/jsonnetls/pkg/format"
	"github.com/walteh/jsonnetls/pkg/hover"
	"github.com/walteh/jsonnetls/pkg/imports"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/position"
	"github.com/walteh/jsonnetls/pkg/schema"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

// Extensions that are compiled and validated. Other documents are only
// import targets.
var Extensions = []string{".jsonnet", ".libsonnet"}

func IsJsonnet(p string) bool {
	ext := path.Ext(p)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Settings are the inputs to every compilation. Changing them invalidates
// all cached output.
type Settings struct {
	ExtVars   map[string]string
	TLAVars   map[string]string
	Libraries []compiler.Library
}

type Report struct {
	URI         string
	Version     int32
	Diagnostics []diagnostic.Diagnostic
}

type Workspace struct {
	files    *vfs.FileSet
	compiler compiler.Compiler
	schemas  schema.Resolver
	cache    *cache.CompileCache
	mapper   *diagnostic.Mapper

	completion *completion.Engine
	hover      *hover.Engine

	group singleflight.Group

	mu       sync.RWMutex
	settings Settings
	// generation counts Configure calls; output compiled under an older
	// generation is never cached.
	generation uint64
	lastGood map[string]*cache.Artifact
	diskRoot string
}

type Option func(*Workspace)

func WithCacheSize(n int) Option {
	return func(w *Workspace) {
		w.cache = cache.NewCompileCache(n)
	}
}

func WithSettings(s Settings) Option {
	return func(w *Workspace) {
		w.settings = s
	}
}

// WithDiskRoot tells the formatter where documents live on disk so that
// .editorconfig files can be found.
func WithDiskRoot(root string) Option {
	return func(w *Workspace) {
		w.diskRoot = root
	}
}

func New(files *vfs.FileSet, c compiler.Compiler, schemas schema.Resolver, opts ...Option) *Workspace {
	w := &Workspace{
		files:    files,
		compiler: c,
		schemas:  schemas,
		cache:    cache.NewCompileCache(cache.DefaultMaxEntries),
		mapper:   diagnostic.NewMapper(diagnostic.WithLocator(c)),
		lastGood: map[string]*cache.Artifact{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.completion = completion.NewEngine(w, schemas)
	w.hover = hover.NewEngine(w, schemas)
	return w
}

func (w *Workspace) Files() *vfs.FileSet {
	return w.files
}

// Configure replaces the compile settings and drops cached output.
func (w *Workspace) Configure(s Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings = s
	w.generation++
	w.lastGood = map[string]*cache.Artifact{}
	w.cache.Purge()
}

func (w *Workspace) Settings() Settings {
	s, _ := w.snapshot()
	return s
}

func (w *Workspace) snapshot() (Settings, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings, w.generation
}

// Forget drops everything remembered about a document.
func (w *Workspace) Forget(p string) {
	p = vfs.Clean(p)
	w.cache.Invalidate(p)
	w.mu.Lock()
	delete(w.lastGood, p)
	w.mu.Unlock()
}

// Compile compiles the current text of p.
func (w *Workspace) Compile(ctx context.Context, p string) (*cache.Artifact, error) {
	p = vfs.Clean(p)
	content, ok := w.files.Read(p)
	if !ok {
		return nil, errors.Errorf("document %s not found", p)
	}
	return w.CompileContent(ctx, p, content)
}

// CompileContent compiles content as if it were the text of p. Concurrent
// requests for the same path and content share one compilation.
func (w *Workspace) CompileContent(ctx context.Context, p, content string) (*cache.Artifact, error) {
	p = vfs.Clean(p)
	if a, ok := w.cache.Artifact(p, content); ok {
		return a, nil
	}

	settings, gen := w.snapshot()
	key := p + "\x00" + strconv.FormatUint(cache.Fingerprint(content), 16) + "\x00" + strconv.FormatUint(gen, 10)
	v, err, shared := w.group.Do(key, func() (any, error) {
		return w.compile(ctx, p, content, settings, gen)
	})
	if shared {
		zerolog.Ctx(ctx).Trace().Str("path", p).Msg("joined in-flight compilation")
	}
	if err != nil {
		return nil, err
	}
	return v.(*cache.Artifact), nil
}

func (w *Workspace) compile(ctx context.Context, p, content string, settings Settings, gen uint64) (*cache.Artifact, error) {
	node, err := w.compiler.Parse(p, content)
	if err != nil {
		return nil, err
	}

	out, err := w.compiler.Evaluate(ctx, compiler.EvaluateRequest{
		Path:     p,
		Content:  content,
		Resolver: imports.New(w.files, settings.Libraries),
		ExtVars:  settings.ExtVars,
		TLAVars:  settings.TLAVars,
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen {
		zerolog.Ctx(ctx).Debug().Str("path", p).Msg("settings changed during compile; not caching")
		return cache.NewArtifact(p, content, out, node), nil
	}
	a := w.cache.Put(p, content, out, node)
	w.lastGood[p] = a

	zerolog.Ctx(ctx).Debug().Str("path", p).Int("bytes", len(out)).Msg("compiled")
	return a, nil
}

// LastOutput returns the most recent successful compilation of p, which may
// be from older text than the document holds now.
func (w *Workspace) LastOutput(p string) (*cache.Artifact, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.lastGood[vfs.Clean(p)]
	return a, ok
}

// Validate compiles the document at uri and checks the output against its
// schemas. Compilation problems come back as diagnostics, not errors.
func (w *Workspace) Validate(ctx context.Context, uri string, version int32) (*Report, error) {
	report := &Report{URI: uri, Version: version, Diagnostics: []diagnostic.Diagnostic{}}

	p := vfs.PathFromURI(uri)
	if !IsJsonnet(p) {
		return report, nil
	}

	a, err := w.Compile(ctx, p)
	if err != nil {
		if d, ok := diagnostic.FromError(err); ok {
			report.Diagnostics = append(report.Diagnostics, d)
			return report, nil
		}
		return nil, err
	}

	jd, err := w.schemas.Validate(ctx, uri, a.JSON)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("schema validation skipped")
		return report, nil
	}

	report.Diagnostics = append(report.Diagnostics, w.mapper.Map(ctx, a.JSON, a.AST, jd)...)
	return report, nil
}

// PathAt maps a cursor to an output path. When the current text has no
// addressable node there (typically because it does not parse mid-edit), the
// last text that compiled is tried instead.
func (w *Workspace) PathAt(ctx context.Context, uri string, at position.Place) (*compiler.PathLocation, string, error) {
	p := vfs.PathFromURI(uri)
	text, ok := w.files.Read(p)
	if !ok {
		return nil, "", errors.Errorf("document %s not found", p)
	}

	if _, err := w.Compile(ctx, p); err != nil {
		if errors.Is(err, compiler.ErrCompilerNotLoaded) || errors.Is(err, context.Canceled) {
			return nil, "", err
		}
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", p).Msg("current text does not compile")
	}

	loc, err := w.compiler.PathAtLocation(p, text, at)
	if err != nil && errors.Is(err, compiler.ErrCompilerNotLoaded) {
		return nil, "", err
	}
	if loc != nil {
		return loc, text, nil
	}

	last, ok := w.LastOutput(p)
	if !ok || last.Content == text {
		return nil, text, nil
	}
	loc, err = w.compiler.PathAtLocation(p, last.Content, at)
	if err != nil || loc == nil {
		return nil, text, nil //nolint:nilerr
	}
	return loc, last.Content, nil
}

func (w *Workspace) Complete(ctx context.Context, uri string, at position.Place) (*completion.List, error) {
	text, ok := w.files.Read(vfs.PathFromURI(uri))
	if !ok {
		return nil, errors.Errorf("document %s not found", uri)
	}
	return w.completion.Complete(ctx, uri, text, at)
}

func (w *Workspace) Hover(ctx context.Context, uri string, at position.Place) (*hover.HoverInfo, error) {
	return w.hover.Hover(ctx, uri, at)
}

// Format formats the document at uri.
func (w *Workspace) Format(ctx context.Context, uri string) ([]format.TextEdit, error) {
	p := vfs.PathFromURI(uri)
	text, ok := w.files.Read(p)
	if !ok {
		return nil, errors.Errorf("document %s not found", p)
	}
	opts := format.OptionsFor(ctx, w.diskPath(uri))
	return format.Edits(p, text, opts)
}

func (w *Workspace) diskPath(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		return "/" + vfs.PathFromURI(uri)
	}
	if w.diskRoot != "" {
		return path.Join(w.diskRoot, vfs.PathFromURI(uri))
	}
	return ""
}

// LocatePaths returns the source range of each output path; entries are nil
// when the document has no addressable root.
func (w *Workspace) LocatePaths(ctx context.Context, uri string, paths []jsonpath.Path) ([]*position.Range, error) {
	p := vfs.PathFromURI(uri)
	text, ok := w.files.Read(p)
	if !ok {
		return nil, errors.Errorf("document %s not found", p)
	}

	var root ast.Node
	node, err := w.compiler.Parse(p, text)
	switch {
	case err == nil:
		root = node
	case errors.Is(err, compiler.ErrCompilerNotLoaded):
		return nil, err
	default:
		last, ok := w.LastOutput(p)
		if !ok {
			return nil, err
		}
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", p).Msg("locating paths in last compiled text")
		root = last.AST
	}

	out := make([]*position.Range, len(paths))
	for i, jp := range paths {
		if r, ok := w.compiler.LocateByPath(root, jp); ok {
			out[i] = &r
		}
	}
	return out, nil
}
