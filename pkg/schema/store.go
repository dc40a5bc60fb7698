// Package schema associates documents with JSON Schemas and answers two
// questions about them: which schema fragments apply at an output path, and
// what is wrong with a compiled output.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/jsonnetls/pkg/diagnostic"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/vfs"
)

// Resolver is what completion, hover and validation need from schemas.
type Resolver interface {
	Fetch(ctx context.Context, documentURI string, p jsonpath.Path) ([]*Fragment, error)
	Validate(ctx context.Context, documentURI, compiledJSON string) ([]diagnostic.JSONDiagnostic, error)
}

// Association binds documents matching any FileMatch glob to a schema,
// given either inline (JSON or YAML) or by URI.
type Association struct {
	FileMatch []string
	URI       string
	Schema    string
}

func (a Association) key(i int) string {
	if a.Schema == "" && a.URI != "" {
		return a.URI
	}
	return fmt.Sprintf("inmemory://schema/%d.json", i)
}

// SchemaFetchError reports a schema that could not be loaded.
type SchemaFetchError struct {
	URI string
	Err error
}

func (e *SchemaFetchError) Error() string {
	return fmt.Sprintf("loading schema %s: %v", e.URI, e.Err)
}

func (e *SchemaFetchError) Unwrap() error {
	return e.Err
}

var ErrRemoteDisabled = errors.Base("remote schema requests are disabled")

type Store struct {
	fs     afero.Fs
	client *http.Client

	mu           sync.RWMutex
	assocs       []Association
	enableRemote bool
	docs         map[string]map[string]any
	compiled     map[string]*jsonschema.Schema
}

var _ Resolver = (*Store)(nil)

type Option func(*Store)

// WithFS sets where file and path schema URIs are read from.
func WithFS(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		fs:       afero.NewOsFs(),
		client:   &http.Client{Timeout: 30 * time.Second},
		docs:     map[string]map[string]any{},
		compiled: map[string]*jsonschema.Schema{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure replaces the associations and drops every loaded schema.
func (s *Store) Configure(assocs []Association, enableRemote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assocs = append([]Association(nil), assocs...)
	s.enableRemote = enableRemote
	s.docs = map[string]map[string]any{}
	s.compiled = map[string]*jsonschema.Schema{}
}

// Reset forgets a loaded schema so the next use reloads it.
func (s *Store) Reset(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
	delete(s.compiled, uri)
}

type match struct {
	key   string
	assoc Association
}

func (s *Store) matching(documentURI string) []match {
	p := vfs.PathFromURI(documentURI)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []match
	for i, a := range s.assocs {
		for _, pattern := range a.FileMatch {
			if globMatch(pattern, p) {
				out = append(out, match{key: a.key(i), assoc: a})
				break
			}
		}
	}
	return out
}

func globMatch(pattern, p string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	if ok, _ := doublestar.Match(pattern, p); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(p))
		return ok
	}
	ok, _ := doublestar.Match("**/"+pattern, p)
	return ok
}

// Fetch returns the fragments that apply to the value at p, in association
// order, with allOf/anyOf/oneOf branches expanded.
func (s *Store) Fetch(ctx context.Context, documentURI string, p jsonpath.Path) ([]*Fragment, error) {
	var out []*Fragment
	for _, m := range s.matching(documentURI) {
		doc, err := s.document(ctx, m)
		if err != nil {
			return nil, err
		}

		frontier := newFragment(doc, doc).expand()
		for _, k := range p {
			var next []*Fragment
			for _, f := range frontier {
				if c := f.child(k.Name, k.Index, k.IsIndex); c != nil {
					next = append(next, c.expand()...)
				}
			}
			frontier = next
		}
		out = append(out, frontier...)
	}
	return out, nil
}

// Validate checks compiled output against every associated schema.
func (s *Store) Validate(ctx context.Context, documentURI, compiledJSON string) ([]diagnostic.JSONDiagnostic, error) {
	matches := s.matching(documentURI)
	if len(matches) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(compiledJSON))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, errors.Errorf("decoding compiled output: %w", err)
	}

	var out []diagnostic.JSONDiagnostic
	for _, m := range matches {
		sch, err := s.schema(ctx, m)
		if err != nil {
			return nil, err
		}

		err = sch.Validate(instance)
		if err == nil {
			continue
		}

		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, errors.Errorf("validating against %s: %w", m.key, err)
		}
		for _, leaf := range leaves(ve) {
			out = append(out, diagnostic.JSONDiagnostic{
				Message:  leaf.Message,
				Severity: diagnostic.SeverityError,
				Source:   diagnostic.SourceSchema,
				Origin:   diagnostic.OriginSchema,
				Path:     jsonpath.FromPointer(leaf.InstanceLocation, instance),
				HasPath:  true,
			})
		}
	}

	zerolog.Ctx(ctx).Debug().Str("uri", documentURI).Int("problems", len(out)).Msg("schema validation finished")
	return out, nil
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func (s *Store) document(ctx context.Context, m match) (map[string]any, error) {
	s.mu.RLock()
	doc, ok := s.docs[m.key]
	s.mu.RUnlock()
	if ok {
		return doc, nil
	}

	var (
		data []byte
		err  error
	)
	if m.assoc.Schema != "" {
		data = []byte(m.assoc.Schema)
	} else {
		data, err = s.read(ctx, m.assoc.URI)
		if err != nil {
			return nil, err
		}
	}

	doc, err = decode(data)
	if err != nil {
		return nil, &SchemaFetchError{URI: m.key, Err: err}
	}

	s.mu.Lock()
	s.docs[m.key] = doc
	s.mu.Unlock()
	return doc, nil
}

func (s *Store) schema(ctx context.Context, m match) (*jsonschema.Schema, error) {
	s.mu.RLock()
	sch, ok := s.compiled[m.key]
	s.mu.RUnlock()
	if ok {
		return sch, nil
	}

	doc, err := s.document(ctx, m)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &SchemaFetchError{URI: m.key, Err: err}
	}

	c := jsonschema.NewCompiler()
	c.LoadURL = func(u string) (io.ReadCloser, error) {
		raw, err := s.read(ctx, u)
		if err != nil {
			return nil, err
		}
		d, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(out)), nil
	}
	if err := c.AddResource(m.key, bytes.NewReader(data)); err != nil {
		return nil, &SchemaFetchError{URI: m.key, Err: err}
	}
	sch, err = c.Compile(m.key)
	if err != nil {
		return nil, &SchemaFetchError{URI: m.key, Err: err}
	}

	s.mu.Lock()
	s.compiled[m.key] = sch
	s.mu.Unlock()
	return sch, nil
}

// read loads a schema by URI: http(s) when remote requests are enabled,
// otherwise file URIs and plain paths through the store's file system.
func (s *Store) read(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		s.mu.RLock()
		enabled := s.enableRemote
		s.mu.RUnlock()
		if !enabled {
			return nil, &SchemaFetchError{URI: uri, Err: ErrRemoteDisabled}
		}
		return s.fetch(ctx, uri)
	}

	p := uri
	if err == nil && u.Scheme == "file" {
		p = u.Path
	}
	data, rerr := afero.ReadFile(s.fs, p)
	if rerr != nil {
		return nil, &SchemaFetchError{URI: uri, Err: rerr}
	}
	return data, nil
}

func (s *Store) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &SchemaFetchError{URI: uri, Err: err}
	}
	req.Header.Set("Accept", "application/schema+json, application/json, */*")

	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("fetching remote schema")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SchemaFetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SchemaFetchError{URI: uri, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SchemaFetchError{URI: uri, Err: err}
	}
	return data, nil
}

// decode accepts JSON or YAML.
func decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Errorf("schema is neither json nor yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("schema document is empty")
	}
	return doc, nil
}
