// Package lsp serves the Jsonnet language features over the Language Server
// Protocol.
package lsp

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/config"
	"github.com/walteh/jsonnetls/pkg/schema"
	"github.com/walteh/jsonnetls/pkg/vfs"
	"github.com/walteh/jsonnetls/pkg/workspace"
)

const Name = "jsonnetls"

// Server holds the state of one language server session.
type Server struct {
	id      string
	version string

	files     *vfs.FileSet
	documents *DocumentManager
	compiler  *compiler.Lazy
	schemas   *schema.Store
	workspace *workspace.Workspace
	debouncer *Debouncer
	disk      afero.Fs

	forwardLogs bool

	mu       sync.RWMutex
	cfg      *config.Config
	ctx      context.Context
	notifier Notifier
	rpc      *jrpc2.Server

	shutdown atomic.Bool
}

type Option func(*Server)

// WithFileSet sets where documents and their imports are read from.
func WithFileSet(files *vfs.FileSet) Option {
	return func(s *Server) {
		s.files = files
	}
}

// WithDisk sets where libraries configured by path are read from.
func WithDisk(fs afero.Fs) Option {
	return func(s *Server) {
		s.disk = fs
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogForwarding sends the server's logs to the client as
// window/logMessage notifications.
func WithLogForwarding(forward bool) Option {
	return func(s *Server) {
		s.forwardLogs = forward
	}
}

func WithSchemaStore(store *schema.Store) Option {
	return func(s *Server) {
		s.schemas = store
	}
}

func NewServer(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		id:       xid.New().String(),
		cfg:      cfg,
		compiler: compiler.NewLazy(),
		disk:     afero.NewOsFs(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.files = vfs.New(vfs.WithDiskRoot("/"))
	}
	if s.schemas == nil {
		s.schemas = schema.NewStore()
	}
	s.documents = NewDocumentManager(s.files)
	s.debouncer = NewDebouncer(cfg.Debounce)
	s.workspace = workspace.New(s.files, s.compiler, s.schemas,
		workspace.WithCacheSize(cfg.CacheSize),
		workspace.WithDiskRoot(cfg.Root),
	)
	return s
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

func (s *Server) Workspace() *workspace.Workspace {
	return s.workspace
}

func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Methods maps every supported LSP method to its handler.
func (s *Server) Methods() handler.Map {
	return handler.Map{
		"initialize":                       handler.New(s.initialize),
		"initialized":                      handler.New(s.initialized),
		"shutdown":                         handler.New(s.shutdownRequest),
		"exit":                             handler.New(s.exit),
		"textDocument/didOpen":             handler.New(s.didOpen),
		"textDocument/didChange":           handler.New(s.didChange),
		"textDocument/didClose":            handler.New(s.didClose),
		"textDocument/didSave":             handler.New(s.didSave),
		"textDocument/hover":               handler.New(s.hover),
		"textDocument/completion":          handler.New(s.completion),
		"textDocument/formatting":          handler.New(s.formatting),
		"workspace/didChangeConfiguration": handler.New(s.didChangeConfiguration),
		"jsonnet/compile":                  handler.New(s.compile),
		"jsonnet/locatePaths":              handler.New(s.locatePaths),
		"$/cancelRequest":                  handler.New(ignore),
		"$/setTrace":                       handler.New(ignore),
	}
}

// Start serves ch until the client exits or the channel closes. Call Wait
// on the result to block until then.
func (s *Server) Start(ctx context.Context, ch channel.Channel) *jrpc2.Server {
	srv := jrpc2.NewServer(s.Methods(), &jrpc2.ServerOptions{
		AllowPush: true,
		RPCLog:    RPCLogger{},
		Logger: func(text string) {
			zerolog.Ctx(ctx).Trace().Str("component", "jrpc2").Msg(text)
		},
		NewContext: func() context.Context {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.ctx
		},
	})

	s.mu.Lock()
	s.rpc = srv
	s.notifier = srv
	s.ctx = ctx
	if s.forwardLogs {
		s.ctx = s.ApplyLSPWriter(ctx, srv)
	}
	s.mu.Unlock()

	zerolog.Ctx(ctx).Info().Str("server_id", s.id).Msg("language server starting")
	return srv.Start(ch)
}

func (s *Server) notify(ctx context.Context, method string, params any) {
	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()
	if n == nil {
		return
	}
	if err := n.Notify(ctx, method, params); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("method", method).Msg("sending notification")
	}
}

func (s *Server) initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	cfg := s.Config()

	if root := rootPath(params.RootURI); root != "" && cfg.File == "" {
		updated := *cfg
		updated.Root = root
		cfg = &updated
	}

	if opts := params.InitializationOptions; len(opts) > 0 && string(opts) != "null" {
		applied, err := applySettings(cfg, opts)
		if err != nil {
			return nil, errors.Errorf("reading initialization options: %w", err)
		}
		cfg = applied
	}

	if err := s.reload(ctx, cfg); err != nil {
		return nil, err
	}

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    SyncIncremental,
				Save:      SaveOptions{IncludeText: true},
			},
			HoverProvider:              true,
			CompletionProvider:         CompletionOptions{TriggerCharacters: []string{" ", ":"}},
			DocumentFormattingProvider: true,
		},
		ServerInfo: ServerInfo{Name: Name, Version: s.version},
	}, nil
}

func rootPath(rootURI string) string {
	if rootURI == "" {
		return ""
	}
	u, err := url.Parse(rootURI)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}

// applySettings accepts either the settings object itself or one nested
// under a "jsonnet" section.
func applySettings(cfg *config.Config, raw json.RawMessage) (*config.Config, error) {
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, errors.Errorf("decoding settings: %w", err)
	}
	if section, ok := settings["jsonnet"].(map[string]any); ok {
		settings = section
	}
	return cfg.Apply(settings)
}

// reload installs cfg: a fresh compiler, schema associations and compile
// settings. Cached output is dropped.
func (s *Server) reload(ctx context.Context, cfg *config.Config) error {
	settings, err := workspace.SettingsFrom(cfg, s.disk)
	if err != nil {
		return errors.Errorf("loading settings: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.compiler.Load(workspace.NewCompiler(cfg))
	s.schemas.Configure(cfg.Associations(), cfg.EnableSchemaRequest)
	s.workspace.Configure(settings)
	s.debouncer.SetDelay(cfg.Debounce)

	zerolog.Ctx(ctx).Debug().
		Int("libraries", len(settings.Libraries)).
		Int("schemas", len(cfg.Schemas)).
		Dur("debounce", cfg.Debounce).
		Msg("configuration loaded")
	return nil
}

func ignore(context.Context, json.RawMessage) error {
	return nil
}

func (s *Server) initialized(ctx context.Context, _ json.RawMessage) error {
	zerolog.Ctx(ctx).Debug().Msg("client initialized")
	return nil
}

func (s *Server) shutdownRequest(ctx context.Context) error {
	s.shutdown.Store(true)
	s.debouncer.Stop()

	open, err := s.files.Paths()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("listing open documents")
	}
	zerolog.Ctx(ctx).Info().Strs("open", open).Msg("shutting down")
	return nil
}

func (s *Server) exit(ctx context.Context) error {
	if !s.shutdown.Load() {
		zerolog.Ctx(ctx).Warn().Msg("exit without shutdown")
	}
	s.debouncer.Stop()
	s.mu.RLock()
	srv := s.rpc
	s.mu.RUnlock()
	if srv != nil {
		go srv.Stop()
	}
	return nil
}

func (s *Server) didOpen(ctx context.Context, params *DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	zerolog.Ctx(ctx).Debug().Str("uri", doc.URI).Int32("version", doc.Version).Msg("document opened")

	if err := s.documents.Open(&Document{
		URI:        doc.URI,
		LanguageID: doc.LanguageID,
		Version:    doc.Version,
		Content:    doc.Text,
	}); err != nil {
		return err
	}

	go s.validate(context.WithoutCancel(ctx), doc.URI, doc.Version)
	return nil
}

func (s *Server) didChange(ctx context.Context, params *DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc, err := s.documents.Change(ctx, uri, params.TextDocument.Version, params.ContentChanges)
	if err != nil {
		return err
	}
	s.scheduleValidation(ctx, uri, doc.Version)
	return nil
}

func (s *Server) didSave(ctx context.Context, params *DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI
	if params.Text != nil {
		if err := s.documents.Replace(uri, *params.Text); err != nil {
			return err
		}
	}
	version, ok := s.documents.Version(uri)
	if !ok {
		return errors.Errorf("document not found: %s", uri)
	}
	s.scheduleValidation(ctx, uri, version)
	return nil
}

func (s *Server) didClose(ctx context.Context, params *DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("document closed")

	s.debouncer.Cancel(uri)
	if err := s.documents.Close(uri); err != nil {
		return err
	}
	s.workspace.Forget(vfs.PathFromURI(uri))
	s.schemas.Reset(uri)

	s.notify(ctx, "textDocument/publishDiagnostics", PublishDiagnosticsParams{URI: uri, Diagnostics: []Diagnostic{}})
	return nil
}

func (s *Server) scheduleValidation(ctx context.Context, uri string, version int32) {
	bg := context.WithoutCancel(ctx)
	s.debouncer.Schedule(uri, func() {
		s.validate(bg, uri, version)
	})
}

// validate publishes diagnostics for version of uri unless the document has
// moved on by the time they are ready.
func (s *Server) validate(ctx context.Context, uri string, version int32) {
	logger := zerolog.Ctx(ctx).With().Str("run_id", uuid.NewString()).Str("uri", uri).Int32("version", version).Logger()
	ctx = logger.WithContext(ctx)

	report, err := s.workspace.Validate(ctx, uri, version)
	if err != nil {
		if errors.Is(err, compiler.ErrCompilerNotLoaded) {
			logger.Debug().Msg("validation before initialize")
			return
		}
		logger.Error().Err(err).Msg("validating document")
		return
	}

	current, ok := s.documents.Version(uri)
	if !ok || current != report.Version {
		logger.Trace().Int32("current", current).Msg("dropping stale diagnostics")
		return
	}

	v := report.Version
	s.notify(ctx, "textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Version:     &v,
		Diagnostics: toDiagnostics(report.Diagnostics),
	})
	logger.Debug().Int("diagnostics", len(report.Diagnostics)).Msg("published diagnostics")
}

func (s *Server) hover(ctx context.Context, params *TextDocumentPositionParams) (*Hover, error) {
	h, err := s.workspace.Hover(ctx, params.TextDocument.URI, params.Position.place())
	if err != nil {
		return nil, errors.Errorf("hover: %w", err)
	}
	if h == nil {
		return nil, nil
	}
	r := toRange(h.Range)
	return &Hover{Contents: MarkupContent{Kind: "markdown", Value: h.Content}, Range: &r}, nil
}

func (s *Server) completion(ctx context.Context, params *TextDocumentPositionParams) (*CompletionList, error) {
	list, err := s.workspace.Complete(ctx, params.TextDocument.URI, params.Position.place())
	if err != nil {
		return nil, errors.Errorf("completion: %w", err)
	}
	return toCompletionList(list), nil
}

func (s *Server) formatting(ctx context.Context, params *DocumentFormattingParams) ([]TextEdit, error) {
	edits, err := s.workspace.Format(ctx, params.TextDocument.URI)
	if err != nil {
		return nil, errors.Errorf("formatting: %w", err)
	}
	return toTextEdits(edits), nil
}

func (s *Server) didChangeConfiguration(ctx context.Context, params *DidChangeConfigurationParams) error {
	if len(params.Settings) == 0 || string(params.Settings) == "null" {
		return nil
	}
	cfg, err := applySettings(s.Config(), params.Settings)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("rejecting configuration")
		return err
	}
	if err := s.reload(ctx, cfg); err != nil {
		return err
	}
	s.Revalidate(ctx)
	return nil
}

// Revalidate schedules validation of every open document.
func (s *Server) Revalidate(ctx context.Context) {
	for _, uri := range s.documents.URIs() {
		if v, ok := s.documents.Version(uri); ok {
			s.scheduleValidation(ctx, uri, v)
		}
	}
}

// Reload installs a new configuration, as when the config file changes.
func (s *Server) Reload(ctx context.Context, cfg *config.Config) error {
	if err := s.reload(ctx, cfg); err != nil {
		return err
	}
	s.Revalidate(ctx)
	return nil
}

func (s *Server) compile(ctx context.Context, params *CompileParams) (*CompileResult, error) {
	a, err := s.workspace.Compile(ctx, vfs.PathFromURI(params.TextDocument.URI))
	if err != nil {
		return nil, err
	}
	return &CompileResult{Output: a.JSON}, nil
}

func (s *Server) locatePaths(ctx context.Context, params *LocatePathsParams) ([]*Range, error) {
	ranges, err := s.workspace.LocatePaths(ctx, params.TextDocument.URI, params.Paths)
	if err != nil {
		return nil, err
	}
	out := make([]*Range, len(ranges))
	for i, r := range ranges {
		if r != nil {
			wire := toRange(*r)
			out[i] = &wire
		}
	}
	return out, nil
}
