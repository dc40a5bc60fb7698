package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"

	"github.com/walteh/jsonnetls/pkg/debug"
)

// Notifier sends a notification to the client. *jrpc2.Server satisfies it.
type Notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// LSPWriter turns zerolog JSON lines into window/logMessage notifications.
type LSPWriter struct {
	mu       sync.Mutex
	ctx      context.Context
	notifier Notifier
}

func NewLSPWriter(ctx context.Context, notifier Notifier) *LSPWriter {
	return &LSPWriter{ctx: ctx, notifier: notifier}
}

func (w *LSPWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil
	}

	level, _ := entry["level"].(string)
	msg, _ := entry["message"].(string)
	caller, _ := entry["caller"].(string)
	for _, k := range []string{"level", "message", "caller", "time", "server_id"} {
		delete(entry, k)
	}

	var b strings.Builder
	b.WriteString(msg)
	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	if caller != "" {
		fmt.Fprintf(&b, " (%s)", caller)
	}

	// the write itself must not fail the log call
	_ = w.notifier.Notify(w.ctx, "window/logMessage", LogMessageParams{
		Type:    ParseMessageTypeFromZerolog(level),
		Message: b.String(),
	})
	return len(p), nil
}

// ApplyLSPWriter returns ctx with a logger that reports to the client at the
// level of the logger already in ctx.
func (s *Server) ApplyLSPWriter(ctx context.Context, notifier Notifier) context.Context {
	level := zerolog.Ctx(ctx).GetLevel()
	return zerolog.New(NewLSPWriter(ctx, notifier)).
		Level(level).
		With().Str("server_id", s.id).Logger().
		Hook(debug.CallerHook{}).
		WithContext(ctx)
}

// RPCLogger traces every request and response at trace level.
type RPCLogger struct{}

var _ jrpc2.RPCLogger = RPCLogger{}

func (RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Trace().Str("rpc_method", req.Method()).Str("rpc_id", req.ID()).Str("rpc_params", req.ParamString()).Msg("client request")
}

func (RPCLogger) LogResponse(ctx context.Context, rsp *jrpc2.Response) {
	ev := zerolog.Ctx(ctx).Trace().Str("rpc_id", rsp.ID())
	if err := rsp.Error(); err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("server response")
}
