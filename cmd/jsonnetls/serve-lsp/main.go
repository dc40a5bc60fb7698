package serve_lsp

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/pkg/config"
	"github.com/walteh/jsonnetls/pkg/lsp"
)

type Handler struct {
	version     string
	forwardLogs bool
	watch       bool
	socket      string
}

func NewHandler(version, socket string) *Handler {
	return &Handler{version: version, socket: socket}
}

func NewServeLSPCommand(version string) *cobra.Command {
	me := NewHandler(version, "")

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdio",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().BoolVar(&me.forwardLogs, "forward-logs", true, "send logs to the client as window/logMessage")
	cmd.Flags().BoolVar(&me.watch, "watch-config", true, "reload when the config file changes")
	cmd.Flags().StringVar(&me.socket, "socket", "", "listen on this unix socket instead of stdio, one session per connection")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := setup.Config(cmd)
		if err != nil {
			return err
		}
		return me.Run(setup.Logger(cmd.Context(), cfg), cfg)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, cfg *config.Config) error {
	if me.socket != "" {
		return me.Listen(ctx, cfg)
	}
	return me.Serve(ctx, cfg, os.Stdin, os.Stdout)
}

// Serve runs one session over r and w until the client exits.
func (me *Handler) Serve(ctx context.Context, cfg *config.Config, r io.Reader, w io.WriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := lsp.NewServer(cfg,
		lsp.WithVersion(me.version),
		lsp.WithLogForwarding(me.forwardLogs),
	)

	srv := server.Start(ctx, channel.LSP(r, w))

	if me.watch && cfg.File != "" {
		go func() {
			err := config.Watch(ctx, cfg.File, func(updated *config.Config) {
				if err := server.Reload(ctx, updated); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("applying reloaded config")
				}
			})
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	if err := srv.Wait(); err != nil {
		return errors.Errorf("running language server: %w", err)
	}
	return nil
}

// Listen accepts connections on the unix socket until ctx ends, serving each
// one as its own session.
func (me *Handler) Listen(ctx context.Context, cfg *config.Config) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "unix", me.socket)
	if err != nil {
		return errors.Errorf("listening on %s: %w", me.socket, err)
	}
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	zerolog.Ctx(ctx).Info().Str("socket", me.socket).Msg("waiting for clients")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Errorf("accepting on %s: %w", me.socket, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			if err := me.Serve(ctx, cfg, conn, conn); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("session ended")
			}
		}()
	}
}
