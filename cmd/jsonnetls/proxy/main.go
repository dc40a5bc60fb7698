// Package proxy bridges stdio to a language server listening on a unix
// socket, for editors that can only spawn a process.
package proxy

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

func NewProxyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy <socket-path>",
		Short: "connect stdio to a server started with serve-lsp --socket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), args[0], os.Stdin, os.Stdout)
		},
	}
}

// Run copies in to the socket and the socket to out. Once in is exhausted
// the write side of the connection is closed and Run waits for the server to
// finish.
func Run(ctx context.Context, socketPath string, in io.Reader, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return errors.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sent := make(chan error, 1)
	go func() {
		_, err := io.Copy(conn, in)
		if uc, ok := conn.(*net.UnixConn); ok {
			_ = uc.CloseWrite()
		}
		sent <- err
	}()

	if _, err := io.Copy(out, conn); err != nil && ctx.Err() == nil {
		return errors.Errorf("reading from %s: %w", socketPath, err)
	}

	select {
	case err := <-sent:
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("stdin copy ended")
		}
	default:
	}
	return nil
}
