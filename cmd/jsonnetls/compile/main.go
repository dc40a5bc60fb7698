package compile

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/pkg/vfs"
	"github.com/walteh/jsonnetls/pkg/workspace"
)

type Handler struct {
	output  string
	timeout time.Duration
}

func NewCompileCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "compile a Jsonnet file to JSON",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringVarP(&me.output, "output", "o", "", "write JSON here instead of stdout")
	cmd.Flags().DurationVar(&me.timeout, "timeout", 30*time.Second, "give up after this long")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := setup.Config(cmd)
		if err != nil {
			return err
		}
		ctx := setup.Logger(cmd.Context(), cfg)

		ws, err := setup.Workspace(ctx, cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if me.output != "" {
			f, err := os.Create(me.output)
			if err != nil {
				return errors.Errorf("creating %s: %w", me.output, err)
			}
			defer f.Close()
			out = f
		}

		return me.Run(ctx, ws, args[0], out)
	}

	return cmd
}

// Run compiles file and writes its JSON to out.
func (me *Handler) Run(ctx context.Context, ws *workspace.Workspace, file string, out io.Writer) error {
	if me.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, me.timeout)
		defer cancel()
	}

	uri, err := setup.URI(file)
	if err != nil {
		return errors.Errorf("resolving %s: %w", file, err)
	}

	start := time.Now()
	a, err := ws.Compile(ctx, vfs.PathFromURI(uri))
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("file", file).Dur("took", time.Since(start)).Msg("compile finished")

	if _, err := io.WriteString(out, a.JSON); err != nil {
		return errors.Errorf("writing output: %w", err)
	}
	return nil
}

func NewHandler(timeout time.Duration) *Handler {
	return &Handler{timeout: timeout}
}
