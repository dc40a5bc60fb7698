// Package locate prints where output paths come from in a Jsonnet source
// file.
package locate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/pkg/jsonpath"
	"github.com/walteh/jsonnetls/pkg/workspace"
)

type Handler struct {
	out io.Writer
}

func NewHandler(out io.Writer) *Handler {
	return &Handler{out: out}
}

func NewLocateCommand() *cobra.Command {
	me := NewHandler(os.Stdout)

	cmd := &cobra.Command{
		Use:   "locate <file> <path...>",
		Short: "print the source range of dotted output paths such as spec.containers.0",
		Args:  cobra.MinimumNArgs(2),
	}

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
		me.out = cmd.OutOrStdout()
		return me.Run(ctx, ws, args[0], args[1:])
	}

	return cmd
}

// Run prints one line per path: path, then file:line:col-line:col with
// one-based positions. Paths that do not exist resolve to their closest
// existing ancestor; "not found" means the file has no addressable root.
func (me *Handler) Run(ctx context.Context, ws *workspace.Workspace, file string, dotted []string) error {
	uri, err := setup.URI(file)
	if err != nil {
		return err
	}

	paths := make([]jsonpath.Path, len(dotted))
	for i, d := range dotted {
		paths[i] = jsonpath.ParseDotted(d)
	}

	ranges, err := ws.LocatePaths(ctx, uri, paths)
	if err != nil {
		return err
	}

	for i, r := range ranges {
		name := color.New(color.Bold).Sprint(dotted[i])
		if r == nil {
			fmt.Fprintf(me.out, "%s\t%s\n", name, color.New(color.Faint).Sprint("not found"))
			continue
		}
		fmt.Fprintf(me.out, "%s\t%s:%d:%d-%d:%d\n", name, file,
			r.Start.Line+1, r.Start.Character+1, r.End.Line+1, r.End.Character+1)
	}
	return nil
}
