package fmt_cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/pkg/diff"
	"github.com/walteh/jsonnetls/pkg/format"
)

// ErrUnformatted is returned by --check and --diff when a file would change.
var ErrUnformatted = errors.Base("files are not formatted")

type Handler struct {
	write bool
	check bool
	diff  bool
	out   io.Writer
}

func NewHandler(out io.Writer, write, check bool) *Handler {
	return &Handler{out: out, write: write, check: check}
}

// WithDiff makes Run print diffs of files that would change.
func (me *Handler) WithDiff() *Handler {
	me.diff = true
	return me
}

func NewFmtCommand() *cobra.Command {
	me := NewHandler(os.Stdout, false, false)

	cmd := &cobra.Command{
		Use:   "fmt <files...>",
		Short: "format Jsonnet files, honoring .editorconfig",
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.Flags().BoolVarP(&me.write, "write", "w", false, "rewrite files in place")
	cmd.Flags().BoolVar(&me.check, "check", false, "list files that would change and fail if any")
	cmd.Flags().BoolVarP(&me.diff, "diff", "d", false, "print a diff instead of the formatted text")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := setup.Config(cmd)
		if err != nil {
			return err
		}
		me.out = cmd.OutOrStdout()
		return me.Run(setup.Logger(cmd.Context(), cfg), args)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, files []string) error {
	var errs error
	changed := 0

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = multierr.Append(errs, errors.Errorf("reading %s: %w", file, err))
			continue
		}

		out, err := format.Format(file, string(data), format.OptionsFor(ctx, file))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		switch {
		case me.diff:
			if d := diff.File(file, string(data), out); d != "" {
				changed++
				fmt.Fprint(me.out, d)
			}
		case me.check:
			if out != string(data) {
				changed++
				fmt.Fprintln(me.out, color.New(color.FgYellow).Sprint(file))
			}
		case me.write:
			if out == string(data) {
				continue
			}
			if err := os.WriteFile(file, []byte(out), 0o644); err != nil {
				errs = multierr.Append(errs, errors.Errorf("writing %s: %w", file, err))
			}
		default:
			if _, err := io.WriteString(me.out, out); err != nil {
				return errors.Errorf("writing output: %w", err)
			}
		}
	}

	if changed > 0 {
		errs = multierr.Append(errs, ErrUnformatted)
	}
	return errs
}
