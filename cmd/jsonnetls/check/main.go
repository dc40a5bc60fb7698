// Package check validates Jsonnet files from the command line the same way
// the language server does.
package check

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/pkg/diagnostic"
	"github.com/walteh/jsonnetls/pkg/workspace"
)

var (
	errfmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	warnfmt = color.New(color.FgYellow).SprintFunc()
	info    = color.New(color.FgCyan).SprintFunc()
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
)

// ErrProblems is returned when at least one error-severity diagnostic was
// found.
var ErrProblems = errors.Base("problems found")

type Handler struct {
	out      io.Writer
	jobs     int
	warnings bool
}

func NewHandler(out io.Writer, jobs int) *Handler {
	return &Handler{out: out, jobs: jobs}
}

func NewCheckCommand() *cobra.Command {
	me := NewHandler(os.Stdout, runtime.NumCPU())

	cmd := &cobra.Command{
		Use:   "check [files or globs...]",
		Short: "compile files and validate them against their schemas",
	}

	cmd.Flags().IntVarP(&me.jobs, "jobs", "j", me.jobs, "files checked in parallel")
	cmd.Flags().BoolVar(&me.warnings, "fail-on-warning", false, "exit non-zero on warnings too")

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

		files, err := Expand(cfg.Root, args)
		if err != nil {
			return err
		}
		me.out = cmd.OutOrStdout()
		return me.Run(ctx, ws, files)
	}

	return cmd
}

// Expand resolves args to absolute paths. Arguments that name a file are
// taken relative to the working directory; anything else is a doublestar glob
// below root. No arguments means every .jsonnet file below root.
func Expand(root string, args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"**/*.jsonnet"}
	}

	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if st, err := os.Stat(arg); err == nil && !st.IsDir() {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, errors.Errorf("resolving %s: %w", arg, err)
			}
			add(abs)
			continue
		}
		if !doublestar.ValidatePattern(arg) {
			return nil, errors.Errorf("invalid pattern %q", arg)
		}
		matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(arg), doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("expanding %s: %w", arg, err)
		}
		for _, m := range matches {
			add(filepath.FromSlash(m))
		}
	}

	sort.Strings(out)
	return out, nil
}

type result struct {
	path   string
	report *workspace.Report
}

// Run validates files concurrently and prints every diagnostic. It returns
// ErrProblems, joined with any failure to check a file, when something is
// wrong.
func (me *Handler) Run(ctx context.Context, ws *workspace.Workspace, files []string) error {
	runID := uuid.New().String()
	ctx = zerolog.Ctx(ctx).With().Str("run_id", runID).Logger().WithContext(ctx)

	var (
		mu      sync.Mutex
		results []result
		failed  error
	)

	g, ctx := errgroup.WithContext(ctx)
	if me.jobs > 0 {
		g.SetLimit(me.jobs)
	}

	for _, file := range files {
		g.Go(func() error {
			uri, err := setup.URI(file)
			if err != nil {
				return err
			}
			report, err := ws.Validate(ctx, uri, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = multierr.Append(failed, errors.Errorf("checking %s: %w", file, err))
				return nil
			}
			results = append(results, result{path: file, report: report})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	var errs, warns int
	for _, r := range results {
		for _, d := range r.report.Diagnostics {
			fmt.Fprintln(me.out, Line(r.path, d))
			switch d.Severity {
			case diagnostic.SeverityError:
				errs++
			case diagnostic.SeverityWarning:
				warns++
			}
		}
	}

	zerolog.Ctx(ctx).Debug().Int("files", len(files)).Int("errors", errs).Int("warnings", warns).Msg("check finished")

	if errs > 0 || (me.warnings && warns > 0) {
		fmt.Fprintf(me.out, "%s %d error(s), %d warning(s) in %d file(s)\n", errfmt("✗"), errs, warns, len(files))
		return multierr.Append(ErrProblems, failed)
	}
	if failed != nil {
		return failed
	}
	fmt.Fprintf(me.out, "%s %d file(s) ok\n", success("✓"), len(files))
	return nil
}

// Line renders d as path:line:col: severity: message, with one-based line
// and column.
func Line(path string, d diagnostic.Diagnostic) string {
	sev := d.Severity.String()
	switch d.Severity {
	case diagnostic.SeverityError:
		sev = errfmt(sev)
	case diagnostic.SeverityWarning:
		sev = warnfmt(sev)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", info(path), d.Range.Start.Line+1, d.Range.Start.Character+1, sev, d.Message)
}
