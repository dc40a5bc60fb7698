// Package setup holds the plumbing every jsonnetls subcommand shares.
package setup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/walteh/jsonnetls/pkg/config"
	"github.com/walteh/jsonnetls/pkg/debug"
	"github.com/walteh/jsonnetls/pkg/schema"
	"github.com/walteh/jsonnetls/pkg/vfs"
	"github.com/walteh/jsonnetls/pkg/workspace"
)

// AddGlobalFlags registers the flags every subcommand understands.
func AddGlobalFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default: jsonnetls.yaml in the working directory)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringToString("ext-vars", nil, "external variables as jsonnet code, e.g. env='prod'")
	flags.StringToString("tla-vars", nil, "top-level arguments as jsonnet code")
	flags.Bool("enable-schema-request", false, "allow fetching schemas over http(s)")
	flags.Bool("strip-non-ascii", false, "remove non-ASCII characters before compiling")
}

// Config loads the configuration for cmd, honoring its flags.
func Config(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	return config.Load(file, cmd.Flags())
}

// Logger returns ctx carrying a stderr logger at the configured level.
func Logger(ctx context.Context, cfg *config.Config) context.Context {
	pretty := isatty.IsTerminal(os.Stderr.Fd())
	logger := debug.NewLogger(os.Stderr, debug.ParseLevel(cfg.LogLevel), pretty)
	return logger.WithContext(ctx)
}

// Workspace builds a workspace reading documents from disk.
func Workspace(ctx context.Context, cfg *config.Config) (*workspace.Workspace, error) {
	files := vfs.New(vfs.WithDiskRoot("/"))

	schemas := schema.NewStore()
	schemas.Configure(cfg.Associations(), cfg.EnableSchemaRequest)

	settings, err := workspace.SettingsFrom(cfg, afero.NewOsFs())
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("root", cfg.Root).Int("libraries", len(settings.Libraries)).Msg("workspace ready")

	return workspace.New(files, workspace.NewCompiler(cfg), schemas,
		workspace.WithCacheSize(cfg.CacheSize),
		workspace.WithSettings(settings),
		workspace.WithDiskRoot(cfg.Root),
	), nil
}

// URI returns the file URI of a path given on the command line.
func URI(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
