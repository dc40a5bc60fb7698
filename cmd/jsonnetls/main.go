package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/cmd/jsonnetls/check"
	"github.com/walteh/jsonnetls/cmd/jsonnetls/compile"
	fmt_cmd "github.com/walteh/jsonnetls/cmd/jsonnetls/fmt"
	"github.com/walteh/jsonnetls/cmd/jsonnetls/internal/setup"
	"github.com/walteh/jsonnetls/cmd/jsonnetls/locate"
	"github.com/walteh/jsonnetls/cmd/jsonnetls/proxy"
	serve_lsp "github.com/walteh/jsonnetls/cmd/jsonnetls/serve-lsp"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "jsonnetls",
		Short:         "Jsonnet language server and tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	setup.AddGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(&cobra.Command{
		Use:    "raw-version",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(rootCmd.Version)
		},
	})

	rootCmd.AddCommand(serve_lsp.NewServeLSPCommand(rootCmd.Version))
	rootCmd.AddCommand(check.NewCheckCommand())
	rootCmd.AddCommand(compile.NewCompileCommand())
	rootCmd.AddCommand(fmt_cmd.NewFmtCommand())
	rootCmd.AddCommand(locate.NewLocateCommand())
	rootCmd.AddCommand(proxy.NewProxyCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("jsonnetls: %w", err)
	}

	return nil
}
