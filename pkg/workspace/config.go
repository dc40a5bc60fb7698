package workspace

import (
	"github.com/spf13/afero"

	"github.com/walteh/jsonnetls/pkg/cache"
	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/config"
)

// NewCompiler builds the Jsonnet backend described by cfg.
func NewCompiler(cfg *config.Config) *compiler.JsonnetCompiler {
	return compiler.NewJsonnetCompiler(
		compiler.WithStripNonASCII(cfg.StripNonASCII),
		compiler.WithParseCache(cache.NewParseCache(cfg.ParseCacheSize)),
	)
}

// SettingsFrom reads the compile settings out of cfg. Libraries given by path
// are read from disk.
func SettingsFrom(cfg *config.Config, disk afero.Fs) (Settings, error) {
	libs, err := cfg.ResolveLibraries(disk)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		ExtVars:   cfg.ExtVars,
		TLAVars:   cfg.TLAVars,
		Libraries: libs,
	}, nil
}
