// Package config loads server settings from defaults, a YAML file, the
// environment, command line flags and editor-provided overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jsonnetls/pkg/compiler"
	"github.com/walteh/jsonnetls/pkg/schema"
)

const (
	EnvPrefix       = "JSONNETLS_"
	DefaultDebounce = 500 * time.Millisecond
	DefaultCache    = 100
)

// FileNames are looked up in the working directory when no file is given.
var FileNames = []string{"jsonnetls.yaml", "jsonnetls.yml", ".jsonnetls.yaml"}

type Library struct {
	Name    string `koanf:"name"`
	Content string `koanf:"content"`
	// Path is read relative to Root when Content is empty.
	Path string `koanf:"path"`
}

type Schema struct {
	FileMatch []string `koanf:"file_match"`
	URI       string   `koanf:"uri"`
	Schema    string   `koanf:"schema"`
}

type Config struct {
	ExtVars             map[string]string `koanf:"ext_vars"`
	TLAVars             map[string]string `koanf:"tla_vars"`
	Libraries           []Library         `koanf:"libraries"`
	Schemas             []Schema          `koanf:"schemas"`
	EnableSchemaRequest bool              `koanf:"enable_schema_request"`
	CacheSize           int               `koanf:"cache_size"`
	ParseCacheSize      int               `koanf:"parse_cache_size"`
	Debounce            time.Duration     `koanf:"debounce"`
	StripNonASCII       bool              `koanf:"strip_non_ascii"`
	LogLevel            string            `koanf:"log_level"`
	Root                string            `koanf:"root"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

func defaults() map[string]any {
	return map[string]any{
		"cache_size":            DefaultCache,
		"parse_cache_size":      DefaultCache,
		"debounce":              DefaultDebounce.String(),
		"enable_schema_request": false,
		"strip_non_ascii":       false,
		"log_level":             "info",
	}
}

func findFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration. Precedence, highest first: flags that were
// set explicitly, JSONNETLS_* environment variables, the config file,
// defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Errorf("loading defaults: %w", err)
	}

	used := findFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errors.Errorf("reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, errors.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if f.Value.Type() == "stringToString" {
				m, _ := flags.GetStringToString(f.Name)
				out := make(map[string]any, len(m))
				for k, v := range m {
					out[k] = v
				}
				return key, out
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Errorf("decoding config: %w", err)
	}

	cfg.File = used
	if cfg.Root == "" && used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			cfg.Root = filepath.Dir(abs)
		}
	}
	if cfg.Root == "" {
		cfg.Root, _ = os.Getwd()
	}

	return &cfg, cfg.Validate()
}

// Apply returns a copy of c with overrides applied. Top-level keys in
// overrides replace the existing value wholesale; camelCase keys, as editors
// send them, are accepted.
func (c *Config) Apply(overrides map[string]any) (*Config, error) {
	base := c.toMap()
	for key, v := range overrides {
		base[snake(key)] = normalize(v)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(base, ""), nil); err != nil {
		return nil, errors.Errorf("loading overrides: %w", err)
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return nil, errors.Errorf("decoding overrides: %w", err)
	}
	out.File = c.File
	if out.Root == "" {
		out.Root = c.Root
	}
	return &out, out.Validate()
}

func (c *Config) toMap() map[string]any {
	libs := make([]any, len(c.Libraries))
	for i, l := range c.Libraries {
		libs[i] = map[string]any{"name": l.Name, "content": l.Content, "path": l.Path}
	}
	schemas := make([]any, len(c.Schemas))
	for i, s := range c.Schemas {
		schemas[i] = map[string]any{"file_match": s.FileMatch, "uri": s.URI, "schema": s.Schema}
	}
	return map[string]any{
		"ext_vars":              c.ExtVars,
		"tla_vars":              c.TLAVars,
		"libraries":             libs,
		"schemas":               schemas,
		"enable_schema_request": c.EnableSchemaRequest,
		"cache_size":            c.CacheSize,
		"parse_cache_size":      c.ParseCacheSize,
		"debounce":              c.Debounce.String(),
		"strip_non_ascii":       c.StripNonASCII,
		"log_level":             c.LogLevel,
		"root":                  c.Root,
	}
}

// snake converts extVars or ext-vars to ext_vars.
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalize snake-cases the keys of maps nested in lists, such as the
// fileMatch key of a schema entry. Map values keyed by user names (ext vars)
// are left alone.
func normalize(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			out[i] = e
			continue
		}
		nm := make(map[string]any, len(m))
		for k, mv := range m {
			nm[snake(k)] = mv
		}
		out[i] = nm
	}
	return out
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.CacheSize < 0 {
		result = multierror.Append(result, errors.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}
	if c.ParseCacheSize < 0 {
		result = multierror.Append(result, errors.Errorf("parse_cache_size must not be negative, got %d", c.ParseCacheSize))
	}
	if c.Debounce < 0 {
		result = multierror.Append(result, errors.Errorf("debounce must not be negative, got %s", c.Debounce))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			result = multierror.Append(result, errors.Errorf("log_level: %w", err))
		}
	}
	for i, l := range c.Libraries {
		if l.Name == "" {
			result = multierror.Append(result, errors.Errorf("libraries[%d]: name is required", i))
		}
		if l.Content == "" && l.Path == "" {
			result = multierror.Append(result, errors.Errorf("libraries[%d]: one of content or path is required", i))
		}
	}
	for i, s := range c.Schemas {
		if len(s.FileMatch) == 0 {
			result = multierror.Append(result, errors.Errorf("schemas[%d]: file_match is required", i))
		}
		if s.URI == "" && s.Schema == "" {
			result = multierror.Append(result, errors.Errorf("schemas[%d]: one of uri or schema is required", i))
		}
	}

	return result.ErrorOrNil()
}

// ResolveLibraries reads path-based libraries from fs, relative to Root.
func (c *Config) ResolveLibraries(fs afero.Fs) ([]compiler.Library, error) {
	out := make([]compiler.Library, 0, len(c.Libraries))
	for _, l := range c.Libraries {
		content := l.Content
		if content == "" && l.Path != "" {
			p := l.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(c.Root, p)
			}
			data, err := afero.ReadFile(fs, p)
			if err != nil {
				return nil, errors.Errorf("reading library %s: %w", l.Name, err)
			}
			content = string(data)
		}
		out = append(out, compiler.Library{Name: l.Name, Content: content})
	}
	return out, nil
}

func (c *Config) Associations() []schema.Association {
	out := make([]schema.Association, 0, len(c.Schemas))
	for _, s := range c.Schemas {
		out = append(out, schema.Association{FileMatch: s.FileMatch, URI: s.URI, Schema: s.Schema})
	}
	return out
}
