package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/shirou/gopsutil/cpu"
	tmos "github.com/tendermint/tendermint/libs/os"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/operator"
	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/polycache"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	LogFormatPlain = "plain"
	LogFormatJSON  = "json"

	DefaultLogLevel = "info"
	DefaultDirPerm  = 0o700

	defaultConfigDir  = "config"
	defaultConfigFile = "config.toml"
	defaultCacheDir   = "cache"
)

type SearchConfig struct {
	MaxDegree          int  `mapstructure:"max_degree"`
	MaxAlpha           int  `mapstructure:"max_alpha"`
	MaxGuardBits       int  `mapstructure:"max_guard_bits"`
	ExhaustiveMaxWidth int  `mapstructure:"exhaustive_max_width"`
	Workers            int  `mapstructure:"workers"`
	TableCompression   bool `mapstructure:"table_compression"`
}

type Config struct {
	RootDir string `mapstructure:"home"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	CacheBackend string `mapstructure:"cache_backend"`
	CacheDir     string `mapstructure:"cache_dir"`

	Target types.TargetParams `mapstructure:"target"`
	Search SearchConfig       `mapstructure:"search"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:     DefaultLogLevel,
		LogFormat:    LogFormatPlain,
		CacheBackend: polycache.BackendGoLevelDB,
		CacheDir:     defaultCacheDir,
		Target:       types.DefaultTargetParams(),
		Search: SearchConfig{
			MaxDegree:          polyapprox.DefaultMaxDegree,
			MaxAlpha:           piecewise.DefaultMaxAlpha,
			MaxGuardBits:       0,
			ExhaustiveMaxWidth: fixfunc.DefaultExhaustiveMaxWidth,
			Workers:            0,
			TableCompression:   true,
		},
	}
}

func (c *Config) SetRoot(root string) *Config {
	c.RootDir = root
	return c
}

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func (c *Config) ConfigFile() string {
	return filepath.Join(c.RootDir, defaultConfigDir, defaultConfigFile)
}

func (c *Config) CacheDirPath() string {
	return rootify(c.CacheDir, c.RootDir)
}

func (c *Config) ValidateBasic() xerrors.XError {
	switch c.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return xerrors.ErrInvalidParams.Wrapf("unknown log_format %q", c.LogFormat)
	}
	switch c.CacheBackend {
	case polycache.BackendGoLevelDB, polycache.BackendMemDB, polycache.BackendIAVL, polycache.BackendNone:
	default:
		return xerrors.ErrInvalidParams.Wrapf("unknown cache_backend %q", c.CacheBackend)
	}
	if c.Search.Workers < 0 {
		return xerrors.ErrInvalidParams.Wrapf("workers(%d) is negative", c.Search.Workers)
	}
	if c.Search.MaxDegree < 0 || c.Search.MaxAlpha < 0 || c.Search.MaxGuardBits < 0 {
		return xerrors.ErrInvalidParams.Wrapf("negative search bound in %+v", c.Search)
	}
	return c.Target.Validate()
}

// Workers is the configured worker count, the number of physical cores when 0.
func (c *Config) Workers() int {
	if c.Search.Workers > 0 {
		return c.Search.Workers
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (c *Config) GeneratorParams() operator.Params {
	return operator.Params{
		Target:             c.Target,
		MaxDegree:          c.Search.MaxDegree,
		MaxAlpha:           c.Search.MaxAlpha,
		MaxGuardBits:       c.Search.MaxGuardBits,
		ExhaustiveMaxWidth: c.Search.ExhaustiveMaxWidth,
		Workers:            c.Workers(),
		TableCompression:   c.Search.TableCompression,
	}
}

// EnsureRoot creates the root and config directories.
func EnsureRoot(root string) xerrors.XError {
	if err := tmos.EnsureDir(root, DefaultDirPerm); err != nil {
		return xerrors.ErrCommon.Wrap(err)
	}
	if err := tmos.EnsureDir(filepath.Join(root, defaultConfigDir), DefaultDirPerm); err != nil {
		return xerrors.ErrCommon.Wrap(err)
	}
	return nil
}

var configTemplate = template.Must(template.New("configFileTemplate").Parse(defaultConfigTemplate))

// WriteConfigFile renders c into its config file.
func WriteConfigFile(c *Config) xerrors.XError {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, c); err != nil {
		return xerrors.ErrCommon.Wrap(err)
	}
	if err := os.WriteFile(c.ConfigFile(), buf.Bytes(), 0o644); err != nil {
		return xerrors.ErrCommon.Wrap(err)
	}
	return nil
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# Output level for logging: "info", "debug", "error", "none"
# or per module, e.g. "main:info,piecewise:debug,*:error"
log_level = "{{ .LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .LogFormat }}"

# Polynomial cache backend: goleveldb | memdb | iavl | none
cache_backend = "{{ .CacheBackend }}"

# Cache directory, relative to the home directory unless absolute
cache_dir = "{{ .CacheDir }}"

[target]

# Inputs of the target's logic LUTs
lut_input_size = {{ .Target.LUTInputSize }}

# Bits of one embedded memory block
memory_block_bits = {{ .Target.MemoryBlockBits }}

# Whether multiply-add blocks round faithfully
has_faithful_multiply_add = {{ .Target.HasFaithfulMultiplyAdd }}

# Tables of at most this many bits go to logic instead of memory blocks
prefer_logic_table_threshold = {{ .Target.PreferLogicTableThreshold }}

[search]

# Highest polynomial degree tried
max_degree = {{ .Search.MaxDegree }}

# Deepest domain split, 2^max_alpha intervals
max_alpha = {{ .Search.MaxAlpha }}

# Cap of Horner guard bits, 0 for the default
max_guard_bits = {{ .Search.MaxGuardBits }}

# Widest input that is checked exhaustively
exhaustive_max_width = {{ .Search.ExhaustiveMaxWidth }}

# Parallel workers, 0 for the number of physical cores
workers = {{ .Search.Workers }}

# Apply differential compression to tables
table_compression = {{ .Search.TableCompression }}
`
