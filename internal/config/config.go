package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
)

// Default configuration values
const (
	ProjectFile    = "nxbuild.toml"
	BaseProfile    = "none"
	DefaultVerbose = false
)

// Config is the project file plus command line settings
type Config struct {
	Module Module        `mapstructure:"module"`
	Build  BuildSection  `mapstructure:"build"`
	Check  *CheckSection `mapstructure:"check"`
	Cargo  *Cargo        `mapstructure:"cargo"`

	// Root of the toolchain install; overrides DEVKITPRO
	DevkitPro string `mapstructure:"devkitpro"`

	// Path of the project file, and the directory containing it
	Path string `mapstructure:"-"`
	Root string `mapstructure:"-"`

	// Latest modification time of the project file and the global config
	ModTime time.Time `mapstructure:"-"`

	// Profile requested on the command line
	Profile string `mapstructure:"-"`

	// Enable verbose output
	Verbose bool `mapstructure:"-"`
}

// Module is the [module] section
type Module struct {
	// Name of the final binary
	Name string `mapstructure:"name"`

	// TitleID goes into the generated npdm
	TitleID uint64 `mapstructure:"title-id"`

	// DefaultProfile replaces "none". An empty string means a profile must
	// be named on the command line.
	DefaultProfile *string `mapstructure:"default-profile"`

	// DisallowBaseProfile rejects builds with the base profile
	DisallowBaseProfile bool `mapstructure:"disallow-base-profile"`
}

// TitleIDHex formats the title ID as 16 lower-case hex digits
func (m Module) TitleIDHex() string {
	return fmt.Sprintf("%016x", m.TitleID)
}

// Build is the [build] section, or one of its profiles
type Build struct {
	// Entry symbol of the module
	Entry string `mapstructure:"entry"`

	// Directories, relative to the project root
	Sources   []string `mapstructure:"sources"`
	Includes  []string `mapstructure:"includes"`
	LibPaths  []string `mapstructure:"libpaths"`
	LdScripts []string `mapstructure:"ldscripts"`

	// Glob patterns, relative to the project root, of sources to skip
	Exclude []string `mapstructure:"exclude"`

	Libraries []string `mapstructure:"libraries"`

	Flags compiler.FlagConfig `mapstructure:"flags"`
}

// Check is the [check] section, or one of its profiles
type Check struct {
	// Symbols that may stay unresolved
	Ignore []string `mapstructure:"ignore"`

	// Symbol listing files (objdump -T output) of what the host provides
	Symbols []string `mapstructure:"symbols"`

	// Extra regular expressions of instructions to reject
	DisallowedInstructions []string `mapstructure:"disallowed-instructions"`
}

// Cargo is the [cargo] section describing an optional Rust crate that is
// built as a static library and linked into the module
type Cargo struct {
	// Enabled forces the crate on or off. Unset builds it when the manifest
	// exists.
	Enabled *bool `mapstructure:"enabled"`

	// Manifest path relative to the project root, Cargo.toml by default
	Manifest string `mapstructure:"manifest"`

	// Cargo executable; looked up on PATH when empty
	Cargo string `mapstructure:"cargo"`

	// Toolchain is passed as +<toolchain> when set
	Toolchain string `mapstructure:"toolchain"`

	// Target triple the static library is built for
	Target string `mapstructure:"target"`

	Flags     []string `mapstructure:"flags"`
	RustFlags []string `mapstructure:"rustflags"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ProjectFile, err)
	}

	cfg.Path = viper.ConfigFileUsed()
	cfg.Profile = viper.GetString("profile")
	cfg.Verbose = viper.GetBool("verbose")

	if cfg.Profile == "" {
		cfg.Profile = BaseProfile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and resolves the project root.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("no %s found", ProjectFile)
	}

	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("invalid project file path: %v", err)
	}

	c.Path = abs
	c.Root = filepath.Dir(abs)

	if c.Module.Name == "" {
		return fmt.Errorf("module.name is required")
	}

	if c.DevkitPro != "" {
		abs, err := filepath.Abs(c.DevkitPro)
		if err != nil {
			return fmt.Errorf("invalid devkitpro path: %v", err)
		}

		c.DevkitPro = abs
	}

	return nil
}

// ResolvedBuild returns the build settings of a profile with every path made
// absolute against the project root.
func (c *Config) ResolvedBuild(profile string) (Build, error) {
	b := c.Build.Profile(profile)

	if b.Entry == "" {
		return Build{}, fmt.Errorf("build.entry is required")
	}

	if len(b.Sources) == 0 {
		return Build{}, fmt.Errorf("build.sources must name at least one directory")
	}

	b.Sources = c.absAll(b.Sources)
	b.Includes = c.absAll(b.Includes)
	b.LibPaths = c.absAll(b.LibPaths)
	b.LdScripts = c.absAll(b.LdScripts)
	b.Exclude = c.absAll(b.Exclude)

	return b, nil
}

// ResolvedCheck returns the check settings of a profile, or nil when the
// project has no [check] section.
func (c *Config) ResolvedCheck(profile string) *Check {
	if c.Check == nil {
		return nil
	}

	ch := c.Check.Profile(profile)
	ch.Symbols = c.absAll(ch.Symbols)

	return &ch
}

func (c *Config) absAll(paths []string) []string {
	if paths == nil {
		return nil
	}

	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = filepath.Clean(p)
		} else {
			out[i] = filepath.Join(c.Root, p)
		}
	}

	return out
}
