package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForBuild loads the project containing dir, or the working directory
// when dir is empty.
func (l *Loader) LoadForBuild(cmd *cobra.Command, dir string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()

	if err := l.loadProjectConfig(dir); err != nil {
		return nil, err
	}

	l.bindCommandFlags(cmd)

	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", ProjectFile, err)
	}

	cfg.ModTime = info.ModTime()

	// settings from the global file feed the build too
	if global := FindGlobalConfig(); global != "" {
		if info, err := os.Stat(global); err == nil && info.ModTime().After(cfg.ModTime) {
			cfg.ModTime = info.ModTime()
		}
	}

	return cfg, nil
}

// LoadGlobal reads only the global config and command flags, for commands
// that run outside a project.
func (l *Loader) LoadGlobal(cmd *cobra.Command) (devkitPro string, verbose bool) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.bindCommandFlags(cmd)

	return viper.GetString("devkitpro"), viper.GetBool("verbose")
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("profile", BaseProfile)
	viper.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads user-wide settings such as the toolchain location
func (l *Loader) loadGlobalConfig() {
	path := FindGlobalConfig()
	if path == "" {
		return
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to read %s: %v\n", path, err)
	}
}

// loadProjectConfig finds the project file walking up from dir and merges
// it over the global settings
func (l *Loader) loadProjectConfig(dir string) error {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		dir = cwd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	path := FindProjectFile(abs)
	if path == "" {
		return fmt.Errorf("no %s found in %s or any parent directory", ProjectFile, abs)
	}

	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	if err := viper.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return nil
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	_ = viper.BindPFlag("profile", cmd.Flags().Lookup("profile"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
}
