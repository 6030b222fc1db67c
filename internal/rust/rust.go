// Package rust builds a module's optional Cargo crate into a static library
// that is linked together with the C and C++ objects.
package rust

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/staleness"
)

const (
	DefaultManifest = "Cargo.toml"
	DefaultTarget   = "aarch64-unknown-hermit"
)

var ErrNoPackageName = errors.New("package.name is missing")

var lookPath = exec.LookPath

// Crate is a Cargo package built for the module
type Crate struct {
	Manifest string
	Name     string
	Cargo    string

	Toolchain string
	Target    string
	Flags     []string
	RustFlags []string
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// Load returns the crate described by the project, or nil when there is none
// to build. A crate that is explicitly enabled must exist.
func Load(cfg *config.Config) (*Crate, error) {
	settings := config.Cargo{}
	if cfg.Cargo != nil {
		settings = *cfg.Cargo
	}

	if settings.Enabled != nil && !*settings.Enabled {
		return nil, nil
	}

	manifest := settings.Manifest
	if manifest == "" {
		manifest = DefaultManifest
	}
	if !filepath.IsAbs(manifest) {
		manifest = filepath.Join(cfg.Root, manifest)
	}

	if _, err := os.Stat(manifest); err != nil {
		if settings.Enabled == nil {
			return nil, nil
		}

		return nil, fmt.Errorf("cargo enabled, but failed to find the crate: %w", err)
	}

	var m cargoManifest
	if _, err := toml.DecodeFile(manifest, &m); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", manifest, err)
	}

	if m.Package.Name == "" {
		return nil, fmt.Errorf("%s: %w", manifest, ErrNoPackageName)
	}

	cargo := settings.Cargo
	if cargo == "" {
		path, err := lookPath("cargo")
		if err != nil {
			return nil, fmt.Errorf("cargo executable not found: %w", err)
		}

		cargo = path
	}

	target := settings.Target
	if target == "" {
		target = DefaultTarget
	}

	return &Crate{
		Manifest:  manifest,
		Name:      m.Package.Name,
		Cargo:     cargo,
		Toolchain: settings.Toolchain,
		Target:    target,
		Flags:     settings.Flags,
		RustFlags: settings.RustFlags,
	}, nil
}

// Output is the static library cargo produces for the crate
func (c *Crate) Output() string {
	lib := "lib" + strings.ReplaceAll(c.Name, "-", "_") + ".a"
	return filepath.Join(filepath.Dir(c.Manifest), "target", c.Target, "release", lib)
}

// Command is the cargo invocation building the release library
func (c *Crate) Command() *compiler.ShellCommand {
	var args []string
	if c.Toolchain != "" {
		args = append(args, "+"+c.Toolchain)
	}

	args = append(args, "build", "--release", "--target", c.Target, "--manifest-path", c.Manifest)
	args = append(args, c.Flags...)

	cmd := &compiler.ShellCommand{Path: c.Cargo, Args: args}
	if len(c.RustFlags) > 0 {
		cmd.Env = []string{"RUSTFLAGS=" + strings.Join(c.RustFlags, " ")}
	}

	return cmd
}

// Build runs cargo and reports whether the library changed. Cargo decides
// itself what to rebuild, so it always runs.
func (c *Crate) Build(ctx context.Context, runner compiler.Runner) (bool, error) {
	before, hadOutput := staleness.Mtime(c.Output())

	if _, err := runner.Run(ctx, c.Command()); err != nil {
		return false, err
	}

	after, ok := staleness.Mtime(c.Output())
	if !ok {
		return false, fmt.Errorf("cargo did not produce %s", c.Output())
	}

	return !hadOutput || !after.Equal(before), nil
}
