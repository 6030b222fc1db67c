// Package toolchain locates the devkitPro tools a build needs.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
)

const (
	// EnvDevkitPro is the standard devkitPro install location variable
	EnvDevkitPro = "DEVKITPRO"

	// EnvOverride takes precedence over EnvDevkitPro
	EnvOverride = "NXBUILD_DEVKITPRO"

	triple = "aarch64-none-elf"
)

// ErrNotFound is returned when no toolchain root is configured
var ErrNotFound = errors.New("devkitPro toolchain not found, set DEVKITPRO")

// Toolchain holds absolute paths of the tools invoked by the build
type Toolchain struct {
	Root string

	CC      string
	CXX     string
	Objdump string
	Elf2Nso string
	Npdm    string

	LibnxInclude string
	LibnxLib     string
}

// Discover resolves the toolchain. root, typically from the user config,
// wins over the environment.
func Discover(root string) (*Toolchain, error) {
	if root == "" {
		root = os.Getenv(EnvOverride)
	}

	if root == "" {
		root = os.Getenv(EnvDevkitPro)
	}

	if root == "" {
		return nil, ErrNotFound
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve toolchain root: %w", err)
	}

	return FromRoot(abs), nil
}

// FromRoot lays out the standard devkitPro tree under root
func FromRoot(root string) *Toolchain {
	bin := filepath.Join(root, "devkitA64", "bin")
	tools := filepath.Join(root, "tools", "bin")

	return &Toolchain{
		Root:         root,
		CC:           filepath.Join(bin, triple+"-gcc"),
		CXX:          filepath.Join(bin, triple+"-g++"),
		Objdump:      filepath.Join(bin, triple+"-objdump"),
		Elf2Nso:      filepath.Join(tools, "elf2nso"),
		Npdm:         filepath.Join(tools, "npdmtool"),
		LibnxInclude: filepath.Join(root, "libnx", "include"),
		LibnxLib:     filepath.Join(root, "libnx", "lib"),
	}
}

// Requirement is one file the install must provide
type Requirement struct {
	Name string
	Path string
}

// Requirements lists the tools a build runs, then the libnx headers and
// library it compiles and links against.
func (tc *Toolchain) Requirements() []Requirement {
	return []Requirement{
		{Name: triple + "-gcc", Path: tc.CC},
		{Name: triple + "-g++", Path: tc.CXX},
		{Name: triple + "-objdump", Path: tc.Objdump},
		{Name: "elf2nso", Path: tc.Elf2Nso},
		{Name: "npdmtool", Path: tc.Npdm},
		{Name: "libnx/include", Path: tc.LibnxInclude},
		{Name: "libnx.a", Path: filepath.Join(tc.LibnxLib, "libnx.a")},
	}
}

// Check verifies every tool exists
func (tc *Toolchain) Check() error {
	var missing []string
	for _, path := range []string{tc.CC, tc.CXX, tc.Objdump, tc.Elf2Nso, tc.Npdm} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("toolchain incomplete, missing: %v", missing)
	}

	return nil
}

// SystemIncludes lists the compiler's built-in header directories so that
// editors can resolve them from compile_commands.json.
func (tc *Toolchain) SystemIncludes() []string {
	a64 := filepath.Join(tc.Root, "devkitA64")
	patterns := []string{
		filepath.Join(a64, triple, "include", "c++", "*"),
		filepath.Join(a64, triple, "include", "c++", "*", triple),
		filepath.Join(a64, triple, "include"),
		filepath.Join(a64, "lib", "gcc", triple, "*", "include"),
		filepath.Join(a64, "lib", "gcc", triple, "*", "include-fixed"),
	}

	var dirs []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		slices.Sort(matches)

		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}

	return dirs
}

// Fingerprint identifies the installed compilers by their version banners.
// The assembler is the C++ driver, as in compile commands.
func (tc *Toolchain) Fingerprint(ctx context.Context, runner compiler.Runner) (cache.Fingerprint, error) {
	cc, err := version(ctx, runner, tc.CC)
	if err != nil {
		return cache.Fingerprint{}, err
	}

	cxx, err := version(ctx, runner, tc.CXX)
	if err != nil {
		return cache.Fingerprint{}, err
	}

	return cache.Fingerprint{CC: cc, CXX: cxx, AS: cxx}, nil
}

func version(ctx context.Context, runner compiler.Runner, tool string) (string, error) {
	out, err := runner.Run(ctx, &compiler.ShellCommand{Path: tool, Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("failed to query %s version: %w", filepath.Base(tool), err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out.Stdout))
	if scanner.Scan() {
		return scanner.Text(), nil
	}

	return "", fmt.Errorf("empty version output from %s", filepath.Base(tool))
}
