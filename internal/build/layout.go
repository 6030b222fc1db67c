package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/checker"
	"github.com/Norgate-AV/nxbuild/internal/generate"
)

// Layout holds the artifact paths of one profile's build
type Layout struct {
	Dir       string
	ObjectDir string

	CompileDB       string
	CompileCommands string
	ObjectsCache    string
	LinkCache       string

	ManifestSource string
	Manifest       string
	VersionScript  string

	ELF string
	NSO string

	MissingSymbols         string
	DisallowedInstructions string
}

// TargetDir is where every profile's output lives
func TargetDir(root string) string {
	return filepath.Join(root, "target", "nxbuild")
}

// NewLayout lays out <root>/target/nxbuild/<profile> for the module name
func NewLayout(root, profile, name string) *Layout {
	dir := filepath.Join(TargetDir(root), profile)

	return &Layout{
		Dir:                    dir,
		ObjectDir:              filepath.Join(dir, "o"),
		CompileDB:              filepath.Join(dir, cache.DefaultFile),
		CompileCommands:        filepath.Join(dir, "compile_commands.json"),
		ObjectsCache:           filepath.Join(dir, "objects.cache"),
		LinkCache:              filepath.Join(dir, "link.cache"),
		ManifestSource:         filepath.Join(dir, generate.ManifestSource),
		Manifest:               filepath.Join(dir, generate.ManifestOutput),
		VersionScript:          filepath.Join(dir, generate.VersionFile),
		ELF:                    filepath.Join(dir, name+".elf"),
		NSO:                    filepath.Join(dir, name+".nso"),
		MissingSymbols:         filepath.Join(dir, checker.MissingSymbolsFile),
		DisallowedInstructions: filepath.Join(dir, checker.DisallowedInstructionsFile),
	}
}

// Prepare creates the output directories
func (l *Layout) Prepare() error {
	if err := os.MkdirAll(l.ObjectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	return nil
}
