package staleness

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
)

// LinkInputs is everything the link decision looks at
type LinkInputs struct {
	ObjectsCompiled bool
	SourcesRemoved  bool
	ConfigChanged   bool

	ELF     string
	Objects []string

	// Serialized object list of this pass, and the one from the last link
	ObjectList         string
	PreviousObjectList string

	Command         *compiler.LinkCommand
	PreviousCommand *compiler.LinkCommand

	LinkerScripts []string
	LibPaths      []string
	Libraries     []string

	// Archives linked by path, such as the Rust crate's library
	StaticLibs []string
}

// NeedsLink decides whether the ELF must be relinked and says why. A
// missing linker script is a configuration error.
func (in *LinkInputs) NeedsLink() (bool, string, error) {
	for _, script := range in.LinkerScripts {
		if _, err := os.Stat(script); err != nil {
			return false, "", fmt.Errorf("cannot process linker script %s: %w", script, err)
		}
	}

	switch {
	case in.ObjectsCompiled:
		return true, "objects were recompiled", nil
	case in.SourcesRemoved:
		return true, "sources were removed", nil
	case in.ConfigChanged:
		return true, "configuration changed", nil
	}

	elfTime, ok := Mtime(in.ELF)
	if !ok {
		return true, "binary missing", nil
	}

	if in.ObjectList != in.PreviousObjectList {
		return true, "list of objects changed", nil
	}

	if !in.Command.Equal(in.PreviousCommand) {
		return true, "link command changed", nil
	}

	for _, script := range in.LinkerScripts {
		t, _ := Mtime(script)
		if !UpToDate(t, elfTime) {
			return true, "linker script " + filepath.Base(script) + " changed", nil
		}
	}

	for _, obj := range in.Objects {
		t, ok := Mtime(obj)
		if !ok || !UpToDate(t, elfTime) {
			return true, "object " + filepath.Base(obj) + " is newer than binary", nil
		}
	}

	for _, lib := range in.StaticLibs {
		t, ok := Mtime(lib)
		if !ok || !UpToDate(t, elfTime) {
			return true, "static library " + filepath.Base(lib) + " changed", nil
		}
	}

	for _, lib := range in.Libraries {
		path, ok := FindLibrary(in.LibPaths, lib)
		if !ok {
			// resolved from the toolchain's own search dirs
			continue
		}

		t, ok := Mtime(path)
		if !ok || !UpToDate(t, elfTime) {
			return true, "library " + lib + " changed", nil
		}
	}

	return false, "", nil
}

// FindLibrary resolves -l<name> against dirs the way the linker does,
// preferring the shared library in each directory.
func FindLibrary(dirs []string, name string) (string, bool) {
	for _, dir := range dirs {
		for _, file := range []string{"lib" + name + ".so", "lib" + name + ".a"} {
			path := filepath.Join(dir, file)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}

	return "", false
}
