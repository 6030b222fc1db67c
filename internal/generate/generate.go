// Package generate writes the auxiliary inputs of a module build: the npdm
// process manifest and the linker version script.
package generate

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
)

const (
	ManifestSource = "main.npdm.json"
	ManifestOutput = "main.npdm"
	VersionFile    = "verfile"
)

//go:embed templates/main.npdm.json
var manifestTemplate []byte

// RenderManifest returns the manifest template with the title id filled in.
func RenderManifest(titleID uint64) ([]byte, error) {
	var manifest map[string]any
	if err := json.Unmarshal(manifestTemplate, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest template: %w", err)
	}

	manifest["title_id"] = fmt.Sprintf("0x%016x", titleID)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	return data, nil
}

// Unstamped is the mtime of a manifest source that no successful build has
// confirmed yet. It is older than any project file, so the configuration
// keeps counting as changed until Stamp runs.
var Unstamped = time.Unix(0, 0)

// Manifest writes main.npdm.json into dir and converts it with npdmtool.
//
// The JSON file is left Unstamped. Stamp it with the project file's
// modification time once the build it belongs to has succeeded.
func Manifest(ctx context.Context, runner compiler.Runner, npdmtool, dir string, titleID uint64) error {
	data, err := RenderManifest(titleID)
	if err != nil {
		return err
	}

	source := filepath.Join(dir, ManifestSource)
	if err := cache.WriteText(source, string(data)); err != nil {
		return err
	}

	if err := os.Chtimes(source, Unstamped, Unstamped); err != nil {
		return fmt.Errorf("failed to set manifest time: %w", err)
	}

	cmd := &compiler.ShellCommand{
		Path: npdmtool,
		Args: []string{source, filepath.Join(dir, ManifestOutput)},
	}

	if _, err := runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to create %s: %w", ManifestOutput, err)
	}

	return nil
}

// Stamp gives the manifest source in dir the modification time mtime, so
// later builds compare the project file against it.
func Stamp(dir string, mtime time.Time) error {
	if err := os.Chtimes(filepath.Join(dir, ManifestSource), mtime, mtime); err != nil {
		return fmt.Errorf("failed to stamp manifest: %w", err)
	}

	return nil
}

// VersionScript writes a linker version script exporting only entry.
func VersionScript(path, entry string) error {
	content := "{\n\tglobal:\n\t\t" + entry + ";\n\tlocal: *;\n};"
	if err := cache.WriteText(path, content); err != nil {
		return fmt.Errorf("failed to write version script: %w", err)
	}

	return nil
}
