package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
)

// archPrefixes are target tuning flags that host-side tools such as clangd
// reject
var archPrefixes = []string{"-mtune=", "-march=", "-mtp="}

// ExportOptions controls the compile_commands.json transform
type ExportOptions struct {
	// SystemIncludes are injected as -isystem pairs so tools resolve
	// toolchain headers without knowing the cross compiler
	SystemIncludes []string

	// FilterArch drops -mtune=, -march= and -mtp= flags
	FilterArch bool
}

// CompileCommandEntry is one element of compile_commands.json
type CompileCommandEntry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Output    string   `json:"output"`
	Arguments []string `json:"arguments"`
}

// CompileCommands converts the records into IDE entries, sorted by file
func (db *CompileDB) CompileCommands(opts ExportOptions) []CompileCommandEntry {
	entries := make([]CompileCommandEntry, 0, len(db.records))

	for _, r := range db.Records() {
		args := make([]string, 0, len(r.Args)+1+2*len(opts.SystemIncludes))
		args = append(args, r.Compiler)
		for _, dir := range opts.SystemIncludes {
			args = append(args, "-isystem", dir)
		}

		for _, arg := range r.Args {
			if opts.FilterArch && isArchFlag(arg) {
				continue
			}

			args = append(args, arg)
		}

		entries = append(entries, CompileCommandEntry{
			Directory: filepath.Dir(r.Source),
			File:      r.Source,
			Output:    r.Output,
			Arguments: args,
		})
	}

	slices.SortStableFunc(entries, func(a, b CompileCommandEntry) int {
		return strings.Compare(a.File, b.File)
	})

	return entries
}

// ExportCompileCommands writes the records as an indented JSON array
func (db *CompileDB) ExportCompileCommands(w io.Writer, opts ExportOptions) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(db.CompileCommands(opts)); err != nil {
		return fmt.Errorf("failed to encode compile commands: %w", err)
	}

	return nil
}

func isArchFlag(arg string) bool {
	for _, prefix := range archPrefixes {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}

	return false
}
