package build

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/logging"
)

// excluder matches absolute paths against the configured exclude patterns
type excluder []glob.Glob

func newExcluder(patterns []string) (excluder, error) {
	ex := make(excluder, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}

		ex = append(ex, g)
	}

	return ex, nil
}

func (ex excluder) match(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, g := range ex {
		if g.Match(slashed) {
			return true
		}
	}

	return false
}

// scanSources walks every source directory in lexical order and returns the
// compilable files. A file reachable from two directories is listed once.
func scanSources(dirs, exclude []string, log *logging.Logger) ([]compiler.SourceFile, error) {
	ex, err := newExcluder(exclude)
	if err != nil {
		return nil, err
	}

	var sources []compiler.SourceFile
	seen := make(map[string]struct{})

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				return nil
			}

			if ex.match(path) {
				log.Debug().Str("path", path).Msg("excluded")
				return nil
			}

			src, ok := compiler.NewSourceFile(path)
			if !ok {
				log.Debug().Str("path", path).Msg("not a source file")
				return nil
			}

			if _, dup := seen[src.Key()]; dup {
				return nil
			}

			seen[src.Key()] = struct{}{}
			sources = append(sources, src)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan sources in %s: %w", dir, err)
		}
	}

	return sources, nil
}
