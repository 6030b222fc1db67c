// Package depfile reads the Makefile-style dependency listings that the
// compiler emits with -MMD -MP.
package depfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Parse returns the prerequisites of the first rule in a dependency file.
//
// The first line holds the target and is skipped. Parsing stops at the first
// line that starts a new rule, which is where -MP emits its phony targets.
func Parse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open depfile: %w", err)
	}
	defer f.Close()

	var deps []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}

		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimSuffix(line, `\`))
		if strings.HasSuffix(line, ":") {
			break
		}

		deps = append(deps, splitLine(line)...)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read depfile: %w", err)
	}

	return deps, nil
}

// splitLine splits on spaces, rejoining tokens whose space was escaped.
func splitLine(line string) []string {
	var out []string
	var pending string
	joining := false

	for _, tok := range strings.Split(line, " ") {
		if joining {
			tok = pending + " " + tok
			joining = false
		}

		if strings.HasSuffix(tok, `\`) {
			pending = strings.TrimSuffix(tok, `\`)
			joining = true
			continue
		}

		if tok != "" {
			out = append(out, tok)
		}
	}

	if joining && pending != "" {
		out = append(out, pending)
	}

	return out
}

// UpToDate reports whether every prerequisite listed in the dependency file
// is older than or equal to target. Any failure reads as stale.
func UpToDate(path string, target time.Time) bool {
	deps, err := Parse(path)
	if err != nil {
		return false
	}

	for _, dep := range deps {
		info, err := os.Stat(dep)
		if err != nil {
			return false
		}

		if info.ModTime().After(target) {
			return false
		}
	}

	return true
}
