// Package checker inspects a linked ELF with objdump before it is converted.
//
// Two things are verified: every dynamic symbol the binary imports must be
// provided by one of the configured symbol listings (or be explicitly
// ignored), and no instruction may match a disallowed pattern. Listings are
// themselves `objdump -T` dumps of the modules the binary is loaded next to.
package checker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/logging"
)

const (
	// MissingSymbolsFile and DisallowedInstructionsFile receive the full
	// lists when a check fails.
	MissingSymbolsFile         = "missing_symbols.txt"
	DisallowedInstructionsFile = "disallowed_instructions.txt"

	// DefaultReportLimit is the number of entries printed per list.
	DefaultReportLimit = 10

	symbolTableHeader = "DYNAMIC SYMBOL TABLE:"
	symbolColumn      = 25
)

// BuiltinDisallowed are always checked, on top of the configured patterns.
var BuiltinDisallowed = []string{
	`^msr\s*spsel`,
	`^msr\s*daifset`,
	`^mrs\.*daif`,
	`^mrs\.*tpidr_el1`,
	`^msr\s*tpidr_el1`,
	`^hlt`,
}

// ErrMalformedSymbolLine is returned for a symbol table row without a name.
var ErrMalformedSymbolLine = errors.New("malformed symbol table line")

// Policy is what the binary is checked against
type Policy struct {
	Ignore                 []string
	Symbols                []string
	DisallowedInstructions []string
}

// Instruction is one disassembled instruction
type Instruction struct {
	Addr string
	Text string
}

func (i Instruction) String() string {
	return i.Addr + ": " + i.Text
}

// Result holds everything the check found.
type Result struct {
	MissingSymbols         []string
	DisallowedInstructions []Instruction
}

// OK reports whether the binary passed
func (r *Result) OK() bool {
	return len(r.MissingSymbols) == 0 && len(r.DisallowedInstructions) == 0
}

// Checker runs objdump and evaluates a Policy.
type Checker struct {
	policy   Policy
	objdump  string
	runner   compiler.Runner
	patterns []*regexp.Regexp
}

// New compiles the disallowed instruction patterns. An invalid pattern is
// reported here rather than on the first build that reaches the check.
func New(policy Policy, objdump string, runner compiler.Runner) (*Checker, error) {
	exprs := slices.Concat(BuiltinDisallowed, policy.DisallowedInstructions)
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid disallowed instruction pattern %q: %w", expr, err)
		}

		patterns = append(patterns, re)
	}

	return &Checker{
		policy:   policy,
		objdump:  objdump,
		runner:   runner,
		patterns: patterns,
	}, nil
}

// Run checks the ELF at path. Any failure to produce the inputs (objdump
// failing, an unreadable listing) is an error, never a pass.
func (c *Checker) Run(ctx context.Context, elf string) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	listings := make([][]string, len(c.policy.Symbols))
	for i, path := range c.policy.Symbols {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open symbol listing: %w", err)
			}
			defer f.Close()

			syms, err := ParseSymbols(f)
			if err != nil {
				return fmt.Errorf("failed to parse symbol listing %s: %w", path, err)
			}

			listings[i] = syms
			return nil
		})
	}

	var dynamic []string
	g.Go(func() error {
		out, err := c.dump(gctx, "-T", elf)
		if err != nil {
			return err
		}

		dynamic, err = ParseSymbols(bytes.NewReader(out))
		if err != nil {
			return fmt.Errorf("failed to parse objdump symbols: %w", err)
		}

		return nil
	})

	var insts []Instruction
	g.Go(func() error {
		out, err := c.dump(gctx, "-d", elf)
		if err != nil {
			return err
		}

		insts = ParseInstructions(bytes.NewReader(out))
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		MissingSymbols:         c.missing(dynamic, listings),
		DisallowedInstructions: c.disallowed(insts),
	}, nil
}

func (c *Checker) dump(ctx context.Context, mode, elf string) ([]byte, error) {
	out, err := c.runner.Run(ctx, &compiler.ShellCommand{Path: c.objdump, Args: []string{mode, elf}})
	if err != nil {
		return nil, fmt.Errorf("objdump %s failed: %w", mode, err)
	}

	return out.Stdout, nil
}

func (c *Checker) missing(dynamic []string, listings [][]string) []string {
	known := make(map[string]struct{})
	for _, name := range c.policy.Ignore {
		known[name] = struct{}{}
	}

	for _, syms := range listings {
		for _, name := range syms {
			known[name] = struct{}{}
		}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, name := range dynamic {
		if strings.HasPrefix(name, ".") {
			continue
		}

		if _, ok := known[name]; ok {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		missing = append(missing, name)
	}

	slices.SortStableFunc(missing, func(a, b string) int {
		return strings.Compare(SortKey(a), SortKey(b))
	})

	return missing
}

func (c *Checker) disallowed(insts []Instruction) []Instruction {
	var found []Instruction
	for _, inst := range insts {
		for _, re := range c.patterns {
			if re.MatchString(inst.Text) {
				found = append(found, inst)
				break
			}
		}
	}

	return found
}

// ParseSymbols extracts symbol names from `objdump -T` output.
func ParseSymbols(r io.Reader) ([]string, error) {
	scanner := newScanner(r)

	inTable := false
	var syms []string
	for scanner.Scan() {
		line := scanner.Text()
		if !inTable {
			inTable = line == symbolTableHeader
			continue
		}

		if len(line) <= symbolColumn {
			continue
		}

		_, name, ok := strings.Cut(line[symbolColumn:], " ")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedSymbolLine, line)
		}

		if name = strings.TrimSpace(name); name != "" {
			syms = append(syms, name)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return syms, nil
}

// ParseInstructions extracts instructions from `objdump -d` output. Lines
// that are not instruction rows (headers, labels) are skipped.
func ParseInstructions(r io.Reader) []Instruction {
	scanner := newScanner(r)

	var insts []Instruction
	for scanner.Scan() {
		addr, rest, ok := strings.Cut(scanner.Text(), ":\t")
		if !ok {
			continue
		}

		_, text, ok := strings.Cut(rest, " \t")
		if !ok {
			continue
		}

		insts = append(insts, Instruction{
			Addr: strings.TrimSpace(addr),
			Text: strings.TrimSpace(text),
		})
	}

	return insts
}

// SortKey orders mangled C++ names next to their plain counterparts by
// dropping the "_Z" prefix and the length digits that follow it.
func SortKey(name string) string {
	rest, ok := strings.CutPrefix(name, "_Z")
	if !ok {
		return name
	}

	return strings.TrimLeft(rest, "0123456789")
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}

// Report prints a truncated summary of a failed check.
func Report(log *logging.Logger, r *Result, limit int) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}

	if n := len(r.MissingSymbols); n > 0 {
		log.Failure("Error", "Found %d unresolved symbols!", n)
		reportList(log, r.MissingSymbols, limit)
		log.Hint("Include the symbols in the linker scripts, or add them to the `ignore` section.")
	}

	if n := len(r.DisallowedInstructions); n > 0 {
		lines := make([]string, n)
		for i, inst := range r.DisallowedInstructions {
			lines[i] = inst.String()
		}

		log.Failure("Error", "Found %d disallowed instructions!", n)
		reportList(log, lines, limit)
		log.Hint("Remove the instructions, or adjust the `disallowed-instructions` patterns.")
	}
}

func reportList(log *logging.Logger, entries []string, limit int) {
	var b strings.Builder
	for i, entry := range entries {
		if i == limit {
			fmt.Fprintf(&b, "  ... (%d more)\n", len(entries)-limit)
			break
		}

		fmt.Fprintf(&b, "  %s\n", entry)
	}

	log.Dump([]byte(b.String()))
}

// WriteDiagnostics writes the full lists into dir. Lists that are empty
// have their file removed so a stale report never outlives a fix.
func WriteDiagnostics(dir string, r *Result) error {
	lines := make([]string, len(r.DisallowedInstructions))
	for i, inst := range r.DisallowedInstructions {
		lines[i] = inst.String()
	}

	files := map[string][]string{
		MissingSymbolsFile:         r.MissingSymbols,
		DisallowedInstructionsFile: lines,
	}

	for name, entries := range files {
		path := filepath.Join(dir, name)
		if len(entries) == 0 {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}

			continue
		}

		if err := os.WriteFile(path, []byte(strings.Join(entries, "\n")+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}
