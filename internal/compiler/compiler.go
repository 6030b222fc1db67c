// Package compiler builds and runs the toolchain invocations for one build
// profile: compiling sources into objects and linking objects into an ELF.
package compiler

import (
	"slices"

	"github.com/kballard/go-shellquote"

	"github.com/Norgate-AV/nxbuild/internal/cache"
)

// ShellCommand is an executable plus its argument vector
type ShellCommand struct {
	Path string
	Args []string

	// Env holds KEY=value pairs added to the inherited environment
	Env []string
}

// String renders the command for logs, quoted the way a shell would need it
func (c *ShellCommand) String() string {
	words := slices.Concat(c.Env, []string{c.Path}, c.Args)
	return shellquote.Join(words...)
}

// CompileCommand is the invocation that turns one source into one object.
type CompileCommand struct {
	Compiler string
	Args     []string
	Source   string
	Output   string
	DepFile  string
	Key      string
}

// Shell returns the command to execute
func (c *CompileCommand) Shell() *ShellCommand {
	return &ShellCommand{Path: c.Compiler, Args: c.Args}
}

// Equal compares the compiler and the full, ordered argument vector.
func (c *CompileCommand) Equal(o *CompileCommand) bool {
	return c.Compiler == o.Compiler && slices.Equal(c.Args, o.Args)
}

// MatchesRecord reports whether a persisted record holds the same command
func (c *CompileCommand) MatchesRecord(r cache.CompileRecord) bool {
	return c.Compiler == r.Compiler && slices.Equal(c.Args, r.Args)
}

// Record converts the command into its persisted form
func (c *CompileCommand) Record() cache.CompileRecord {
	return cache.CompileRecord{
		Hash:     c.Key,
		Compiler: c.Compiler,
		Args:     slices.Clone(c.Args),
		Source:   c.Source,
		Output:   c.Output,
		DepFile:  c.DepFile,
	}
}

// LinkCommand is the invocation producing the ELF
type LinkCommand struct {
	Linker string   `json:"linker"`
	Args   []string `json:"args"`
}

func (c *LinkCommand) Shell() *ShellCommand {
	return &ShellCommand{Path: c.Linker, Args: c.Args}
}

// Equal uses the same rule as CompileCommand.Equal
func (c *LinkCommand) Equal(o *LinkCommand) bool {
	if c == nil || o == nil {
		return c == o
	}

	return c.Linker == o.Linker && slices.Equal(c.Args, o.Args)
}
