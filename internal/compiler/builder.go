package compiler

import (
	"path/filepath"
)

// Builder constructs compile and link commands. It has no side effects;
// callers decide whether to run what it returns.
type Builder struct {
	cc     string
	cxx    string
	flags  *Flags
	objDir string
}

// NewBuilder creates a builder. C sources use cc; C++, assembly and the
// link step use cxx. Objects and depfiles are placed in objDir.
func NewBuilder(cc, cxx string, flags *Flags, objDir string) *Builder {
	return &Builder{
		cc:     cc,
		cxx:    cxx,
		flags:  flags,
		objDir: objDir,
	}
}

// Flags returns the resolved flags in use
func (b *Builder) Flags() *Flags {
	return b.flags
}

// Compile returns the command for src
func (b *Builder) Compile(src SourceFile) *CompileCommand {
	object := filepath.Join(b.objDir, src.ObjectName())
	dep := filepath.Join(b.objDir, src.DepName())

	compiler := b.cxx
	if src.Lang == LangC {
		compiler = b.cc
	}

	flags := b.flags.For(src.Lang)
	args := make([]string, 0, len(flags)+10)
	args = append(args, "-MMD", "-MP", "-MF", dep)
	if src.Lang == LangAsm {
		args = append(args, "-x", "assembler-with-cpp")
	}
	args = append(args, flags...)
	args = append(args, "-c", "-o", object, src.Path)

	return &CompileCommand{
		Compiler: compiler,
		Args:     args,
		Source:   src.Path,
		Output:   object,
		DepFile:  dep,
		Key:      src.Key(),
	}
}

// Link returns the command linking objects into elf
func (b *Builder) Link(objects []string, elf string) *LinkCommand {
	args := make([]string, 0, len(b.flags.LD)+len(objects)+2)
	args = append(args, b.flags.LD...)
	args = append(args, objects...)
	args = append(args, "-o", elf)

	return &LinkCommand{
		Linker: b.cxx,
		Args:   args,
	}
}
