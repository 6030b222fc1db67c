package compiler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/nxbuild/internal/cache"
)

// Lang is the language of a source file
type Lang int

const (
	LangC Lang = iota
	LangCXX
	LangAsm
)

func (l Lang) String() string {
	switch l {
	case LangC:
		return "C"
	case LangCXX:
		return "C++"
	case LangAsm:
		return "assembly"
	default:
		return "unknown"
	}
}

// LangFromExt maps a file extension (with the dot) to a language
func LangFromExt(ext string) (Lang, bool) {
	switch ext {
	case ".c":
		return LangC, true
	case ".cpp", ".cc", ".cxx", ".c++":
		return LangCXX, true
	case ".s", ".asm":
		return LangAsm, true
	default:
		return 0, false
	}
}

// SourceFile is a discovered source, identified by its canonical path
type SourceFile struct {
	Path string
	Lang Lang
	Hash uint64

	base string
}

// NewSourceFile classifies path. It reports false for files that are not
// C, C++ or assembly sources. path should already be absolute and clean.
func NewSourceFile(path string) (SourceFile, bool) {
	ext := filepath.Ext(path)
	lang, ok := LangFromExt(ext)
	if !ok {
		return SourceFile{}, false
	}

	base := strings.TrimSuffix(filepath.Base(path), ext)
	if base == "" {
		return SourceFile{}, false
	}

	return SourceFile{
		Path: path,
		Lang: lang,
		Hash: cache.PathHash(path),
		base: base,
	}, true
}

// Key is the compile database key of the source
func (s SourceFile) Key() string {
	return cache.Key(s.Hash)
}

// ObjectName is the object file name, unique per source path
func (s SourceFile) ObjectName() string {
	return s.derivedName("o")
}

// DepName is the dependency file name written next to the object
func (s SourceFile) DepName() string {
	return s.derivedName("d")
}

func (s SourceFile) derivedName(ext string) string {
	return fmt.Sprintf("%s-%016x.%s", s.base, s.Hash, ext)
}
