// Package staleness decides which pipeline artifacts must be rebuilt.
//
// Every check errs toward rebuilding: an input that cannot be inspected
// counts as changed.
package staleness

import (
	"os"
	"time"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/depfile"
)

// UpToDate reports whether an output with mtime out is fresh with respect
// to an input with mtime in. Equal timestamps count as fresh.
func UpToDate(in, out time.Time) bool {
	return !in.After(out)
}

// Mtime returns the modification time of path
func Mtime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}

	return info.ModTime(), true
}

// Reason explains a per-source decision
type Reason int

const (
	Fresh Reason = iota
	ObjectMissing
	DepsChanged
	NoRecord
	CommandChanged
)

// Stale reports whether the source must be recompiled
func (r Reason) Stale() bool {
	return r != Fresh
}

func (r Reason) String() string {
	switch r {
	case Fresh:
		return "up to date"
	case ObjectMissing:
		return "object missing"
	case DepsChanged:
		return "dependencies changed"
	case NoRecord:
		return "no previous compile command"
	case CommandChanged:
		return "compile command changed"
	default:
		return "unknown"
	}
}

// Engine makes per-source decisions for one build pass.
type Engine struct {
	commandsMayHaveChanged bool
	prev                   map[string]cache.CompileRecord
}

// NewEngine creates an engine. When commandsMayHaveChanged is set, every
// source whose object looks fresh is also checked against its record in db.
func NewEngine(db *cache.CompileDB, commandsMayHaveChanged bool) *Engine {
	e := &Engine{
		commandsMayHaveChanged: commandsMayHaveChanged,
		prev:                   make(map[string]cache.CompileRecord),
	}

	if commandsMayHaveChanged && db != nil {
		e.prev = db.Snapshot()
	}

	return e
}

// Source decides whether cmd must run. Checks run in a fixed order and the
// first match wins.
func (e *Engine) Source(cmd *compiler.CompileCommand) Reason {
	objTime, ok := Mtime(cmd.Output)
	if !ok {
		e.forget(cmd.Key)
		return ObjectMissing
	}

	if !depfile.UpToDate(cmd.DepFile, objTime) {
		e.forget(cmd.Key)
		return DepsChanged
	}

	if !e.commandsMayHaveChanged {
		return Fresh
	}

	record, ok := e.prev[cmd.Key]
	if !ok {
		return NoRecord
	}

	delete(e.prev, cmd.Key)
	if !cmd.MatchesRecord(record) {
		return CommandChanged
	}

	return Fresh
}

// Removed returns the prior records no scanned source claimed. They belong
// to sources that were deleted since the last build.
func (e *Engine) Removed() []cache.CompileRecord {
	out := make([]cache.CompileRecord, 0, len(e.prev))
	for _, r := range e.prev {
		out = append(out, r)
	}

	return out
}

// forget drops the prior record of a source that is being recompiled, so
// it is not mistaken for a deleted one
func (e *Engine) forget(key string) {
	delete(e.prev, key)
}
