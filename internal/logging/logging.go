// Package logging provides the logger handed to every build component.
//
// Two kinds of output go through it: structured diagnostics via the embedded
// zerolog.Logger (debug detail, hidden unless verbose), and cargo-style status
// lines ("   Compiling src/main.c") that are always shown.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// verbWidth right-aligns status verbs in a column
const verbWidth = 12

var (
	progressColor = color.New(color.FgHiGreen, color.Bold)
	errorColor    = color.New(color.FgHiRed, color.Bold)
	warnColor     = color.New(color.FgHiYellow, color.Bold)
	hintColor     = color.New(color.FgHiCyan, color.Bold)
)

// Logger is safe for concurrent use.
type Logger struct {
	zerolog.Logger

	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New creates a logger writing to out. Verbose enables debug messages.
func New(out io.Writer, verbose bool) *Logger {
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	l := &Logger{
		out:     out,
		verbose: verbose,
	}

	l.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        lockedWriter{l},
		TimeFormat: time.TimeOnly,
		NoColor:    color.NoColor,
	}).Level(level).With().Timestamp().Logger()

	return l
}

// lockedWriter serializes structured output with status lines
type lockedWriter struct {
	l *Logger
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()

	return w.l.out.Write(p)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{
		Logger: zerolog.Nop(),
		out:    io.Discard,
	}
}

// Verbose reports whether debug output is enabled
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Status prints a progress line such as "   Compiling src/main.c".
func (l *Logger) Status(verb, format string, args ...any) {
	l.line(progressColor, verb, format, args...)
}

// Failure prints an error line.
func (l *Logger) Failure(verb, format string, args ...any) {
	l.line(errorColor, verb, format, args...)
}

// Warning prints a warning line.
func (l *Logger) Warning(format string, args ...any) {
	l.line(warnColor, "Warning", format, args...)
}

// Hint prints a remedy suggestion following an error.
func (l *Logger) Hint(format string, args ...any) {
	l.line(hintColor, "Hint", format, args...)
}

// Dump writes raw tool output, such as captured compiler stderr.
func (l *Logger) Dump(data []byte) {
	if len(data) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.out.Write(data)
	if data[len(data)-1] != '\n' {
		_, _ = io.WriteString(l.out, "\n")
	}
}

func (l *Logger) line(c *color.Color, verb, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	padded := fmt.Sprintf("%*s", verbWidth, verb)
	fmt.Fprintf(l.out, "%s %s\n", c.Sprint(padded), fmt.Sprintf(format, args...))
}
