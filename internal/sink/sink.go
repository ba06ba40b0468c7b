// Package sink implements the VM's output boundary: on_emit for Emit
// opcodes and on_log for diagnostic messages (spec §6 "Output sink").
package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"agentus/internal/value"
)

// Level is a log severity tag.
type Level string

const (
	Trace Level = "TRACE"
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// OutputSink is the pair of hooks the VM drives: one per emitted
// value, one per log line. The VM additionally collects every emitted
// value into its own in-memory Outputs slice regardless of what the
// sink does with it (spec §6).
type OutputSink interface {
	OnEmit(v value.Value)
	OnLog(level Level, message string)
}

// DefaultSink prints emits to stdout and logs to stderr, tagging each
// log line by level and colorizing the tag when the destination is a
// terminal (spec §6 "Default sink prints emits to standard output and
// logs to standard error, tagged by level"). Terminal detection uses
// github.com/mattn/go-isatty, the same dependency the donor CLI
// carries for its own REPL/terminal checks.
type DefaultSink struct {
	EmitWriter io.Writer
	LogWriter  io.Writer
	colorize   bool
}

// NewDefaultSink creates a sink writing emits to stdout and logs to
// stderr, colorizing log tags only when stderr is an actual terminal.
func NewDefaultSink() *DefaultSink {
	fd := os.Stderr.Fd()
	colorize := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return &DefaultSink{EmitWriter: os.Stdout, LogWriter: os.Stderr, colorize: colorize}
}

func (s *DefaultSink) OnEmit(v value.Value) {
	fmt.Fprintln(s.EmitWriter, value.Display(v))
}

var levelColor = map[Level]string{
	Trace: "\x1b[90m",
	Debug: "\x1b[36m",
	Info:  "\x1b[32m",
	Warn:  "\x1b[33m",
	Error: "\x1b[31m",
}

const colorReset = "\x1b[0m"

func (s *DefaultSink) OnLog(level Level, message string) {
	tag := string(level)
	if s.colorize {
		tag = levelColor[level] + tag + colorReset
	}
	fmt.Fprintf(s.LogWriter, "[%s] %s\n", tag, message)
}

// CollectingSink is a test-friendly sink that records emits and logs
// in memory instead of writing anywhere, used by the VM tests
// that assert on output order (spec §8 seed scenarios assert exact
// emit sequences).
type CollectingSink struct {
	Emits []value.Value
	Logs  []string
}

func NewCollectingSink() *CollectingSink { return &CollectingSink{} }

func (s *CollectingSink) OnEmit(v value.Value) { s.Emits = append(s.Emits, v) }

func (s *CollectingSink) OnLog(level Level, message string) {
	s.Logs = append(s.Logs, string(level)+": "+message)
}
