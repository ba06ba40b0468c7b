// Package errors defines the staged error taxonomy shared by every
// phase of the toolchain: Lexer, Parser, Semantic, and Codegen errors
// are collected per stage and surfaced as lists; Runtime errors are a
// single fatal value returned by the VM run loop.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage identifies which phase of the pipeline produced an error.
type Stage string

const (
	Lexer    Stage = "Lexer"
	Parser   Stage = "Parse"
	Semantic Stage = "Semantic"
	Codegen  Stage = "Codegen"
	Runtime  Stage = "Runtime"
)

// Location pinpoints a position in source text. Column is 1-based;
// zero means unknown (Runtime errors rarely carry a precise column).
type Location struct {
	File   string
	Line   int
	Column int
}

// AgentusError is a human-readable, stage-tagged error. It carries no
// structured code, per the error-handling design: callers match on
// Stage, not on a code enum.
type AgentusError struct {
	Stage    Stage
	Message  string
	Location Location
	cause    error
}

func (e *AgentusError) Error() string {
	if e.Location.Line > 0 {
		return fmt.Sprintf("%s error: %s (%s:%d:%d)", e.Stage, e.Message, e.Location.File, e.Location.Line, e.Location.Column)
	}
	return fmt.Sprintf("%s error: %s", e.Stage, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *AgentusError) Unwrap() error { return e.cause }

// New builds a stage error with no location information.
func New(stage Stage, message string) *AgentusError {
	return &AgentusError{Stage: stage, Message: message}
}

// Newf builds a stage error with a formatted message.
func Newf(stage Stage, format string, args ...interface{}) *AgentusError {
	return &AgentusError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// At builds a stage error tied to a source location.
func At(stage Stage, file string, line, column int, message string) *AgentusError {
	return &AgentusError{Stage: stage, Message: message, Location: Location{File: file, Line: line, Column: column}}
}

// Wrap attaches a cause from a lower layer (a driver error, an I/O
// error) while preserving the stage-tagged message at the top.
func Wrap(stage Stage, cause error, message string) *AgentusError {
	return &AgentusError{Stage: stage, Message: message, cause: errors.Wrap(cause, message)}
}

// Cause returns the deepest wrapped error, mirroring pkg/errors.Cause.
func Cause(err error) error {
	if ae, ok := err.(*AgentusError); ok && ae.cause != nil {
		return errors.Cause(ae.cause)
	}
	return errors.Cause(err)
}
