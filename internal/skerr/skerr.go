// Package skerr defines the classified error model used throughout sk.
// Every expected failure is tagged with a Kind and, inside the sync
// pipeline, with the Stage at which it occurred, so the CLI boundary can
// report exactly where a run stopped.
package skerr

import (
	"errors"
	"fmt"
)

// Kind classifies what went wrong.
type Kind string

const (
	KindValidation Kind = "validation"
	KindIO         Kind = "io"
	KindGit        Kind = "git_error"
	KindNetwork    Kind = "network"
	KindParse      Kind = "parse"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

// Stage identifies the sync pipeline step at which an error occurred.
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageParse     Stage = "parse"
	StageMerge     Stage = "merge"
	StageResolve   Stage = "resolve"
	StageAgents    Stage = "agents"
	StageFetch     Stage = "fetch"
	StageDetect    Stage = "detect"
	StageExtract   Stage = "extract"
	StageValidate  Stage = "validate"
	StageInstall   Stage = "install"
	StageReconcile Stage = "reconcile"
)

// Error is a classified error carrying an optional wrapped cause.
// Stage is empty for errors raised outside the sync pipeline; the
// orchestrator stamps it when an error crosses a stage boundary.
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and a formatted message.
// Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AtStage returns err with the sync stage stamped on it. If err is not a
// classified *Error it is wrapped as one first, defaulting the kind. An
// already-stamped error keeps its original stage so the innermost failure
// point wins.
func AtStage(stage Stage, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = stage
		}
		return err
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of a classified error, or "" if err carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StageOf returns the pipeline stage of a classified error, or "".
func StageOf(err error) Stage {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
