// Package xerrors adds call-site information to errors so the logger can
// report where a failure was first seen without a full panic trace.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the program counters captured when the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated is a single-frame wrapper with a message prefix.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

func stackFrom(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// +2 skips runtime.Callers and stackFrom
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func pcFrom(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func attachStack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackFrom(skip + 1)}
}

// WithStack records the caller's stack on err.
func WithStack(err error) error { return attachStack(err, 1) }

// EnsureTrace attaches a stack unless something in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return attachStack(err, 1)
}

// Wrap prefixes err with msg and records the caller position.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: pcFrom(1)}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: pcFrom(1)}
}

// New returns a stack-carrying error.
func New(msg string) error { return attachStack(errors.New(msg), 1) }

// Newf returns a stack-carrying error built from a format string. %w is honored.
func Newf(format string, args ...any) error {
	return attachStack(fmt.Errorf(format, args...), 1)
}
