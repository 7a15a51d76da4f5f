// Package klog is the kernel's structured-logging front end. It wraps
// github.com/joeycumines/logiface, using github.com/joeycumines/stumpy as
// the event backend, the same pairing the teacher's logiface-stumpy
// package documents as the "model" logger: events are appended to a byte
// buffer and flushed as JSON. Every subsystem (scheduler, donation, timer,
// vm, swap, process) logs through a *Logger obtained from New or Discard
// rather than the standard library log package.
package klog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logging handle passed into every subsystem constructor.
type Logger = logiface.Logger[*stumpy.Event]

// New builds a Logger that writes newline-delimited JSON events to w, at
// the given minimum level or above.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(stumpyWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// Default builds a Logger writing informational-and-above events to
// stdout, suitable for cmd/pintosim.
func Default() *Logger {
	return New(os.Stdout, logiface.LevelInformational)
}

// Discard builds a Logger that drops every event, for tests that don't
// want log noise but still need a non-nil Logger to pass to constructors.
func Discard() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}

// stumpyWriter adapts an io.Writer into a logiface.WriterFunc that flushes
// each event's rendered bytes followed by a newline, matching how the
// teacher's stumpy example writer formats output.
func stumpyWriter(w io.Writer) logiface.WriterFunc[*stumpy.Event] {
	return func(e *stumpy.Event) error {
		if _, err := w.Write(e.Bytes()); err != nil {
			return err
		}
		_, err := w.Write([]byte("\n"))
		return err
	}
}
