// Package errors provides comprehensive error handling utilities for shapgo.
//
// This file contains panic recovery utilities used by the run orchestration to
// convert unexpected panics inside a stage into structured errors that name the
// stage that failed.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error that was created from a recovered panic.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Stage identifies the pipeline stage where the panic was recovered
	Stage string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Stage, e.PanicValue)
}

// String provides detailed information including stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Stage, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a new PanicError for the given stage.
func NewPanicError(stage string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Stage:      stage,
	}
}

// Recover converts a panic into an error assigned to *err. It must be deferred
// directly by the function whose named error return is passed in.
//
//	func (r *Runner) fitStage() (err error) {
//	    defer errors.Recover(&err, "fit")
//	    ...
//	}
//
// If the function already returned an error, the panic information wraps it.
func Recover(err *error, stage string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(stage, r)

		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)", stage, r, *err)
		} else {
			*err = panicErr
		}
	}
}

// SafeExecute executes fn and recovers from any panic, converting it to an error.
func SafeExecute(stage string, fn func() error) (err error) {
	defer Recover(&err, stage)
	return fn()
}
