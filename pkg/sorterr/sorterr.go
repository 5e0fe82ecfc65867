// Package sorterr implements sortkit's error taxonomy: every failure
// sortkit surfaces is one of a small set of categories, each wrapping
// an underlying cause with errors.Is/errors.As support.
package sorterr

import (
	"errors"
	"fmt"
)

// Category classifies a sortkit failure.
type Category int

const (
	// Config covers malformed or contradictory CLI/job-file input,
	// always detected before any I/O.
	Config Category = iota
	// Input covers malformed records, short reads, and codec failures
	// while extracting keys during input processing.
	Input
	// Output covers failures writing or re-reading the final stream,
	// including the output stage's in-order self-check.
	Output
	// Predicate covers WHERE/STOP expression evaluation failures.
	Predicate
	// Internal covers invariant violations (tournament depth bounds,
	// pool exhaustion, run framing corruption) that indicate a bug
	// rather than bad input.
	Internal
)

func (c Category) String() string {
	switch c {
	case Config:
		return "config"
	case Input:
		return "input"
	case Output:
		return "output"
	case Predicate:
		return "predicate"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a categorized, wrapped sortkit failure.
type Error struct {
	Category Category
	Op       string // the operation that failed, e.g. "input.Next"
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under category, recording op for diagnostics.
func New(category Category, op string, err error) *Error {
	return &Error{Category: category, Op: op, Err: err}
}

func ConfigError(op string, err error) *Error    { return New(Config, op, err) }
func InputError(op string, err error) *Error     { return New(Input, op, err) }
func OutputError(op string, err error) *Error    { return New(Output, op, err) }
func PredicateError(op string, err error) *Error { return New(Predicate, op, err) }
func InternalError(op string, err error) *Error  { return New(Internal, op, err) }

// Is reports whether err is categorized as category, unwrapping
// through any chain of wrapped errors.
func Is(err error, category Category) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Category == category
	}
	return false
}
