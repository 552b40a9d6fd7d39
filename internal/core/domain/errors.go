package domain

import (
	"errors"
	"fmt"
)

// Common errors shared across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ModelError reports a malformed or inconsistent model. It is fatal at load
// time: no enforcer is constructed from a model that fails validation.
type ModelError struct {
	Section string
	Reason  string
}

func (e *ModelError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("invalid model: %s", e.Reason)
	}
	return fmt.Sprintf("invalid model section %q: %s", e.Section, e.Reason)
}

// CompileError reports a matcher or effect expression that failed to compile.
type CompileError struct {
	Expr   string
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("cannot compile %q: %s", e.Expr, e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EvalError reports a single rule evaluation failure at runtime: an unknown
// function, a type mismatch, or a malformed literal. It fails only the rule
// it occurred on; enforcement continues with the remaining rules.
type EvalError struct {
	Reason string
	Err    error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("matcher evaluation failed: %s", e.Reason)
}

func (e *EvalError) Unwrap() error { return e.Err }

// EnforceError reports that a decision could not be computed at all, such as
// a request arity mismatch or a missing matcher. It is surfaced to the
// caller instead of being folded into a false decision.
type EnforceError struct {
	Reason string
}

func (e *EnforceError) Error() string {
	return fmt.Sprintf("enforce failed: %s", e.Reason)
}

// AdapterError wraps a persistence failure. The in-memory state is left
// unchanged when one is returned.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
