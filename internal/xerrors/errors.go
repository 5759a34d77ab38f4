// Package xerrors defines xguard's typed error taxonomy. Every type that
// carries an underlying cause exposes it through Unwrap, so errors.As and
// errors.Is see through it; plain stdlib errors are sufficient here, no
// third-party error library is needed.
package xerrors

import (
	"errors"
	"fmt"
)

// ParseFailure means one source file could not be turned into an AST.
// Recovery granularity: the file is skipped, analysis continues.
type ParseFailure struct {
	File string
	Err  error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure in %s: %v", e.File, e.Err)
}
func (e *ParseFailure) Unwrap() error { return e.Err }

func NewParseFailure(file string, cause error) error {
	return &ParseFailure{File: file, Err: cause}
}

// ResolveFailure means scope resolution, PDG construction or detection
// failed for a file. Recovery granularity: the whole file is skipped,
// including its other functions, and extension.Pool.analyzeRole continues
// with the next file.
type ResolveFailure struct {
	File     string
	Function string
	Err      error
}

func (e *ResolveFailure) Error() string {
	return fmt.Sprintf("resolve failure in %s (%s): %v", e.File, e.Function, e.Err)
}
func (e *ResolveFailure) Unwrap() error { return e.Err }

func NewResolveFailure(file, fn string, cause error) error {
	return &ResolveFailure{File: file, Function: fn, Err: cause}
}

// GraphLimit means a data-flow traversal hit its configured depth/size
// bound. Recovery granularity: that flow is reported truncated, not dropped.
type GraphLimit struct {
	Reason string
}

func (e *GraphLimit) Error() string { return fmt.Sprintf("graph limit reached: %s", e.Reason) }

func NewGraphLimit(reason string) error { return &GraphLimit{Reason: reason} }

// Timeout means an extension's wall-clock budget (default 600s) expired.
// Recovery granularity: the extension's partial result is reported with
// TimedOut set, other extensions in the batch are unaffected.
type Timeout struct {
	Extension string
	Err       error
}

func (e *Timeout) Error() string { return fmt.Sprintf("timeout analyzing %s: %v", e.Extension, e.Err) }
func (e *Timeout) Unwrap() error { return e.Err }

func NewTimeout(extension string, cause error) error {
	return &Timeout{Extension: extension, Err: cause}
}

// IOFailure wraps a filesystem/unpack-layer error (reading a manifest,
// walking the extension tree, staging a temp file).
type IOFailure struct {
	Path string
	Err  error
}

func (e *IOFailure) Error() string { return fmt.Sprintf("io failure at %s: %v", e.Path, e.Err) }
func (e *IOFailure) Unwrap() error { return e.Err }

func NewIOFailure(path string, cause error) error { return &IOFailure{Path: path, Err: cause} }

// InternalInvariantViolation records a recovered panic or a violated
// structural invariant. Recovery granularity: file-level — extension.Pool.
// analyzeFile recovers the panic, the crash is recorded under
// benchmarks.*.crashes, and the role's remaining files are still analyzed.
type InternalInvariantViolation struct {
	Extension string
	Detail    string
}

func (e *InternalInvariantViolation) Error() string {
	return fmt.Sprintf("internal invariant violated analyzing %s: %s", e.Extension, e.Detail)
}

func NewInternalInvariantViolation(extension, detail string) error {
	return &InternalInvariantViolation{Extension: extension, Detail: detail}
}

// As is a thin re-export of errors.As so callers dispatching on xerrors
// types don't need a separate stdlib errors import alongside this package.
func As(err error, target interface{}) bool { return errors.As(err, target) }
