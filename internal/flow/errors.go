package flow

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindParse  Kind = "parse"  // malformed nested mapping or identifier
	KindSchema Kind = "schema" // expected column missing from a source file
	KindIO     Kind = "io"     // missing file, permission, short write
)

// Error is a classified pipeline failure. Unit names the file, month or year
// being processed when the failure occurred.
type Error struct {
	Kind Kind
	Unit string
	Err  error
}

func (e *Error) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Unit, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewParseError wraps err as a ParseError for unit.
func NewParseError(unit string, err error) *Error {
	return &Error{Kind: KindParse, Unit: unit, Err: err}
}

// NewSchemaError wraps err as a SchemaError for unit.
func NewSchemaError(unit string, err error) *Error {
	return &Error{Kind: KindSchema, Unit: unit, Err: err}
}

// NewIOError wraps err as an IOError for unit.
func NewIOError(unit string, err error) *Error {
	return &Error{Kind: KindIO, Unit: unit, Err: err}
}

// IsKind reports whether err (or any error in its chain) is a flow.Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
