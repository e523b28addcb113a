package models

import (
	"errors"
	"fmt"
)

// FailureKind tags why a load or action did not complete.
type FailureKind string

const (
	FailureInput      FailureKind = "input"
	FailureCapability FailureKind = "capability"
	FailureUpstream   FailureKind = "upstream"
)

// LoadError is the error type returned by loaders, the wallet connector and the upstream client.
type LoadError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError wraps err with a failure kind and operation name.
func NewLoadError(kind FailureKind, op string, err error) *LoadError {
	return &LoadError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the failure kind of err, or "" when err carries none.
func KindOf(err error) FailureKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err is a LoadError of the given kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}
