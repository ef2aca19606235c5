package calc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"factcalc/pkg/core/calc/expr"
	"factcalc/pkg/core/facts"
)

// ErrorKind classifies a failed calculation.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "InvalidRequest"
	KindUnknownEntity       ErrorKind = "UnknownEntity"
	KindUnknownConcept      ErrorKind = "UnknownConcept"
	KindUnknownMetric       ErrorKind = "UnknownMetric"
	KindMissingInputs       ErrorKind = "MissingInputs"
	KindUnsafeExpression    ErrorKind = "UnsafeOrUnparsableExpression"
	KindEvaluation          ErrorKind = "EvaluationError"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindTimeout             ErrorKind = "Timeout"
	KindInternal            ErrorKind = "Internal"
)

// Error is returned for every failed calculation. No partial result
// accompanies it.
type Error struct {
	Kind   ErrorKind
	Reason string
	// Missing lists every required input that did not resolve.
	Missing []string
	// Flags carries soft findings gathered before the failure, such as
	// ACCESSION_MISMATCH:<name>.
	Flags []string
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	if len(e.Missing) > 0 {
		msg += " [" + strings.Join(e.Missing, ", ") + "]"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable || e.Kind == KindTimeout
}

// KindOf returns the kind of a calculation error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// AsError maps any error from the facts or calc layers onto an *Error so
// callers outside the engine share its taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	return classify(err)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// classify maps collaborator errors onto the calculation taxonomy.
// Context errors are checked first so a deadline hit inside an upstream
// call reports Timeout.
func classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case errors.Is(err, facts.ErrUnknownEntity):
		kind = KindUnknownEntity
	case errors.Is(err, facts.ErrUnknownConcept):
		kind = KindUnknownConcept
	case errors.Is(err, facts.ErrUpstreamUnavailable):
		kind = KindUpstreamUnavailable
	case errors.Is(err, facts.ErrInvalidPeriod):
		kind = KindInvalidRequest
	case errors.Is(err, expr.ErrUnsafe), errors.Is(err, expr.ErrSyntax):
		kind = KindUnsafeExpression
	case errors.Is(err, expr.ErrDivisionByZero), errors.Is(err, expr.ErrNonFinite):
		kind = KindEvaluation
	}
	return &Error{Kind: kind, Reason: err.Error(), Err: err}
}
