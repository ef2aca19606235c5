package expr

import "errors"

var (
	// ErrUnsafe marks input containing characters or constructs outside
	// the grammar. It is never retried.
	ErrUnsafe = errors.New("expr: unsafe expression")

	// ErrSyntax marks input that lexes but does not parse.
	ErrSyntax = errors.New("expr: syntax error")

	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("expr: division by zero")

	// ErrNonFinite is returned when a value is NaN or infinite.
	ErrNonFinite = errors.New("expr: non-finite value")
)
