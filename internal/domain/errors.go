package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or mismatched input shapes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DegenerateInputError reports a mathematically undefined ratio, such as a
// zero market variance or a zero portfolio volatility.
type DegenerateInputError struct {
	Quantity string
	Reason   string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: %s: %s", e.Quantity, e.Reason)
}

// InfeasibleError reports that no weight vector satisfies every constraint.
type InfeasibleError struct {
	Assets      int
	Constraints int
	Violation   float64
	Reason      string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("infeasible problem (%d assets, %d constraints, max violation %.3g): %s",
		e.Assets, e.Constraints, e.Violation, e.Reason)
}

// ConvergenceError reports that a nonlinear solve ran out of its iteration
// or tolerance budget. Err is set when the inner minimizer itself failed.
type ConvergenceError struct {
	Method     string
	Iterations int
	Residual   float64
	Err        error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("%s did not converge after %d iterations (residual %.3g)",
		e.Method, e.Iterations, e.Residual)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error { return e.Err }

// InvalidViewError reports inconsistent Black-Litterman view dimensions.
type InvalidViewError struct {
	Assets        int
	Views         int
	Columns       int
	Returns       int
	Uncertainties int
	Reason        string
}

func (e *InvalidViewError) Error() string {
	return fmt.Sprintf("invalid views (assets=%d, P=%dx%d, Q=%d, omega=%d): %s",
		e.Assets, e.Views, e.Columns, e.Returns, e.Uncertainties, e.Reason)
}

// TimeoutError reports that an operation hit its deadline.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ErrorKind returns a stable machine-readable name for a domain error, or
// "internal" for anything else.
func ErrorKind(err error) string {
	var (
		validation  *ValidationError
		degenerate  *DegenerateInputError
		infeasible  *InfeasibleError
		convergence *ConvergenceError
		view        *InvalidViewError
		timeout     *TimeoutError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &view):
		return "invalid_view"
	case errors.As(err, &degenerate):
		return "degenerate_input"
	case errors.As(err, &infeasible):
		return "infeasible"
	case errors.As(err, &convergence):
		return "convergence"
	case errors.As(err, &timeout):
		return "timeout"
	default:
		return "internal"
	}
}
