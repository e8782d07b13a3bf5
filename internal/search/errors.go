package search

import "fmt"

// ValidationError reports a request parameter that could not be accepted.
// Malformed marks coordinate input that could not be parsed at all, as
// opposed to well-formed input with values out of range.
type ValidationError struct {
	Param     string
	Reason    string
	Malformed bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func invalid(param, format string, args ...any) *ValidationError {
	return &ValidationError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

func malformed(param, format string, args ...any) *ValidationError {
	return &ValidationError{Param: param, Reason: fmt.Sprintf(format, args...), Malformed: true}
}
