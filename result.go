package xsd

import (
	"fmt"
	"strings"
)

// ValidationError is one violation found in an instance document.
type ValidationError struct {
	Line      int       `json:"line"`
	Column    int       `json:"column"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Code      ErrorCode `json:"code"`
	Element   string    `json:"element,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
	// Expected lists what would have been accepted, when known.
	Expected []string `json:"expected,omitempty"`
	// Actual is the offending name or value.
	Actual string `json:"actual,omitempty"`
}

// String renders the error the way the command line tool prints it.
func (e ValidationError) String() string {
	return fmt.Sprintf("Line %d, Column %d: %s", e.Line, e.Column, e.Message)
}

// Result is the outcome of validating one instance document.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

func newResult(errs []ValidationError) *Result {
	if errs == nil {
		errs = []ValidationError{}
	}
	return &Result{Valid: len(errs) == 0, Errors: errs}
}

// Message renders the result as a human readable report.
func (r *Result) Message() string {
	if r.Valid {
		return "XML is valid against the XSD schema."
	}
	lines := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

// newError creates an error with no position. Callers stamp the position
// of the node or attribute it belongs to.
func newError(code ErrorCode, format string, args ...any) ValidationError {
	return ValidationError{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// at stamps position and context onto errors that do not carry one yet.
func at(errs []ValidationError, line, col int, element, attribute string) []ValidationError {
	for i := range errs {
		e := &errs[i]
		if e.Line == 0 {
			e.Line, e.Column = line, col
		}
		if e.Element == "" {
			e.Element = element
		}
		if e.Attribute == "" {
			e.Attribute = attribute
		}
	}
	return errs
}
