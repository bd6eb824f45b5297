package xsd

import (
	"errors"
	"fmt"
)

// ErrSchemaNotLoaded is returned when validation is attempted without a compiled schema.
var ErrSchemaNotLoaded = errors.New("xsd: schema not loaded")

// ParseError reports malformed XML or XSD input. Validation cannot proceed past it.
type ParseError struct {
	Message string
	Line    int
	Column  int
	Err     error
}

func (e *ParseError) Error() string {
	return "parse error" + positionSuffix(e.Line, e.Column) + ": " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a structurally invalid schema: undefined references,
// circular derivations, duplicate declarations or bad occurrence bounds.
// Build may return several of them combined into one error.
type SchemaError struct {
	Message string
	Line    int
	Column  int
}

func (e *SchemaError) Error() string {
	return "schema error" + positionSuffix(e.Line, e.Column) + ": " + e.Message
}

// positionSuffix renders " at line L, column C", leaving out whatever the
// decoder could not report.
func positionSuffix(line, col int) string {
	switch {
	case line <= 0:
		return ""
	case col <= 0:
		return fmt.Sprintf(" at line %d", line)
	}
	return fmt.Sprintf(" at line %d, column %d", line, col)
}

// ErrorCode is a W3C XML Schema validation rule identifier.
type ErrorCode string

const (
	ErrElementNotDeclared       ErrorCode = "cvc-elt.1"
	ErrElementAbstract          ErrorCode = "cvc-elt.2"
	ErrElementNotNillable       ErrorCode = "cvc-elt.3.1"
	ErrNilElementNotEmpty       ErrorCode = "cvc-elt.3.2.1"
	ErrElementTypeAbstract      ErrorCode = "cvc-elt.4.2"
	ErrElementFixedValue        ErrorCode = "cvc-elt.5.2.2"
	ErrEmptyContent             ErrorCode = "cvc-complex-type.2.1"
	ErrSimpleContentChildren    ErrorCode = "cvc-complex-type.2.2"
	ErrTextInElementOnly        ErrorCode = "cvc-complex-type.2.3"
	ErrUnexpectedElement        ErrorCode = "cvc-complex-type.2.4.a"
	ErrRequiredElementMissing   ErrorCode = "cvc-complex-type.2.4.b"
	ErrContentModelTooComplex   ErrorCode = "cvc-complex-type.2.4"
	ErrAttributeNotDeclared     ErrorCode = "cvc-complex-type.3.2.2"
	ErrRequiredAttributeMissing ErrorCode = "cvc-complex-type.4"
	ErrAttributeFixedValue      ErrorCode = "cvc-attribute.4"
	ErrDatatypeInvalid          ErrorCode = "cvc-datatype-valid.1.2.1"
	ErrPatternInvalid           ErrorCode = "cvc-pattern-valid"
	ErrEnumerationInvalid       ErrorCode = "cvc-enumeration-valid"
	ErrUnionInvalid             ErrorCode = "cvc-datatype-valid.1.2.3"
	ErrIDRefNotFound            ErrorCode = "cvc-id.1"
	ErrDuplicateID              ErrorCode = "cvc-id.2"
)

// facetErrorCode returns the cvc code for a violated facet, e.g. cvc-maxLength-valid.
func facetErrorCode(kind FacetKind) ErrorCode {
	return ErrorCode("cvc-" + string(kind) + "-valid")
}
