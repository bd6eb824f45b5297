package xsd

import (
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
)

// ignorePosition drops the decoder dependent positions from comparisons.
var ignorePosition = cmpopts.IgnoreFields(ValidationError{}, "Line", "Column")

func mustLoadSchema(t *testing.T, src string) *Schema {
	t.Helper()
	schema, err := LoadSchemaBytes([]byte(src))
	if err != nil {
		t.Fatalf("LoadSchemaBytes() error = %v", err)
	}
	return schema
}

func mustParse(t *testing.T, src string) *Node {
	t.Helper()
	root, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	return root
}

func mustValidate(t *testing.T, schema *Schema, src string) *Result {
	t.Helper()
	res, err := Validate(mustParse(t, src), schema)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return res
}

func errorCodes(res *Result) []ErrorCode {
	codes := []ErrorCode{}
	for _, e := range res.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}
