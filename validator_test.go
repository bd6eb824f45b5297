package xsd

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"
)

const personSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="person">
    <xs:complexType>
      <xs:attribute name="age" use="required">
        <xs:simpleType>
          <xs:restriction base="xs:integer">
            <xs:minInclusive value="0"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:attribute>
    </xs:complexType>
  </xs:element>
  <xs:element name="list">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="item" type="xs:string" maxOccurs="unbounded"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestValidateScenarios(t *testing.T) {
	schema := mustLoadSchema(t, personSchema)

	tests := []struct {
		name string
		xml  string
		want *Result
	}{
		{
			name: "attribute below minInclusive",
			xml:  `<person age="-5"/>`,
			want: &Result{Errors: []ValidationError{{
				Message:   "value '-5' is not facet-valid with respect to minInclusive '0'",
				Severity:  SeverityError,
				Code:      "cvc-minInclusive-valid",
				Element:   "person",
				Attribute: "age",
				Actual:    "-5",
			}}},
		},
		{
			name: "required item missing",
			xml:  `<list></list>`,
			want: &Result{Errors: []ValidationError{{
				Message:  "element 'list' is incomplete: minOccurs 1 not satisfied for 'item'",
				Severity: SeverityError,
				Code:     ErrRequiredElementMissing,
				Element:  "list",
				Expected: []string{"item"},
			}}},
		},
		{
			name: "conforming person",
			xml:  `<person age="42"/>`,
			want: &Result{Valid: true, Errors: []ValidationError{}},
		},
		{
			name: "conforming list",
			xml:  "<list>\n  <item>a</item>\n  <item>b</item>\n</list>",
			want: &Result{Valid: true, Errors: []ValidationError{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustValidate(t, schema, tt.xml)
			if diff := cmp.Diff(tt.want, got, ignorePosition); diff != "" {
				t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateWithoutSchema(t *testing.T) {
	root := mustParse(t, `<person age="1"/>`)
	for _, schema := range []*Schema{nil, {}} {
		res, err := Validate(root, schema)
		if !errors.Is(err, ErrSchemaNotLoaded) {
			t.Errorf("Validate() error = %v, want ErrSchemaNotLoaded", err)
		}
		if res != nil {
			t.Errorf("Validate() result = %+v, want nil", res)
		}
	}
}

func TestValidateUndeclaredRoot(t *testing.T) {
	schema := mustLoadSchema(t, personSchema)
	got := mustValidate(t, schema, `<unknown><person age="x"/></unknown>`)

	want := &Result{Errors: []ValidationError{{
		Message:  "undeclared element 'unknown': no declaration found in the schema",
		Severity: SeverityError,
		Code:     ErrElementNotDeclared,
		Element:  "unknown",
		Actual:   "unknown",
	}}}
	if diff := cmp.Diff(want, got, ignorePosition); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

const orderSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="order">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:positiveInteger"/>
        <xs:element name="status">
          <xs:simpleType>
            <xs:restriction base="xs:string">
              <xs:enumeration value="open"/>
              <xs:enumeration value="closed"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
        <xs:element name="qty" type="xs:int"/>
        <xs:element name="note" type="xs:string" minOccurs="0"/>
      </xs:sequence>
      <xs:attribute name="code" use="required">
        <xs:simpleType>
          <xs:restriction base="xs:string">
            <xs:pattern value="[A-Z]{3}"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:attribute>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestValidateReportsEveryIndependentDefect(t *testing.T) {
	schema := mustLoadSchema(t, orderSchema)
	got := mustValidate(t, schema, `<order code="ab1">
  <id>0</id>
  <status>pending</status>
  <qty>x</qty>
</order>`)

	want := &Result{Errors: []ValidationError{
		{
			Message:   "value 'ab1' is not facet-valid with respect to pattern '[A-Z]{3}'",
			Severity:  SeverityError,
			Code:      ErrPatternInvalid,
			Element:   "order",
			Attribute: "code",
			Actual:    "ab1",
		},
		{
			Message:  "'0' is not a valid value for 'positiveInteger'",
			Severity: SeverityError,
			Code:     ErrDatatypeInvalid,
			Element:  "id",
			Actual:   "0",
		},
		{
			Message:  "value 'pending' is not facet-valid with respect to enumeration '[open, closed]'. It must be a value from the enumeration",
			Severity: SeverityError,
			Code:     ErrEnumerationInvalid,
			Element:  "status",
			Expected: []string{"open", "closed"},
			Actual:   "pending",
		},
		{
			Message:  "'x' is not a valid value for 'int'",
			Severity: SeverityError,
			Code:     ErrDatatypeInvalid,
			Element:  "qty",
			Actual:   "x",
		},
	}}
	if diff := cmp.Diff(want, got, ignorePosition); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	schema := mustLoadSchema(t, orderSchema)
	root := mustParse(t, `<order code="ab1"><id>0</id><qty>1</qty></order>`)

	first, err := Validate(root, schema)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	second, err := Validate(root, schema)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if first.Valid {
		t.Fatal("Validate() reported an invalid document as valid")
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second Validate() differs (-first +second):\n%s", diff)
	}
}

func TestValidateConcurrentReuse(t *testing.T) {
	defer goleak.VerifyNone(t)

	schema := mustLoadSchema(t, orderSchema)
	docs := []string{
		`<order code="ABC"><id>1</id><status>open</status><qty>3</qty></order>`,
		`<order code="ab1"><id>0</id><status>pending</status><qty>x</qty></order>`,
		`<order><id>7</id><status>closed</status><qty>1</qty><note>n</note></order>`,
	}
	want := make([]*Result, len(docs))
	for i, d := range docs {
		want[i] = mustValidate(t, schema, d)
	}

	var wg sync.WaitGroup
	got := make([][]*Result, 8)
	for g := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, d := range docs {
				root, err := ParseBytes([]byte(d))
				if err != nil {
					return
				}
				res, err := Validate(root, schema)
				if err != nil {
					return
				}
				got[g] = append(got[g], res)
			}
		}()
	}
	wg.Wait()

	for g := range got {
		if diff := cmp.Diff(want, got[g]); diff != "" {
			t.Errorf("goroutine %d mismatch (-want +got):\n%s", g, diff)
		}
	}
}

const librarySchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="library">
    <xs:complexType>
      <xs:sequence>
        <xs:element ref="book" maxOccurs="unbounded"/>
        <xs:element name="loan" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:attribute name="book" type="xs:IDREF" use="required"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="book" type="BookType"/>
  <xs:complexType name="BookType">
    <xs:all>
      <xs:element name="title" type="xs:string"/>
      <xs:element name="year" type="xs:gYear" minOccurs="0"/>
      <xs:element name="isbn" type="xs:string" nillable="true" minOccurs="0"/>
    </xs:all>
    <xs:attribute name="id" type="xs:ID" use="required"/>
    <xs:attribute name="lang" type="xs:language" default="en"/>
  </xs:complexType>
</xs:schema>`

func TestValidateLibrary(t *testing.T) {
	schema := mustLoadSchema(t, librarySchema)

	tests := []struct {
		name string
		xml  string
		want []ErrorCode
	}{
		{
			name: "valid",
			xml: `<library>
  <book id="b1"><title>Go</title><year>2015</year></book>
  <book id="b2" lang="de"><year>2020</year><title>X</title></book>
  <loan book="b2"/>
</library>`,
			want: []ErrorCode{},
		},
		{
			name: "duplicate id",
			xml:  `<library><book id="b1"><title>A</title></book><book id="b1"><title>B</title></book></library>`,
			want: []ErrorCode{ErrDuplicateID},
		},
		{
			name: "dangling idref",
			xml:  `<library><book id="b1"><title>A</title></book><loan book="zz"/></library>`,
			want: []ErrorCode{ErrIDRefNotFound},
		},
		{
			name: "missing required attribute",
			xml:  `<library><book><title>A</title></book></library>`,
			want: []ErrorCode{ErrRequiredAttributeMissing},
		},
		{
			name: "undeclared attribute",
			xml:  `<library><book id="b1" color="red"><title>A</title></book></library>`,
			want: []ErrorCode{ErrAttributeNotDeclared},
		},
		{
			name: "invalid language attribute",
			xml:  `<library><book id="b1" lang="not a language!"><title>A</title></book></library>`,
			want: []ErrorCode{ErrDatatypeInvalid},
		},
		{
			name: "all group missing member",
			xml:  `<library><book id="b1"><year>2015</year></book></library>`,
			want: []ErrorCode{ErrRequiredElementMissing},
		},
		{
			name: "all group repeated member",
			xml:  `<library><book id="b1"><title>A</title><title>B</title></book></library>`,
			want: []ErrorCode{ErrUnexpectedElement},
		},
		{
			name: "invalid year",
			xml:  `<library><book id="b1"><title>A</title><year>15</year></book></library>`,
			want: []ErrorCode{ErrDatatypeInvalid},
		},
		{
			name: "child element in simple content",
			xml:  `<library><book id="b1"><title>A<b/></title></book></library>`,
			want: []ErrorCode{ErrSimpleContentChildren},
		},
		{
			name: "text in element-only content",
			xml:  `<library>stray<book id="b1"><title>A</title></book></library>`,
			want: []ErrorCode{ErrTextInElementOnly},
		},
		{
			name: "nil element",
			xml: `<library xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <book id="b1"><title>A</title><isbn xsi:nil="true"/></book>
</library>`,
			want: []ErrorCode{},
		},
		{
			name: "nil element with content",
			xml: `<library xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <book id="b1"><title>A</title><isbn xsi:nil="true">123</isbn></book>
</library>`,
			want: []ErrorCode{ErrNilElementNotEmpty},
		},
		{
			name: "nil on non-nillable element",
			xml: `<library xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <book id="b1"><title xsi:nil="true"/></book>
</library>`,
			want: []ErrorCode{ErrElementNotNillable},
		},
		{
			name: "defects below a structural defect are still reported",
			xml:  `<library><loan book="b1"/><book id="b1"><title>A</title><year>x</year></book></library>`,
			want: []ErrorCode{ErrUnexpectedElement, ErrDatatypeInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustValidate(t, schema, tt.xml)
			if diff := cmp.Diff(tt.want, errorCodes(got)); diff != "" {
				t.Errorf("error codes mismatch (-want +got):\n%s\n%s", diff, got.Message())
			}
			if got.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v with %d errors", got.Valid, len(got.Errors))
			}
		})
	}
}

func TestValidateContentModelMessages(t *testing.T) {
	schema := mustLoadSchema(t, librarySchema)

	tests := []struct {
		name string
		xml  string
		want ValidationError
	}{
		{
			name: "unexpected element",
			xml:  `<library><book id="b1"><title>A</title><title>B</title></book></library>`,
			want: ValidationError{
				Message:  "unexpected element 'title' in element 'book': expected 'year' or 'isbn'",
				Severity: SeverityError,
				Code:     ErrUnexpectedElement,
				Element:  "book",
				Expected: []string{"year", "isbn"},
				Actual:   "title",
			},
		},
		{
			name: "missing element",
			xml:  `<library><book id="b1"><year>2015</year></book></library>`,
			want: ValidationError{
				Message:  "element 'book' is incomplete: minOccurs 1 not satisfied for 'title'",
				Severity: SeverityError,
				Code:     ErrRequiredElementMissing,
				Element:  "book",
				Expected: []string{"title", "isbn"},
			},
		},
		{
			name: "repeated particle exhausted",
			xml:  `<library><book id="b1"><title>A</title></book><loan book="b1"/><book id="b2"><title>B</title></book></library>`,
			want: ValidationError{
				Message:  "unexpected element 'book' in element 'library': expected 'loan'",
				Severity: SeverityError,
				Code:     ErrUnexpectedElement,
				Element:  "library",
				Expected: []string{"loan"},
				Actual:   "book",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustValidate(t, schema, tt.xml)
			if len(got.Errors) != 1 {
				t.Fatalf("got %d errors, want 1:\n%s", len(got.Errors), got.Message())
			}
			if diff := cmp.Diff(tt.want, got.Errors[0], ignorePosition); diff != "" {
				t.Errorf("error mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const shapesSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="urn:shapes" xmlns="urn:shapes" elementFormDefault="qualified">
  <xs:complexType name="Shape" abstract="true">
    <xs:sequence>
      <xs:element name="label" type="xs:string"/>
    </xs:sequence>
  </xs:complexType>
  <xs:complexType name="Circle">
    <xs:complexContent>
      <xs:extension base="Shape">
        <xs:sequence>
          <xs:element name="radius" type="xs:decimal"/>
        </xs:sequence>
        <xs:attribute name="filled" type="xs:boolean"/>
      </xs:extension>
    </xs:complexContent>
  </xs:complexType>
  <xs:complexType name="Caption" mixed="true">
    <xs:sequence>
      <xs:element name="em" type="xs:string" minOccurs="0" maxOccurs="unbounded"/>
    </xs:sequence>
  </xs:complexType>
  <xs:element name="drawing">
    <xs:complexType>
      <xs:choice minOccurs="0" maxOccurs="unbounded">
        <xs:element name="circle" type="Circle"/>
        <xs:element name="shape" type="Shape"/>
        <xs:element name="caption" type="Caption"/>
      </xs:choice>
    </xs:complexType>
  </xs:element>
  <xs:element name="base" type="xs:string" abstract="true"/>
</xs:schema>`

func TestValidateDerivedTypes(t *testing.T) {
	schema := mustLoadSchema(t, shapesSchema)

	tests := []struct {
		name string
		xml  string
		want []ErrorCode
	}{
		{
			name: "extension and mixed content",
			xml: `<drawing xmlns="urn:shapes">
  <circle filled="true"><label>c</label><radius>2.5</radius></circle>
  <caption>Hello <em>world</em>!</caption>
</drawing>`,
			want: []ErrorCode{},
		},
		{
			name: "empty repeated choice",
			xml:  `<drawing xmlns="urn:shapes"/>`,
			want: []ErrorCode{},
		},
		{
			name: "base content must come first",
			xml:  `<drawing xmlns="urn:shapes"><circle><radius>1</radius><label>c</label></circle></drawing>`,
			want: []ErrorCode{ErrUnexpectedElement},
		},
		{
			name: "abstract type",
			xml:  `<drawing xmlns="urn:shapes"><shape><label>s</label></shape></drawing>`,
			want: []ErrorCode{ErrElementTypeAbstract},
		},
		{
			name: "abstract element",
			xml:  `<base xmlns="urn:shapes">x</base>`,
			want: []ErrorCode{ErrElementAbstract},
		},
		{
			name: "extension attribute type",
			xml:  `<drawing xmlns="urn:shapes"><circle filled="maybe"><label>c</label><radius>1</radius></circle></drawing>`,
			want: []ErrorCode{ErrDatatypeInvalid},
		},
		{
			name: "unqualified root",
			xml:  `<drawing/>`,
			want: []ErrorCode{ErrElementNotDeclared},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustValidate(t, schema, tt.xml)
			if diff := cmp.Diff(tt.want, errorCodes(got)); diff != "" {
				t.Errorf("error codes mismatch (-want +got):\n%s\n%s", diff, got.Message())
			}
		})
	}
}

func TestValidateNoChildExpected(t *testing.T) {
	schema := mustLoadSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="note">
    <xs:complexType mixed="true"/>
  </xs:element>
</xs:schema>`)

	got := mustValidate(t, schema, `<note>some <b>bold</b> text</note>`)
	want := &Result{Errors: []ValidationError{{
		Message:  "unexpected element 'b' in element 'note': no child element is expected at this point",
		Severity: SeverityError,
		Code:     ErrUnexpectedElement,
		Element:  "note",
		Actual:   "b",
	}}}
	if diff := cmp.Diff(want, got, ignorePosition); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestResultMessage(t *testing.T) {
	valid := newResult(nil)
	if got, want := valid.Message(), "XML is valid against the XSD schema."; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}

	invalid := newResult([]ValidationError{
		{Line: 2, Column: 5, Message: "first"},
		{Line: 7, Column: 1, Message: "second"},
	})
	if got, want := invalid.Message(), "Line 2, Column 5: first\nLine 7, Column 1: second"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	if invalid.Valid {
		t.Error("Valid = true for a result with errors")
	}
}

func TestSchemaValidateBytes(t *testing.T) {
	schema := mustLoadSchema(t, personSchema)

	res, err := schema.ValidateBytes([]byte(`<person age="3"/>`))
	if err != nil {
		t.Fatalf("ValidateBytes() error = %v", err)
	}
	if !res.Valid {
		t.Errorf("ValidateBytes() = %s", res.Message())
	}

	_, err = schema.ValidateBytes([]byte(`<person age="3">`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("ValidateBytes() error = %v, want *ParseError", err)
	}
}

func TestValidationErrorOrderFollowsDocument(t *testing.T) {
	schema := mustLoadSchema(t, orderSchema)
	got := mustValidate(t, schema, `<order code="x"><id>a</id><status>b</status><qty>c</qty></order>`)

	elements := make([]string, 0, len(got.Errors))
	for _, e := range got.Errors {
		elements = append(elements, e.Element)
	}
	want := []string{"order", "id", "status", "qty"}
	if diff := cmp.Diff(want, elements, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("error order mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateReportsPositions(t *testing.T) {
	schema := mustLoadSchema(t, personSchema)

	tests := []struct {
		name string
		xml  string
		want []ValidationError
	}{
		{
			name: "unexpected child",
			xml:  "<list>\n  <item>a</item>\n  <bogus/>\n</list>",
			want: []ValidationError{{Line: 3, Column: 3, Code: ErrUnexpectedElement, Element: "list"}},
		},
		{
			name: "attribute facet",
			xml:  "<person\n   age=\"-5\"/>",
			want: []ValidationError{{Line: 2, Column: 4, Code: "cvc-minInclusive-valid", Element: "person", Attribute: "age"}},
		},
		{
			name: "missing content",
			xml:  "\n  <list>\n  </list>",
			want: []ValidationError{{Line: 2, Column: 3, Code: ErrRequiredElementMissing, Element: "list"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustValidate(t, schema, tt.xml)
			got := make([]ValidationError, len(res.Errors))
			for i, e := range res.Errors {
				got[i] = ValidationError{Line: e.Line, Column: e.Column, Code: e.Code, Element: e.Element, Attribute: e.Attribute}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Validate() positions mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := ParseBytes([]byte("<list>\n  <item>a</item>\n</lst>"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("ParseBytes() error = %v, want *ParseError", err)
	}
	if pe.Line != 3 {
		t.Errorf("ParseError.Line = %d, want 3", pe.Line)
	}
	if want := "parse error at line 3: "; !strings.HasPrefix(pe.Error(), want) {
		t.Errorf("Error() = %q, want prefix %q", pe.Error(), want)
	}
}

func TestValidateLongSiblingList(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a document with more children than the matcher's base step budget")
	}
	schema := mustLoadSchema(t, personSchema)
	xml := "<list>" + strings.Repeat("<item>a</item>", maxMatchSteps+1) + "</list>"
	res := mustValidate(t, schema, xml)
	if !res.Valid {
		t.Errorf("Validate() = %d errors, first: %v", len(res.Errors), res.Errors[0])
	}
}

func TestValidateContentModelTooComplex(t *testing.T) {
	schema := mustLoadSchema(t, wrapSchema(`<xs:element name="r">
  <xs:complexType>
    <xs:sequence>
      <xs:choice maxOccurs="unbounded">
        <xs:element name="a" type="xs:string"/>
        <xs:element name="a" type="xs:string"/>
      </xs:choice>
      <xs:element name="b" type="xs:string"/>
    </xs:sequence>
  </xs:complexType>
</xs:element>`))

	got := mustValidate(t, schema, "<r>"+strings.Repeat("<a/>", 40)+"<x/></r>")
	want := &Result{Errors: []ValidationError{{
		Message:  "content of element 'r' could not be matched against its content model within the step limit",
		Severity: SeverityError,
		Code:     ErrContentModelTooComplex,
		Element:  "r",
	}}}
	if diff := cmp.Diff(want, got, ignorePosition); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}
