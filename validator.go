package xsd

import (
	"fmt"
	"strings"
)

var xsiNil = QName{Namespace: XSINamespace, Local: "nil"}

// Validator validates XML documents against XSD schemas. A Validator holds
// the state of one walk and must not be used by several goroutines at once;
// the Schema it reads may be shared freely.
type Validator struct {
	schema *Schema
	errs   []ValidationError
	ids    map[string]bool
	idRefs []idRef
}

// idRef is an IDREF value waiting for the end of the document.
type idRef struct {
	value     string
	line, col int
	element   string
	attribute string
}

// NewValidator creates a new validator for a schema
func NewValidator(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// Validate validates the instance tree rooted at root against schema.
func Validate(root *Node, schema *Schema) (*Result, error) {
	return NewValidator(schema).Validate(root)
}

// Validate walks root depth-first and returns every violation found. The
// walk never stops early. IDREF errors follow the walk in document order.
func (v *Validator) Validate(root *Node) (*Result, error) {
	if v.schema == nil || v.schema.Elements == nil {
		return nil, ErrSchemaNotLoaded
	}
	if root == nil {
		return nil, &ParseError{Message: "document has no root element"}
	}

	v.errs = nil
	v.ids = make(map[string]bool)
	v.idRefs = nil

	decl, ok := v.schema.Element(root.Name)
	if !ok {
		e := newError(ErrElementNotDeclared, "undeclared element '%s': no declaration found in the schema", root.Name.Local)
		e.Actual = root.Name.Local
		v.add(root, "", e)
	} else {
		v.validateElement(root, decl)
	}
	v.checkIDRefs()
	return newResult(v.errs), nil
}

func (v *Validator) add(node *Node, attribute string, errs ...ValidationError) {
	v.errs = append(v.errs, at(errs, node.Line, node.Column, node.Name.Local, attribute)...)
}

// validateElement checks node against its declaration and descends into
// its children.
func (v *Validator) validateElement(node *Node, decl *ElementDecl) {
	name := node.Name.Local
	if decl.Abstract {
		v.add(node, "", newError(ErrElementAbstract, "element '%s' is abstract and cannot be used in an instance", name))
	}

	t, ok := v.schema.LookupType(decl.Type)
	if !ok {
		t = anyType
	}

	nilled := false
	if a, present := node.Attr(xsiNil); present {
		switch {
		case !decl.Nillable:
			e := newError(ErrElementNotNillable, "element '%s' is not nillable but has xsi:nil", name)
			v.errs = append(v.errs, at([]ValidationError{e}, a.Line, a.Column, name, "nil")...)
		case parseBool(a.Value):
			nilled = true
		}
	}

	switch t := t.(type) {
	case *SimpleType:
		for _, a := range node.Attributes {
			if isExemptAttribute(a.Name) {
				continue
			}
			e := newError(ErrAttributeNotDeclared, "unexpected attribute '%s' on element '%s'", a.Name.Local, name)
			e.Actual = a.Name.Local
			v.errs = append(v.errs, at([]ValidationError{e}, a.Line, a.Column, name, a.Name.Local)...)
		}
		if nilled {
			v.checkNilled(node)
			return
		}
		v.rejectChildren(node, ErrSimpleContentChildren, "has simple content")
		v.checkValue(node, effectiveText(node, decl), t, decl)

	case *ComplexType:
		if t.Abstract {
			v.add(node, "", newError(ErrElementTypeAbstract, "type '%s' of element '%s' is abstract", displayTypeName(t.Name), name))
		}
		v.add(node, "", ValidateAttributes(node, t)...)
		v.trackAttributeIDs(node, t)
		if nilled {
			v.checkNilled(node)
			return
		}
		if t.isAnyType() {
			return
		}
		switch t.Content {
		case EmptyContent:
			v.rejectChildren(node, ErrEmptyContent, "has empty content")
			if node.HasText() {
				v.add(node, "", newError(ErrEmptyContent, "element '%s' has empty content and cannot contain text", name))
			}
		case SimpleContent:
			v.rejectChildren(node, ErrSimpleContentChildren, "has simple content")
			v.checkValue(node, effectiveText(node, decl), t.contentType, decl)
		case ElementContent:
			if !t.Mixed && node.HasText() {
				v.add(node, "", newError(ErrTextInElementOnly, "element '%s' has element-only content and cannot contain text", name))
			}
			v.validateContent(node, t)
		}
	}
}

// checkNilled requires an element with xsi:nil="true" to be empty.
func (v *Validator) checkNilled(node *Node) {
	if len(node.Children) > 0 || node.HasText() {
		v.add(node, "", newError(ErrNilElementNotEmpty, "element '%s' has xsi:nil=\"true\" and must be empty", node.Name.Local))
	}
}

// rejectChildren reports every child element of a node whose type allows none.
func (v *Validator) rejectChildren(node *Node, code ErrorCode, reason string) {
	for _, child := range node.Children {
		e := newError(code, "element '%s' %s and cannot contain element '%s'", node.Name.Local, reason, child.Name.Local)
		e.Actual = child.Name.Local
		v.errs = append(v.errs, at([]ValidationError{e}, child.Line, child.Column, node.Name.Local, "")...)
	}
}

// checkValue validates the text of an element with simple content.
func (v *Validator) checkValue(node *Node, text string, st *SimpleType, decl *ElementDecl) {
	if st == nil {
		return
	}
	errs := ValidateSimple(text, st)
	if len(errs) == 0 {
		errs = checkElementFixed(text, decl, st)
	}
	if len(errs) == 0 {
		v.trackID(text, st, node.Line, node.Column, node.Name.Local, "")
	}
	v.add(node, "", errs...)
}

// validateContent matches the children of node against the content model
// of ct and validates every child bound to a declaration. At most one
// content model error is reported per element, at the first child that
// could not be matched or, for missing content, after the children.
func (v *Validator) validateContent(node *Node, ct *ComplexType) {
	names := make([]QName, len(node.Children))
	for i, c := range node.Children {
		names[i] = c.Name
	}
	match := MatchAll(ct.Particle, names)

	for i, child := range node.Children {
		if !match.OK && match.Mismatch.Index == i {
			v.unexpectedChild(node, child, match.Mismatch)
		}
		if decl := match.Bindings[i]; decl != nil {
			v.validateElement(child, decl)
		}
	}
	if !match.OK && match.Mismatch.Index == len(node.Children) {
		v.missingContent(node, match.Mismatch)
	}
	if !match.OK && match.Mismatch.Exhausted {
		v.add(node, "", newError(ErrContentModelTooComplex,
			"content of element '%s' could not be matched against its content model within the step limit",
			node.Name.Local))
	}
}

func (v *Validator) unexpectedChild(parent, child *Node, mm *Mismatch) {
	expected := mm.ExpectedNames()
	var e ValidationError
	if len(expected) == 0 {
		e = newError(ErrUnexpectedElement, "unexpected element '%s' in element '%s': no child element is expected at this point",
			child.Name.Local, parent.Name.Local)
	} else {
		e = newError(ErrUnexpectedElement, "unexpected element '%s' in element '%s': expected %s",
			child.Name.Local, parent.Name.Local, quoteNames(expected))
	}
	e.Expected = expected
	e.Actual = child.Name.Local
	v.errs = append(v.errs, at([]ValidationError{e}, child.Line, child.Column, parent.Name.Local, "")...)
}

func (v *Validator) missingContent(node *Node, mm *Mismatch) {
	expected := mm.ExpectedNames()
	var e ValidationError
	switch {
	case mm.Missing != nil && mm.Missing.Min > 0:
		e = newError(ErrRequiredElementMissing, "element '%s' is incomplete: minOccurs %d not satisfied for '%s'",
			node.Name.Local, mm.Missing.Min, mm.Missing.Element.Name.Local)
	case len(expected) > 0:
		e = newError(ErrRequiredElementMissing, "element '%s' is incomplete: expected %s",
			node.Name.Local, quoteNames(expected))
	default:
		e = newError(ErrRequiredElementMissing, "element '%s' is incomplete", node.Name.Local)
	}
	e.Expected = expected
	v.add(node, "", e)
}

// quoteNames renders names as 'a', 'b' or 'c'.
func quoteNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}

type idKind int

const (
	noID idKind = iota
	idValue
	idrefValue
	idrefsValue
)

func idKindOf(st *SimpleType) idKind {
	if st == nil {
		return noID
	}
	switch st.Variety {
	case ListVariety:
		if idKindOf(st.item) == idrefValue {
			return idrefsValue
		}
	case AtomicVariety:
		if st.primitive != nil {
			switch st.primitive.Name {
			case "ID":
				return idValue
			case "IDREF":
				return idrefValue
			}
		}
	}
	return noID
}

// trackAttributeIDs records the ID and IDREF attributes of node.
func (v *Validator) trackAttributeIDs(node *Node, ct *ComplexType) {
	for _, a := range node.Attributes {
		decl, ok := ct.Attributes[a.Name]
		if !ok || len(ValidateSimple(a.Value, decl.simple)) > 0 {
			continue
		}
		v.trackID(a.Value, decl.simple, a.Line, a.Column, node.Name.Local, a.Name.Local)
	}
}

// trackID records a valid value of an ID, IDREF or IDREFS type.
func (v *Validator) trackID(value string, st *SimpleType, line, col int, element, attribute string) {
	switch idKindOf(st) {
	case idValue:
		id := Collapse.Normalize(value)
		if v.ids[id] {
			e := newError(ErrDuplicateID, "duplicate ID value '%s'", id)
			e.Actual = id
			v.errs = append(v.errs, at([]ValidationError{e}, line, col, element, attribute)...)
			return
		}
		v.ids[id] = true
	case idrefValue:
		v.idRefs = append(v.idRefs, idRef{value: Collapse.Normalize(value), line: line, col: col, element: element, attribute: attribute})
	case idrefsValue:
		for _, item := range listItems(value) {
			v.idRefs = append(v.idRefs, idRef{value: item, line: line, col: col, element: element, attribute: attribute})
		}
	}
}

// checkIDRefs reports IDREF values that match no ID of the document.
func (v *Validator) checkIDRefs() {
	for _, ref := range v.idRefs {
		if v.ids[ref.value] {
			continue
		}
		e := newError(ErrIDRefNotFound, "IDREF value '%s' does not match any ID in the document", ref.value)
		e.Actual = ref.value
		v.errs = append(v.errs, at([]ValidationError{e}, ref.line, ref.col, ref.element, ref.attribute)...)
	}
}

// Validate validates the instance tree rooted at root.
func (s *Schema) Validate(root *Node) (*Result, error) {
	return Validate(root, s)
}

// ValidateBytes parses and validates an XML document held in memory.
func (s *Schema) ValidateBytes(data []byte) (*Result, error) {
	root, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return Validate(root, s)
}

// ValidateFile parses and validates the XML document stored at path.
func (s *Schema) ValidateFile(path string) (*Result, error) {
	root, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return Validate(root, s)
}
