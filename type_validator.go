package xsd

import "strings"

// ValidateSimple checks a lexical value against a simple type. The value is
// whitespace-normalized first; then primitive conformance, patterns,
// enumerations and bounds are checked in that order. A value that is not in
// the lexical space of the primitive type gets only that one error.
//
// The returned errors carry no position.
func ValidateSimple(value string, t *SimpleType) []ValidationError {
	if t == nil {
		return nil
	}
	value = t.effective.whiteSpace.Normalize(value)
	switch t.Variety {
	case ListVariety:
		return validateList(value, t)
	case UnionVariety:
		return validateUnion(value, t)
	}
	if p := t.primitive; p != nil && p.Validator != nil {
		if err := p.Validator(value); err != nil {
			e := newError(ErrDatatypeInvalid, "'%s' is not a valid value for '%s'", value, p.Name)
			e.Actual = value
			return []ValidationError{e}
		}
	}
	return checkFacets(value, t)
}

// checkFacets runs the pattern, enumeration and bounds facets of t.
func checkFacets(value string, t *SimpleType) []ValidationError {
	var errs []ValidationError
	fs := &t.effective

	if f, ok := matchPatterns(value, fs.patterns); !ok {
		e := newError(ErrPatternInvalid, "value '%s' is not facet-valid with respect to pattern '%s'%s",
			value, f.Value, forType(t))
		e.Actual = value
		errs = append(errs, e)
	}

	order := unordered
	if t.primitive != nil {
		order = t.primitive.order
	}
	if allowed, ok := matchEnumerations(value, fs.enumerations, order); !ok {
		e := newError(ErrEnumerationInvalid, "value '%s' is not facet-valid with respect to enumeration '[%s]'. It must be a value from the enumeration",
			value, strings.Join(allowed, ", "))
		e.Expected = allowed
		e.Actual = value
		errs = append(errs, e)
	}

	for _, f := range fs.bounds {
		if msg := f.checkBound(value, t); msg != "" {
			e := newError(facetErrorCode(f.Kind), "%s", msg)
			e.Actual = value
			errs = append(errs, e)
		}
	}
	return errs
}

// isExemptAttribute reports whether an instance attribute is outside the
// attribute declarations of any type.
func isExemptAttribute(name QName) bool {
	if name.Namespace != XSINamespace {
		return false
	}
	switch name.Local {
	case "nil", "type", "schemaLocation", "noNamespaceSchemaLocation":
		return true
	}
	return false
}

// ValidateAttributes checks the attributes of node against the attribute
// uses of ct. Attribute content is always closed: undeclared attributes are
// errors.
func ValidateAttributes(node *Node, ct *ComplexType) []ValidationError {
	if node == nil || ct == nil || ct.isAnyType() {
		return nil
	}
	element := node.Name.Local
	var errs []ValidationError

	for _, attr := range node.Attributes {
		if isExemptAttribute(attr.Name) {
			continue
		}
		decl, ok := ct.Attributes[attr.Name]
		if !ok {
			e := newError(ErrAttributeNotDeclared, "unexpected attribute '%s' on element '%s'", attr.Name.Local, element)
			e.Actual = attr.Name.Local
			errs = append(errs, at([]ValidationError{e}, attr.Line, attr.Column, element, attr.Name.Local)...)
			continue
		}
		problems := ValidateSimple(attr.Value, decl.simple)
		if len(problems) == 0 {
			problems = checkAttributeFixed(attr.Value, decl)
		}
		errs = append(errs, at(problems, attr.Line, attr.Column, element, attr.Name.Local)...)
	}

	for _, name := range ct.AttributeOrder {
		decl := ct.Attributes[name]
		if !decl.Required {
			continue
		}
		if _, present := node.Attr(name); present {
			continue
		}
		e := newError(ErrRequiredAttributeMissing, "missing required attribute '%s' on element '%s'", name.Local, element)
		e.Expected = []string{name.Local}
		errs = append(errs, at([]ValidationError{e}, node.Line, node.Column, element, name.Local)...)
	}
	return errs
}
