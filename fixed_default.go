package xsd

import "strings"

// effectiveText returns the text an element is validated with: its own text,
// or the declared default when the element is empty.
func effectiveText(node *Node, decl *ElementDecl) string {
	if decl != nil && decl.HasDefault && len(node.Children) == 0 && node.Text == "" {
		return decl.Default
	}
	if decl != nil && decl.HasFixed && len(node.Children) == 0 && node.Text == "" {
		return decl.Fixed
	}
	return node.Text
}

// checkElementFixed compares element text with the declared fixed value
// after whitespace normalization for the content type.
func checkElementFixed(text string, decl *ElementDecl, st *SimpleType) []ValidationError {
	if decl == nil || !decl.HasFixed {
		return nil
	}
	if fixedEqual(text, decl.Fixed, st) {
		return nil
	}
	e := newError(ErrElementFixedValue, "element '%s' must have fixed value '%s' but has '%s'",
		decl.Name.Local, decl.Fixed, strings.TrimSpace(text))
	e.Expected = []string{decl.Fixed}
	e.Actual = text
	return []ValidationError{e}
}

// checkAttributeFixed compares a present attribute value with its fixed value.
func checkAttributeFixed(value string, decl *AttributeDecl) []ValidationError {
	if !decl.HasFixed || fixedEqual(value, decl.Fixed, decl.simple) {
		return nil
	}
	e := newError(ErrAttributeFixedValue, "attribute '%s' must have fixed value '%s' but has '%s'",
		decl.Name.Local, decl.Fixed, value)
	e.Expected = []string{decl.Fixed}
	e.Actual = value
	return []ValidationError{e}
}

func fixedEqual(value, fixed string, st *SimpleType) bool {
	ws, order := Collapse, unordered
	if st != nil {
		ws = st.effective.whiteSpace
		if st.primitive != nil {
			order = st.primitive.order
		}
	}
	return valuesEqual(ws.Normalize(value), ws.Normalize(fixed), order)
}

// HasDefaultValue checks if an element or attribute declaration has a default value
func HasDefaultValue(decl any) (string, bool) {
	switch d := decl.(type) {
	case *ElementDecl:
		return d.Default, d.HasDefault
	case *AttributeDecl:
		return d.Default, d.HasDefault
	}
	return "", false
}

// HasFixedValue checks if an element or attribute declaration has a fixed value
func HasFixedValue(decl any) (string, bool) {
	switch d := decl.(type) {
	case *ElementDecl:
		return d.Fixed, d.HasFixed
	case *AttributeDecl:
		return d.Fixed, d.HasFixed
	}
	return "", false
}
