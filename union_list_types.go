package xsd

import "strings"

// validateList checks each whitespace-separated item against the item type
// and then the facets of the list type itself. Length facets count items.
func validateList(value string, t *SimpleType) []ValidationError {
	var errs []ValidationError
	if t.item != nil {
		for _, item := range listItems(value) {
			errs = append(errs, ValidateSimple(item, t.item)...)
		}
	}
	return append(errs, checkFacets(value, t)...)
}

// validateUnion accepts value when any member type accepts it, then checks
// the facets of the union type itself.
func validateUnion(value string, t *SimpleType) []ValidationError {
	if unionMember(value, t) == nil {
		e := newError(ErrUnionInvalid, "value '%s' is not valid with respect to any member type of union '%s'",
			value, t)
		e.Actual = value
		for _, m := range t.members {
			e.Expected = append(e.Expected, m.String())
		}
		return []ValidationError{e}
	}
	return checkFacets(value, t)
}

// unionMember returns the first member type, in declaration order, that
// accepts value.
func unionMember(value string, t *SimpleType) *SimpleType {
	for _, m := range t.members {
		if len(ValidateSimple(value, m)) == 0 {
			return m
		}
	}
	return nil
}

// listItems splits a list value into its items after normalization.
func listItems(value string) []string {
	return strings.Fields(value)
}
