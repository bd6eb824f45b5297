package xsd

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FacetKind names a constraining facet.
type FacetKind string

const (
	FacetLength         FacetKind = "length"
	FacetMinLength      FacetKind = "minLength"
	FacetMaxLength      FacetKind = "maxLength"
	FacetPattern        FacetKind = "pattern"
	FacetEnumeration    FacetKind = "enumeration"
	FacetWhiteSpace     FacetKind = "whiteSpace"
	FacetMaxInclusive   FacetKind = "maxInclusive"
	FacetMaxExclusive   FacetKind = "maxExclusive"
	FacetMinInclusive   FacetKind = "minInclusive"
	FacetMinExclusive   FacetKind = "minExclusive"
	FacetTotalDigits    FacetKind = "totalDigits"
	FacetFractionDigits FacetKind = "fractionDigits"
)

// boundOrder is the order in which bounds and length facets are checked.
var boundOrder = []FacetKind{
	FacetMinInclusive,
	FacetMaxInclusive,
	FacetMinExclusive,
	FacetMaxExclusive,
	FacetLength,
	FacetMinLength,
	FacetMaxLength,
	FacetTotalDigits,
	FacetFractionDigits,
}

func isFacetKind(name string) bool {
	switch FacetKind(name) {
	case FacetPattern, FacetEnumeration, FacetWhiteSpace:
		return true
	}
	for _, k := range boundOrder {
		if string(k) == name {
			return true
		}
	}
	return false
}

// Facet is one constraining facet declared on a restriction step.
type Facet struct {
	Kind  FacetKind
	Value string

	regex *regexp.Regexp
	limit int
}

// newFacet parses a facet declaration. Patterns are compiled here so that
// schemas are immutable once built.
func newFacet(kind FacetKind, value string) (Facet, error) {
	f := Facet{Kind: kind, Value: value}
	switch kind {
	case FacetPattern:
		if strings.Contains(value, "-[") {
			return f, fmt.Errorf("invalid pattern '%s': character class subtraction is not supported", value)
		}
		re, err := regexp.Compile(`^(?:` + convertXSDRegex(value) + `)$`)
		if err != nil {
			return f, fmt.Errorf("invalid pattern '%s': %v", value, err)
		}
		f.regex = re
	case FacetLength, FacetMinLength, FacetMaxLength, FacetFractionDigits:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid %s value '%s': must be a non-negative integer", kind, value)
		}
		f.limit = n
	case FacetTotalDigits:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid totalDigits value '%s': must be a positive integer", value)
		}
		f.limit = n
	case FacetWhiteSpace:
		if _, ok := parseWhiteSpace(value); !ok {
			return f, fmt.Errorf("invalid whiteSpace value '%s'", value)
		}
	}
	return f, nil
}

// convertXSDRegex converts XSD regex syntax to Go RE2 syntax. XSD has no
// anchors, so ^ and $ are literals outside character classes, and its .
// excludes \r as well as \n.
func convertXSDRegex(pattern string) string {
	var sb strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			sb.WriteString(convertEscape(pattern[i], inClass))
		case c == '[' && !inClass:
			inClass = true
			sb.WriteByte(c)
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				sb.WriteByte('^')
				i++
			}
		case c == ']' && inClass:
			inClass = false
			sb.WriteByte(c)
		case (c == '^' || c == '$') && !inClass:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '.' && !inClass:
			sb.WriteString(`[^\n\r]`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func convertEscape(c byte, inClass bool) string {
	var class string
	switch c {
	case 'd':
		return `\p{Nd}`
	case 'D':
		return `\P{Nd}`
	case 'i':
		class = `_:A-Za-z\p{L}`
	case 'c':
		class = `_:A-Za-z0-9.\-\p{L}\p{Nd}\p{Mn}\p{Mc}`
	case 'w':
		class = `\p{L}\p{M}\p{N}\p{S}`
	case 'W':
		class = `\p{P}\p{Z}\p{C}`
	case 'I':
		return `[^_:A-Za-z\p{L}]`
	case 'C':
		return `[^_:A-Za-z0-9.\-\p{L}\p{Nd}\p{Mn}\p{Mc}]`
	default:
		return `\` + string(c)
	}
	if inClass {
		return class
	}
	return "[" + class + "]"
}

// WhiteSpaceMode is the value of the whiteSpace facet.
type WhiteSpaceMode int

const (
	Preserve WhiteSpaceMode = iota
	Replace
	Collapse
)

func (m WhiteSpaceMode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Collapse:
		return "collapse"
	default:
		return "preserve"
	}
}

func parseWhiteSpace(s string) (WhiteSpaceMode, bool) {
	switch strings.TrimSpace(s) {
	case "preserve":
		return Preserve, true
	case "replace":
		return Replace, true
	case "collapse":
		return Collapse, true
	}
	return Preserve, false
}

// Normalize applies the whitespace mode to value.
func (m WhiteSpaceMode) Normalize(value string) string {
	switch m {
	case Replace:
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, value)
	case Collapse:
		return strings.Join(strings.Fields(Replace.Normalize(value)), " ")
	default:
		return value
	}
}

// NormalizeWhiteSpace normalizes whitespace according to a whiteSpace facet value
func NormalizeWhiteSpace(value string, whiteSpace string) string {
	mode, _ := parseWhiteSpace(whiteSpace)
	return mode.Normalize(value)
}

// facetSet is the effective facets of a simple type across its whole
// restriction chain.
type facetSet struct {
	whiteSpace WhiteSpaceMode
	// patterns holds one entry per derivation step. A value must match
	// some pattern of every step.
	patterns [][]Facet
	// enumerations holds one entry per step that declares enumerations.
	enumerations [][]string
	// bounds holds the most derived value of each bounds or length facet,
	// sorted by boundOrder.
	bounds []Facet
}

// derive returns the effective facets after applying one restriction step.
func (fs facetSet) derive(step []Facet) facetSet {
	out := facetSet{
		whiteSpace:   fs.whiteSpace,
		patterns:     append([][]Facet(nil), fs.patterns...),
		enumerations: append([][]string(nil), fs.enumerations...),
	}
	byKind := make(map[FacetKind]Facet, len(fs.bounds)+len(step))
	for _, f := range fs.bounds {
		byKind[f.Kind] = f
	}

	var patterns []Facet
	var enums []string
	hasEnum := false
	for _, f := range step {
		switch f.Kind {
		case FacetPattern:
			patterns = append(patterns, f)
		case FacetEnumeration:
			enums = append(enums, f.Value)
			hasEnum = true
		case FacetWhiteSpace:
			out.whiteSpace, _ = parseWhiteSpace(f.Value)
		default:
			byKind[f.Kind] = f
		}
	}
	if len(patterns) > 0 {
		out.patterns = append(out.patterns, patterns)
	}
	if hasEnum {
		out.enumerations = append(out.enumerations, enums)
	}
	for _, k := range boundOrder {
		if f, ok := byKind[k]; ok {
			out.bounds = append(out.bounds, f)
		}
	}
	return out
}

// facetApplicable reports whether a facet may restrict a type of the given
// variety and primitive.
func facetApplicable(kind FacetKind, variety Variety, prim *BuiltinType) bool {
	switch variety {
	case ListVariety:
		switch kind {
		case FacetLength, FacetMinLength, FacetMaxLength, FacetPattern, FacetEnumeration, FacetWhiteSpace:
			return true
		}
		return false
	case UnionVariety:
		return kind == FacetPattern || kind == FacetEnumeration
	}
	if prim == nil {
		return true
	}
	switch kind {
	case FacetLength, FacetMinLength, FacetMaxLength:
		return prim.length != noLength
	case FacetMinInclusive, FacetMaxInclusive, FacetMinExclusive, FacetMaxExclusive:
		return prim.order != unordered
	case FacetTotalDigits, FacetFractionDigits:
		return prim.order == decimalOrder
	}
	return true
}

func isBoundKind(kind FacetKind) bool {
	switch kind {
	case FacetMinInclusive, FacetMaxInclusive, FacetMinExclusive, FacetMaxExclusive:
		return true
	}
	return false
}

// matchPatterns returns the first derivation step none of whose patterns
// match value.
func matchPatterns(value string, steps [][]Facet) (Facet, bool) {
	for _, step := range steps {
		matched := false
		for _, f := range step {
			if f.regex != nil && f.regex.MatchString(value) {
				matched = true
				break
			}
		}
		if !matched {
			return step[0], false
		}
	}
	return Facet{}, true
}

// matchEnumerations reports whether value equals a listed value of every
// enumeration step.
func matchEnumerations(value string, steps [][]string, order orderKind) ([]string, bool) {
	for _, step := range steps {
		found := false
		for _, allowed := range step {
			if valuesEqual(value, allowed, order) {
				found = true
				break
			}
		}
		if !found {
			return step, false
		}
	}
	return nil, true
}

func valuesEqual(a, b string, order orderKind) bool {
	if a == b {
		return true
	}
	switch order {
	case decimalOrder, floatOrder:
		c, ok := compareValues(a, b, order)
		return ok && c == 0
	}
	return false
}

// checkBound checks one bounds or length facet and returns the violation
// message, or "" when the value satisfies it.
func (f Facet) checkBound(value string, t *SimpleType) string {
	switch f.Kind {
	case FacetLength, FacetMinLength, FacetMaxLength:
		n := valueLength(value, t)
		if n < 0 {
			return ""
		}
		if (f.Kind == FacetLength && n != f.limit) ||
			(f.Kind == FacetMinLength && n < f.limit) ||
			(f.Kind == FacetMaxLength && n > f.limit) {
			return fmt.Sprintf("value '%s' with length = '%d' is not facet-valid with respect to %s '%s'%s",
				value, n, f.Kind, f.Value, forType(t))
		}
	case FacetMinInclusive, FacetMaxInclusive, FacetMinExclusive, FacetMaxExclusive:
		order := unordered
		if t.primitive != nil {
			order = t.primitive.order
		}
		c, ok := compareValues(value, f.Value, order)
		if !ok {
			return ""
		}
		if (f.Kind == FacetMinInclusive && c < 0) ||
			(f.Kind == FacetMaxInclusive && c > 0) ||
			(f.Kind == FacetMinExclusive && c <= 0) ||
			(f.Kind == FacetMaxExclusive && c >= 0) {
			return fmt.Sprintf("value '%s' is not facet-valid with respect to %s '%s'%s",
				value, f.Kind, f.Value, forType(t))
		}
	case FacetTotalDigits:
		if total, _, ok := countDigits(value); ok && total > f.limit {
			return fmt.Sprintf("value '%s' has %d total digits, but the number of total digits has been limited to %d",
				value, total, f.limit)
		}
	case FacetFractionDigits:
		if _, frac, ok := countDigits(value); ok && frac > f.limit {
			return fmt.Sprintf("value '%s' has %d fraction digits, but the number of fraction digits has been limited to %d",
				value, frac, f.limit)
		}
	}
	return ""
}

// forType names t in facet messages. Anonymous types are left unnamed.
func forType(t *SimpleType) string {
	if isAnonymous(t.Name) {
		return ""
	}
	return fmt.Sprintf(" for type '%s'", t)
}

// valueLength measures value in the units of t, or returns -1 when length
// facets do not apply.
func valueLength(value string, t *SimpleType) int {
	if t.Variety == ListVariety {
		return len(strings.Fields(value))
	}
	if t.primitive == nil {
		return utf8.RuneCountInString(value)
	}
	switch t.primitive.length {
	case octetUnits:
		return len(value) / 2
	case base64Units:
		b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value, " ", ""))
		if err != nil {
			return -1
		}
		return len(b)
	case noLength:
		return -1
	}
	return utf8.RuneCountInString(value)
}

// countDigits returns the significant total and fraction digits of a decimal.
func countDigits(value string) (total, fraction int, ok bool) {
	if !decimalPattern.MatchString(value) {
		return 0, 0, false
	}
	v := strings.TrimLeft(value, "+-")
	intPart, fracPart, _ := strings.Cut(v, ".")
	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")
	total = len(intPart) + len(fracPart)
	if total == 0 {
		total = 1
	}
	return total, len(fracPart), true
}

// compareValues compares two lexical values in the value space selected by
// order. ok is false when the values are incomparable.
func compareValues(a, b string, order orderKind) (int, bool) {
	switch order {
	case decimalOrder:
		x, okA := parseRat(a)
		y, okB := parseRat(b)
		if !okA || !okB {
			return 0, false
		}
		return x.Cmp(y), true
	case floatOrder:
		x, okA := parseFloat(a)
		y, okB := parseFloat(b)
		if !okA || !okB || math.IsNaN(x) || math.IsNaN(y) {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case dateTimeOrder, dateOrder, timeOrder:
		x, okA := parseTemporal(a, order)
		y, okB := parseTemporal(b, order)
		if !okA || !okB {
			return 0, false
		}
		return x.Compare(y), true
	case lexicalOrder:
		return strings.Compare(a, b), true
	}
	return 0, false
}

func parseRat(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(sign + s)
	return r, ok
}

func parseFloat(s string) (float64, bool) {
	switch s {
	case "INF", "+INF":
		return math.Inf(1), true
	case "-INF":
		return math.Inf(-1), true
	case "NaN":
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

var temporalLayouts = map[orderKind][]string{
	dateTimeOrder: {"2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05"},
	dateOrder:     {"2006-01-02Z07:00", "2006-01-02"},
	timeOrder:     {"15:04:05Z07:00", "15:04:05"},
}

func parseTemporal(s string, order orderKind) (time.Time, bool) {
	for _, layout := range temporalLayouts[order] {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
