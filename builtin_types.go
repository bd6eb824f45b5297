package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
)

// orderKind selects how values of a built-in type are compared by the
// bounds facets.
type orderKind int

const (
	unordered orderKind = iota
	decimalOrder
	floatOrder
	dateTimeOrder
	dateOrder
	timeOrder
	lexicalOrder
)

// lengthUnit selects what the length facets count.
type lengthUnit int

const (
	charUnits lengthUnit = iota
	octetUnits
	base64Units
	noLength
)

// BuiltinType represents a built-in XSD type
type BuiltinType struct {
	Name       string
	Base       string
	WhiteSpace WhiteSpaceMode
	// Validator checks the lexical space of this type including every
	// constraint inherited from its built-in ancestors.
	Validator func(value string) error

	order  orderKind
	length lengthUnit
	// item is set for the built-in list types.
	item string
}

var (
	builtinTypes       = map[string]*BuiltinType{}
	builtinSimpleTypes = map[string]*SimpleType{}
)

func init() {
	registerBuiltinTypes()
}

func registerBuiltinTypes() {
	add := func(bt *BuiltinType) { builtinTypes[bt.Name] = bt }

	add(&BuiltinType{Name: "anySimpleType", WhiteSpace: Preserve})

	// Primitive types
	add(&BuiltinType{Name: "string", Base: "anySimpleType", WhiteSpace: Preserve, order: lexicalOrder})
	add(&BuiltinType{Name: "boolean", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateBoolean, length: noLength})
	add(&BuiltinType{Name: "decimal", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateDecimal, order: decimalOrder, length: noLength})
	add(&BuiltinType{Name: "float", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateFloat, order: floatOrder, length: noLength})
	add(&BuiltinType{Name: "double", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateDouble, order: floatOrder, length: noLength})
	add(&BuiltinType{Name: "duration", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateDuration, length: noLength})
	add(&BuiltinType{Name: "dateTime", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateDateTime, order: dateTimeOrder, length: noLength})
	add(&BuiltinType{Name: "time", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateTime, order: timeOrder, length: noLength})
	add(&BuiltinType{Name: "date", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateDate, order: dateOrder, length: noLength})
	add(&BuiltinType{Name: "gYearMonth", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateGYearMonth, order: lexicalOrder, length: noLength})
	add(&BuiltinType{Name: "gYear", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateGYear, order: lexicalOrder, length: noLength})
	add(&BuiltinType{Name: "gMonthDay", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateGMonthDay, order: lexicalOrder, length: noLength})
	add(&BuiltinType{Name: "gDay", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateGDay, order: lexicalOrder, length: noLength})
	add(&BuiltinType{Name: "gMonth", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateGMonth, order: lexicalOrder, length: noLength})
	add(&BuiltinType{Name: "hexBinary", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateHexBinary, length: octetUnits})
	add(&BuiltinType{Name: "base64Binary", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateBase64Binary, length: base64Units})
	add(&BuiltinType{Name: "anyURI", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateAnyURI})
	add(&BuiltinType{Name: "QName", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateQName, length: noLength})
	add(&BuiltinType{Name: "NOTATION", Base: "anySimpleType", WhiteSpace: Collapse, Validator: validateQName, length: noLength})

	// Derived types - strings
	add(&BuiltinType{Name: "normalizedString", Base: "string", WhiteSpace: Replace, Validator: validateNormalizedString, order: lexicalOrder})
	add(&BuiltinType{Name: "token", Base: "normalizedString", WhiteSpace: Collapse, Validator: validateToken, order: lexicalOrder})
	add(&BuiltinType{Name: "language", Base: "token", WhiteSpace: Collapse, Validator: validateLanguage, order: lexicalOrder})
	add(&BuiltinType{Name: "NMTOKEN", Base: "token", WhiteSpace: Collapse, Validator: validateNMTOKEN, order: lexicalOrder})
	add(&BuiltinType{Name: "Name", Base: "token", WhiteSpace: Collapse, Validator: validateName, order: lexicalOrder})
	add(&BuiltinType{Name: "NCName", Base: "Name", WhiteSpace: Collapse, Validator: validateNCName, order: lexicalOrder})
	add(&BuiltinType{Name: "ID", Base: "NCName", WhiteSpace: Collapse, Validator: validateNCName, order: lexicalOrder})
	add(&BuiltinType{Name: "IDREF", Base: "NCName", WhiteSpace: Collapse, Validator: validateNCName, order: lexicalOrder})
	add(&BuiltinType{Name: "ENTITY", Base: "NCName", WhiteSpace: Collapse, Validator: validateNCName, order: lexicalOrder})
	add(&BuiltinType{Name: "NMTOKENS", Base: "anySimpleType", WhiteSpace: Collapse, item: "NMTOKEN"})
	add(&BuiltinType{Name: "IDREFS", Base: "anySimpleType", WhiteSpace: Collapse, item: "IDREF"})
	add(&BuiltinType{Name: "ENTITIES", Base: "anySimpleType", WhiteSpace: Collapse, item: "ENTITY"})

	// Derived types - numeric
	integers := []struct {
		name, base string
		min, max   string
	}{
		{"integer", "decimal", "", ""},
		{"nonPositiveInteger", "integer", "", "0"},
		{"negativeInteger", "nonPositiveInteger", "", "-1"},
		{"long", "integer", "-9223372036854775808", "9223372036854775807"},
		{"int", "long", "-2147483648", "2147483647"},
		{"short", "int", "-32768", "32767"},
		{"byte", "short", "-128", "127"},
		{"nonNegativeInteger", "integer", "0", ""},
		{"unsignedLong", "nonNegativeInteger", "0", "18446744073709551615"},
		{"unsignedInt", "unsignedLong", "0", "4294967295"},
		{"unsignedShort", "unsignedInt", "0", "65535"},
		{"unsignedByte", "unsignedShort", "0", "255"},
		{"positiveInteger", "nonNegativeInteger", "1", ""},
	}
	for _, it := range integers {
		add(&BuiltinType{
			Name:       it.name,
			Base:       it.base,
			WhiteSpace: Collapse,
			Validator:  integerValidator(it.name, it.min, it.max),
			order:      decimalOrder,
			length:     noLength,
		})
	}

	for name, bt := range builtinTypes {
		st := &SimpleType{
			Name:      QName{Namespace: XSDNamespace, Local: name},
			builtin:   bt,
			primitive: bt,
			effective: facetSet{whiteSpace: bt.WhiteSpace},
		}
		if bt.Base != "" {
			st.Base = QName{Namespace: XSDNamespace, Local: bt.Base}
		}
		builtinSimpleTypes[name] = st
	}
	for _, st := range builtinSimpleTypes {
		bt := st.builtin
		if bt.item == "" {
			continue
		}
		st.Variety = ListVariety
		st.ItemType = QName{Namespace: XSDNamespace, Local: bt.item}
		st.item = builtinSimpleTypes[bt.item]
		st.primitive = nil
		st.effective.bounds = []Facet{{Kind: FacetMinLength, Value: "1", limit: 1}}
	}
}

// GetBuiltinType returns a built-in type validator
func GetBuiltinType(name string) *BuiltinType {
	if idx := strings.Index(name, ":"); idx >= 0 {
		name = name[idx+1:]
	}
	return builtinTypes[name]
}

// IsBuiltinType checks if a type is a built-in XSD type
func IsBuiltinType(name string) bool {
	return GetBuiltinType(name) != nil
}

// builtinSimpleType returns the shared SimpleType for a built-in local name.
func builtinSimpleType(local string) *SimpleType {
	return builtinSimpleTypes[local]
}

var (
	decimalPattern    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerPattern    = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern      = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	durationPattern   = regexp.MustCompile(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	dateTimePattern   = regexp.MustCompile(`^-?(\d{4,})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	datePattern       = regexp.MustCompile(`^-?(\d{4,})-(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	timePattern       = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	gYearMonthPattern = regexp.MustCompile(`^-?\d{4,}-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gYearPattern      = regexp.MustCompile(`^-?\d{4,}(Z|[+-]\d{2}:\d{2})?$`)
	gMonthDayPattern  = regexp.MustCompile(`^--(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gDayPattern       = regexp.MustCompile(`^---(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gMonthPattern     = regexp.MustCompile(`^--(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	languagePattern   = regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)
)

// Primitive type validators

func validateBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	default:
		return fmt.Errorf("invalid boolean value: %s", value)
	}
}

func validateDecimal(value string) error {
	if !decimalPattern.MatchString(value) {
		return fmt.Errorf("invalid decimal value: %s", value)
	}
	return nil
}

func validateFloat(value string) error {
	switch value {
	case "INF", "+INF", "-INF", "NaN":
		return nil
	}
	if !floatPattern.MatchString(value) {
		return fmt.Errorf("invalid float value: %s", value)
	}
	if _, err := strconv.ParseFloat(value, 32); err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("invalid float value: %s", value)
	}
	return nil
}

func validateDouble(value string) error {
	switch value {
	case "INF", "+INF", "-INF", "NaN":
		return nil
	}
	if !floatPattern.MatchString(value) {
		return fmt.Errorf("invalid double value: %s", value)
	}
	return nil
}

func validateDuration(value string) error {
	if !durationPattern.MatchString(value) {
		return fmt.Errorf("invalid duration value: %s", value)
	}
	// Must have at least one component
	trimmed := strings.TrimPrefix(value, "-")
	if trimmed == "P" || strings.HasSuffix(trimmed, "T") {
		return fmt.Errorf("duration must have at least one time component: %s", value)
	}
	return nil
}

func validateDateTime(value string) error {
	m := dateTimePattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	if !validDate(m[1], m[2], m[3]) || !validClock(m[4], m[5], m[6]) {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	return nil
}

func validateTime(value string) error {
	m := timePattern.FindStringSubmatch(value)
	if m == nil || !validClock(m[1], m[2], m[3]) {
		return fmt.Errorf("invalid time value: %s", value)
	}
	return nil
}

func validateDate(value string) error {
	m := datePattern.FindStringSubmatch(value)
	if m == nil || !validDate(m[1], m[2], m[3]) {
		return fmt.Errorf("invalid date value: %s", value)
	}
	return nil
}

// validDate checks month and day ranges. Years beyond what time.Date
// handles sensibly are only checked for shape.
func validDate(year, month, day string) bool {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if mo < 1 || mo > 12 || d < 1 {
		return false
	}
	if y == 0 && len(year) == 4 {
		return false
	}
	last := time.Date(y, time.Month(mo)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return d <= last
}

func validClock(hour, minute, second string) bool {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	s, _ := strconv.Atoi(second)
	if h == 24 {
		return m == 0 && s == 0
	}
	return h <= 23 && m <= 59 && s <= 59
}

func validateGYearMonth(value string) error {
	m := gYearMonthPattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid gYearMonth value: %s", value)
	}
	if month, _ := strconv.Atoi(m[1]); month < 1 || month > 12 {
		return fmt.Errorf("invalid month in gYearMonth: %s", value)
	}
	return nil
}

func validateGYear(value string) error {
	if !gYearPattern.MatchString(value) {
		return fmt.Errorf("invalid gYear value: %s", value)
	}
	return nil
}

func validateGMonthDay(value string) error {
	m := gMonthDayPattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid gMonthDay value: %s", value)
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return fmt.Errorf("invalid gMonthDay value: %s", value)
	}
	return nil
}

func validateGDay(value string) error {
	m := gDayPattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid gDay value: %s", value)
	}
	if day, _ := strconv.Atoi(m[1]); day < 1 || day > 31 {
		return fmt.Errorf("invalid gDay value: %s", value)
	}
	return nil
}

func validateGMonth(value string) error {
	m := gMonthPattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid gMonth value: %s", value)
	}
	if month, _ := strconv.Atoi(m[1]); month < 1 || month > 12 {
		return fmt.Errorf("invalid gMonth value: %s", value)
	}
	return nil
}

func validateHexBinary(value string) error {
	if len(value)%2 != 0 {
		return fmt.Errorf("hexBinary must have even number of characters: %s", value)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("invalid hexBinary value: %s", value)
	}
	return nil
}

func validateBase64Binary(value string) error {
	if _, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value, " ", "")); err != nil {
		return fmt.Errorf("invalid base64Binary value: %s", value)
	}
	return nil
}

func validateAnyURI(value string) error {
	if strings.ContainsAny(value, "<>\"{}|\\^`") {
		return fmt.Errorf("invalid anyURI value: %s", value)
	}
	return nil
}

func validateQName(value string) error {
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		return validateNCName(value)
	}
	if validateNCName(prefix) != nil || validateNCName(local) != nil {
		return fmt.Errorf("invalid QName: %s", value)
	}
	return nil
}

// String derived type validators

func validateNormalizedString(value string) error {
	if strings.ContainsAny(value, "\r\n\t") {
		return fmt.Errorf("normalizedString cannot contain CR, LF, or TAB")
	}
	return nil
}

func validateToken(value string) error {
	if err := validateNormalizedString(value); err != nil {
		return err
	}
	if strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") {
		return fmt.Errorf("token cannot have leading or trailing spaces")
	}
	if strings.Contains(value, "  ") {
		return fmt.Errorf("token cannot have multiple consecutive spaces")
	}
	return nil
}

// validateLanguage accepts RFC 3066 shaped tags. Tags that are well formed
// but use unregistered subtags (private or grandfathered forms such as
// "x-klingon") are accepted; malformed BCP 47 syntax is rejected.
func validateLanguage(value string) error {
	if !languagePattern.MatchString(value) {
		return fmt.Errorf("invalid language tag: %s", value)
	}
	if _, err := language.Parse(value); err != nil {
		var unknown language.ValueError
		if errors.As(err, &unknown) {
			return nil
		}
		if strings.HasPrefix(strings.ToLower(value), "x-") || strings.HasPrefix(strings.ToLower(value), "i-") {
			return nil
		}
		return fmt.Errorf("invalid language tag: %s", value)
	}
	return nil
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':'
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '.' || r == '-' ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || r == '·'
}

func validateName(value string) error {
	if value == "" {
		return fmt.Errorf("Name cannot be empty")
	}
	for i, r := range value {
		if i == 0 && !isNameStart(r) {
			return fmt.Errorf("Name must start with letter, underscore, or colon: %s", value)
		}
		if !isNameChar(r) {
			return fmt.Errorf("invalid character in Name: %s", string(r))
		}
	}
	return nil
}

func validateNCName(value string) error {
	if err := validateName(value); err != nil {
		return err
	}
	if strings.Contains(value, ":") {
		return fmt.Errorf("NCName cannot contain colons: %s", value)
	}
	return nil
}

func validateNMTOKEN(value string) error {
	if value == "" {
		return fmt.Errorf("NMTOKEN cannot be empty")
	}
	for _, r := range value {
		if !isNameChar(r) {
			return fmt.Errorf("invalid character in NMTOKEN: %s", string(r))
		}
	}
	return nil
}

// Numeric derived type validators

// integerValidator returns a validator for an integer type with optional
// inclusive bounds.
func integerValidator(name, min, max string) func(string) error {
	var lo, hi *big.Int
	if min != "" {
		lo, _ = new(big.Int).SetString(min, 10)
	}
	if max != "" {
		hi, _ = new(big.Int).SetString(max, 10)
	}
	return func(value string) error {
		if !integerPattern.MatchString(value) {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		i, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		if (lo != nil && i.Cmp(lo) < 0) || (hi != nil && i.Cmp(hi) > 0) {
			return fmt.Errorf("%s value out of range: %s", name, value)
		}
		return nil
	}
}
