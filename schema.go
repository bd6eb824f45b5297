package xsd

import (
	"fmt"
	"strings"
)

// XSDNamespace is the XML Schema namespace
const XSDNamespace = "http://www.w3.org/2001/XMLSchema"

// XSINamespace is the XML Schema instance namespace
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// Unbounded is the MaxOccurs value of maxOccurs="unbounded".
const Unbounded = -1

var (
	anyTypeName       = QName{Namespace: XSDNamespace, Local: "anyType"}
	anySimpleTypeName = QName{Namespace: XSDNamespace, Local: "anySimpleType"}
)

// Schema is a compiled XSD schema. It is built once by Build and is
// read-only afterwards, so one Schema may serve concurrent validations.
type Schema struct {
	TargetNamespaces []string
	Types            map[QName]TypeDefinition
	Elements         map[QName]*ElementDecl
	Attributes       map[QName]*AttributeDecl
}

// QName represents a qualified XML name
type QName struct {
	Namespace string
	Local     string
}

// String returns the string representation of a QName
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// IsZero reports whether q is the empty name.
func (q QName) IsZero() bool {
	return q == QName{}
}

// TypeDefinition is either a *SimpleType or a *ComplexType.
type TypeDefinition interface {
	TypeName() QName
	isTypeDefinition()
}

// Variety distinguishes atomic, list and union simple types.
type Variety int

const (
	AtomicVariety Variety = iota
	ListVariety
	UnionVariety
)

func (v Variety) String() string {
	switch v {
	case ListVariety:
		return "list"
	case UnionVariety:
		return "union"
	default:
		return "atomic"
	}
}

// SimpleType is a built-in or user-defined simple type. Facets holds only the
// facets declared on this derivation step; the effective facets of the whole
// derivation chain are compiled by the builder.
type SimpleType struct {
	Name        QName
	Base        QName
	Variety     Variety
	Facets      []Facet
	ItemType    QName
	MemberTypes []QName

	builtin   *BuiltinType
	primitive *BuiltinType
	effective facetSet
	item      *SimpleType
	members   []*SimpleType
}

func (st *SimpleType) TypeName() QName { return st.Name }
func (*SimpleType) isTypeDefinition()  {}
func (st *SimpleType) IsBuiltin() bool { return st.builtin != nil }
func (st *SimpleType) String() string  { return displayTypeName(st.Name) }

// ContentKind is the content type of a complex type.
type ContentKind int

const (
	EmptyContent ContentKind = iota
	SimpleContent
	ElementContent
)

func (k ContentKind) String() string {
	switch k {
	case SimpleContent:
		return "simple"
	case ElementContent:
		return "element-only"
	default:
		return "empty"
	}
}

// Derivation records how a complex type was derived from its base.
type Derivation int

const (
	NoDerivation Derivation = iota
	ExtensionDerivation
	RestrictionDerivation
)

// ComplexType is a complex type definition.
type ComplexType struct {
	Name       QName
	Base       QName
	Derivation Derivation
	Content    ContentKind
	Mixed      bool
	Abstract   bool
	// SimpleContentType names the simple type of the text when Content is SimpleContent.
	SimpleContentType QName
	// Particle is the content model when Content is ElementContent.
	Particle       *Particle
	Attributes     map[QName]*AttributeDecl
	AttributeOrder []QName

	contentType *SimpleType
}

func (ct *ComplexType) TypeName() QName { return ct.Name }
func (*ComplexType) isTypeDefinition()  {}

// isAnyType reports whether ct is the ur-type, which accepts any attributes and content.
func (ct *ComplexType) isAnyType() bool { return ct.Name == anyTypeName }

// ParticleKind is the kind of a content model particle.
type ParticleKind int

const (
	ElementParticle ParticleKind = iota
	SequenceParticle
	ChoiceParticle
	AllParticle
)

func (k ParticleKind) String() string {
	switch k {
	case SequenceParticle:
		return "sequence"
	case ChoiceParticle:
		return "choice"
	case AllParticle:
		return "all"
	default:
		return "element"
	}
}

// Particle is a node of a content model tree.
type Particle struct {
	Kind     ParticleKind
	Min      int
	Max      int // Unbounded for maxOccurs="unbounded"
	Element  *ElementDecl
	Children []*Particle
}

// String renders the particle in a compact regular-expression like syntax.
func (p *Particle) String() string {
	var sb strings.Builder
	switch p.Kind {
	case ElementParticle:
		sb.WriteString(p.Element.Name.Local)
	default:
		sep := ", "
		switch p.Kind {
		case ChoiceParticle:
			sep = " | "
		case AllParticle:
			sep = " & "
		}
		sb.WriteByte('(')
		for i, c := range p.Children {
			if i > 0 {
				sb.WriteString(sep)
			}
			sb.WriteString(c.String())
		}
		sb.WriteByte(')')
	}
	switch {
	case p.Min == 1 && p.Max == 1:
	case p.Min == 0 && p.Max == 1:
		sb.WriteByte('?')
	case p.Min == 0 && p.Max == Unbounded:
		sb.WriteByte('*')
	case p.Min == 1 && p.Max == Unbounded:
		sb.WriteByte('+')
	case p.Max == Unbounded:
		fmt.Fprintf(&sb, "{%d,}", p.Min)
	default:
		fmt.Fprintf(&sb, "{%d,%d}", p.Min, p.Max)
	}
	return sb.String()
}

// ElementDecl is an element declaration. Top-level declarations live in
// Schema.Elements; local ones hang off their Particle. HasDefault and
// HasFixed record that a value constraint was declared, as an empty
// Default or Fixed is a legal value.
type ElementDecl struct {
	Name       QName
	Type       QName
	Nillable   bool
	Abstract   bool
	Default    string
	Fixed      string
	HasDefault bool
	HasFixed   bool
}

// AttributeDecl is an attribute declaration or use.
type AttributeDecl struct {
	Name       QName
	Type       QName
	Required   bool
	Default    string
	Fixed      string
	HasDefault bool
	HasFixed   bool

	simple *SimpleType
}

// LookupType returns the named type, falling back to the built-in types.
func (s *Schema) LookupType(name QName) (TypeDefinition, bool) {
	if name == anyTypeName {
		return anyType, true
	}
	if s != nil {
		if t, ok := s.Types[name]; ok {
			return t, true
		}
	}
	if name.Namespace == XSDNamespace {
		if st := builtinSimpleType(name.Local); st != nil {
			return st, true
		}
	}
	return nil, false
}

// simpleType returns the named simple type or nil.
func (s *Schema) simpleType(name QName) *SimpleType {
	t, ok := s.LookupType(name)
	if !ok {
		return nil
	}
	st, _ := t.(*SimpleType)
	return st
}

// Element returns the top-level element declaration for name.
func (s *Schema) Element(name QName) (*ElementDecl, bool) {
	decl, ok := s.Elements[name]
	return decl, ok
}

// anyType is the shared ur-type definition.
var anyType = &ComplexType{
	Name:    anyTypeName,
	Content: ElementContent,
	Mixed:   true,
}

// displayTypeName renders type names the way schema authors write them.
func displayTypeName(name QName) string {
	if name.Namespace == XSDNamespace {
		return "xs:" + name.Local
	}
	if isAnonymous(name) {
		return "anonymous type"
	}
	return name.Local
}
