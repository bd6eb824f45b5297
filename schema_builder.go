package xsd

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Build compiles parsed XSD documents into a Schema. Documents brought in by
// xs:include or xs:import are passed alongside the main document; Build does
// not follow schema locations itself.
//
// Every problem found is reported. The returned error combines one
// *SchemaError per problem and can be split with multierr.Errors.
func Build(docs ...*Node) (*Schema, error) {
	b := newSchemaBuilder()
	for _, doc := range docs {
		b.register(doc)
	}
	b.resolve()
	if b.errs != nil {
		return nil, b.errs
	}
	return b.schema, nil
}

// docContext carries the per-document settings definitions are read with.
type docContext struct {
	targetNamespace    string
	elementQualified   bool
	attributeQualified bool
}

// definition is a named top-level schema component awaiting resolution.
type definition struct {
	node *Node
	ctx  *docContext
}

type schemaBuilder struct {
	schema *Schema
	errs   error

	simpleDefs    map[QName]definition
	complexDefs   map[QName]definition
	elementDefs   map[QName]definition
	attributeDefs map[QName]definition
	groupDefs     map[QName]definition
	attrGroupDefs map[QName]definition

	// document order of registration
	typeOrder    []QName
	elementOrder []QName
	attrOrder    []QName

	resolving          map[QName]bool
	resolved           map[QName]bool
	groupResolving     map[QName]bool
	attrGroupResolving map[QName]bool
	anon               int

	// deferred checks run once every type is resolved
	deferred []func()
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{
		schema: &Schema{
			Types:      make(map[QName]TypeDefinition),
			Elements:   make(map[QName]*ElementDecl),
			Attributes: make(map[QName]*AttributeDecl),
		},
		simpleDefs:         make(map[QName]definition),
		complexDefs:        make(map[QName]definition),
		elementDefs:        make(map[QName]definition),
		attributeDefs:      make(map[QName]definition),
		groupDefs:          make(map[QName]definition),
		attrGroupDefs:      make(map[QName]definition),
		resolving:          make(map[QName]bool),
		resolved:           make(map[QName]bool),
		groupResolving:     make(map[QName]bool),
		attrGroupResolving: make(map[QName]bool),
	}
}

// fail records a schema error located at n.
func (b *schemaBuilder) fail(n *Node, format string, args ...any) {
	e := &SchemaError{Message: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Line, e.Column = n.Line, n.Column
	}
	b.errs = multierr.Append(b.errs, e)
}

// isXSD reports whether n is the XSD element local.
func isXSD(n *Node, local string) bool {
	return n.Name.Namespace == XSDNamespace && n.Name.Local == local
}

// xsdChildren returns the XSD children of n, skipping annotations.
func xsdChildren(n *Node) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Namespace != XSDNamespace || c.Name.Local == "annotation" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return s == "true" || s == "1"
}

// isAnonymous reports whether name was synthesized for an anonymous type.
func isAnonymous(name QName) bool {
	return strings.HasPrefix(name.Local, "#anon.")
}

func (b *schemaBuilder) anonName(ctx *docContext) QName {
	b.anon++
	return QName{Namespace: ctx.targetNamespace, Local: fmt.Sprintf("#anon.%d", b.anon)}
}

// qnameAttr resolves a QName-valued attribute of n.
func (b *schemaBuilder) qnameAttr(n *Node, attr string) (QName, bool) {
	lexical := strings.TrimSpace(n.AttrValue(attr))
	if lexical == "" {
		return QName{}, false
	}
	q, ok := n.ResolveQName(lexical)
	if !ok {
		b.fail(n, "undeclared namespace prefix in %s '%s'", attr, lexical)
		return QName{}, false
	}
	return q, true
}

// register is pass 1: it records every named top-level component.
func (b *schemaBuilder) register(doc *Node) {
	if doc == nil {
		b.fail(nil, "nil schema document")
		return
	}
	if !isXSD(doc, "schema") {
		b.fail(doc, "root element '%s' is not xs:schema", doc.Name.Local)
		return
	}
	ctx := &docContext{
		targetNamespace:    strings.TrimSpace(doc.AttrValue("targetNamespace")),
		elementQualified:   strings.TrimSpace(doc.AttrValue("elementFormDefault")) == "qualified",
		attributeQualified: strings.TrimSpace(doc.AttrValue("attributeFormDefault")) == "qualified",
	}
	b.addTargetNamespace(ctx.targetNamespace)

	for _, c := range xsdChildren(doc) {
		switch c.Name.Local {
		case "include", "import", "notation":
			continue
		case "simpleType", "complexType", "element", "attribute", "group", "attributeGroup":
		default:
			b.fail(c, "unsupported schema component 'xs:%s'", c.Name.Local)
			continue
		}

		local := strings.TrimSpace(c.AttrValue("name"))
		if local == "" {
			b.fail(c, "top-level xs:%s must have a name", c.Name.Local)
			continue
		}
		name := QName{Namespace: ctx.targetNamespace, Local: local}
		def := definition{node: c, ctx: ctx}

		switch c.Name.Local {
		case "simpleType", "complexType":
			if _, dup := b.simpleDefs[name]; dup {
				b.fail(c, "duplicate type definition '%s'", local)
				continue
			}
			if _, dup := b.complexDefs[name]; dup {
				b.fail(c, "duplicate type definition '%s'", local)
				continue
			}
			if c.Name.Local == "simpleType" {
				b.simpleDefs[name] = def
			} else {
				b.complexDefs[name] = def
			}
			b.typeOrder = append(b.typeOrder, name)
		case "element":
			if _, dup := b.elementDefs[name]; dup {
				b.fail(c, "duplicate element declaration '%s'", local)
				continue
			}
			b.elementDefs[name] = def
			b.elementOrder = append(b.elementOrder, name)
		case "attribute":
			if _, dup := b.attributeDefs[name]; dup {
				b.fail(c, "duplicate attribute declaration '%s'", local)
				continue
			}
			b.attributeDefs[name] = def
			b.attrOrder = append(b.attrOrder, name)
		case "group":
			if _, dup := b.groupDefs[name]; dup {
				b.fail(c, "duplicate group definition '%s'", local)
				continue
			}
			b.groupDefs[name] = def
		case "attributeGroup":
			if _, dup := b.attrGroupDefs[name]; dup {
				b.fail(c, "duplicate attribute group definition '%s'", local)
				continue
			}
			b.attrGroupDefs[name] = def
		}
	}
}

func (b *schemaBuilder) addTargetNamespace(ns string) {
	for _, existing := range b.schema.TargetNamespaces {
		if existing == ns {
			return
		}
	}
	b.schema.TargetNamespaces = append(b.schema.TargetNamespaces, ns)
}

// resolve is pass 2: every registered component is resolved in document order.
func (b *schemaBuilder) resolve() {
	for _, name := range b.typeOrder {
		b.resolveType(name, nil)
	}
	for _, name := range b.attrOrder {
		b.topAttribute(name, nil)
	}
	for _, name := range b.elementOrder {
		b.topElement(name, nil)
	}
	for _, check := range b.deferred {
		check()
	}
}

// typeExists reports whether name can be resolved, without resolving it.
func (b *schemaBuilder) typeExists(name QName) bool {
	if _, ok := b.simpleDefs[name]; ok {
		return true
	}
	if _, ok := b.complexDefs[name]; ok {
		return true
	}
	if _, ok := b.schema.Types[name]; ok {
		return true
	}
	_, ok := b.schema.LookupType(name)
	return ok
}

// resolveType returns the resolved definition of name, building it on first
// use. Re-entering a type that is still being built is a derivation cycle.
// ref is the node that refers to name, for error positions.
func (b *schemaBuilder) resolveType(name QName, ref *Node) TypeDefinition {
	if b.resolved[name] {
		return b.schema.Types[name]
	}
	_, isSimple := b.simpleDefs[name]
	_, isComplex := b.complexDefs[name]
	if !isSimple && !isComplex {
		if t, ok := b.schema.LookupType(name); ok {
			return t
		}
		b.fail(ref, "undefined type '%s'", displayName(name))
		return nil
	}
	if b.resolving[name] {
		b.fail(ref, "circular type derivation involving '%s'", name.Local)
		return nil
	}
	b.resolving[name] = true
	defer delete(b.resolving, name)

	var t TypeDefinition
	if isSimple {
		def := b.simpleDefs[name]
		t = b.buildSimpleType(name, def.node, def.ctx)
	} else {
		def := b.complexDefs[name]
		t = b.buildComplexType(name, def.node, def.ctx)
	}
	b.schema.Types[name] = t
	b.resolved[name] = true
	return t
}

// resolveSimple resolves name and requires it to be a simple type.
func (b *schemaBuilder) resolveSimple(name QName, ref *Node, role string) *SimpleType {
	t := b.resolveType(name, ref)
	if t == nil {
		return nil
	}
	st, ok := t.(*SimpleType)
	if !ok {
		b.fail(ref, "%s '%s' must be a simple type", role, displayName(name))
		return nil
	}
	return st
}

// register an anonymous type built in place.
func (b *schemaBuilder) addAnonymous(t TypeDefinition) {
	b.schema.Types[t.TypeName()] = t
	b.resolved[t.TypeName()] = true
}

// displayName renders a QName for schema error messages.
func displayName(name QName) string {
	if name.Namespace == XSDNamespace {
		return "xs:" + name.Local
	}
	return name.Local
}

// buildSimpleType builds a simple type from its xs:simpleType node.
func (b *schemaBuilder) buildSimpleType(name QName, n *Node, ctx *docContext) *SimpleType {
	st := &SimpleType{Name: name}
	var derivation *Node
	for _, c := range xsdChildren(n) {
		switch c.Name.Local {
		case "restriction", "list", "union":
			if derivation != nil {
				b.fail(c, "simple type '%s' has more than one derivation", displayTypeName(name))
				continue
			}
			derivation = c
		default:
			b.fail(c, "unexpected xs:%s in simple type", c.Name.Local)
		}
	}
	if derivation == nil {
		b.fail(n, "simple type '%s' must have a restriction, list or union", displayTypeName(name))
		return st
	}

	switch derivation.Name.Local {
	case "restriction":
		base := b.simpleBase(derivation, ctx)
		if base == nil {
			return st
		}
		st.Base = base.Name
		b.restrictSimple(st, base, derivation)
	case "list":
		b.buildList(st, derivation, ctx)
	case "union":
		b.buildUnion(st, derivation, ctx)
	}
	return st
}

// simpleBase returns the base of a simple restriction: the base attribute
// or an inline xs:simpleType child.
func (b *schemaBuilder) simpleBase(restriction *Node, ctx *docContext) *SimpleType {
	if baseName, ok := b.qnameAttr(restriction, "base"); ok {
		return b.resolveSimple(baseName, restriction, "base type")
	}
	for _, c := range xsdChildren(restriction) {
		if c.Name.Local == "simpleType" {
			return b.anonymousSimpleType(c, ctx)
		}
	}
	b.fail(restriction, "restriction must have a base type")
	return nil
}

// restrictSimple applies the facets of restriction to st, which derives from base.
func (b *schemaBuilder) restrictSimple(st, base *SimpleType, restriction *Node) {
	st.Variety = base.Variety
	st.ItemType = base.ItemType
	st.MemberTypes = base.MemberTypes
	st.item = base.item
	st.members = base.members
	st.primitive = base.primitive

	for _, c := range xsdChildren(restriction) {
		if c.Name.Local == "simpleType" {
			continue
		}
		if !isFacetKind(c.Name.Local) {
			if c.Name.Local != "attribute" && c.Name.Local != "attributeGroup" {
				b.fail(c, "unexpected xs:%s in restriction", c.Name.Local)
			}
			continue
		}
		f, err := newFacet(FacetKind(c.Name.Local), c.AttrValue("value"))
		if err != nil {
			b.fail(c, "%v", err)
			continue
		}
		if !facetApplicable(f.Kind, st.Variety, st.primitive) {
			b.fail(c, "facet '%s' is not applicable to %s type '%s'", f.Kind, st.Variety, displayTypeName(base.Name))
			continue
		}
		if isBoundKind(f.Kind) && st.primitive != nil && st.primitive.Validator != nil {
			if err := st.primitive.Validator(strings.TrimSpace(f.Value)); err != nil {
				b.fail(c, "invalid %s value '%s' for base type '%s'", f.Kind, f.Value, displayTypeName(base.Name))
				continue
			}
			f.Value = strings.TrimSpace(f.Value)
		}
		st.Facets = append(st.Facets, f)
	}
	st.effective = base.effective.derive(st.Facets)
}

func (b *schemaBuilder) buildList(st *SimpleType, list *Node, ctx *docContext) {
	st.Variety = ListVariety
	st.effective = facetSet{whiteSpace: Collapse}

	var item *SimpleType
	if itemName, ok := b.qnameAttr(list, "itemType"); ok {
		item = b.resolveSimple(itemName, list, "item type")
	} else {
		for _, c := range xsdChildren(list) {
			if c.Name.Local == "simpleType" {
				item = b.anonymousSimpleType(c, ctx)
			}
		}
		if item == nil {
			b.fail(list, "list must have an item type")
		}
	}
	if item == nil {
		return
	}
	if item.Variety == ListVariety {
		b.fail(list, "item type '%s' of a list must not itself be a list", displayTypeName(item.Name))
		return
	}
	st.ItemType = item.Name
	st.item = item
}

func (b *schemaBuilder) buildUnion(st *SimpleType, union *Node, ctx *docContext) {
	st.Variety = UnionVariety
	st.effective = facetSet{whiteSpace: Collapse}

	for _, lexical := range strings.Fields(union.AttrValue("memberTypes")) {
		name, ok := union.ResolveQName(lexical)
		if !ok {
			b.fail(union, "undeclared namespace prefix in memberTypes '%s'", lexical)
			continue
		}
		if m := b.resolveSimple(name, union, "member type"); m != nil {
			st.MemberTypes = append(st.MemberTypes, m.Name)
			st.members = append(st.members, m)
		}
	}
	for _, c := range xsdChildren(union) {
		if c.Name.Local != "simpleType" {
			continue
		}
		if m := b.anonymousSimpleType(c, ctx); m != nil {
			st.MemberTypes = append(st.MemberTypes, m.Name)
			st.members = append(st.members, m)
		}
	}
	if len(st.members) == 0 && len(st.MemberTypes) == 0 {
		b.fail(union, "union must have at least one member type")
	}
}

func (b *schemaBuilder) anonymousSimpleType(n *Node, ctx *docContext) *SimpleType {
	name := b.anonName(ctx)
	st := b.buildSimpleType(name, n, ctx)
	b.addAnonymous(st)
	return st
}

func (b *schemaBuilder) anonymousComplexType(n *Node, ctx *docContext) *ComplexType {
	name := b.anonName(ctx)
	ct := b.buildComplexType(name, n, ctx)
	b.addAnonymous(ct)
	return ct
}

// buildComplexType builds a complex type from its xs:complexType node.
func (b *schemaBuilder) buildComplexType(name QName, n *Node, ctx *docContext) *ComplexType {
	ct := &ComplexType{
		Name:       name,
		Mixed:      parseBool(n.AttrValue("mixed")),
		Abstract:   parseBool(n.AttrValue("abstract")),
		Attributes: make(map[QName]*AttributeDecl),
	}

	var uses []*Node
	for _, c := range xsdChildren(n) {
		switch c.Name.Local {
		case "simpleContent":
			b.buildSimpleContent(ct, c, ctx)
		case "complexContent":
			if c.HasAttr("mixed") {
				ct.Mixed = parseBool(c.AttrValue("mixed"))
			}
			b.buildComplexContent(ct, c, ctx)
		case "sequence", "choice", "all", "group":
			if ct.Particle != nil {
				b.fail(c, "complex type '%s' has more than one content model", displayTypeName(name))
				continue
			}
			ct.Particle = b.buildParticle(c, ctx)
		case "attribute", "attributeGroup":
			uses = append(uses, c)
		default:
			b.fail(c, "unsupported schema component 'xs:%s'", c.Name.Local)
		}
	}
	if ct.Derivation == NoDerivation {
		for _, u := range b.attributeUses(uses, ctx) {
			b.addAttribute(ct, u)
		}
	} else if len(uses) > 0 {
		b.fail(uses[0], "attributes of derived type '%s' must be declared inside its derivation", displayTypeName(name))
	}
	if ct.Content != SimpleContent {
		ct.Content = EmptyContent
		if ct.Particle != nil || ct.Mixed {
			ct.Content = ElementContent
		}
	}
	return ct
}

// complexBase resolves the base of a derivation and requires a complex type.
func (b *schemaBuilder) complexBase(derivation *Node) *ComplexType {
	baseName, ok := b.qnameAttr(derivation, "base")
	if !ok {
		b.fail(derivation, "xs:%s must have a base type", derivation.Name.Local)
		return nil
	}
	t := b.resolveType(baseName, derivation)
	if t == nil {
		return nil
	}
	base, ok := t.(*ComplexType)
	if !ok {
		b.fail(derivation, "base type '%s' of complex content must be a complex type", displayName(baseName))
		return nil
	}
	return base
}

func derivationNode(content *Node) *Node {
	for _, c := range xsdChildren(content) {
		if c.Name.Local == "extension" || c.Name.Local == "restriction" {
			return c
		}
	}
	return nil
}

func (b *schemaBuilder) buildComplexContent(ct *ComplexType, content *Node, ctx *docContext) {
	d := derivationNode(content)
	if d == nil {
		b.fail(content, "complexContent must contain an extension or restriction")
		return
	}
	base := b.complexBase(d)
	if base != nil {
		ct.Base = base.Name
		if base.Content == SimpleContent {
			b.fail(d, "complex content cannot derive from simple content type '%s'", displayTypeName(base.Name))
			base = nil
		}
	}

	var own *Particle
	var uses []*Node
	for _, c := range xsdChildren(d) {
		switch c.Name.Local {
		case "sequence", "choice", "all", "group":
			own = b.buildParticle(c, ctx)
		case "attribute", "attributeGroup":
			uses = append(uses, c)
		default:
			b.fail(c, "unsupported schema component 'xs:%s'", c.Name.Local)
		}
	}

	if d.Name.Local == "extension" {
		ct.Derivation = ExtensionDerivation
		if base != nil && !base.isAnyType() {
			ct.Mixed = ct.Mixed || base.Mixed
			b.inheritAttributes(ct, base)
			ct.Particle = extendParticle(base.Particle, own)
		} else {
			ct.Particle = own
		}
		for _, u := range b.attributeUses(uses, ctx) {
			b.addAttribute(ct, u)
		}
		return
	}

	ct.Derivation = RestrictionDerivation
	ct.Particle = own
	if base != nil {
		b.inheritAttributes(ct, base)
	}
	for _, u := range b.attributeUses(uses, ctx) {
		b.restrictAttribute(ct, u)
	}
}

// extendParticle appends the extension content after the base content.
func extendParticle(base, ext *Particle) *Particle {
	switch {
	case base == nil:
		return ext
	case ext == nil:
		return base
	}
	return &Particle{Kind: SequenceParticle, Min: 1, Max: 1, Children: []*Particle{base, ext}}
}

func (b *schemaBuilder) buildSimpleContent(ct *ComplexType, content *Node, ctx *docContext) {
	ct.Content = SimpleContent
	d := derivationNode(content)
	if d == nil {
		b.fail(content, "simpleContent must contain an extension or restriction")
		return
	}
	baseName, ok := b.qnameAttr(d, "base")
	if !ok {
		b.fail(d, "xs:%s must have a base type", d.Name.Local)
		return
	}
	ct.Base = baseName

	var uses []*Node
	for _, c := range xsdChildren(d) {
		if c.Name.Local == "attribute" || c.Name.Local == "attributeGroup" {
			uses = append(uses, c)
		}
	}

	var contentType *SimpleType
	var baseComplex *ComplexType
	switch t := b.resolveType(baseName, d).(type) {
	case *SimpleType:
		contentType = t
	case *ComplexType:
		if t.Content != SimpleContent {
			b.fail(d, "base type '%s' of simple content must be a simple type or have simple content", displayName(baseName))
			break
		}
		baseComplex = t
		contentType = t.contentType
	}

	if d.Name.Local == "extension" {
		ct.Derivation = ExtensionDerivation
		for _, c := range xsdChildren(d) {
			if c.Name.Local != "attribute" && c.Name.Local != "attributeGroup" {
				b.fail(c, "unexpected xs:%s in simpleContent extension", c.Name.Local)
			}
		}
		if baseComplex != nil {
			b.inheritAttributes(ct, baseComplex)
		}
		for _, u := range b.attributeUses(uses, ctx) {
			b.addAttribute(ct, u)
		}
	} else {
		ct.Derivation = RestrictionDerivation
		if baseComplex == nil && contentType != nil {
			b.fail(d, "simpleContent restriction base '%s' must be a complex type with simple content", displayName(baseName))
		}
		if contentType != nil {
			base := contentType
			for _, c := range xsdChildren(d) {
				if c.Name.Local == "simpleType" {
					if inline := b.anonymousSimpleType(c, ctx); inline != nil {
						base = inline
					}
				}
			}
			restricted := &SimpleType{Name: b.anonName(ctx), Base: base.Name}
			b.restrictSimple(restricted, base, d)
			b.addAnonymous(restricted)
			contentType = restricted
		}
		if baseComplex != nil {
			b.inheritAttributes(ct, baseComplex)
		}
		for _, u := range b.attributeUses(uses, ctx) {
			b.restrictAttribute(ct, u)
		}
	}

	ct.contentType = contentType
	if contentType != nil {
		ct.SimpleContentType = contentType.Name
	}
}

// inheritAttributes copies the attribute uses of base into ct.
func (b *schemaBuilder) inheritAttributes(ct, base *ComplexType) {
	for _, name := range base.AttributeOrder {
		ct.Attributes[name] = base.Attributes[name]
		ct.AttributeOrder = append(ct.AttributeOrder, name)
	}
}

// addAttribute adds a new attribute use; redeclaring a name is an error.
func (b *schemaBuilder) addAttribute(ct *ComplexType, u attributeUse) {
	if u.prohibited {
		return
	}
	if _, dup := ct.Attributes[u.decl.Name]; dup {
		b.fail(u.node, "attribute '%s' is declared more than once on complex type '%s'",
			u.decl.Name.Local, displayTypeName(ct.Name))
		return
	}
	ct.Attributes[u.decl.Name] = u.decl
	ct.AttributeOrder = append(ct.AttributeOrder, u.decl.Name)
}

// restrictAttribute overrides or prohibits an inherited attribute use.
func (b *schemaBuilder) restrictAttribute(ct *ComplexType, u attributeUse) {
	name := u.decl.Name
	_, inherited := ct.Attributes[name]
	if u.prohibited {
		if inherited {
			delete(ct.Attributes, name)
			order := ct.AttributeOrder[:0]
			for _, n := range ct.AttributeOrder {
				if n != name {
					order = append(order, n)
				}
			}
			ct.AttributeOrder = order
		}
		return
	}
	if !inherited {
		ct.AttributeOrder = append(ct.AttributeOrder, name)
	}
	ct.Attributes[name] = u.decl
}
