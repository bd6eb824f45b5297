package xsd

import (
	"strconv"
	"strings"
)

// parseOccurs reads minOccurs and maxOccurs of n. ok is false when either
// is malformed or maxOccurs is less than minOccurs.
func (b *schemaBuilder) parseOccurs(n *Node) (min, max int, ok bool) {
	min, max, ok = 1, 1, true
	if n.HasAttr("minOccurs") {
		v := strings.TrimSpace(n.AttrValue("minOccurs"))
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			b.fail(n, "invalid minOccurs value '%s'", v)
			ok = false
		} else {
			min = i
		}
	}
	if n.HasAttr("maxOccurs") {
		v := strings.TrimSpace(n.AttrValue("maxOccurs"))
		if v == "unbounded" {
			max = Unbounded
		} else if i, err := strconv.Atoi(v); err != nil || i < 0 {
			b.fail(n, "invalid maxOccurs value '%s'", v)
			ok = false
		} else {
			max = i
		}
	}
	if ok && max != Unbounded && max < min {
		b.fail(n, "maxOccurs (%d) must not be less than minOccurs (%d)", max, min)
		ok = false
	}
	return min, max, ok
}

// buildParticle builds the particle for an xs:element, xs:sequence,
// xs:choice, xs:all or xs:group reference. Particles with maxOccurs="0"
// are dropped and nil is returned.
func (b *schemaBuilder) buildParticle(n *Node, ctx *docContext) *Particle {
	min, max, ok := b.parseOccurs(n)
	if !ok {
		return nil
	}
	var p *Particle
	switch n.Name.Local {
	case "element":
		decl := b.particleElement(n, ctx)
		if decl == nil {
			return nil
		}
		p = &Particle{Kind: ElementParticle, Element: decl}
	case "sequence", "choice":
		kind := SequenceParticle
		if n.Name.Local == "choice" {
			kind = ChoiceParticle
		}
		p = &Particle{Kind: kind}
		for _, c := range xsdChildren(n) {
			switch c.Name.Local {
			case "element", "sequence", "choice", "group":
				if child := b.buildParticle(c, ctx); child != nil {
					p.Children = append(p.Children, child)
				}
			default:
				b.fail(c, "unsupported schema component 'xs:%s'", c.Name.Local)
			}
		}
	case "all":
		p = b.buildAll(n, ctx)
		if max > 1 || max == Unbounded {
			b.fail(n, "xs:all must have maxOccurs 0 or 1")
			return nil
		}
	case "group":
		p = b.groupParticle(n)
		if p == nil {
			return nil
		}
	default:
		b.fail(n, "unsupported schema component 'xs:%s'", n.Name.Local)
		return nil
	}
	if max == 0 {
		return nil
	}
	p.Min, p.Max = min, max
	return p
}

func (b *schemaBuilder) buildAll(n *Node, ctx *docContext) *Particle {
	p := &Particle{Kind: AllParticle}
	for _, c := range xsdChildren(n) {
		if c.Name.Local != "element" {
			b.fail(c, "xs:all may only contain xs:element, found xs:%s", c.Name.Local)
			continue
		}
		child := b.buildParticle(c, ctx)
		if child == nil {
			continue
		}
		if child.Max > 1 || child.Max == Unbounded {
			b.fail(c, "xs:all member '%s' must have maxOccurs 0 or 1", child.Element.Name.Local)
			continue
		}
		p.Children = append(p.Children, child)
	}
	return p
}

// groupParticle inlines the model group named by the ref attribute of n.
// The group's content is rebuilt for every reference so that each use
// carries its own occurrence bounds.
func (b *schemaBuilder) groupParticle(n *Node) *Particle {
	ref, ok := b.qnameAttr(n, "ref")
	if !ok {
		b.fail(n, "group reference must have a ref attribute")
		return nil
	}
	def, found := b.groupDefs[ref]
	if !found {
		b.fail(n, "undefined group '%s'", displayName(ref))
		return nil
	}
	if b.groupResolving[ref] {
		b.fail(n, "circular group reference '%s'", ref.Local)
		return nil
	}
	b.groupResolving[ref] = true
	defer delete(b.groupResolving, ref)

	var model *Node
	for _, c := range xsdChildren(def.node) {
		switch c.Name.Local {
		case "sequence", "choice", "all":
			model = c
		}
	}
	if model == nil {
		b.fail(def.node, "group '%s' must contain a sequence, choice or all", ref.Local)
		return nil
	}
	if model.HasAttr("minOccurs") || model.HasAttr("maxOccurs") {
		b.fail(model, "model group inside group '%s' must not declare occurrences", ref.Local)
	}
	var p *Particle
	if model.Name.Local == "all" {
		p = b.buildAll(model, def.ctx)
	} else {
		p = b.buildParticle(model, def.ctx)
	}
	return p
}

// particleElement returns the declaration for an xs:element inside a model
// group: a reference to a top-level declaration or a local declaration.
func (b *schemaBuilder) particleElement(n *Node, ctx *docContext) *ElementDecl {
	if n.HasAttr("ref") {
		ref, ok := b.qnameAttr(n, "ref")
		if !ok {
			return nil
		}
		decl := b.topElement(ref, n)
		if decl == nil {
			b.fail(n, "undefined element '%s'", displayName(ref))
		}
		return decl
	}
	local := strings.TrimSpace(n.AttrValue("name"))
	if local == "" {
		b.fail(n, "local element must have a name or ref")
		return nil
	}
	name := QName{Local: local}
	qualified := ctx.elementQualified
	if n.HasAttr("form") {
		qualified = strings.TrimSpace(n.AttrValue("form")) == "qualified"
	}
	if qualified {
		name.Namespace = ctx.targetNamespace
	}
	return b.buildElementDecl(name, n, ctx)
}

// topElement returns the top-level element declaration name, building it on
// first use. The declaration is registered before its type is built so that
// recursive content can refer back to it.
func (b *schemaBuilder) topElement(name QName, ref *Node) *ElementDecl {
	if decl, ok := b.schema.Elements[name]; ok {
		return decl
	}
	def, ok := b.elementDefs[name]
	if !ok {
		return nil
	}
	decl := &ElementDecl{Name: name}
	b.schema.Elements[name] = decl
	b.fillElementDecl(decl, def.node, def.ctx)
	return decl
}

func (b *schemaBuilder) buildElementDecl(name QName, n *Node, ctx *docContext) *ElementDecl {
	decl := &ElementDecl{Name: name}
	b.fillElementDecl(decl, n, ctx)
	return decl
}

func (b *schemaBuilder) fillElementDecl(decl *ElementDecl, n *Node, ctx *docContext) {
	decl.Nillable = parseBool(n.AttrValue("nillable"))
	decl.Abstract = parseBool(n.AttrValue("abstract"))
	decl.Default, decl.HasDefault = n.AttrValue("default"), n.HasAttr("default")
	decl.Fixed, decl.HasFixed = n.AttrValue("fixed"), n.HasAttr("fixed")
	if decl.HasDefault && decl.HasFixed {
		b.fail(n, "element '%s' cannot have both default and fixed values", decl.Name.Local)
	}

	var inline *Node
	for _, c := range xsdChildren(n) {
		switch c.Name.Local {
		case "simpleType", "complexType":
			inline = c
		case "key", "keyref", "unique":
			// identity constraints are not enforced
		default:
			b.fail(c, "unexpected xs:%s in element '%s'", c.Name.Local, decl.Name.Local)
		}
	}

	typeName, hasType := b.qnameAttr(n, "type")
	switch {
	case hasType && inline != nil:
		b.fail(n, "element '%s' cannot have both a type attribute and an inline type", decl.Name.Local)
		decl.Type = typeName
	case hasType:
		if !b.typeExists(typeName) {
			b.fail(n, "undefined type '%s' for element '%s'", displayName(typeName), decl.Name.Local)
		}
		decl.Type = typeName
	case inline != nil && inline.Name.Local == "simpleType":
		decl.Type = b.anonymousSimpleType(inline, ctx).Name
	case inline != nil:
		decl.Type = b.anonymousComplexType(inline, ctx).Name
	default:
		decl.Type = anyTypeName
	}

	if decl.HasDefault || decl.HasFixed {
		b.deferred = append(b.deferred, func() { b.checkElementValueConstraint(decl, n) })
	}
}

// checkElementValueConstraint requires default and fixed values to be valid
// for an element of simple content.
func (b *schemaBuilder) checkElementValueConstraint(decl *ElementDecl, n *Node) {
	var st *SimpleType
	switch t := b.resolveType(decl.Type, n).(type) {
	case *SimpleType:
		st = t
	case *ComplexType:
		if t.Content == SimpleContent {
			st = t.contentType
		} else if !(t.Content == ElementContent && t.Mixed && t.Particle == nil) && !t.isAnyType() {
			b.fail(n, "element '%s' with a value constraint must have simple or mixed content", decl.Name.Local)
			return
		}
	}
	if st == nil {
		return
	}
	value := decl.Default
	if decl.HasFixed {
		value = decl.Fixed
	}
	if errs := ValidateSimple(value, st); len(errs) > 0 {
		b.fail(n, "value constraint '%s' of element '%s' is invalid: %s", value, decl.Name.Local, errs[0].Message)
	}
}

// attributeUse is one attribute use of a complex type or attribute group.
type attributeUse struct {
	decl       *AttributeDecl
	prohibited bool
	node       *Node
}

// attributeUses expands xs:attribute and xs:attributeGroup nodes.
func (b *schemaBuilder) attributeUses(nodes []*Node, ctx *docContext) []attributeUse {
	var uses []attributeUse
	for _, n := range nodes {
		switch n.Name.Local {
		case "attribute":
			if u, ok := b.localAttribute(n, ctx); ok {
				uses = append(uses, u)
			}
		case "attributeGroup":
			uses = append(uses, b.attributeGroupUses(n)...)
		}
	}
	return uses
}

func (b *schemaBuilder) attributeGroupUses(n *Node) []attributeUse {
	ref, ok := b.qnameAttr(n, "ref")
	if !ok {
		b.fail(n, "attributeGroup reference must have a ref attribute")
		return nil
	}
	def, found := b.attrGroupDefs[ref]
	if !found {
		b.fail(n, "undefined attribute group '%s'", displayName(ref))
		return nil
	}
	if b.attrGroupResolving[ref] {
		b.fail(n, "circular attribute group reference '%s'", ref.Local)
		return nil
	}
	b.attrGroupResolving[ref] = true
	defer delete(b.attrGroupResolving, ref)

	var members []*Node
	for _, c := range xsdChildren(def.node) {
		switch c.Name.Local {
		case "attribute", "attributeGroup":
			members = append(members, c)
		default:
			b.fail(c, "unsupported schema component 'xs:%s'", c.Name.Local)
		}
	}
	return b.attributeUses(members, def.ctx)
}

// localAttribute builds the use described by an xs:attribute inside a
// complex type or attribute group.
func (b *schemaBuilder) localAttribute(n *Node, ctx *docContext) (attributeUse, bool) {
	u := attributeUse{node: n}
	use := strings.TrimSpace(n.AttrValue("use"))
	switch use {
	case "", "optional":
	case "required":
	case "prohibited":
		u.prohibited = true
	default:
		b.fail(n, "invalid attribute use '%s'", use)
		return u, false
	}

	var decl *AttributeDecl
	if n.HasAttr("ref") {
		ref, ok := b.qnameAttr(n, "ref")
		if !ok {
			return u, false
		}
		global := b.topAttribute(ref, n)
		if global == nil {
			b.fail(n, "undefined attribute '%s'", displayName(ref))
			return u, false
		}
		copied := *global
		decl = &copied
		if n.HasAttr("default") {
			decl.Default, decl.HasDefault = n.AttrValue("default"), true
		}
		if n.HasAttr("fixed") {
			decl.Fixed, decl.HasFixed = n.AttrValue("fixed"), true
		}
	} else {
		local := strings.TrimSpace(n.AttrValue("name"))
		if local == "" {
			b.fail(n, "attribute must have a name or ref")
			return u, false
		}
		name := QName{Local: local}
		qualified := ctx.attributeQualified
		if n.HasAttr("form") {
			qualified = strings.TrimSpace(n.AttrValue("form")) == "qualified"
		}
		if qualified {
			name.Namespace = ctx.targetNamespace
		}
		decl = b.buildAttributeDecl(name, n, ctx)
		if decl == nil {
			return u, false
		}
	}
	decl.Required = use == "required"
	if decl.Required && decl.HasDefault {
		b.fail(n, "required attribute '%s' cannot have a default value", decl.Name.Local)
	}
	u.decl = decl
	return u, true
}

// topAttribute returns the top-level attribute declaration name.
func (b *schemaBuilder) topAttribute(name QName, ref *Node) *AttributeDecl {
	if decl, ok := b.schema.Attributes[name]; ok {
		return decl
	}
	def, ok := b.attributeDefs[name]
	if !ok {
		return nil
	}
	decl := b.buildAttributeDecl(name, def.node, def.ctx)
	if decl == nil {
		decl = &AttributeDecl{Name: name, Type: anySimpleTypeName, simple: builtinSimpleType("anySimpleType")}
	}
	b.schema.Attributes[name] = decl
	return decl
}

func (b *schemaBuilder) buildAttributeDecl(name QName, n *Node, ctx *docContext) *AttributeDecl {
	decl := &AttributeDecl{
		Name:       name,
		Default:    n.AttrValue("default"),
		Fixed:      n.AttrValue("fixed"),
		HasDefault: n.HasAttr("default"),
		HasFixed:   n.HasAttr("fixed"),
	}
	if decl.HasDefault && decl.HasFixed {
		b.fail(n, "attribute '%s' cannot have both default and fixed values", name.Local)
	}

	if typeName, ok := b.qnameAttr(n, "type"); ok {
		decl.simple = b.resolveSimple(typeName, n, "type of attribute '"+name.Local+"'")
		decl.Type = typeName
	} else {
		for _, c := range xsdChildren(n) {
			if c.Name.Local == "simpleType" {
				decl.simple = b.anonymousSimpleType(c, ctx)
				decl.Type = decl.simple.Name
			}
		}
		if decl.simple == nil {
			decl.Type = anySimpleTypeName
			decl.simple = builtinSimpleType("anySimpleType")
		}
	}
	if decl.simple == nil {
		return nil
	}

	value := decl.Default
	if decl.HasFixed {
		value = decl.Fixed
	}
	if decl.HasDefault || decl.HasFixed {
		if errs := ValidateSimple(value, decl.simple); len(errs) > 0 {
			b.fail(n, "value constraint '%s' of attribute '%s' is invalid: %s", value, name.Local, errs[0].Message)
		}
	}
	return decl
}
