package xsd

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

const (
	xmlnsNamespace = "http://www.w3.org/2000/xmlns/"
	xmlNamespace   = "http://www.w3.org/XML/1998/namespace"

	textNode  = 3
	cdataNode = 4
)

// Node is one element of a parsed XML document. Nodes are built once by the
// parse functions and never modified afterwards.
type Node struct {
	Name       QName
	Attributes []Attribute
	Children   []*Node
	// Text is the concatenation of the element's own text and CDATA children.
	Text   string
	Line   int
	Column int

	scope *nsScope
}

// Attribute is an attribute of a Node. Namespace declarations are not attributes.
type Attribute struct {
	Name   QName
	Value  string
	Line   int
	Column int
}

// nsScope holds the namespace bindings declared on one element and links to
// the bindings of its ancestors.
type nsScope struct {
	parent   *nsScope
	bindings map[string]string
}

func (s *nsScope) lookup(prefix string) (string, bool) {
	for ; s != nil; s = s.parent {
		if uri, ok := s.bindings[prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

// Attr returns the attribute with the given name.
func (n *Node) Attr(name QName) (Attribute, bool) {
	for _, a := range n.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttrValue returns the value of the unqualified attribute local, or "".
func (n *Node) AttrValue(local string) string {
	a, _ := n.Attr(QName{Local: local})
	return a.Value
}

// HasAttr reports whether the unqualified attribute local is present.
func (n *Node) HasAttr(local string) bool {
	_, ok := n.Attr(QName{Local: local})
	return ok
}

// LookupNamespace resolves a prefix against the namespace declarations in
// scope at this node. The empty prefix resolves the default namespace.
func (n *Node) LookupNamespace(prefix string) (string, bool) {
	switch prefix {
	case "xml":
		return xmlNamespace, true
	case "xmlns":
		return xmlnsNamespace, true
	}
	return n.scope.lookup(prefix)
}

// ResolveQName resolves a lexical QName such as "tns:item" in the scope of n.
// Unprefixed names take the default namespace, if one is declared.
func (n *Node) ResolveQName(lexical string) (QName, bool) {
	lexical = strings.TrimSpace(lexical)
	prefix, local, found := strings.Cut(lexical, ":")
	if !found {
		uri, _ := n.LookupNamespace("")
		return QName{Namespace: uri, Local: lexical}, true
	}
	uri, ok := n.LookupNamespace(prefix)
	if !ok {
		return QName{Local: local}, false
	}
	return QName{Namespace: uri, Local: local}, true
}

// HasText reports whether the node carries non-whitespace character data.
func (n *Node) HasText() bool {
	return strings.TrimSpace(n.Text) != ""
}

// convertElement copies a go-xmldom element subtree into Nodes.
func convertElement(elem xmldom.Element, parent *nsScope) *Node {
	line, col, _ := elem.Position()
	node := &Node{
		Name: QName{
			Namespace: string(elem.NamespaceURI()),
			Local:     string(elem.LocalName()),
		},
		Line:   line,
		Column: col,
		scope:  parent,
	}

	attrs := elem.Attributes()
	var bindings map[string]string
	var prefixed []string
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		name := string(attr.NodeName())
		attrNS := string(attr.NamespaceURI())
		local := string(attr.LocalName())
		if local == "" {
			local = name
		}

		// xmldom reports xmlns:p with namespace "xmlns" or the xmlns URI,
		// and the default declaration with local name "xmlns".
		if name == "xmlns" || strings.HasPrefix(name, "xmlns:") || attrNS == xmlnsNamespace || attrNS == "xmlns" {
			if bindings == nil {
				bindings = make(map[string]string)
			}
			prefix := ""
			if name != "xmlns" {
				prefix = strings.TrimPrefix(name, "xmlns:")
			}
			bindings[prefix] = string(attr.NodeValue())
			continue
		}

		a := Attribute{
			Name:   QName{Namespace: attrNS, Local: local},
			Value:  string(attr.NodeValue()),
			Line:   line,
			Column: col,
		}
		if an := elem.GetAttributeNode(attr.NodeName()); an != nil {
			if l, c, _ := an.Position(); l > 0 {
				a.Line, a.Column = l, c
			}
		}
		node.Attributes = append(node.Attributes, a)
		prefixed = append(prefixed, name)
	}
	if bindings != nil {
		node.scope = &nsScope{parent: parent, bindings: bindings}
	}
	for i := range node.Attributes {
		a := &node.Attributes[i]
		if a.Name.Namespace != "" {
			continue
		}
		if prefix, local, ok := strings.Cut(prefixed[i], ":"); ok {
			if uri, found := node.LookupNamespace(prefix); found {
				a.Name = QName{Namespace: uri, Local: local}
			}
		}
	}

	var text strings.Builder
	nodes := elem.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		child := nodes.Item(i)
		if child == nil {
			continue
		}
		if t := child.NodeType(); t == textNode || t == cdataNode {
			text.WriteString(string(child.NodeValue()))
		}
	}
	node.Text = text.String()

	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		if child := children.Item(i); child != nil {
			node.Children = append(node.Children, convertElement(child, node.scope))
		}
	}
	return node
}
