package configdoc

import "github.com/antchfx/xmlquery"

// Node is a read-only handle on an element of a Document.
type Node struct {
	n *xmlquery.Node
}

// IsZero reports whether the handle points at nothing.
func (n Node) IsZero() bool {
	return n.n == nil
}

// Name returns the element name.
func (n Node) Name() string {
	if n.n == nil {
		return ""
	}
	return n.n.Data
}

// Attr returns the value of the named attribute, or "" when absent.
func (n Node) Attr(name string) string {
	if n.n == nil {
		return ""
	}
	return n.n.SelectAttr(name)
}

// Text returns the XPath string value of the element: the concatenated
// text of all its descendants.
func (n Node) Text() string {
	if n.n == nil {
		return ""
	}
	return n.n.InnerText()
}

// Parent returns the enclosing element.
func (n Node) Parent() (Node, bool) {
	if n.n == nil || n.n.Parent == nil || n.n.Parent.Type != xmlquery.ElementNode {
		return Node{}, false
	}
	return Node{n: n.n.Parent}, true
}

// Children returns the direct child elements named name.
func (n Node) Children(name string) []Node {
	if n.n == nil {
		return nil
	}
	var out []Node
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			out = append(out, Node{n: c})
		}
	}
	return out
}

// ChildTextEquals reports whether any direct child element named name has
// a string value equal to value.
func (n Node) ChildTextEquals(name, value string) bool {
	for _, c := range n.Children(name) {
		if c.Text() == value {
			return true
		}
	}
	return false
}

// Descendants returns every element below n named name, in document order.
func (n Node) Descendants(name string) []Node {
	if n.n == nil {
		return nil
	}
	var out []Node
	walk(n.n, func(d Node) bool {
		if d.n.Data == name {
			out = append(out, d)
		}
		return true
	})
	return out
}

// DescendantTextEquals reports whether any descendant element named name
// has a string value equal to value.
func (n Node) DescendantTextEquals(name, value string) bool {
	for _, d := range n.Descendants(name) {
		if d.Text() == value {
			return true
		}
	}
	return false
}

// HasDirectText reports whether one of the element's own text nodes equals
// value. Text nested in child elements does not count.
func (n Node) HasDirectText(value string) bool {
	if n.n == nil {
		return false
	}
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if (c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode) && c.Data == value {
			return true
		}
	}
	return false
}

// HasAncestor reports whether any element above n is named name.
// n itself is not considered.
func (n Node) HasAncestor(name string) bool {
	if n.n == nil {
		return false
	}
	for p := n.n.Parent; p != nil && p.Type == xmlquery.ElementNode; p = p.Parent {
		if p.Data == name {
			return true
		}
	}
	return false
}
