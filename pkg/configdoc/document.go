package configdoc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ParseError reports input that is not well-formed XML.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse configuration: %v", e.Err)
	}
	return fmt.Sprintf("parse configuration %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Document is an immutable parsed configuration tree.
type Document struct {
	source string
	root   *xmlquery.Node // document node
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return parse(path, bytes.NewReader(data))
}

// Parse parses a configuration document from r.
func Parse(r io.Reader) (*Document, error) {
	return parse("", r)
}

// ParseString parses a configuration document held in memory.
func ParseString(s string) (*Document, error) {
	return parse("", strings.NewReader(s))
}

func parse(source string, r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	doc := &Document{source: source, root: root}
	if _, ok := doc.Root(); !ok {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("document has no root element")}
	}
	return doc, nil
}

// Source returns the file the document was loaded from, if any.
func (d *Document) Source() string {
	return d.source
}

// Root returns the top-level element.
func (d *Document) Root() (Node, bool) {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return Node{n: c}, true
		}
	}
	return Node{}, false
}

// FindAll evaluates an XPath expression against the whole document and
// returns the matching element nodes in document order.
func (d *Document) FindAll(expr string) ([]Node, error) {
	matches, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", expr, err)
	}
	nodes := make([]Node, 0, len(matches))
	for _, m := range matches {
		if m.Type == xmlquery.ElementNode {
			nodes = append(nodes, Node{n: m})
		}
	}
	return nodes, nil
}

// Walk visits every element of the document in document order.
// Returning false from fn stops the walk.
func (d *Document) Walk(fn func(Node) bool) {
	walk(d.root, fn)
}

func walk(n *xmlquery.Node, fn func(Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if !fn(Node{n: c}) {
			return false
		}
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// PathOf returns the canonical location of node, for example
// /config/devices/entry/vsys/entry[2]/rulebase. A positional index is only
// added where the parent has several children with the same name.
func (d *Document) PathOf(node Node) string {
	if node.n == nil {
		return ""
	}
	var segments []string
	for n := node.n; n != nil && n.Type == xmlquery.ElementNode; n = n.Parent {
		segments = append(segments, segment(n))
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/")
}

func segment(n *xmlquery.Node) string {
	name := qualifiedName(n)
	if n.Parent == nil {
		return name
	}
	count, position := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != xmlquery.ElementNode || qualifiedName(s) != name {
			continue
		}
		count++
		if s == n {
			position = count
		}
	}
	if count > 1 {
		return name + "[" + strconv.Itoa(position) + "]"
	}
	return name
}

func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}
