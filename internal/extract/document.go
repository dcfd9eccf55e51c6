// Package extract turns registry snapshot markup into typed entity fields.
// Every lookup is a pure function of the parsed document; a missing field is
// reported as absent, never as an error.
package extract

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxLabelLen bounds the text of elements indexed as potential labels.
const maxLabelLen = 80

// Document is a parsed markup document for one identifier lookup.
type Document struct {
	root   *html.Node
	title  string
	lines  []string
	nodes  []*html.Node // text node behind each line
	labels map[string][]*html.Node
}

// Parse parses markup into a Document.
func Parse(markup string) (*Document, error) {
	return ParseReader(strings.NewReader(markup))
}

// ParseReader parses markup from r into a Document.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse markup")
	}

	d := &Document{root: root, labels: make(map[string][]*html.Node)}
	d.index(root)
	return d, nil
}

// Title returns the document title with whitespace collapsed.
func (d *Document) Title() string { return d.title }

// Text returns the visible text, one line per text node.
func (d *Document) Text() string { return strings.Join(d.lines, "\n") }

// Lines returns the visible text nodes in document order.
func (d *Document) Lines() []string { return d.lines }

// index records the title, visible text lines and every short element
// keyed by its normalized label text.
func (d *Document) index(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := collapse(n.Data); t != "" {
			d.lines = append(d.lines, t)
			d.nodes = append(d.nodes, n)
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Title:
			d.title = textOf(n)
			return
		}
		if t := textOf(n); t != "" && len(t) <= maxLabelLen {
			key := normalizeLabel(t)
			d.labels[key] = append(d.labels[key], n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

// labelNodes returns the elements whose whole text equals label, outermost
// first in document order.
func (d *Document) labelNodes(label string) []*html.Node {
	return d.labels[normalizeLabel(label)]
}

// textOf returns the collapsed visible text beneath n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Br:
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

// collapse replaces non-breaking spaces and squeezes runs of whitespace.
func collapse(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// normalizeLabel lowercases a label and strips the trailing colon.
func normalizeLabel(s string) string {
	s = strings.ToLower(collapse(s))
	return strings.TrimSpace(strings.TrimRight(s, ": "))
}

func isCell(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th)
}

// enclosing returns the nearest ancestor-or-self of n with tag a.
func enclosing(n *html.Node, a atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

// enclosingCell returns the nearest td or th containing n.
func enclosingCell(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if isCell(n) {
			return n
		}
	}
	return nil
}

// nextCell returns the next td/th sibling of cell.
func nextCell(cell *html.Node) *html.Node {
	for s := cell.NextSibling; s != nil; s = s.NextSibling {
		if isCell(s) {
			return s
		}
	}
	return nil
}

// cells returns the direct td/th children of a row.
func cells(row *html.Node) []*html.Node {
	var out []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if isCell(c) {
			out = append(out, c)
		}
	}
	return out
}

// nextRow returns the next tr sibling of row.
func nextRow(row *html.Node) *html.Node {
	for s := row.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Tr {
			return s
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if strings.EqualFold(c, class) {
				return true
			}
		}
	}
	return false
}

// contains reports whether child is n or a descendant of n.
func contains(n, child *html.Node) bool {
	for ; child != nil; child = child.Parent {
		if child == n {
			return true
		}
	}
	return false
}

// findAll returns every element beneath n (inclusive) with tag a.
func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
