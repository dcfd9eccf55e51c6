package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// freeLines returns the lines that are not part of a label/value pair: text
// inside a table row that carries a label cell, and text following one of
// labels in running markup ("Physical Address: 1 MAIN ST<br>DENVER").
func (d *Document) freeLines(labels []string) []string {
	skip := make(map[*html.Node]bool)
	for i, n := range d.nodes {
		if skip[n] {
			continue
		}
		if row := enclosing(n, atom.Tr); row != nil && isFieldRow(row) {
			skip[n] = true
			continue
		}
		if hasLabelPrefix(d.lines[i], labels) {
			skip[n] = true
			markValueRun(n, skip)
		}
	}

	out := make([]string, 0, len(d.lines))
	for i, n := range d.nodes {
		if !skip[n] {
			out = append(out, d.lines[i])
		}
	}
	return out
}

// isFieldRow reports whether a row pairs a label cell with at least one
// other cell.
func isFieldRow(row *html.Node) bool {
	cs := cells(row)
	if len(cs) < 2 {
		return false
	}
	for _, c := range cs {
		if isLabelCell(c) {
			return true
		}
	}
	return false
}

func isLabelCell(c *html.Node) bool {
	if c.DataAtom == atom.Th {
		return true
	}
	for _, a := range findAll(c, atom.A) {
		if hasClass(a, "querylabel") {
			return true
		}
	}
	return strings.HasSuffix(textOf(c), ":")
}

func hasLabelPrefix(line string, labels []string) bool {
	lower := strings.ToLower(line)
	for _, l := range labels {
		l = strings.ToLower(l)
		if lower == l || strings.HasPrefix(lower, l+":") || strings.HasPrefix(lower, l+" :") {
			return true
		}
	}
	return false
}

// markValueRun marks the text that continues a labeled value: siblings of the
// label's text node, or of its inline wrapper, up to the next block element.
func markValueRun(n *html.Node, skip map[*html.Node]bool) {
	start := n
	if p := n.Parent; p != nil && isInline(p) && strings.TrimSpace(textOf(p)) == collapse(n.Data) {
		start = p
	}
	for s := start.NextSibling; s != nil; s = s.NextSibling {
		switch {
		case s.Type == html.TextNode:
			skip[s] = true
		case s.Type == html.ElementNode && s.DataAtom == atom.Br:
		case s.Type == html.ElementNode && isInline(s):
			for _, t := range textNodes(s) {
				skip[t] = true
			}
		default:
			return
		}
	}
}

func isInline(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.B, atom.Strong, atom.Span, atom.Em, atom.I, atom.Label, atom.A, atom.Font:
		return true
	}
	return false
}

func textNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
