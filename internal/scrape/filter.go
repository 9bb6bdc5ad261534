package scrape

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements get a leading space so words from adjacent blocks do not
// run together.
var blockElements = map[atom.Atom]bool{
	atom.Div: true, atom.Dl: true, atom.Fieldset: true, atom.Form: true,
	atom.Hr: true, atom.Noscript: true, atom.P: true, atom.Pre: true,
	atom.Table: true, atom.Tfoot: true, atom.Ul: true,
}

// Text flattens HTML into plain text. Attribute values are emitted too,
// padded with spaces, so URLs in href or data attributes are found. Entities
// are decoded and inline tags are dropped without adding whitespace.
func Text(r io.Reader) (string, error) {
	var b strings.Builder
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return b.String(), err
			}
			return b.String(), nil
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if blockElements[atom.Lookup(name)] {
				b.WriteByte(' ')
			}
			for hasAttr {
				var val []byte
				_, val, hasAttr = z.TagAttr()
				b.WriteByte(' ')
				b.Write(val)
				b.WriteByte(' ')
			}
		}
	}
}

// TextString is Text over a string.
func TextString(s string) string {
	t, _ := Text(strings.NewReader(s))
	return t
}

// Selector picks an element by id or by class. Tag, when set, must match too.
type Selector struct {
	Tag   string
	ID    string
	Class string
}

func (s Selector) IsZero() bool { return s.ID == "" && s.Class == "" }

func (s Selector) match(n *html.Node) bool {
	if n.Type != html.ElementNode || s.IsZero() {
		return false
	}
	if s.Tag != "" && n.Data != s.Tag {
		return false
	}
	for _, a := range n.Attr {
		switch {
		case s.ID != "" && a.Key == "id" && a.Val == s.ID:
			return true
		case s.Class != "" && a.Key == "class":
			for _, c := range strings.Fields(a.Val) {
				if c == s.Class {
					return true
				}
			}
		}
	}
	return false
}

// FindHref returns the href of the first element matching sel, or of its
// nearest anchor ancestor or descendant.
func FindHref(page []byte, sel Selector) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", false
	}
	n := find(doc, sel)
	if n == nil {
		return "", false
	}
	if h, ok := href(n); ok {
		return h, true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if h, ok := href(p); ok {
			return h, true
		}
	}
	var first *html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.Data == "a" {
			if _, ok := href(c); ok {
				first = c
				return false
			}
		}
		return true
	})
	if first != nil {
		return href(first)
	}
	return "", false
}

// Contains reports whether any element matches sel.
func Contains(page []byte, sel Selector) bool {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return false
	}
	return find(doc, sel) != nil
}

func find(root *html.Node, sel Selector) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if sel.match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits nodes depth first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func href(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode || n.Data != "a" {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == "href" && strings.TrimSpace(a.Val) != "" {
			return a.Val, true
		}
	}
	return "", false
}
