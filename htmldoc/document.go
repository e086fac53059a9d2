// Package htmldoc wraps goquery with the handful of queries the portal
// scrapers need, and the text cleaning the portal's markup requires.
package htmldoc

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Node is a single element (or the whole document) inside a Document.
type Node struct {
	sel *goquery.Selection
}

// Nodes is an ordered list of matched nodes.
type Nodes []*Node

var (
	conditionalComment = regexp.MustCompile(`(?is)<!--\[if.*?<!\[endif\]-->`)
	xmlIsland          = regexp.MustCompile(`(?is)<xml>.*?</xml>`)
	officeTag          = regexp.MustCompile(`(?i)</?o:p>`)

	styleDefinitions = regexp.MustCompile(`(?s)/\*\s*Style Definitions\s*\*/.*?}`)
	msoPreamble      = regexp.MustCompile(`Normal\s+0\s+(?:\d+\s+)?false\s+false\s+false(?:\s+[A-Z]{2}-[A-Z]{2})?(?:\s+X-NONE)*`)
	whitespace       = regexp.MustCompile(`[\s\x{00a0}]+`)
)

// Parse builds a Document from raw HTML.
func Parse(raw string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(stripOffice(raw)))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	return &Document{doc: doc}, nil
}

// MustParse is Parse for input that is known to be well formed. The net/html
// tokenizer accepts any input, so the only failure is a reader error, which a
// strings.Reader never produces.
func MustParse(raw string) *Document {
	doc, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return doc
}

func stripOffice(raw string) string {
	raw = conditionalComment.ReplaceAllString(raw, "")
	raw = xmlIsland.ReplaceAllString(raw, "")
	return officeTag.ReplaceAllString(raw, "")
}

// Root returns the document node.
func (d *Document) Root() *Node {
	return &Node{sel: d.doc.Selection}
}

// Find returns every node matching the CSS selector.
func (d *Document) Find(selector string) Nodes {
	return wrap(d.doc.Find(selector))
}

// First returns the first node matching selector.
func (d *Document) First(selector string) (*Node, bool) {
	return d.Root().First(selector)
}

func wrap(sel *goquery.Selection) Nodes {
	nodes := make(Nodes, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &Node{sel: s})
	})
	return nodes
}

// Find returns every descendant matching the CSS selector.
func (n *Node) Find(selector string) Nodes {
	return wrap(n.sel.Find(selector))
}

// First returns the first descendant matching selector.
func (n *Node) First(selector string) (*Node, bool) {
	sel := n.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return &Node{sel: sel}, true
}

// Children returns the element children of n.
func (n *Node) Children() Nodes {
	return wrap(n.sel.Children())
}

// Tag returns the lower-case element name.
func (n *Node) Tag() string {
	return goquery.NodeName(n.sel)
}

// Attr returns the named attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	return n.sel.AttrOr(name, "")
}

// AttrOk returns the named attribute and whether it was present.
func (n *Node) AttrOk(name string) (string, bool) {
	return n.sel.Attr(name)
}

// HasClass reports whether n carries the CSS class.
func (n *Node) HasClass(class string) bool {
	return n.sel.HasClass(class)
}

// Text returns the cleaned inner text: no line breaks, tabs or Office
// artifacts, whitespace collapsed to single spaces.
func (n *Node) Text() string {
	return CleanText(n.sel.Text())
}

// RawText returns the inner text exactly as the tokenizer produced it.
func (n *Node) RawText() string {
	return n.sel.Text()
}

// HTML returns the inner HTML of n.
func (n *Node) HTML() string {
	h, err := n.sel.Html()
	if err != nil {
		return ""
	}
	return h
}

// OuterHTML returns the HTML of n including its own tag.
func (n *Node) OuterHTML() string {
	h, err := goquery.OuterHtml(n.sel)
	if err != nil {
		return ""
	}
	return h
}

// TextWithBreaks returns the text of n with paragraph and line-break markup
// kept as newlines.
func (n *Node) TextWithBreaks() string {
	return TextWithBreaks(n.HTML())
}

// CleanText applies the portal text cleaning to an already extracted string.
func CleanText(s string) string {
	s = styleDefinitions.ReplaceAllString(s, " ")
	s = msoPreamble.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
