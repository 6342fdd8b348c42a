// Package extract turns downloaded book content into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrEmptyDocument is returned when markup parses to no nodes at all.
var ErrEmptyDocument = errors.New("markup produced an empty document")

// nonContent elements are removed before text is collected.
const nonContent = "script, style, noscript, template, head, iframe, object, svg"

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

var (
	trailingSpace = regexp.MustCompile(`[ \t\r]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Extractor normalises fetched content into plain text.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// IsMarkup decides whether content should be parsed as HTML. The hint is the
// source URL; the content itself counts as markup when it starts with '<'.
func IsMarkup(hint string, raw []byte) bool {
	lower := strings.ToLower(hint)
	if strings.HasSuffix(lower, ".htm") || strings.HasSuffix(lower, ".html") || strings.Contains(lower, "text/html") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("<"))
}

// Extract returns visible text as valid UTF-8; invalid byte sequences are
// dropped. Plain text otherwise passes through unchanged.
func (e *Extractor) Extract(raw []byte, hint string) (string, error) {
	raw = bytes.ToValidUTF8(raw, nil)
	if !IsMarkup(hint, raw) {
		return string(raw), nil
	}
	return e.FromHTML(raw)
}

// FromHTML strips non-content elements and renders the remaining text with a
// line break at every block boundary.
func (e *Extractor) FromHTML(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	doc.Find(nonContent).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	if root.Length() == 0 {
		return "", ErrEmptyDocument
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		render(&b, n)
	}
	return tidy(b.String()), nil
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

func tidy(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
