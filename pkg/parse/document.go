package parse

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/Sriram-PR/zsml-scraper/pkg/fetch"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// RawMarkup is page markup kept verbatim for pattern scans that must not see a
// re-serialized tree
type RawMarkup string

// Document is a parsed page. CSS and XPath queries run over the same node tree.
type Document struct {
	root *html.Node
	doc  *goquery.Document
	raw  RawMarkup
}

// Parse builds a Document from fetched content.
// Empty content is a parse failure; html.Parse is lenient so malformed markup still yields a tree.
func Parse(content fetch.RawContent) (*Document, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, fmt.Errorf("%w: empty HTML document", utils.ErrParsing)
	}
	root, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML tokenizer: %w", utils.ErrParsing, err)
	}
	return &Document{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
		raw:  RawMarkup(content),
	}, nil
}

// Find runs a CSS selector over the document. No match is an empty selection.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// XPathTexts evaluates expr and returns the text content of each result node.
// An invalid expression yields nil; the extractors validate their expressions up front.
func (d *Document) XPathTexts(expr string) []string {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil
	}
	return innerTexts(nodes)
}

// XPathExprTexts is XPathTexts for a precompiled expression
func (d *Document) XPathExprTexts(expr *xpath.Expr) []string {
	return innerTexts(htmlquery.QuerySelectorAll(d.root, expr))
}

func innerTexts(nodes []*html.Node) []string {
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, htmlquery.InnerText(n))
	}
	return texts
}

// Raw returns the markup the document was parsed from
func (d *Document) Raw() RawMarkup {
	return d.raw
}

// Root exposes the parsed tree
func (d *Document) Root() *html.Node {
	return d.root
}

// CollapseSpace trims s and folds every whitespace run (NBSP and ideographic space included) into one space
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
