package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
)

// ResultPageExtractor pulls institution links from a results page.
// Each link is paired with the location cell of its own row, so a row without a
// location never shifts the pairing of later rows.
type ResultPageExtractor struct {
	base     *url.URL
	rows     string
	link     string
	location string
}

// NewResultPageExtractor creates the extractor from the selector rules
func NewResultPageExtractor(base *url.URL, sel config.SelectorConfig) *ResultPageExtractor {
	return &ResultPageExtractor{
		base:     base,
		rows:     sel.ResultRows,
		link:     sel.ResultLink,
		location: sel.ResultLocation,
	}
}

// Extract returns one LinkRef per table row that carries a link, in document order.
// LinkRef.Context holds the row's location text.
func (e *ResultPageExtractor) Extract(doc *parse.Document) []models.LinkRef {
	var refs []models.LinkRef
	doc.Find(e.rows).Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find(e.link).First().Attr("href")
		if !ok {
			return
		}
		abs, err := parse.ResolveURL(e.base, href)
		if err != nil {
			return
		}
		refs = append(refs, models.LinkRef{
			URL:     abs,
			Context: parse.CollapseSpace(row.Find(e.location).First().Text()),
		})
	})
	return refs
}
