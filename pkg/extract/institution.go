package extract

import (
	"fmt"
	"html"
	"net/url"
	"regexp"

	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// InstitutionExtractor finds program links on an institution page.
// It scans raw markup rather than the parsed tree: the "查看" anchors are matched
// by their literal text, and that is stable across the catalog's layout revisions.
type InstitutionExtractor struct {
	base   *url.URL
	anchor *regexp.Regexp
}

// NewInstitutionExtractor compiles pattern; its first capture group must be the href
func NewInstitutionExtractor(base *url.URL, pattern string) (*InstitutionExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: program anchor pattern: %w", utils.ErrConfigValidation, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%w: program anchor pattern has no capture group", utils.ErrConfigValidation)
	}
	return &InstitutionExtractor{base: base, anchor: re}, nil
}

// Extract returns absolute program URLs in document order.
// Entity-escaped hrefs ("&amp;") are unescaped before resolution.
func (e *InstitutionExtractor) Extract(raw parse.RawMarkup) []string {
	matches := e.anchor.FindAllStringSubmatch(string(raw), -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		abs, err := parse.ResolveURL(e.base, html.UnescapeString(m[1]))
		if err != nil {
			continue
		}
		urls = append(urls, abs)
	}
	return urls
}
