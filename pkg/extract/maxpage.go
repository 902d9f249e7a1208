package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xpath"

	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// MaxPageExtractor reads the total page count from the pagination control
type MaxPageExtractor struct {
	expr   *xpath.Expr
	labels string
}

// NewMaxPageExtractor compiles the page-count XPath.
// labels is the CSS selector used when the XPath label is not a number.
func NewMaxPageExtractor(expr, labels string) (*MaxPageExtractor, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: max page xpath '%s': %w", utils.ErrConfigValidation, expr, err)
	}
	return &MaxPageExtractor{expr: compiled, labels: labels}, nil
}

// Extract returns the page count, never less than 1.
// A page without pagination has exactly one page.
func (e *MaxPageExtractor) Extract(doc *parse.Document) int {
	if texts := doc.XPathExprTexts(e.expr); len(texts) > 0 {
		if n, ok := pageNumber(texts[0]); ok {
			return n
		}
	}

	highest := 0
	if e.labels != "" {
		doc.Find(e.labels).Each(func(_ int, s *goquery.Selection) {
			if n, ok := pageNumber(s.Text()); ok && n > highest {
				highest = n
			}
		})
	}
	if highest > 0 {
		return highest
	}
	return 1
}

func pageNumber(label string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
