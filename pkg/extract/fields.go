package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
)

// summaryCellCount is the number of summary cells on a program page:
// institution, exam type, department, program, study mode, research direction, advisor, headcount
var summaryCellCount = models.ExtractedFieldCount - 2

// FieldExtractor pulls the record fields from a program detail page
type FieldExtractor struct {
	summary   string
	remarks   string
	examScope string
}

// NewFieldExtractor creates the extractor from the selector rules
func NewFieldExtractor(sel config.SelectorConfig) *FieldExtractor {
	return &FieldExtractor{
		summary:   sel.Summary,
		remarks:   sel.Remarks,
		examScope: sel.ExamScopeCells,
	}
}

// Extract always returns models.ExtractedFieldCount strings: the summary cells,
// then the flattened remarks, then the flattened exam scope. Missing cells are "".
func (e *FieldExtractor) Extract(doc *parse.Document) []string {
	fields := make([]string, 0, models.ExtractedFieldCount)

	cells := doc.Find(e.summary)
	for i := 0; i < summaryCellCount; i++ {
		text := ""
		if i < cells.Length() {
			text = parse.CollapseSpace(cells.Eq(i).Text())
		}
		fields = append(fields, text)
	}

	var remarks []string
	doc.Find(e.remarks).Each(func(_ int, s *goquery.Selection) {
		if text := parse.CollapseSpace(s.Text()); text != "" {
			remarks = append(remarks, text)
		}
	})
	fields = append(fields, strings.Join(remarks, " "))

	// Only the cells' own text nodes; nested markup holds hints, not subjects
	var scope []string
	doc.Find(e.examScope).Each(func(_ int, cell *goquery.Selection) {
		cell.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) != "#text" {
				return
			}
			if text := parse.CollapseSpace(c.Text()); text != "" {
				scope = append(scope, text)
			}
		})
	})
	fields = append(fields, strings.Join(scope, " "))

	return fields
}
