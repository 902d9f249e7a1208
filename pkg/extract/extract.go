// Package extract turns parsed catalog pages into links and record fields.
// Extractors never fail on missing markup: an absent block yields an empty result.
package extract

import (
	"fmt"
	"net/url"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// Set bundles the extractors configured for one crawl
type Set struct {
	Results     *ResultPageExtractor
	Institution *InstitutionExtractor
	MaxPage     *MaxPageExtractor
	Fields      *FieldExtractor
}

// NewSet builds every extractor from the validated application config.
// Malformed selector rules are reported as ErrConfigValidation.
func NewSet(cfg *config.AppConfig) (*Set, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("%w: base_url '%s' is not absolute", utils.ErrConfigValidation, cfg.BaseURL)
	}

	inst, err := NewInstitutionExtractor(base, cfg.Selectors.ProgramAnchor)
	if err != nil {
		return nil, err
	}
	maxPage, err := NewMaxPageExtractor(cfg.Selectors.MaxPageXPath, cfg.Selectors.PaginationLabels)
	if err != nil {
		return nil, err
	}

	return &Set{
		Results:     NewResultPageExtractor(base, cfg.Selectors),
		Institution: inst,
		MaxPage:     maxPage,
		Fields:      NewFieldExtractor(cfg.Selectors),
	}, nil
}
