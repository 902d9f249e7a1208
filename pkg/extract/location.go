package extract

import (
	"fmt"
	"regexp"

	"golang.org/x/text/width"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// regionPattern matches "(11)北京市": a numeric region code in parentheses, then the region name
var regionPattern = regexp.MustCompile(`\((\d+)\)([\x{4e00}-\x{9fa5}]+)`)

// LocationPolicy decides what location text is written for an institution's records
type LocationPolicy struct {
	mode string
}

// NewLocationPolicy validates mode (raw, region or strict)
func NewLocationPolicy(mode string) (LocationPolicy, error) {
	if !config.IsValidLocationMode(mode) {
		return LocationPolicy{}, fmt.Errorf("%w: unknown location mode '%s'", utils.ErrConfigValidation, mode)
	}
	return LocationPolicy{mode: mode}, nil
}

// Mode returns the policy name
func (p LocationPolicy) Mode() string {
	return p.mode
}

// Apply returns the location to record and whether the institution's records are kept.
// Only the strict policy ever drops.
func (p LocationPolicy) Apply(raw string) (string, bool) {
	trimmed := parse.CollapseSpace(raw)
	if p.mode == config.LocationModeRaw || p.mode == "" {
		return trimmed, true
	}

	region, _, ok := ReduceRegion(trimmed)
	switch {
	case ok:
		return region, true
	case p.mode == config.LocationModeStrict:
		return "", false
	default:
		return trimmed, true
	}
}

// ReduceRegion splits "(11)北京市" into ("北京市", "11", true).
// Full-width brackets and digits are folded first, so "（11）北京市" matches too.
func ReduceRegion(raw string) (region, code string, ok bool) {
	m := regionPattern.FindStringSubmatch(width.Fold.String(raw))
	if m == nil {
		return "", "", false
	}
	return m[2], m[1], true
}
