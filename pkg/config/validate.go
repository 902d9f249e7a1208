package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// Default selector rules for the live catalog markup
const (
	DefaultResultRows       = "table.ch-table tbody tr"
	DefaultResultLink       = "a[href]"
	DefaultResultLocation   = "td:nth-child(2)"
	DefaultMaxPageXPath     = `//ul[@class="ch-page"]/li[last()-2]/a/text()`
	DefaultPaginationLabels = "ul.ch-page li a"
	DefaultProgramAnchor    = `<a\s+href="([^"]*)"[^>]*>\s*查看\s*</a>`
	DefaultSummary          = "td.zsml-summary"
	DefaultRemarks          = "span.zsml-bz"
	DefaultExamScopeCells   = "tbody.zsml-res-items td"
)

// DefaultUserAgents is the identity pool used when the config does not supply one
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// IsValidLocationMode reports whether mode names a known location policy
func IsValidLocationMode(mode string) bool {
	switch mode {
	case LocationModeRaw, LocationModeRegion, LocationModeStrict:
		return true
	}
	return false
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Endpoints
	if c.SearchURL == "" {
		c.SearchURL = DefaultSearchURL
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	for name, raw := range map[string]string{"search_url": c.SearchURL, "base_url": c.BaseURL} {
		if _, perr := url.ParseRequestURI(raw); perr != nil {
			return warnings, fmt.Errorf("%w: %s '%s' is not an absolute URL: %v", utils.ErrConfigValidation, name, raw, perr)
		}
	}

	// Identity pool
	if len(c.UserAgents) == 0 {
		c.UserAgents = append([]string(nil), DefaultUserAgents...)
	}

	// Politeness window
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		warnings = append(warnings, "min_delay/max_delay cannot be negative, using defaults 2s/5s")
		c.MinDelay, c.MaxDelay = 0, 0
	}
	if c.MinDelay == 0 && c.MaxDelay == 0 {
		c.MinDelay = 2 * time.Second
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxDelay < c.MinDelay {
		warnings = append(warnings, fmt.Sprintf(
			"max_delay (%v) < min_delay (%v), using min_delay for both", c.MaxDelay, c.MinDelay))
		c.MaxDelay = c.MinDelay
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 1 (sequential)")
		c.NumWorkers = 1
	}

	// MaxRetries; zero keeps the single-attempt behaviour
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// Timeouts
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 16 << 20
	}

	// Directories
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to '.'")
		c.OutputDir = "."
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}

	// Location policy
	if c.LocationMode == "" {
		c.LocationMode = LocationModeRaw
	}
	if !IsValidLocationMode(c.LocationMode) {
		return warnings, fmt.Errorf("%w: unknown location_mode '%s' (want raw, region or strict)", utils.ErrConfigValidation, c.LocationMode)
	}

	if c.EnableMetadataYAML && c.MetadataYAMLFilename == "" {
		c.MetadataYAMLFilename = "metadata.yaml"
	}

	c.validateSelectors()
	if _, rerr := regexp.Compile(c.Selectors.ProgramAnchor); rerr != nil {
		return warnings, fmt.Errorf("%w: selectors.program_anchor is not a valid regex: %v", utils.ErrConfigValidation, rerr)
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateSelectors fills in the default extraction rules.
func (c *AppConfig) validateSelectors() {
	s := &c.Selectors
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&s.ResultRows, DefaultResultRows)
	setDefault(&s.ResultLink, DefaultResultLink)
	setDefault(&s.ResultLocation, DefaultResultLocation)
	setDefault(&s.MaxPageXPath, DefaultMaxPageXPath)
	setDefault(&s.PaginationLabels, DefaultPaginationLabels)
	setDefault(&s.ProgramAnchor, DefaultProgramAnchor)
	setDefault(&s.Summary, DefaultSummary)
	setDefault(&s.Remarks, DefaultRemarks)
	setDefault(&s.ExamScopeCells, DefaultExamScopeCells)
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 20
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks a QueryConfig.
// The search endpoint needs at least one narrowing field; a query without one is fatal.
func (q *QueryConfig) Validate() (warnings []string, err error) {
	if !q.SearchQuery().HasSelector() {
		return nil, fmt.Errorf("%w: query needs one of region_code, institution_name, category_code, discipline_code or program_name",
			utils.ErrConfigValidation)
	}
	if q.LocationMode != "" && !IsValidLocationMode(q.LocationMode) {
		return nil, fmt.Errorf("%w: unknown location_mode '%s'", utils.ErrConfigValidation, q.LocationMode)
	}
	if q.DisciplineCode == "" {
		warnings = append(warnings, "discipline_code is empty; the catalog may return a very large result set")
	}
	if q.OutputFilename != "" && utils.SanitizeFilename(q.OutputFilename) != q.OutputFilename {
		clean := utils.SanitizeFilename(q.OutputFilename)
		warnings = append(warnings, fmt.Sprintf("output_filename '%s' sanitized to '%s'", q.OutputFilename, clean))
		q.OutputFilename = clean
	}
	return warnings, nil
}
