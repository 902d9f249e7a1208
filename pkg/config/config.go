package config

import (
	"time"

	"github.com/Sriram-PR/zsml-scraper/pkg/models"
)

// Location policies applied to the text captured at the institution level
const (
	LocationModeRaw    = "raw"    // Keep the scraped text as is (trimmed)
	LocationModeRegion = "region" // "(11)北京市" -> "北京市", unmatched text kept
	LocationModeStrict = "strict" // Like region, but institutions with unmatched text are dropped
)

const (
	DefaultSearchURL = "https://yz.chsi.com.cn/zsml/queryAction.do"
	DefaultBaseURL   = "https://yz.chsi.com.cn"
)

// QueryConfig holds one named search over the admissions catalog
type QueryConfig struct {
	RegionCode        string `yaml:"region_code,omitempty"`      // ssdm
	InstitutionName   string `yaml:"institution_name,omitempty"` // dwmc
	CategoryCode      string `yaml:"category_code,omitempty"`    // mldm
	CategoryName      string `yaml:"category_name,omitempty"`    // mlmc
	DisciplineCode    string `yaml:"discipline_code,omitempty"`  // yjxkdm
	ProgramName       string `yaml:"program_name,omitempty"`     // zymc
	StudyMode         string `yaml:"study_mode,omitempty"`       // xxfs
	LocationMode      string `yaml:"location_mode,omitempty"`    // Overrides the global policy
	OutputFilename    string `yaml:"output_filename,omitempty"`
	EnableJSONLOutput *bool  `yaml:"enable_jsonl_output,omitempty"`
}

// SearchQuery converts the config into the immutable query the engine pages through
func (q QueryConfig) SearchQuery() models.SearchQuery {
	return models.NewQueryBuilder().
		RegionCode(q.RegionCode).
		InstitutionName(q.InstitutionName).
		CategoryCode(q.CategoryCode).
		CategoryName(q.CategoryName).
		DisciplineCode(q.DisciplineCode).
		ProgramName(q.ProgramName).
		StudyMode(q.StudyMode).
		Build()
}

// SelectorConfig holds the structural rules used by the extractors.
// Defaults match the markup of the live catalog.
type SelectorConfig struct {
	ResultRows       string `yaml:"result_rows,omitempty"`       // CSS, one match per institution row
	ResultLink       string `yaml:"result_link,omitempty"`       // CSS within a row
	ResultLocation   string `yaml:"result_location,omitempty"`   // CSS within a row
	MaxPageXPath     string `yaml:"max_page_xpath,omitempty"`    // XPath yielding the page-count label
	PaginationLabels string `yaml:"pagination_labels,omitempty"` // CSS, fallback when the XPath label is not numeric
	ProgramAnchor    string `yaml:"program_anchor,omitempty"`    // Regex over raw institution markup, group 1 = href
	Summary          string `yaml:"summary,omitempty"`           // CSS, one match per summary cell
	Remarks          string `yaml:"remarks,omitempty"`           // CSS
	ExamScopeCells   string `yaml:"exam_scope_cells,omitempty"`  // CSS, direct text of each cell is kept
}

// AppConfig holds the global application configuration
type AppConfig struct {
	SearchURL            string                 `yaml:"search_url"`
	BaseURL              string                 `yaml:"base_url"`
	UserAgents           []string               `yaml:"user_agents,omitempty"`
	MinDelay             time.Duration          `yaml:"min_delay,omitempty"` // Politeness window between program fetches
	MaxDelay             time.Duration          `yaml:"max_delay,omitempty"`
	NumWorkers           int                    `yaml:"num_workers"`
	MaxRetries           int                    `yaml:"max_retries,omitempty"`
	InitialRetryDelay    time.Duration          `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay        time.Duration          `yaml:"max_retry_delay,omitempty"`
	FetchTimeout         time.Duration          `yaml:"fetch_timeout,omitempty"`
	MaxBodyBytes         int64                  `yaml:"max_body_bytes,omitempty"`
	GlobalCrawlTimeout   time.Duration          `yaml:"global_crawl_timeout,omitempty"`
	OutputDir            string                 `yaml:"output_dir"`
	StateDir             string                 `yaml:"state_dir"`
	LocationMode         string                 `yaml:"location_mode,omitempty"`
	WriteFailureLog      bool                   `yaml:"write_failure_log,omitempty"`
	EnableJSONLOutput    bool                   `yaml:"enable_jsonl_output,omitempty"`
	EnableMetadataYAML   bool                   `yaml:"enable_metadata_yaml,omitempty"`
	MetadataYAMLFilename string                 `yaml:"metadata_yaml_filename,omitempty"`
	Selectors            SelectorConfig         `yaml:"selectors,omitempty"`
	HTTPClientSettings   HTTPClientConfig       `yaml:"http_client_settings,omitempty"`
	Queries              map[string]QueryConfig `yaml:"queries"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetEffectiveLocationMode determines the location policy for a query
func GetEffectiveLocationMode(queryCfg QueryConfig, appCfg AppConfig) string {
	if queryCfg.LocationMode != "" {
		return queryCfg.LocationMode
	}
	if appCfg.LocationMode != "" {
		return appCfg.LocationMode
	}
	return LocationModeRaw
}

// GetEffectiveOutputFilename determines the dataset filename for a query.
// Query config (if non-empty) overrides the default "<query_key>.csv".
func GetEffectiveOutputFilename(queryKey string, queryCfg QueryConfig) string {
	if queryCfg.OutputFilename != "" {
		return queryCfg.OutputFilename
	}
	return queryKey + ".csv"
}

// GetEffectiveEnableJSONLOutput determines if a JSONL copy of the dataset is written
func GetEffectiveEnableJSONLOutput(queryCfg QueryConfig, appCfg AppConfig) bool {
	if queryCfg.EnableJSONLOutput != nil {
		return *queryCfg.EnableJSONLOutput
	}
	return appCfg.EnableJSONLOutput
}

// GetEffectiveMetadataYAMLFilename determines the filename for the run metadata
func GetEffectiveMetadataYAMLFilename(queryKey string, appCfg AppConfig) string {
	if appCfg.MetadataYAMLFilename != "" {
		return queryKey + "_" + appCfg.MetadataYAMLFilename
	}
	return queryKey + "_metadata.yaml"
}
