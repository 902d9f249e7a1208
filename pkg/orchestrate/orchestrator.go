package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/crawler"
	"github.com/Sriram-PR/zsml-scraper/pkg/fetch"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/storage"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// QueryResult contains the result of crawling a single configured query
type QueryResult struct {
	QueryKey    string
	Success     bool
	Error       error
	Counters    models.RunCounters
	OutputFiles []string
	FailureLog  string
	Duration    time.Duration
}

// Orchestrator runs several configured queries in parallel.
// All queries share one HTTP client and one pacer per host, so the politeness
// window holds across queries hitting the same site.
type Orchestrator struct {
	appCfg    *config.AppConfig
	log       *logrus.Entry
	queryKeys []string

	// Shared resources
	fetcher fetch.PageFetcher
	pacers  *fetch.PacerRegistry

	results   []QueryResult
	resultsMu sync.Mutex
}

// NewOrchestrator creates an orchestrator for queryKeys. appCfg must already be validated.
func NewOrchestrator(appCfg *config.AppConfig, queryKeys []string, log *logrus.Entry) *Orchestrator {
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	fetcher := fetch.NewRetryingFetcher(fetch.NewFetcher(httpClient, appCfg, log), appCfg, log)

	return &Orchestrator{
		appCfg:    appCfg,
		log:       log.WithField("component", "orchestrator"),
		queryKeys: queryKeys,
		fetcher:   fetcher,
		pacers:    fetch.NewPacerRegistry(appCfg.MinDelay, appCfg.MaxDelay, log),
		results:   make([]QueryResult, 0, len(queryKeys)),
	}
}

// Run crawls all queries in parallel and waits for completion.
// Results are returned in query-key order. GlobalCrawlTimeout, when set, bounds the whole run.
func (o *Orchestrator) Run(ctx context.Context) []QueryResult {
	startTime := time.Now()
	if o.appCfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.appCfg.GlobalCrawlTimeout)
		defer cancel()
	}
	o.log.Infof("Starting crawl of %d quer(ies): %v", len(o.queryKeys), o.queryKeys)

	var wg sync.WaitGroup
	for _, queryKey := range o.queryKeys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			result := o.crawlQuery(ctx, key)
			o.resultsMu.Lock()
			o.results = append(o.results, result)
			o.resultsMu.Unlock()
		}(queryKey)
	}
	wg.Wait()

	sort.Slice(o.results, func(i, j int) bool { return o.results[i].QueryKey < o.results[j].QueryKey })
	o.logSummary(time.Since(startTime))
	return o.results
}

// crawlQuery runs one query end to end: ledger, engine, export, failure log.
// Records collected before a cancellation are still exported.
func (o *Orchestrator) crawlQuery(ctx context.Context, queryKey string) QueryResult {
	startTime := time.Now()
	result := QueryResult{QueryKey: queryKey}
	queryLog := o.log.WithField("query_key", queryKey)
	defer func() { result.Duration = time.Since(startTime) }()

	queryCfg, exists := o.appCfg.Queries[queryKey]
	if !exists {
		result.Error = fmt.Errorf("query '%s' not found in configuration", queryKey)
		queryLog.Error(result.Error)
		return result
	}
	warnings, err := queryCfg.Validate()
	for _, w := range warnings {
		queryLog.Warn(w)
	}
	if err != nil {
		result.Error = err
		queryLog.Errorf("Invalid query configuration: %v", err)
		return result
	}

	ledger, err := storage.OpenBadgerLedger(ctx, o.appCfg.StateDir, queryKey, o.log)
	if err != nil {
		result.Error = fmt.Errorf("failed to open ledger for '%s': %w", queryKey, err)
		queryLog.Error(result.Error)
		return result
	}
	defer ledger.Close()

	// Program pages are resolved against the base URL; that host carries the politeness budget
	pacer := o.pacers.ForURL(o.appCfg.BaseURL)
	engine, err := crawler.NewEngine(o.appCfg, queryKey, queryCfg, o.fetcher, pacer, ledger, o.log)
	if err != nil {
		result.Error = err
		queryLog.Errorf("Failed to build engine: %v", err)
		return result
	}

	summary, runErr := engine.Run(ctx, queryCfg.SearchQuery())
	if summary != nil {
		result.Counters = summary.Counters
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		result.Error = runErr
		queryLog.WithField("category", utils.CategorizeError(runErr)).Errorf("Crawl failed: %v", runErr)
		return result
	}

	output := crawler.NewOutputManager(o.log.WithField("query_key", queryKey), o.appCfg, queryKey, queryCfg)
	files, exportErr := output.Export(summary)
	result.OutputFiles = files

	if o.appCfg.WriteFailureLog {
		logPath := filepath.Join(o.appCfg.OutputDir, utils.SanitizeFilename(queryKey)+"_failures.log")
		n, err := ledger.WriteFailureLog(logPath)
		if err != nil {
			queryLog.Warnf("Failed to write failure log: %v", err)
		} else {
			result.FailureLog = logPath
			queryLog.Infof("Wrote %d failed URL(s) to %s", n, logPath)
		}
	}

	switch {
	case exportErr != nil:
		result.Error = exportErr
		queryLog.WithField("category", utils.CategorizeError(exportErr)).Errorf("Export failed: %v", exportErr)
	case runErr != nil:
		result.Error = runErr
		queryLog.Warnf("Crawl interrupted, exported %d partial record(s): %v", summary.Records.Len(), runErr)
	default:
		result.Success = true
	}
	return result
}

// logSummary logs a summary of all query results
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Crawl completed in %v", totalDuration.Round(time.Millisecond))
	o.log.Info("Query Results:")

	totalRecords := 0
	successCount := 0
	for _, r := range o.results {
		status := "SUCCESS"
		if r.Success {
			successCount++
		} else {
			status = "FAILED"
		}
		totalRecords += r.Counters.Records

		o.log.Infof("  %s: %s - %d record(s), %d failed program(s) in %v",
			r.QueryKey, status, r.Counters.Records, r.Counters.ProgramsFailed, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d quer(ies) (%d success, %d failed), %d record(s)",
		len(o.results), successCount, len(o.results)-successCount, totalRecords)
	o.log.Info("============================================")
}

// ValidateQueryKeys checks that all provided query keys exist in the config
func ValidateQueryKeys(appCfg *config.AppConfig, queryKeys []string) error {
	for _, key := range queryKeys {
		if _, exists := appCfg.Queries[key]; !exists {
			return fmt.Errorf("query '%s' not found. Available queries: %v", key, GetAllQueryKeys(appCfg))
		}
	}
	return nil
}

// GetAllQueryKeys returns all query keys from the config, sorted
func GetAllQueryKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Queries))
	for k := range appCfg.Queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
