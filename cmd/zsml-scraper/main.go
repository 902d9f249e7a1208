package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/extract"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/zsml-scraper/pkg/report"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

const version = "0.4.0"

// adhocQueryKey names the query assembled from crawl flags
const adhocQueryKey = "adhoc"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-queries":
		runListQueries(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "version":
		fmt.Printf("zsml-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `zsml-scraper - Graduate admission catalog crawler

Usage:
  zsml-scraper <command> [options]

Commands:
  crawl         Crawl one or more configured queries into CSV datasets
  validate      Validate configuration file
  list-queries  List available query keys
  report        Count records per region in an exported dataset
  version       Show version info

Run 'zsml-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file. An empty path yields an empty config
// that Validate fills with defaults.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return &config.AppConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// crawlOptions carries the crawl subcommand flags
type crawlOptions struct {
	configFile   string
	queryKeys    []string
	allQueries   bool
	adhoc        config.QueryConfig
	locationMode string
	outputDir    string
	logLevel     string
	pprofAddr    string
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	opts := crawlOptions{}
	fs.StringVar(&opts.configFile, "config", "config.yaml", "Path to config file (empty for built-in defaults)")
	queryKey := fs.String("query", "", "Query key from config (single query)")
	queries := fs.String("queries", "", "Comma-separated query keys, crawled in parallel")
	fs.BoolVar(&opts.allQueries, "all-queries", false, "Crawl all configured queries in parallel")
	fs.StringVar(&opts.adhoc.RegionCode, "region", "", "Ad-hoc query: region code (ssdm)")
	fs.StringVar(&opts.adhoc.InstitutionName, "institution", "", "Ad-hoc query: institution name (dwmc)")
	fs.StringVar(&opts.adhoc.CategoryCode, "category", "", "Ad-hoc query: discipline category code (mldm)")
	fs.StringVar(&opts.adhoc.DisciplineCode, "discipline", "", "Ad-hoc query: first-level discipline code (yjxkdm)")
	fs.StringVar(&opts.adhoc.ProgramName, "program", "", "Ad-hoc query: program name (zymc)")
	fs.StringVar(&opts.adhoc.StudyMode, "study-mode", "", "Ad-hoc query: study mode (xxfs)")
	fs.StringVar(&opts.locationMode, "location-mode", "", "Override location_mode (raw, region, strict)")
	fs.StringVar(&opts.outputDir, "output-dir", "", "Override output_dir")
	fs.StringVar(&opts.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	fs.StringVar(&opts.pprofAddr, "pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zsml-scraper crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper crawl -query cs_beijing\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper crawl -queries cs_beijing,math_shanghai\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper crawl --all-queries\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper crawl -config '' -category 07 -discipline 0711\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	switch {
	case opts.allQueries:
	case *queries != "":
		opts.queryKeys = splitKeys(*queries)
	case *queryKey != "":
		opts.queryKeys = []string{*queryKey}
	case opts.adhoc.SearchQuery().HasSelector():
		opts.queryKeys = []string{adhocQueryKey}
	default:
		fmt.Fprintln(os.Stderr, "Error: one of -query, -queries, --all-queries or an ad-hoc query field is required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(executeCrawl(opts))
}

func splitKeys(raw string) []string {
	var keys []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			keys = append(keys, s)
		}
	}
	return keys
}

// executeCrawl runs the selected queries and returns the process exit code
func executeCrawl(opts crawlOptions) int {
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)

	log := setupLogger(opts.logLevel)
	appCfg, err := prepareCrawlConfig(opts, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	logAppConfig(appCfg, log)

	queryKeys := opts.queryKeys
	if opts.allQueries {
		queryKeys = orchestrate.GetAllQueryKeys(appCfg)
		log.Infof("All queries mode: found %d queries", len(queryKeys))
	}
	if len(queryKeys) == 0 {
		log.Error("No queries to crawl")
		return 1
	}
	if err := orchestrate.ValidateQueryKeys(appCfg, queryKeys); err != nil {
		log.Errorf("Invalid query keys: %v", err)
		return 1
	}

	startPprof(opts.pprofAddr, log)

	// ===========================================================
	// == Setup Context & Signal Handling ==
	// ===========================================================
	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown, partial results will be exported...", sig)
		cancelCrawl()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// ===========================================================
	// == Run ==
	// ===========================================================
	orch := orchestrate.NewOrchestrator(appCfg, queryKeys, log.WithField("component", "crawl"))
	results := orch.Run(crawlCtx)

	exitCode := 0
	for _, r := range results {
		switch {
		case r.Success:
		case errors.Is(r.Error, context.Canceled):
			log.Warnf("[%s] Crawl cancelled, partial dataset kept: %v", r.QueryKey, r.OutputFiles)
		case errors.Is(r.Error, context.DeadlineExceeded):
			log.Errorf("[%s] Crawl timed out (global timeout), partial dataset kept: %v", r.QueryKey, r.OutputFiles)
			exitCode = 1
		default:
			log.WithField("category", utils.CategorizeError(r.Error)).Errorf("[%s] Crawl finished with error: %v", r.QueryKey, r.Error)
			exitCode = 1
		}
	}
	return exitCode
}

// prepareCrawlConfig loads the config, registers the ad-hoc query and applies flag overrides
func prepareCrawlConfig(opts crawlOptions, log *logrus.Logger) (*config.AppConfig, error) {
	log.Infof("Loading configuration from %q", opts.configFile)
	appCfg, err := loadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}

	if opts.adhoc.SearchQuery().HasSelector() {
		if appCfg.Queries == nil {
			appCfg.Queries = make(map[string]config.QueryConfig)
		}
		if _, exists := appCfg.Queries[adhocQueryKey]; exists {
			log.Warnf("Ad-hoc query flags replace configured query '%s'", adhocQueryKey)
		}
		appCfg.Queries[adhocQueryKey] = opts.adhoc
	}
	if opts.locationMode != "" {
		appCfg.LocationMode = opts.locationMode
	}
	if opts.outputDir != "" {
		appCfg.OutputDir = opts.outputDir
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	return appCfg, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	queryKey := fs.String("query", "", "Query key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zsml-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, *queryKey, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, queryKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := orchestrate.GetAllQueryKeys(appCfg)
	if queryKey != "" {
		if _, ok := appCfg.Queries[queryKey]; !ok {
			fmt.Fprintf(stderr, "Error: query '%s' not found in config\n", queryKey)
			return 1
		}
		keys = []string{queryKey}
	}

	hasError := false
	for _, key := range keys {
		queryCfg := appCfg.Queries[key]
		queryWarnings, err := queryCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range queryWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListQueries handles the list-queries subcommand
func runListQueries(args []string) {
	fs := flag.NewFlagSet("list-queries", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zsml-scraper list-queries [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListQueries(*configFile, os.Stdout, os.Stderr))
}

// doListQueries lists queries and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListQueries(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Queries in %s:\n\n", configPath)
	for _, key := range orchestrate.GetAllQueryKeys(appCfg) {
		q := appCfg.Queries[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		sq := q.SearchQuery()
		for _, f := range models.QueryFields {
			if v := sq.Get(f); v != "" {
				fmt.Fprintf(stdout, "    %s: %s\n", f, v)
			}
		}
		fmt.Fprintf(stdout, "    Output: %s\n", config.GetEffectiveOutputFilename(key, q))
		fmt.Fprintln(stdout)
	}
	return 0
}

// runReport handles the report subcommand
func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	input := fs.String("input", "", "Dataset CSV written by crawl")
	configFile := fs.String("config", "config.yaml", "Path to config file, used with -query to locate the dataset")
	queryKey := fs.String("query", "", "Query key whose dataset to report on (instead of -input)")
	chart := fs.String("chart", "", "Write an HTML bar chart to this path")
	locationMode := fs.String("location-mode", config.LocationModeStrict, "Location policy (raw, region, strict)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zsml-scraper report [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper report -input result.csv -chart regions.html\n")
		fmt.Fprintf(os.Stderr, "  zsml-scraper report -query cs_beijing\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := *input
	if path == "" {
		if *queryKey == "" {
			fmt.Fprintln(os.Stderr, "Error: one of -input or -query is required")
			fs.Usage()
			os.Exit(1)
		}
		resolved, err := datasetPath(*configFile, *queryKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		path = resolved
	}

	os.Exit(doReport(path, *chart, *locationMode, os.Stdout, os.Stderr))
}

// datasetPath resolves where crawl wrote the dataset of queryKey
func datasetPath(configPath, queryKey string) (string, error) {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	if _, err := appCfg.Validate(); err != nil {
		return "", err
	}
	q, ok := appCfg.Queries[queryKey]
	if !ok {
		return "", fmt.Errorf("query '%s' not found in config", queryKey)
	}
	return filepath.Join(appCfg.OutputDir, config.GetEffectiveOutputFilename(queryKey, q)), nil
}

// doReport prints the region breakdown of a dataset and optionally renders the chart.
// Returns exit code (0 = success, 1 = error).
func doReport(inputPath, chartPath, locationMode string, stdout, stderr io.Writer) int {
	policy, err := extract.NewLocationPolicy(locationMode)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rs, err := report.LoadCSV(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	summary := report.CountByRegion(rs.Records(), policy)
	report.PrintTable(stdout, summary)

	if chartPath != "" {
		f, err := os.Create(chartPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: create chart file: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := report.RenderBarChart(f, summary); err != nil {
			fmt.Fprintf(stderr, "Error: render chart: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Chart written to %s\n", chartPath)
	}
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Infof("Setting log level to: %s", level.String())
	}

	return log
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: SearchURL:%s, BaseURL:%s, Workers:%d, LocationMode:%s",
		appCfg.SearchURL, appCfg.BaseURL, appCfg.NumWorkers, appCfg.LocationMode)
	log.Infof("Global Config: Delay:[%v, %v], StateDir:%s, OutputDir:%s",
		appCfg.MinDelay, appCfg.MaxDelay, appCfg.StateDir, appCfg.OutputDir)
	log.Infof("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Global Config Timeouts: Fetch:%v, GlobalCrawl:%v, MaxBody:%d bytes",
		appCfg.FetchTimeout, appCfg.GlobalCrawlTimeout, appCfg.MaxBodyBytes)
	log.Infof("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Global Config Outputs: JSONL:%t, MetadataYAML:%t ('%s'), FailureLog:%t",
		appCfg.EnableJSONLOutput, appCfg.EnableMetadataYAML, appCfg.MetadataYAMLFilename, appCfg.WriteFailureLog)
}
