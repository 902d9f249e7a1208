package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/extract"
	"github.com/Sriram-PR/zsml-scraper/pkg/fetch"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
	"github.com/Sriram-PR/zsml-scraper/pkg/storage"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// RunSummary is what one crawl of a query produced
type RunSummary struct {
	RunID        string
	QueryKey     string
	Query        models.SearchQuery
	LocationMode string
	MaxPage      int
	StartTime    time.Time
	EndTime      time.Time
	Counters     models.RunCounters
	Records      *models.ResultSet
}

// Engine walks results pages, institutions and programs for one query.
// Records are collected in traversal order: page, then institution, then program.
type Engine struct {
	log        *logrus.Entry
	appCfg     *config.AppConfig
	queryKey   string
	fetcher    fetch.PageFetcher
	pacer      fetch.Pacer
	ledger     storage.Ledger
	extractors *extract.Set
	location   extract.LocationPolicy

	countersMu sync.Mutex
	counters   models.RunCounters
}

// NewEngine wires an engine for queryKey.
// pacer governs program fetches; pass fetch.NoopPacer{} to disable politeness delays.
func NewEngine(
	appCfg *config.AppConfig,
	queryKey string,
	queryCfg config.QueryConfig,
	fetcher fetch.PageFetcher,
	pacer fetch.Pacer,
	ledger storage.Ledger,
	baseLogger *logrus.Entry,
) (*Engine, error) {
	extractors, err := extract.NewSet(appCfg)
	if err != nil {
		return nil, fmt.Errorf("building extractors for query '%s': %w", queryKey, err)
	}
	location, err := extract.NewLocationPolicy(config.GetEffectiveLocationMode(queryCfg, *appCfg))
	if err != nil {
		return nil, fmt.Errorf("query '%s': %w", queryKey, err)
	}
	if pacer == nil {
		pacer = fetch.NoopPacer{}
	}

	return &Engine{
		log:        baseLogger.WithField("query_key", queryKey),
		appCfg:     appCfg,
		queryKey:   queryKey,
		fetcher:    fetcher,
		pacer:      pacer,
		ledger:     ledger,
		extractors: extractors,
		location:   location,
	}, nil
}

// Run crawls every results page of query.
// The only fatal condition is an unusable first page (ErrFirstPage). Failures below
// that are logged, recorded in the ledger and skipped. When ctx is cancelled the
// records collected so far are returned together with the context error.
func (e *Engine) Run(ctx context.Context, query models.SearchQuery) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:        uuid.NewString(),
		QueryKey:     e.queryKey,
		Query:        query,
		LocationMode: e.location.Mode(),
		StartTime:    time.Now(),
		Records:      models.NewResultSet(),
	}
	e.countersMu.Lock()
	e.counters = models.RunCounters{}
	e.countersMu.Unlock()

	runLog := e.log.WithField("run_id", summary.RunID)
	runLog.WithFields(logrus.Fields{
		"location_mode": summary.LocationMode,
		"workers":       e.appCfg.NumWorkers,
	}).Info("Crawl starting")

	defer func() {
		summary.EndTime = time.Now()
		summary.Counters = e.snapshotCounters()
	}()

	if !query.HasSelector() {
		return summary, fmt.Errorf("%w: query '%s' has no narrowing field", utils.ErrInvalidRequest, e.queryKey)
	}

	// Init: page 1 with an empty page field decides the page count
	firstDoc, err := e.fetchResultsPage(ctx, query.WithPage(0))
	if err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		runLog.WithField("category", utils.CategorizeError(err)).Errorf("First results page unavailable, aborting: %v", err)
		return summary, fmt.Errorf("%w: %w", utils.ErrFirstPage, err)
	}
	summary.MaxPage = e.extractors.MaxPage.Extract(firstDoc)
	runLog.Infof("Found %d results page(s)", summary.MaxPage)

	for page := 1; page <= summary.MaxPage; page++ {
		if ctx.Err() != nil {
			runLog.Warnf("Crawl interrupted before page %d: %v", page, ctx.Err())
			return summary, ctx.Err()
		}
		records := e.crawlPage(ctx, query.WithPage(page), page, summary.MaxPage)
		summary.Records.Append(records...)
		e.inc(func(c *models.RunCounters) { c.Records += len(records) })
	}

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	final := e.snapshotCounters()
	runLog.WithFields(logrus.Fields{
		"pages":                final.PagesTotal,
		"pages_failed":         final.PagesFailed,
		"institutions":         final.InstitutionsSeen,
		"institutions_failed":  final.InstitutionsFailed,
		"institutions_dropped": final.InstitutionsDropped,
		"programs":             final.ProgramsSeen,
		"programs_failed":      final.ProgramsFailed,
		"programs_duplicate":   final.ProgramsDuplicate,
		"records":              summary.Records.Len(),
		"duration":             time.Since(summary.StartTime).Round(time.Millisecond),
	}).Info("Crawl finished")
	return summary, nil
}

// crawlPage fetches one results page and its institutions.
// Institutions run on up to NumWorkers goroutines; each writes into its own slot
// and the slots are concatenated in row order.
func (e *Engine) crawlPage(ctx context.Context, query models.SearchQuery, page, maxPage int) []models.Record {
	pageLog := e.log.WithField("page", page)
	pageLog.Infof("Crawling results page %d/%d", page, maxPage)
	e.inc(func(c *models.RunCounters) { c.PagesTotal++ })

	key := e.pageKey(page)
	doc, err := e.fetchResultsPage(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			e.inc(func(c *models.RunCounters) { c.PagesFailed++ })
			e.recordFailure(pageLog, key, models.LevelResultsPage, page, err, "Results page failed, skipping")
		}
		return nil
	}
	e.recordSuccess(pageLog, key, models.LevelResultsPage, page)

	refs := e.extractors.Results.Extract(doc)
	pageLog.Debugf("Found %d institution(s)", len(refs))

	slots := make([][]models.Record, len(refs))
	workers := e.appCfg.NumWorkers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, ref := range refs {
		g.Go(func() error {
			slots[i] = e.crawlInstitution(ctx, page, ref)
			return nil
		})
	}
	g.Wait() // Workers never return errors; a failed institution is an empty slot

	var records []models.Record
	for _, slot := range slots {
		records = append(records, slot...)
	}
	return records
}

// crawlInstitution fetches an institution page and every program it lists
func (e *Engine) crawlInstitution(ctx context.Context, page int, ref models.LinkRef) []models.Record {
	instLog := e.log.WithFields(logrus.Fields{"page": page, "institution_url": ref.URL})
	e.inc(func(c *models.RunCounters) { c.InstitutionsSeen++ })
	key := normalizeKey(ref.URL)

	location, keep := e.location.Apply(ref.Context)
	if !keep {
		e.inc(func(c *models.RunCounters) { c.InstitutionsDropped++ })
		instLog.WithField("location", ref.Context).Warn("Location does not match the region pattern, dropping institution")
		e.record(instLog, key, &models.LedgerEntry{Level: models.LevelInstitution, Status: models.LinkStatusDropped, Page: page})
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	content, err := e.fetcher.Fetch(ctx, fetch.Get(ref.URL))
	if err != nil {
		if ctx.Err() == nil {
			e.inc(func(c *models.RunCounters) { c.InstitutionsFailed++ })
			e.recordFailure(instLog, key, models.LevelInstitution, page, err, "Institution page failed, skipping")
		}
		return nil
	}
	e.recordSuccess(instLog, key, models.LevelInstitution, page)

	programURLs := e.extractors.Institution.Extract(parse.RawMarkup(content))
	instLog.Debugf("Found %d program(s)", len(programURLs))

	var records []models.Record
	for _, programURL := range programURLs {
		if ctx.Err() != nil {
			break
		}
		if rec, ok := e.crawlProgram(ctx, page, programURL, location); ok {
			records = append(records, rec)
		}
	}
	return records
}

// crawlProgram fetches one program page and builds its record
func (e *Engine) crawlProgram(ctx context.Context, page int, programURL, location string) (models.Record, bool) {
	progLog := e.log.WithFields(logrus.Fields{"page": page, "url": programURL})
	key := normalizeKey(programURL)

	added, err := e.ledger.Claim(key, models.LevelProgram, page)
	if err != nil {
		progLog.WithField("category", utils.CategorizeError(err)).Warnf("Ledger claim failed, fetching anyway: %v", err)
		added = true
	}
	if !added {
		e.inc(func(c *models.RunCounters) { c.ProgramsDuplicate++ })
		progLog.Debug("Program already collected in this run, skipping")
		return models.Record{}, false
	}
	e.inc(func(c *models.RunCounters) { c.ProgramsSeen++ })

	if err := e.pacer.AwaitTurn(ctx); err != nil {
		return models.Record{}, false
	}
	progLog.Info("Processing program")

	content, err := e.fetcher.Fetch(ctx, fetch.Get(programURL))
	if err != nil {
		if ctx.Err() == nil {
			e.inc(func(c *models.RunCounters) { c.ProgramsFailed++ })
			e.recordFailure(progLog, key, models.LevelProgram, page, err, "Program page failed, skipping")
		}
		return models.Record{}, false
	}
	doc, err := parse.Parse(content)
	if err != nil {
		e.inc(func(c *models.RunCounters) { c.ProgramsFailed++ })
		e.recordFailure(progLog, key, models.LevelProgram, page, err, "Program page unparseable, skipping")
		return models.Record{}, false
	}

	e.recordSuccess(progLog, key, models.LevelProgram, page)
	return models.NewRecord(location, e.extractors.Fields.Extract(doc)), true
}

// fetchResultsPage POSTs the search form and parses the response
func (e *Engine) fetchResultsPage(ctx context.Context, query models.SearchQuery) (*parse.Document, error) {
	content, err := e.fetcher.Fetch(ctx, fetch.Post(e.appCfg.SearchURL, query.Form()))
	if err != nil {
		return nil, err
	}
	return parse.Parse(content)
}

// pageKey identifies a results page in the ledger; every page shares the search URL
func (e *Engine) pageKey(page int) string {
	u, err := url.Parse(e.appCfg.SearchURL)
	if err != nil {
		return e.appCfg.SearchURL + "#" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set(string(models.FieldPageNo), strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return parse.NormalizeURL(u)
}

func (e *Engine) recordSuccess(taskLog *logrus.Entry, key string, level models.Level, page int) {
	e.record(taskLog, key, &models.LedgerEntry{Level: level, Status: models.LinkStatusSuccess, Page: page})
}

func (e *Engine) recordFailure(taskLog *logrus.Entry, key string, level models.Level, page int, err error, msg string) {
	category := utils.CategorizeError(err)
	taskLog.WithField("category", category).Warnf("%s: %v", msg, err)
	e.record(taskLog, key, &models.LedgerEntry{Level: level, Status: models.LinkStatusFailure, ErrorType: category, Page: page})
}

func (e *Engine) record(taskLog *logrus.Entry, key string, entry *models.LedgerEntry) {
	if err := e.ledger.Record(key, entry); err != nil {
		taskLog.WithField("category", utils.CategorizeError(err)).Errorf("Ledger update failed: %v", err)
	}
}

func (e *Engine) inc(update func(c *models.RunCounters)) {
	e.countersMu.Lock()
	update(&e.counters)
	e.countersMu.Unlock()
}

func (e *Engine) snapshotCounters() models.RunCounters {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	return e.counters
}

// normalizeKey falls back to the raw URL when it cannot be normalized
func normalizeKey(rawURL string) string {
	if norm, _, err := parse.ParseAndNormalize(rawURL); err == nil {
		return norm
	}
	return rawURL
}
