package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/fetch"
	"github.com/Sriram-PR/zsml-scraper/pkg/storage"
)

const searchPath = "/zsml/queryAction.do"

type fixtureProgram struct {
	id     string
	status int // 0 serves the page
}

type fixtureInstitution struct {
	id       string
	location string
	status   int // 0 serves the page
	programs []fixtureProgram
}

// fixtureCatalog serves a miniature admissions catalog:
// POST search pages, GET /sch/<id> institution pages and GET /prog/<id> program pages
type fixtureCatalog struct {
	pages      [][]fixtureInstitution
	pageStatus map[string]int // pageno form value -> forced status

	mu   sync.Mutex
	hits map[string]int
}

func (c *fixtureCatalog) hit(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hits == nil {
		c.hits = make(map[string]int)
	}
	c.hits[key]++
}

func (c *fixtureCatalog) hitCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[key]
}

func (c *fixtureCatalog) findInstitution(id string) (fixtureInstitution, bool) {
	for _, page := range c.pages {
		for _, inst := range page {
			if inst.id == id {
				return inst, true
			}
		}
	}
	return fixtureInstitution{}, false
}

func (c *fixtureCatalog) findProgram(id string) (fixtureProgram, string, bool) {
	for _, page := range c.pages {
		for _, inst := range page {
			for _, p := range inst.programs {
				if p.id == id {
					return p, inst.id, true
				}
			}
		}
	}
	return fixtureProgram{}, "", false
}

func (c *fixtureCatalog) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		pageno := r.FormValue("pageno")
		c.hit("search:" + pageno)
		if st := c.pageStatus[pageno]; st != 0 {
			w.WriteHeader(st)
			return
		}
		idx := 0
		if pageno != "" {
			n, err := strconv.Atoi(pageno)
			if err != nil || n < 1 || n > len(c.pages) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			idx = n - 1
		}
		writeHTML(w, resultsHTML(c.pages[idx], len(c.pages)))
	})
	mux.HandleFunc("/sch/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/sch/")
		c.hit("sch:" + id)
		inst, ok := c.findInstitution(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if inst.status != 0 {
			w.WriteHeader(inst.status)
			return
		}
		writeHTML(w, institutionHTML(inst))
	})
	mux.HandleFunc("/prog/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/prog/")
		c.hit("prog:" + id)
		p, instID, ok := c.findProgram(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if p.status != 0 {
			w.WriteHeader(p.status)
			return
		}
		writeHTML(w, programHTML(instID, p.id))
	})
	return mux
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	fmt.Fprint(w, body)
}

func resultsHTML(rows []fixtureInstitution, totalPages int) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="ch-table"><thead><tr><th>招生单位</th><th>所在地</th></tr></thead><tbody>`)
	for _, inst := range rows {
		fmt.Fprintf(&b, `<tr><td><a href="/sch/%s" target="_blank">(%s)%s大学</a></td><td>%s</td></tr>`, inst.id, inst.id, inst.id, inst.location)
	}
	b.WriteString(`</tbody></table><ul class="ch-page"><li><a>上一页</a></li>`)
	for i := 1; i <= totalPages; i++ {
		fmt.Fprintf(&b, `<li><a>%d</a></li>`, i)
	}
	b.WriteString(`<li><a>下一页</a></li><li><a>尾页</a></li></ul></body></html>`)
	return b.String()
}

func institutionHTML(inst fixtureInstitution) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="sch_list"></div><script>var html = '`)
	for _, p := range inst.programs {
		fmt.Fprintf(&b, `<tr><td>%s</td><td><a href="/prog/%s" target="_blank">查看</a></td></tr>`, p.id, p.id)
	}
	b.WriteString(`';</script></body></html>`)
	return b.String()
}

func programHTML(instID, progID string) string {
	return fmt.Sprintf(`<html><body><table><tbody>
<tr><td class="zsml-summary">(%s)%s大学</td><td class="zsml-summary">统考</td></tr>
<tr><td class="zsml-summary">(001)信息学院</td><td class="zsml-summary">%s</td></tr>
<tr><td class="zsml-summary">全日制</td><td class="zsml-summary">(01)方向</td></tr>
<tr><td class="zsml-summary">不区分导师</td><td class="zsml-summary">5</td></tr>
</tbody></table>
<span class="zsml-bz">备注%s</span>
<table><tbody class="zsml-res-items"><tr><td>(101)思想政治理论</td><td>(201)英语一</td></tr></tbody></table>
</body></html>`, instID, instID, progID, progID)
}

type testHarness struct {
	server  *httptest.Server
	catalog *fixtureCatalog
	cfg     *config.AppConfig
	hook    *test.Hook
	log     *logrus.Entry
	ledger  *storage.BadgerLedger
}

func newHarness(t *testing.T, catalog *fixtureCatalog, mutate func(cfg *config.AppConfig)) *testHarness {
	t.Helper()
	server := httptest.NewServer(catalog.handler())
	t.Cleanup(server.Close)

	cfg := &config.AppConfig{
		SearchURL:    server.URL + searchPath,
		BaseURL:      server.URL,
		NumWorkers:   1,
		FetchTimeout: 5 * time.Second,
		OutputDir:    t.TempDir(),
		StateDir:     t.TempDir(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	log := logrus.NewEntry(logger)

	return &testHarness{server: server, catalog: catalog, cfg: cfg, hook: hook, log: log, ledger: memLedger(t, log)}
}

func (h *testHarness) engine(t *testing.T, queryCfg config.QueryConfig) *Engine {
	t.Helper()
	fetcher := fetch.NewFetcher(h.server.Client(), h.cfg, h.log)
	e, err := NewEngine(h.cfg, "test", queryCfg, fetcher, fetch.NoopPacer{}, h.ledger, h.log)
	require.NoError(t, err)
	return e
}

func (h *testHarness) run(t *testing.T, queryCfg config.QueryConfig) (*RunSummary, error) {
	t.Helper()
	return h.engine(t, queryCfg).Run(context.Background(), queryCfg.SearchQuery())
}

// warnings returns logged warnings whose url field matches
func (h *testHarness) warnings(fieldKey, url string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data[fieldKey] == url {
			out = append(out, e)
		}
	}
	return out
}

func newStaticServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeHTML(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func discardLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func memLedger(t *testing.T, log *logrus.Entry) *storage.BadgerLedger {
	t.Helper()
	ledger, err := storage.OpenBadgerLedger(context.Background(), "", "test", log)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

var defaultQuery = config.QueryConfig{CategoryCode: "07", DisciplineCode: "0711"}
