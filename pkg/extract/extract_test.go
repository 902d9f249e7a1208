package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/fetch"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/parse"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

const resultsPage = `<html><body>
<table class="ch-table">
<thead><tr><th>招生单位</th><th>所在地</th></tr></thead>
<tbody>
<tr><td><a href="/zsml/querySchAction.do?dwmc=A&amp;yjxkdm=0812" target="_blank">(10001)A大学</a></td><td>(11)北京市</td></tr>
<tr><td>(10002)无链接大学</td><td>(12)天津市</td></tr>
<tr><td><a href="/zsml/querySchAction.do?dwmc=B">(10003)B大学</a></td><td></td></tr>
<tr><td><a href="https://other.example/sch">(10004)C大学</a></td><td>
  (31)上海市
</td></tr>
</tbody></table>
<ul class="ch-page">
<li><a>上一页</a></li><li><a>1</a></li><li><a>2</a></li><li><a>7</a></li><li><a>下一页</a></li><li><a>尾页</a></li>
</ul>
</body></html>`

const institutionPage = `<html><body><table><tbody>
<tr><td>计算机学院</td><td><a href="/zsml/kskm.jsp?id=1001&amp;dwmc=A" target="_blank">查看</a></td></tr>
<tr><td>软件学院</td><td><a href="/zsml/kskm.jsp?id=1002" target="_blank" class="x">查看</a></td></tr>
<tr><td>详情</td><td><a href="/zsml/other.jsp" target="_blank">详情</a></td></tr>
<tr><td>网络学院</td><td><a href="/zsml/kskm.jsp?id=1003">查看</a></td></tr>
</tbody></table></body></html>`

const programPage = `<html><body>
<table class="zsml-condition"><tbody>
<tr><td class="zsml-summary">(10001)A大学</td><td class="zsml-summary">统考</td></tr>
<tr><td class="zsml-summary">(001)计算机学院</td><td class="zsml-summary">(081200)计算机科学与技术</td></tr>
<tr><td class="zsml-summary">全日制</td><td class="zsml-summary">(01)人工智能</td></tr>
<tr><td class="zsml-summary">
   张三
</td><td class="zsml-summary">专业：5(不含推免)</td></tr>
</tbody></table>
<span class="zsml-bz">接收推免</span><span class="zsml-bz">
  不招收同等学力
</span>
<table><tbody class="zsml-res-items">
<tr><td>(101)思想政治理论<span class="sub-msg">见招生简章</span></td><td>(201)英语一</td><td>(301)数学一</td><td>(408)计算机学科专业基础</td></tr>
</tbody></table>
</body></html>`

func testSet(t *testing.T) *Set {
	t.Helper()
	cfg := &config.AppConfig{}
	_, err := cfg.Validate()
	require.NoError(t, err)
	set, err := NewSet(cfg)
	require.NoError(t, err)
	return set
}

func mustParse(t *testing.T, content string) *parse.Document {
	t.Helper()
	doc, err := parse.Parse(fetch.RawContent(content))
	require.NoError(t, err)
	return doc
}

func TestNewSet_RejectsBadRules(t *testing.T) {
	cfg := &config.AppConfig{}
	_, err := cfg.Validate()
	require.NoError(t, err)

	bad := *cfg
	bad.Selectors.MaxPageXPath = `//ul[`
	_, err = NewSet(&bad)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	bad = *cfg
	bad.Selectors.ProgramAnchor = `查看`
	_, err = NewSet(&bad)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	bad = *cfg
	bad.BaseURL = "/relative"
	_, err = NewSet(&bad)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestResultPageExtractor_PairsLinkWithOwnRow(t *testing.T) {
	refs := testSet(t).Results.Extract(mustParse(t, resultsPage))

	require.Len(t, refs, 3)
	assert.Equal(t, models.LinkRef{
		URL:     "https://yz.chsi.com.cn/zsml/querySchAction.do?dwmc=A&yjxkdm=0812",
		Context: "(11)北京市",
	}, refs[0])
	assert.Equal(t, "https://yz.chsi.com.cn/zsml/querySchAction.do?dwmc=B", refs[1].URL)
	assert.Equal(t, "", refs[1].Context, "empty location cell must not borrow the next row's")
	assert.Equal(t, "https://other.example/sch", refs[2].URL)
	assert.Equal(t, "(31)上海市", refs[2].Context)
}

func TestResultPageExtractor_NoTable(t *testing.T) {
	assert.Empty(t, testSet(t).Results.Extract(mustParse(t, "<html><body>暂无数据</body></html>")))
}

func TestInstitutionExtractor(t *testing.T) {
	doc := mustParse(t, institutionPage)
	urls := testSet(t).Institution.Extract(doc.Raw())

	assert.Equal(t, []string{
		"https://yz.chsi.com.cn/zsml/kskm.jsp?id=1001&dwmc=A",
		"https://yz.chsi.com.cn/zsml/kskm.jsp?id=1002",
		"https://yz.chsi.com.cn/zsml/kskm.jsp?id=1003",
	}, urls)
}

func TestInstitutionExtractor_Empty(t *testing.T) {
	assert.Empty(t, testSet(t).Institution.Extract("<html></html>"))
}

func TestMaxPageExtractor(t *testing.T) {
	set := testSet(t)

	tests := []struct {
		name     string
		page     string
		expected int
	}{
		{"numeric label", resultsPage, 7},
		{"no pagination", "<html><body><table class='ch-table'></table></body></html>", 1},
		{"non-numeric label falls back to highest number",
			`<ul class="ch-page"><li><a>1</a></li><li><a>2</a></li><li><a>...</a></li><li><a>9</a></li><li><a>下一页</a></li></ul>`, 9},
		{"no numeric labels at all",
			`<ul class="ch-page"><li><a>上一页</a></li><li><a>下一页</a></li><li><a>x</a></li><li><a>y</a></li></ul>`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, set.MaxPage.Extract(mustParse(t, tt.page)))
		})
	}
}

func TestFieldExtractor_FullPage(t *testing.T) {
	fields := testSet(t).Fields.Extract(mustParse(t, programPage))

	assert.Equal(t, []string{
		"(10001)A大学",
		"统考",
		"(001)计算机学院",
		"(081200)计算机科学与技术",
		"全日制",
		"(01)人工智能",
		"张三",
		"专业：5(不含推免)",
		"接收推免 不招收同等学力",
		"(101)思想政治理论 (201)英语一 (301)数学一 (408)计算机学科专业基础",
	}, fields)
}

func TestFieldExtractor_MissingBlocks(t *testing.T) {
	page := `<html><body><table><tr>
<td class="zsml-summary">(10001)A大学</td><td class="zsml-summary">统考</td>
</tr></table></body></html>`

	fields := testSet(t).Fields.Extract(mustParse(t, page))

	require.Len(t, fields, models.ExtractedFieldCount)
	assert.Equal(t, "(10001)A大学", fields[0])
	assert.Equal(t, "统考", fields[1])
	for i := 2; i < len(fields); i++ {
		assert.Equal(t, "", fields[i], "field %d", i)
	}
}

func TestFieldExtractor_SurplusSummaryIgnored(t *testing.T) {
	page := "<table><tr>"
	for i := 0; i < 12; i++ {
		page += `<td class="zsml-summary">c</td>`
	}
	page += "</tr></table>"

	fields := testSet(t).Fields.Extract(mustParse(t, page))
	assert.Len(t, fields, models.ExtractedFieldCount)
}

func TestFieldExtractor_Deterministic(t *testing.T) {
	set := testSet(t)
	doc := mustParse(t, programPage)
	assert.Equal(t, set.Fields.Extract(doc), set.Fields.Extract(doc))
}

func TestReduceRegion(t *testing.T) {
	tests := []struct {
		raw    string
		region string
		code   string
		ok     bool
	}{
		{"(11)北京市", "北京市", "11", true},
		{"（44）广东省", "广东省", "44", true},
		{"(65)新疆维吾尔自治区", "新疆维吾尔自治区", "65", true},
		{"北京市", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		region, code, ok := ReduceRegion(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.region, region, tt.raw)
		assert.Equal(t, tt.code, code, tt.raw)
	}
}

func TestLocationPolicy(t *testing.T) {
	_, err := NewLocationPolicy("city")
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	raw, _ := NewLocationPolicy(config.LocationModeRaw)
	region, _ := NewLocationPolicy(config.LocationModeRegion)
	strict, _ := NewLocationPolicy(config.LocationModeStrict)

	tests := []struct {
		name   string
		policy LocationPolicy
		input  string
		want   string
		keep   bool
	}{
		{"raw keeps text", raw, " (11)北京市 ", "(11)北京市", true},
		{"raw keeps unmatched", raw, "北京", "北京", true},
		{"region reduces", region, "(11)北京市", "北京市", true},
		{"region keeps unmatched", region, "北京", "北京", true},
		{"strict reduces", strict, "(11)北京市", "北京市", true},
		{"strict drops unmatched", strict, "北京", "", false},
		{"strict drops empty", strict, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := tt.policy.Apply(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.keep, keep)
		})
	}
}
