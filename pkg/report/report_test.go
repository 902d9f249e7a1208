package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/extract"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

func record(location string) models.Record {
	return models.NewRecord(location, []string{"(10001)甲大学"})
}

func policy(t *testing.T, mode string) extract.LocationPolicy {
	t.Helper()
	p, err := extract.NewLocationPolicy(mode)
	require.NoError(t, err)
	return p
}

func datasetCSV(rows ...string) string {
	return "\uFEFF" + strings.Join(models.Header, ",") + "\n" + strings.Join(rows, "\n")
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte(datasetCSV(
		`(11)北京市,(10001)甲大学,统考,(001)学院,(081200)计算机,全日制,"(01)方向, 含逗号",张三,5,备注,(101)政治`,
		`(12)天津市,(10002)乙大学,,,,,,,,,`,
	)), 0644))

	rs, err := LoadCSV(path)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	recs := rs.Records()
	assert.Equal(t, "(11)北京市", recs[0].Location, "BOM must not leak into the first column")
	assert.Equal(t, "(01)方向, 含逗号", recs[0].ResearchDirection)
	assert.Equal(t, "(10002)乙大学", recs[1].Institution)
}

func TestLoadCSV_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		return path
	}

	_, err := LoadCSV(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)

	_, err = LoadCSV(write("empty.csv", ""))
	assert.ErrorIs(t, err, utils.ErrParsing)

	_, err = LoadCSV(write("header.csv", "a,b,c,d,e,f,g,h,i,j,k\n"))
	assert.ErrorIs(t, err, utils.ErrParsing)
	assert.Equal(t, "Content_ParsingCSV", utils.CategorizeError(err))

	_, err = LoadCSV(write("short.csv", datasetCSV("(11)北京市,only two")))
	assert.ErrorIs(t, err, utils.ErrParsing)
}

func TestCountByRegion(t *testing.T) {
	records := []models.Record{
		record("(11)北京市"),
		record("(31)上海市"),
		record(" (11)北京市 "),
		record("（32）江苏省"),
		record("未知"),
		record("(31)上海市"),
		record("(12)天津市"),
	}

	t.Run("strict", func(t *testing.T) {
		s := CountByRegion(records, policy(t, config.LocationModeStrict))
		assert.Equal(t, 7, s.Total)
		assert.Equal(t, 1, s.Dropped)
		assert.Equal(t, 6, s.Counted())
		assert.Equal(t, []RegionCount{
			{Region: "上海市", Code: "31", Count: 2},
			{Region: "北京市", Code: "11", Count: 2},
			{Region: "天津市", Code: "12", Count: 1},
			{Region: "江苏省", Code: "32", Count: 1},
		}, s.Regions)
	})

	t.Run("region keeps unmatched", func(t *testing.T) {
		s := CountByRegion(records, policy(t, config.LocationModeRegion))
		assert.Zero(t, s.Dropped)
		assert.Len(t, s.Regions, 5)
		assert.Contains(t, s.Regions, RegionCount{Region: "未知", Count: 1})
	})

	t.Run("raw", func(t *testing.T) {
		s := CountByRegion(records, policy(t, config.LocationModeRaw))
		assert.Equal(t, RegionCount{Region: "(11)北京市", Code: "11", Count: 2}, s.Regions[0])
	})

	t.Run("empty", func(t *testing.T) {
		s := CountByRegion(nil, policy(t, config.LocationModeStrict))
		assert.Empty(t, s.Regions)
		assert.Zero(t, s.Total)
	})
}

func TestPrintTable(t *testing.T) {
	s := CountByRegion([]models.Record{record("(11)北京市"), record("(11)北京市"), record("(31)上海市"), record("x")},
		policy(t, config.LocationModeStrict))

	var buf bytes.Buffer
	PrintTable(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "地区")
	assert.Contains(t, out, "北京市")
	assert.Contains(t, out, "66.7%")
	assert.Contains(t, out, "4 record(s) read, 3 counted, 1 dropped (location_mode=strict)")
	assert.Less(t, strings.Index(out, "北京市"), strings.Index(out, "上海市"))
}

func TestRenderBarChart(t *testing.T) {
	s := CountByRegion([]models.Record{record("(11)北京市"), record("(44)广东省")}, policy(t, config.LocationModeStrict))

	var buf bytes.Buffer
	require.NoError(t, RenderBarChart(&buf, s))
	out := buf.String()

	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "echarts")
	assert.Contains(t, out, "北京市")
	assert.Contains(t, out, "广东省")
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0.0%", percent(3, 0))
	assert.Equal(t, "50.0%", percent(1, 2))
}
