// Package report aggregates an exported dataset by region.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/Sriram-PR/zsml-scraper/pkg/extract"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

var utf8BOM = []byte("\uFEFF")

// RegionCount is the number of program records located in one region
type RegionCount struct {
	Region string
	Code   string // numeric region code, empty when the location did not carry one
	Count  int
}

// Summary is the region breakdown of a dataset
type Summary struct {
	Mode    string
	Total   int // records read
	Dropped int // records whose location the policy rejected
	Regions []RegionCount
}

// Counted returns the number of records that made it into Regions
func (s Summary) Counted() int {
	return s.Total - s.Dropped
}

// LoadCSV reads a dataset written by the crawler. A leading BOM is tolerated,
// the header must match the crawler's column layout.
func LoadCSV(path string) (*models.ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read dataset '%s': %w", utils.ErrFilesystem, path, err)
	}
	return ReadCSV(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
}

// ReadCSV parses a dataset from r; see LoadCSV
func ReadCSV(r io.Reader) (*models.ResultSet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(models.Header)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: CSV dataset is empty", utils.ErrParsing)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: CSV header: %w", utils.ErrParsing, err)
	}
	if !slices.Equal(header, models.Header) {
		return nil, fmt.Errorf("%w: CSV header %v does not match %v", utils.ErrParsing, header, models.Header)
	}

	rs := models.NewResultSet()
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: CSV row: %w", utils.ErrParsing, err)
		}
		rs.Append(models.NewRecord(row[0], row[1:]))
	}
	return rs, nil
}

// CountByRegion groups records by the location the policy yields.
// Regions are ordered by count, descending, then by name.
func CountByRegion(records []models.Record, policy extract.LocationPolicy) Summary {
	summary := Summary{Mode: policy.Mode(), Total: len(records)}
	byRegion := make(map[string]*RegionCount)

	for _, rec := range records {
		region, ok := policy.Apply(rec.Location)
		if !ok {
			summary.Dropped++
			continue
		}
		rc, exists := byRegion[region]
		if !exists {
			rc = &RegionCount{Region: region}
			if _, code, matched := extract.ReduceRegion(rec.Location); matched {
				rc.Code = code
			}
			byRegion[region] = rc
		}
		rc.Count++
	}

	summary.Regions = make([]RegionCount, 0, len(byRegion))
	for _, rc := range byRegion {
		summary.Regions = append(summary.Regions, *rc)
	}
	sort.Slice(summary.Regions, func(i, j int) bool {
		a, b := summary.Regions[i], summary.Regions[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Region < b.Region
	})
	return summary
}
