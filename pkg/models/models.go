package models

import (
	"sync"
	"time"
)

// Header is the column order of every exported dataset.
var Header = []string{"所在地", "招生单位", "考试方式", "院系所", "专业", "学习方式", "研究方向", "指导老师", "拟招人数", "备注", "考试范围"}

// ExtractedFieldCount is the number of columns the field extractor produces;
// the location column is prepended from the institution level.
var ExtractedFieldCount = len(Header) - 1

// LinkRef is a link found on a results page plus the text scraped alongside it.
type LinkRef struct {
	URL     string
	Context string // The row's location text, carried down to every program record
}

// Record is one admissions row. Field order matches Header.
type Record struct {
	Location          string `json:"location" yaml:"location"`
	Institution       string `json:"institution" yaml:"institution"`
	ExamType          string `json:"exam_type" yaml:"exam_type"`
	Department        string `json:"department" yaml:"department"`
	Program           string `json:"program" yaml:"program"`
	StudyMode         string `json:"study_mode" yaml:"study_mode"`
	ResearchDirection string `json:"research_direction" yaml:"research_direction"`
	Advisor           string `json:"advisor" yaml:"advisor"`
	PlannedHeadcount  string `json:"planned_headcount" yaml:"planned_headcount"`
	Remarks           string `json:"remarks" yaml:"remarks"`
	ExamScope         string `json:"exam_scope" yaml:"exam_scope"`
}

// NewRecord builds a Record from a location and the extractor's fields.
// Missing trailing fields become "", surplus fields are ignored.
func NewRecord(location string, fields []string) Record {
	f := make([]string, ExtractedFieldCount)
	copy(f, fields)
	return Record{
		Location:          location,
		Institution:       f[0],
		ExamType:          f[1],
		Department:        f[2],
		Program:           f[3],
		StudyMode:         f[4],
		ResearchDirection: f[5],
		Advisor:           f[6],
		PlannedHeadcount:  f[7],
		Remarks:           f[8],
		ExamScope:         f[9],
	}
}

// Values returns the record as a row in Header order.
func (r Record) Values() []string {
	return []string{
		r.Location, r.Institution, r.ExamType, r.Department, r.Program, r.StudyMode,
		r.ResearchDirection, r.Advisor, r.PlannedHeadcount, r.Remarks, r.ExamScope,
	}
}

// ResultSet is the append-only dataset of one run. Safe for concurrent use.
type ResultSet struct {
	mu      sync.Mutex
	records []Record
}

// NewResultSet returns an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{records: make([]Record, 0)}
}

// Header returns a copy of the column header.
func (rs *ResultSet) Header() []string {
	return append([]string(nil), Header...)
}

// Append adds records in the given order.
func (rs *ResultSet) Append(records ...Record) {
	rs.mu.Lock()
	rs.records = append(rs.records, records...)
	rs.mu.Unlock()
}

// Records returns a snapshot of the accumulated records.
func (rs *ResultSet) Records() []Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]Record(nil), rs.records...)
}

// Len returns the number of records.
func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.records)
}

// LedgerEntry stores the outcome of fetching one URL during a run
type LedgerEntry struct {
	Level       Level      `json:"level"`
	Status      LinkStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"` // Error category (on failure)
	Page        int        `json:"page"`                 // Results page the URL was reached from
	LastAttempt time.Time  `json:"last_attempt"`
}

// RunCounters summarises what happened at each traversal level.
type RunCounters struct {
	PagesTotal          int `yaml:"pages_total"`
	PagesFailed         int `yaml:"pages_failed"`
	InstitutionsSeen    int `yaml:"institutions_seen"`
	InstitutionsFailed  int `yaml:"institutions_failed"`
	InstitutionsDropped int `yaml:"institutions_dropped"` // Dropped by the location policy
	ProgramsSeen        int `yaml:"programs_seen"`
	ProgramsFailed      int `yaml:"programs_failed"`
	ProgramsDuplicate   int `yaml:"programs_duplicate"`
	Records             int `yaml:"records"`
}

// RunMetadata is written next to the dataset when metadata output is enabled.
type RunMetadata struct {
	RunID        string            `yaml:"run_id"`
	QueryKey     string            `yaml:"query_key"`
	Query        map[string]string `yaml:"query"`
	LocationMode string            `yaml:"location_mode"`
	StartTime    time.Time         `yaml:"start_time"`
	EndTime      time.Time         `yaml:"end_time"`
	Counters     RunCounters       `yaml:"counters"`
	OutputFiles  []string          `yaml:"output_files"`
}
