package models

import (
	"net/url"
	"strconv"
)

// QueryField names one form field of the upstream search endpoint.
type QueryField string

const (
	FieldRegionCode      QueryField = "ssdm"   // Province/municipality code
	FieldInstitutionName QueryField = "dwmc"   // Admitting institution name
	FieldCategoryCode    QueryField = "mldm"   // Discipline category code
	FieldCategoryName    QueryField = "mlmc"   // Discipline category name
	FieldDisciplineCode  QueryField = "yjxkdm" // First-level discipline code
	FieldProgramName     QueryField = "zymc"   // Program name
	FieldStudyMode       QueryField = "xxfs"   // Full-time / part-time
	FieldPageNo          QueryField = "pageno" // Results page number, empty for the first request
)

// QueryFields lists every form field in the order the search form declares them.
var QueryFields = []QueryField{
	FieldRegionCode,
	FieldInstitutionName,
	FieldCategoryCode,
	FieldCategoryName,
	FieldDisciplineCode,
	FieldProgramName,
	FieldStudyMode,
	FieldPageNo,
}

// selectorFields are the fields that narrow the search; the endpoint rejects a query with none of them.
var selectorFields = []QueryField{
	FieldRegionCode,
	FieldInstitutionName,
	FieldCategoryCode,
	FieldDisciplineCode,
	FieldProgramName,
}

// SearchQuery is an immutable snapshot of the search form.
// Values are only set through QueryBuilder or derived with WithPage, so a query
// can be handed to concurrent fetches without copying.
type SearchQuery struct {
	values map[QueryField]string
}

// Get returns the value of a field, or "" if unset.
func (q SearchQuery) Get(field QueryField) string {
	return q.values[field]
}

// Page returns the page-number field as sent upstream.
func (q SearchQuery) Page() string {
	return q.values[FieldPageNo]
}

// WithPage returns a new query with the page-number field set.
// page <= 0 clears the field, which is how the first request is issued.
func (q SearchQuery) WithPage(page int) SearchQuery {
	next := make(map[QueryField]string, len(q.values)+1)
	for k, v := range q.values {
		next[k] = v
	}
	if page <= 0 {
		next[FieldPageNo] = ""
	} else {
		next[FieldPageNo] = strconv.Itoa(page)
	}
	return SearchQuery{values: next}
}

// HasSelector reports whether at least one narrowing field is filled.
func (q SearchQuery) HasSelector() bool {
	for _, f := range selectorFields {
		if q.values[f] != "" {
			return true
		}
	}
	return false
}

// Form encodes the query as the POST payload. Every declared field is present, empty or not.
func (q SearchQuery) Form() url.Values {
	form := make(url.Values, len(QueryFields))
	for _, f := range QueryFields {
		form.Set(string(f), q.values[f])
	}
	return form
}

// QueryBuilder assembles a SearchQuery.
type QueryBuilder struct {
	values map[QueryField]string
}

// NewQueryBuilder returns an empty builder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{values: make(map[QueryField]string, len(QueryFields))}
}

func (b *QueryBuilder) Set(field QueryField, value string) *QueryBuilder {
	b.values[field] = value
	return b
}

func (b *QueryBuilder) RegionCode(v string) *QueryBuilder      { return b.Set(FieldRegionCode, v) }
func (b *QueryBuilder) InstitutionName(v string) *QueryBuilder { return b.Set(FieldInstitutionName, v) }
func (b *QueryBuilder) CategoryCode(v string) *QueryBuilder    { return b.Set(FieldCategoryCode, v) }
func (b *QueryBuilder) CategoryName(v string) *QueryBuilder    { return b.Set(FieldCategoryName, v) }
func (b *QueryBuilder) DisciplineCode(v string) *QueryBuilder  { return b.Set(FieldDisciplineCode, v) }
func (b *QueryBuilder) ProgramName(v string) *QueryBuilder     { return b.Set(FieldProgramName, v) }
func (b *QueryBuilder) StudyMode(v string) *QueryBuilder       { return b.Set(FieldStudyMode, v) }

// Build returns a snapshot; later builder calls do not affect it.
func (b *QueryBuilder) Build() SearchQuery {
	values := make(map[QueryField]string, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return SearchQuery{values: values}
}
