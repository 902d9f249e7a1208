package models

// LinkStatus is the outcome of fetching a URL, as kept in the run ledger
type LinkStatus string

const (
	LinkStatusUnset    LinkStatus = ""          // Zero value = unset/unknown
	LinkStatusPending  LinkStatus = "pending"   // Claimed, fetch in progress
	LinkStatusSuccess  LinkStatus = "success"   // Fetched and extracted
	LinkStatusFailure  LinkStatus = "failure"   // Fetch or parse failed, subtree skipped
	LinkStatusDropped  LinkStatus = "dropped"   // Fetched but discarded by policy
	LinkStatusNotFound LinkStatus = "not_found" // Not in the ledger
	LinkStatusDBError  LinkStatus = "db_error"  // Ledger read failed
)

// String implements fmt.Stringer for logging
func (s LinkStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// Level is the traversal depth a URL was reached at.
type Level string

const (
	LevelResultsPage Level = "page"
	LevelInstitution Level = "institution"
	LevelProgram     Level = "program"
)
