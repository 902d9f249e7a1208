package storage

import (
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
)

// Ledger records every URL a run touches, keyed by normalized URL.
// It is scoped to one run; nothing in it survives into the next.
type Ledger interface {
	// Claim marks key as pending at the given level.
	// Returns true if the key was newly added, false if this run has already seen it.
	Claim(key string, level models.Level, page int) (bool, error)

	// Record stores the outcome for key
	Record(key string, entry *models.LedgerEntry) error

	// Status retrieves the outcome for key (LinkStatusNotFound when absent)
	Status(key string) (models.LinkStatus, *models.LedgerEntry, error)

	// Count returns the number of keys recorded in this run
	Count() int

	// WriteFailureLog writes every failed key with its level, page and error category.
	// Returns the number of lines written.
	WriteFailureLog(filePath string) (int, error)

	// Close releases the underlying database
	Close() error
}
