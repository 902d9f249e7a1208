package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/zsml-scraper/pkg/log"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

const (
	keyPrefix   = "url:"   // Prefix for URL keys in DB
	ledgerDBDir = "ledger" // Suffix of the per-query directory within stateDir
)

// BadgerLedger implements Ledger using BadgerDB
type BadgerLedger struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context
	keyCount atomic.Int64
}

// OpenBadgerLedger opens a fresh ledger for queryKey under stateDir.
// Any ledger left by a previous run is removed first. An empty stateDir keeps
// the ledger in memory.
func OpenBadgerLedger(ctx context.Context, stateDir, queryKey string, logger *logrus.Entry) (*BadgerLedger, error) {
	ledger := &BadgerLedger{log: logger, ctx: ctx}
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))

	var opts badger.Options
	if stateDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
		logger.Debug("Opening in-memory run ledger")
	} else {
		dbPath := filepath.Join(stateDir, utils.SanitizeFilename(queryKey)+"_"+ledgerDBDir)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Warnf("Failed to remove previous ledger %s: %v", dbPath, err)
		}
		if err := os.MkdirAll(dbPath, 0755); err != nil {
			return nil, fmt.Errorf("%w: cannot create ledger directory %s: %w", utils.ErrFilesystem, dbPath, err)
		}
		opts = badger.DefaultOptions(dbPath)
		logger.Debugf("Opening run ledger at %s", dbPath)
	}
	opts = opts.WithLogger(badgerLogger).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %w", utils.ErrDatabase, err)
	}
	ledger.db = db
	return ledger, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for transaction conflicts between workers
func (s *BadgerLedger) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("Ledger transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Claim implements Ledger
func (s *BadgerLedger) Claim(key string, level models.Level, page int) (bool, error) {
	dbKey := []byte(keyPrefix + key)
	value, err := json.Marshal(&models.LedgerEntry{
		Level:       level,
		Status:      models.LinkStatusPending,
		Page:        page,
		LastAttempt: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: encode ledger entry: %w", utils.ErrDatabase, err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.Set(dbKey, value); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		return false, fmt.Errorf("%w: claiming '%s': %w", utils.ErrDatabase, key, err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// Record implements Ledger
func (s *BadgerLedger) Record(key string, entry *models.LedgerEntry) error {
	dbKey := []byte(keyPrefix + key)
	if entry.LastAttempt.IsZero() {
		entry.LastAttempt = time.Now()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode ledger entry: %w", utils.ErrDatabase, err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		if _, errGet := txn.Get(dbKey); errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.Set(dbKey, value)
	})
	if err != nil {
		return fmt.Errorf("%w: recording '%s': %w", utils.ErrDatabase, key, err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// Status implements Ledger
func (s *BadgerLedger) Status(key string) (models.LinkStatus, *models.LedgerEntry, error) {
	dbKey := []byte(keyPrefix + key)
	status := models.LinkStatusNotFound
	var entry *models.LedgerEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.LedgerEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Undecodable ledger entry for '%s': %v", key, errJSON)
				status = models.LinkStatusUnset
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if err != nil {
		return models.LinkStatusDBError, nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrDatabase, key, err)
	}
	return status, entry, nil
}

// Count implements Ledger
func (s *BadgerLedger) Count() int {
	return int(s.keyCount.Load())
}

// WriteFailureLog implements Ledger.
// Line format: category<TAB>level<TAB>page<TAB>url
func (s *BadgerLedger) WriteFailureLog(filePath string) (int, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("%w: create failure log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0
	var writeErr error

	iterErr := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := s.ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key()[len(prefix):])

			errValue := item.Value(func(val []byte) error {
				var entry models.LedgerEntry
				if errJSON := json.Unmarshal(val, &entry); errJSON != nil {
					return nil
				}
				if entry.Status != models.LinkStatusFailure {
					return nil
				}
				if _, errW := fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", entry.ErrorType, entry.Level, entry.Page, key); errW != nil && writeErr == nil {
					writeErr = errW
				}
				written++
				return nil
			})
			if errValue != nil {
				return errValue
			}
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if iterErr != nil {
		return written, fmt.Errorf("%w: scanning ledger: %w", utils.ErrDatabase, iterErr)
	}
	if writeErr != nil {
		return written, fmt.Errorf("%w: writing failure log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Wrote %d failed URLs to %s", written, filePath)
	return written, nil
}

// Close implements Ledger
func (s *BadgerLedger) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing ledger: %w", utils.ErrDatabase, err)
	}
	return nil
}
