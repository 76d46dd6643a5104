package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"ksmeta/pkg/log"
	"ksmeta/pkg/models"
	"ksmeta/pkg/utils"
)

// resultKeyPrefix namespaces result entries in the shared database
const resultKeyPrefix = "result:"

// BadgerStore is a ResultStore backed by an embedded badger database
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (creating if needed) the result database under
// stateDir. When fresh is true any previous results are dropped first.
func NewBadgerStore(stateDir string, fresh bool, logEntry *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, "results")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create state dir: %v", utils.ErrDatabase, err)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = log.NewBadgerAdapter(logEntry.WithField("component", "badger"))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", utils.ErrDatabase, dbPath, err)
	}

	store := &BadgerStore{db: db, log: logEntry}

	if fresh {
		if err := db.DropAll(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: drop previous results: %v", utils.ErrDatabase, err)
		}
		logEntry.Debug("Dropped previous results, starting fresh")
	}

	return store, nil
}

// Get returns the stored result for a source URL
func (s *BadgerStore) Get(sourceURL string) (*models.ProcessingResult, bool, error) {
	var result models.ProcessingResult
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sourceURL))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &result); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", utils.ErrDatabase, sourceURL, err)
	}
	if !found {
		return nil, false, nil
	}
	return &result, true, nil
}

// Put stores a terminal result under its source URL
func (s *BadgerStore) Put(result *models.ProcessingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal result: %v", utils.ErrDatabase, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(result.SourceURL), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", utils.ErrDatabase, result.SourceURL, err)
	}
	return nil
}

// Close releases the underlying database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func key(sourceURL string) []byte {
	return []byte(resultKeyPrefix + sourceURL)
}
