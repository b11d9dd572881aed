// Package checkpoint persists resumption cursors between import runs.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/dgraph-io/badger/v4"
)

// Store saves the cursor after the last committed page per entity type.
type Store interface {
	Save(cursor registry.Cursor, runID string) error
	// Load returns the saved cursor, or false if none is saved.
	Load(entity models.EntityType) (registry.Cursor, bool, error)
	Clear(entity models.EntityType) error
	Close() error
}

type record struct {
	Cursor  string    `json:"cursor"`
	RunID   string    `json:"run_id"`
	SavedAt time.Time `json:"saved_at"`
}

// BadgerStore keeps checkpoints in a badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// Options configures the badger store.
type Options struct {
	// Dir is the database directory. If empty, the store is in-memory.
	Dir string
	// Logger for badger. If nil, badger logging is disabled.
	Logger badger.Logger
}

// Open opens or creates the checkpoint database.
func Open(opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func key(entity models.EntityType) []byte {
	return []byte("cursor/" + string(entity))
}

func (s *BadgerStore) Save(cursor registry.Cursor, runID string) error {
	b, err := json.Marshal(record{Cursor: cursor.String(), RunID: runID, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(cursor.Entity()), b)
	})
}

func (s *BadgerStore) Load(entity models.EntityType) (registry.Cursor, bool, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(entity))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return registry.Cursor{}, false, nil
	}
	if err != nil {
		return registry.Cursor{}, false, fmt.Errorf("load %s checkpoint: %w", entity, err)
	}

	cursor, err := registry.ParseCursor(rec.Cursor)
	if err != nil {
		return registry.Cursor{}, false, fmt.Errorf("load %s checkpoint: %w", entity, err)
	}
	if cursor.Entity() != entity {
		return registry.Cursor{}, false, fmt.Errorf("load %s checkpoint: %w", entity, registry.ErrCursorMismatch)
	}
	return cursor, true, nil
}

func (s *BadgerStore) Clear(entity models.EntityType) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(entity))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Nop is a Store that remembers nothing.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Save(registry.Cursor, string) error { return nil }
func (Nop) Load(models.EntityType) (registry.Cursor, bool, error) {
	return registry.Cursor{}, false, nil
}
func (Nop) Clear(models.EntityType) error { return nil }
func (Nop) Close() error                  { return nil }
