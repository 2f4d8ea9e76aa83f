package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const (
	keyPrefix     = "snapshot:"
	keepSnapshots = 5
)

// SnapshotStore keeps exported queue documents in BadgerDB. Keys sort by
// save time, so the newest snapshot is the last key under the prefix.
type SnapshotStore struct {
	db  *badger.DB
	now func() time.Time
}

func Open(path string) (*SnapshotStore, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*SnapshotStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*SnapshotStore, error) {
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return &SnapshotStore{db: db, now: time.Now}, nil
}

// Save stores the snapshot and prunes all but the newest few.
func (s *SnapshotStore) Save(_ context.Context, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := []byte(fmt.Sprintf("%s%020d", keyPrefix, s.now().UnixNano()))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return s.prune()
}

// Load returns the newest snapshot, or nil when none was saved.
func (s *SnapshotStore) Load(_ context.Context) (*domain.Snapshot, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts at the largest key <= seek
		seek := append([]byte(keyPrefix), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix([]byte(keyPrefix)) {
			return nil
		}
		return it.Item().Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) prune() error {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		prefix := []byte(keyPrefix)
		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			seen++
			if seen > keepSnapshots {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)
