// Package badgerdb implements the document store on an embedded Badger database.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/darkscore/darkscore-server/internal/store"
)

const keyPrefix = "doc:"

// Store is a Badger-backed store.Store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	broker *store.Broker
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	return open(opts, logger)
}

// OpenReadOnly opens an existing database without taking the write lock. Writes fail.
func OpenReadOnly(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithReadOnly(true)
	opts.Logger = nil
	return open(opts, logger)
}

// OpenInMemory opens a database that lives only in memory. Used by tests and tools.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.broker = store.NewBroker(s.Get, logger)

	logger.Info("Badger database opened", "path", opts.Dir, "in_memory", opts.InMemory)
	return s, nil
}

// Close stops subscriptions and closes the database.
func (s *Store) Close() error {
	s.broker.Close()
	return s.db.Close()
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Clean(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Resolve(ctx, s, path)
}

// Lookup implements store.FlatReader.
func (s *Store) Lookup(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(path))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}
	return value, true, nil
}

// Scan implements store.FlatReader.
func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	docs := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		return s.iterate(ctx, txn, prefix, true, func(path string, item *badger.Item) error {
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			docs[path] = value
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	return docs, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.deleteBeneath(ctx, txn, path); err != nil {
			return err
		}
		return txn.Set(docKey(path), data)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Merge implements store.Store. The read and write share one transaction;
// Badger retries are left to the caller via badger.ErrConflict.
func (s *Store) Merge(ctx context.Context, path string, fields map[string]any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var existing []byte
		item, err := txn.Get(docKey(path))
		switch {
		case err == nil:
			if existing, err = item.ValueCopy(nil); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		merged, err := store.ShallowMerge(existing, fields)
		if err != nil {
			return err
		}
		return txn.Set(docKey(path), merged)
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.deleteBeneath(ctx, txn, path); err != nil {
			return err
		}
		return txn.Delete(docKey(path))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Unsubscribe, error) {
	return s.broker.Subscribe(ctx, path, fn)
}

func (s *Store) deleteBeneath(ctx context.Context, txn *badger.Txn, path string) error {
	var keys [][]byte
	err := s.iterate(ctx, txn, path, false, func(_ string, item *badger.Item) error {
		keys = append(keys, item.KeyCopy(nil))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) iterate(ctx context.Context, txn *badger.Txn, path string, values bool, fn func(string, *badger.Item) error) error {
	prefix := []byte(keyPrefix + path + "/")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		if err := fn(string(item.Key()[len(keyPrefix):]), item); err != nil {
			return err
		}
	}
	return nil
}

func docKey(path string) []byte {
	return []byte(keyPrefix + path)
}
