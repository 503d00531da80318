//go:build !js && !tinygo && !cloudflare

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BadgerKV implements KVStore on an embedded badger database
type BadgerKV struct {
	db *badger.DB
}

// badgerLogger routes badger's warnings and errors to slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {}

func (l badgerLogger) Debugf(format string, args ...interface{}) {}

// OpenBadgerKV opens the database at path, or an in-memory one when path is empty
func OpenBadgerKV(path string, logger *slog.Logger) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerKV{db: db}, nil
}

func (k *BadgerKV) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (k *BadgerKV) Put(ctx context.Context, key string, value []byte) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (k *BadgerKV) Delete(ctx context.Context, key string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys returns every key with the prefix, in key order
func (k *BadgerKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close flushes and closes the database
func (k *BadgerKV) Close() error {
	return k.db.Close()
}
