// Package badger is an embedded document store for single-node deployments
// that do not run a JSON-capable Redis.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/db"
)

// Config configures the embedded store.
type Config struct {
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

// Store keeps whole JSON documents keyed by string in BadgerDB.
type Store struct {
	db *badger.DB
}

type zapAdapter struct {
	s *zap.SugaredLogger
}

var _ badger.Logger = (*zapAdapter)(nil)

func (a *zapAdapter) Errorf(msg string, args ...any)   { a.s.Errorf(msg, args...) }
func (a *zapAdapter) Warningf(msg string, args ...any) { a.s.Warnf(msg, args...) }
func (a *zapAdapter) Infof(msg string, args ...any)    { a.s.Debugf(msg, args...) }
func (a *zapAdapter) Debugf(msg string, args ...any)   { a.s.Debugf(msg, args...) }

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = &zapAdapter{s: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: bdb}, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// JSONSet stores a whole document. Only the root path is supported.
func (s *Store) JSONSet(_ context.Context, key, path string, data []byte) error {
	if path != "" && path != "$" {
		return &db.Error{Op: db.OpJSONSet, Err: fmt.Errorf("unsupported path %q", path)}
	}
	if !json.Valid(data) {
		return &db.Error{Op: db.OpJSONSet, Err: errors.New("invalid JSON")}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return &db.Error{Op: db.OpJSONSet, Err: err}
	}
	return nil
}

// JSONGet returns the whole document. Sub-paths are not supported.
func (s *Store) JSONGet(_ context.Context, key string, paths ...string) ([]byte, error) {
	for _, p := range paths {
		if p != "$" {
			return nil, &db.Error{Op: db.OpJSONGet, Err: fmt.Errorf("unsupported path %q", p)}
		}
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpJSONGet, Err: err}
	}
	return out, nil
}

// Del removes a key. Missing keys are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return true, nil
}

// Scan returns keys matching a '*' glob in key order.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(db.LiteralPrefix(pattern))
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(iter.Item().Key())
			if db.GlobMatch(pattern, key) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return keys, nil
}
